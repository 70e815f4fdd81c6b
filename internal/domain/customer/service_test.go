package customer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
	"github.com/krishna-marketing/grocer/internal/domain/auth"
	"github.com/krishna-marketing/grocer/internal/domain/txn"
)

type memRepo struct {
	customers map[string]*Customer
	addresses []Address
}

func (m *memRepo) Get(_ context.Context, id string) (*Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *memRepo) SetRole(_ context.Context, id string, role auth.Role) error {
	c, ok := m.customers[id]
	if !ok {
		return ErrNotFound
	}
	c.Role = role
	return nil
}

func (m *memRepo) CreateAddress(_ context.Context, a *Address) error {
	m.addresses = append(m.addresses, *a)
	return nil
}

func (m *memRepo) ListAddresses(_ context.Context, userID string) ([]Address, error) {
	var out []Address
	for _, a := range m.addresses {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepo) GetAddress(_ context.Context, userID, addressID string) (*Address, error) {
	for _, a := range m.addresses {
		if a.ID == addressID && a.UserID == userID {
			return &a, nil
		}
	}
	return nil, ErrAddressNotFound
}

func (m *memRepo) ClearDefaultAddress(_ context.Context, userID string) error {
	for i := range m.addresses {
		if m.addresses[i].UserID == userID {
			m.addresses[i].IsDefault = false
		}
	}
	return nil
}

func validInput() AddressInput {
	return AddressInput{Line1: "12 MG Road", City: "Pune", State: "MH", Pincode: "411001"}
}

func TestCreateAddress_FirstBecomesDefault(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, txn.Inline)

	a, err := svc.CreateAddress(context.Background(), "u1", validInput())
	require.NoError(t, err)
	assert.True(t, a.IsDefault)
	assert.Equal(t, "Home", a.Label)

	second, err := svc.CreateAddress(context.Background(), "u1", validInput())
	require.NoError(t, err)
	assert.False(t, second.IsDefault)
}

func TestCreateAddress_NewDefaultClearsOthers(t *testing.T) {
	repo := &memRepo{}
	svc := NewService(repo, txn.Inline)
	ctx := context.Background()

	first, err := svc.CreateAddress(ctx, "u1", validInput())
	require.NoError(t, err)

	in := validInput()
	in.IsDefault = true
	second, err := svc.CreateAddress(ctx, "u1", in)
	require.NoError(t, err)

	got, err := repo.GetAddress(ctx, "u1", first.ID)
	require.NoError(t, err)
	assert.False(t, got.IsDefault)
	assert.True(t, second.IsDefault)
}

func TestCreateAddress_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AddressInput)
	}{
		{"missing line", func(in *AddressInput) { in.Line1 = " " }},
		{"missing city", func(in *AddressInput) { in.City = "" }},
		{"missing state", func(in *AddressInput) { in.State = "" }},
		{"short pincode", func(in *AddressInput) { in.Pincode = "4110" }},
		{"leading zero pincode", func(in *AddressInput) { in.Pincode = "011001" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(&in)
			_, err := NewService(&memRepo{}, txn.Inline).CreateAddress(context.Background(), "u1", in)
			require.Error(t, err)
			assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
		})
	}
}
