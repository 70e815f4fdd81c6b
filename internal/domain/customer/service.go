package customer

import (
	"context"
	"regexp"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/krishna-marketing/grocer/internal/domain/apperr"
	"github.com/krishna-marketing/grocer/internal/domain/txn"
)

var pincodeRe = regexp.MustCompile(`^[1-9][0-9]{5}$`)

// AddressInput is the user-supplied part of an Address.
type AddressInput struct {
	Label     string
	Line1     string
	Line2     string
	City      string
	State     string
	Pincode   string
	Phone     string
	IsDefault bool
}

func (in AddressInput) validate() error {
	switch {
	case strings.TrimSpace(in.Line1) == "":
		return apperr.Validation("address line is required")
	case strings.TrimSpace(in.City) == "":
		return apperr.Validation("city is required")
	case strings.TrimSpace(in.State) == "":
		return apperr.Validation("state is required")
	case !pincodeRe.MatchString(in.Pincode):
		return apperr.Validation("pincode must be 6 digits")
	}
	return nil
}

// Service implements account and address use cases.
type Service struct {
	repo Repository
	tx   txn.Runner
}

func NewService(repo Repository, tx txn.Runner) *Service {
	return &Service{repo: repo, tx: tx}
}

func (s *Service) Get(ctx context.Context, id string) (*Customer, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, errors.Wrap(err, "get customer")
	}
	return c, nil
}

// CreateAddress saves a new address. The first address of a user becomes the
// default; marking an address default clears the flag on the others.
func (s *Service) CreateAddress(ctx context.Context, userID string, in AddressInput) (*Address, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	a := &Address{
		ID:        uuid.NewString(),
		UserID:    userID,
		Label:     strings.TrimSpace(in.Label),
		Line1:     strings.TrimSpace(in.Line1),
		Line2:     strings.TrimSpace(in.Line2),
		City:      strings.TrimSpace(in.City),
		State:     strings.TrimSpace(in.State),
		Pincode:   in.Pincode,
		Phone:     strings.TrimSpace(in.Phone),
		IsDefault: in.IsDefault,
	}
	if a.Label == "" {
		a.Label = "Home"
	}

	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		existing, err := s.repo.ListAddresses(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "list addresses")
		}
		if len(existing) == 0 {
			a.IsDefault = true
		}
		if a.IsDefault && len(existing) > 0 {
			if err := s.repo.ClearDefaultAddress(ctx, userID); err != nil {
				return errors.Wrap(err, "clear default address")
			}
		}
		return s.repo.CreateAddress(ctx, a)
	})
	if err != nil {
		return nil, errors.Wrap(err, "create address")
	}
	return a, nil
}

func (s *Service) ListAddresses(ctx context.Context, userID string) ([]Address, error) {
	list, err := s.repo.ListAddresses(ctx, userID)
	if err != nil {
		return nil, errors.Wrap(err, "list addresses")
	}
	return list, nil
}
