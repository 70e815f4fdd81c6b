package order

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/oklog/ulid/v2"
)

// NumberPrefix starts every order number.
const NumberPrefix = "KM"

// NewNumber returns a unique, time-ordered order number.
func NewNumber() string {
	return NumberPrefix + ulid.Make().String()
}

var otpSpace = big.NewInt(10000)

// NewOTP returns a random 4-digit delivery code.
func NewOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}
