package accessory

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"strings"
)

// SetupCodeDigits is the number of digits in a setup code.
const SetupCodeDigits = 8

// SetupIDLength is the number of characters in a setup ID.
const SetupIDLength = 4

// trivialSetupCodes cannot be used as setup codes.
var trivialSetupCodes = map[string]bool{
	"00000000": true,
	"11111111": true,
	"22222222": true,
	"33333333": true,
	"44444444": true,
	"55555555": true,
	"66666666": true,
	"77777777": true,
	"88888888": true,
	"99999999": true,
	"12345678": true,
	"87654321": true,
}

// ParseSetupCode accepts "XXX-XX-XXX" or eight digits and returns the
// code in "XXX-XX-XXX" form.
func ParseSetupCode(s string) (string, error) {
	digits := s
	if len(s) == 10 {
		if s[3] != '-' || s[6] != '-' {
			return "", fmt.Errorf("%w: %q", ErrInvalidSetupCode, s)
		}
		digits = s[:3] + s[4:6] + s[7:]
	}
	if err := ValidateSetupCode(digits); err != nil {
		return "", err
	}
	return FormatSetupCode(digits), nil
}

// ValidateSetupCode checks eight bare digits.
func ValidateSetupCode(digits string) error {
	if len(digits) != SetupCodeDigits {
		return fmt.Errorf("%w: need %d digits", ErrInvalidSetupCode, SetupCodeDigits)
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return fmt.Errorf("%w: non-digit %q", ErrInvalidSetupCode, digits[i])
		}
	}
	if trivialSetupCodes[digits] {
		return fmt.Errorf("%w: %s is too easy to guess", ErrInvalidSetupCode, digits)
	}
	return nil
}

// FormatSetupCode inserts the dashes into eight digits. Input that is not
// eight characters is returned unchanged.
func FormatSetupCode(digits string) string {
	if len(digits) != SetupCodeDigits {
		return digits
	}
	return digits[:3] + "-" + digits[3:5] + "-" + digits[5:]
}

// setupCodeValue returns the numeric value of a formatted setup code.
func setupCodeValue(code string) uint64 {
	var v uint64
	for i := 0; i < len(code); i++ {
		if c := code[i]; c >= '0' && c <= '9' {
			v = v*10 + uint64(c-'0')
		}
	}
	return v
}

// GenerateSetupCode draws a random non-trivial setup code. A nil r uses
// crypto/rand.
func GenerateSetupCode(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	limit := big.NewInt(100000000)
	for {
		n, err := rand.Int(r, limit)
		if err != nil {
			return "", err
		}
		digits := fmt.Sprintf("%08d", n.Int64())
		if !trivialSetupCodes[digits] {
			return FormatSetupCode(digits), nil
		}
	}
}

const setupIDAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ValidateSetupID checks a four character [0-9A-Z] setup ID.
func ValidateSetupID(id string) error {
	if len(id) != SetupIDLength {
		return fmt.Errorf("%w: %q", ErrInvalidSetupID, id)
	}
	for i := 0; i < len(id); i++ {
		if strings.IndexByte(setupIDAlphabet, id[i]) < 0 {
			return fmt.Errorf("%w: %q", ErrInvalidSetupID, id)
		}
	}
	return nil
}

// GenerateSetupID draws a random setup ID. A nil r uses crypto/rand.
func GenerateSetupID(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	limit := big.NewInt(int64(len(setupIDAlphabet)))
	id := make([]byte, SetupIDLength)
	for i := range id {
		n, err := rand.Int(r, limit)
		if err != nil {
			return "", err
		}
		id[i] = setupIDAlphabet[n.Int64()]
	}
	return string(id), nil
}
