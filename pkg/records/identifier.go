package records

import (
	"fmt"
	"strconv"

	"tsvload/internal/errors"
)

// maxKeyDigits is the widest digit suffix that still fits an int64.
const maxKeyDigits = 18

// Identifier is a dataset identifier of the form <prefix><zero-padded
// digits>, e.g. "tt0000001". Key is the integer value of the digits and is
// used only for ordering and joining. Width is the number of digits in the
// source text so String can restore the padding.
type Identifier struct {
	Prefix string
	Key    int64
	Width  int
}

// ParseIdentifier splits s into its letter prefix and numeric key.
func ParseIdentifier(s string) (Identifier, error) {
	i := 0
	for i < len(s) && !isDigit(s[i]) {
		if !isLetter(s[i]) {
			return Identifier{}, errors.Newf(errors.ErrParse, "identifier %q: unexpected character %q", s, s[i])
		}
		i++
	}
	digits := s[i:]
	if digits == "" {
		return Identifier{}, errors.Newf(errors.ErrParse, "identifier %q: no digit suffix", s)
	}
	if len(digits) > maxKeyDigits {
		return Identifier{}, errors.Newf(errors.ErrParse, "identifier %q: %d digits exceeds %d", s, len(digits), maxKeyDigits)
	}
	for j := 0; j < len(digits); j++ {
		if !isDigit(digits[j]) {
			return Identifier{}, errors.Newf(errors.ErrParse, "identifier %q: non-digit in suffix", s)
		}
	}
	key, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return Identifier{}, errors.WithCode(err, errors.ErrParse, fmt.Sprintf("identifier %q", s))
	}
	return Identifier{Prefix: s[:i], Key: key, Width: len(digits)}, nil
}

// NumericKey returns the integer formed by the digit suffix of s.
func NumericKey(s string) (int64, error) {
	id, err := ParseIdentifier(s)
	if err != nil {
		return 0, err
	}
	return id.Key, nil
}

// String re-formats the identifier with its prefix and zero padding.
func (id Identifier) String() string {
	return FormatIdentifier(id.Prefix, id.Key, id.Width)
}

// FormatIdentifier renders key with prefix, left-padded with zeros to width
// digits. Keys wider than width are written in full.
func FormatIdentifier(prefix string, key int64, width int) string {
	return fmt.Sprintf("%s%0*d", prefix, width, key)
}

func isDigit(c byte) bool  { return c >= '0' && c <= '9' }
func isLetter(c byte) bool { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
