package random

import (
	"crypto/rand"
	"errors"
	"math/big"
)

// ErrEmptyCharset is returned when no characters are available to pick from
var ErrEmptyCharset = errors.New("cannot generate a random string out of an empty charset")

// String generates a random string with a specific length, only using characters out of the given charset.
// Characters are selected uniformly using a cryptographically secure source.
func String(length int, charset string) (string, error) {
	chars := []rune(charset)
	if len(chars) == 0 {
		return "", ErrEmptyCharset
	}
	max := big.NewInt(int64(len(chars)))
	buf := make([]rune, length)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = chars[n.Int64()]
	}
	return string(buf), nil
}
