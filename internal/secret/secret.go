package secret

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"fmt"
	"github.com/skybi/grade-proxy/internal/random"
)

// Charset is the alphabet the authentication server accepts for the random password prefix and the IV.
// Visually ambiguous characters are excluded and the server may reject anything outside of it.
const Charset = "ABCDEFGHJKMNPQRSTWXYZabcdefhijkmnprstwxyz2345678"

const (
	// PrefixLength is the length of the random string prepended to every password
	PrefixLength = 64

	// IVLength is the length of the AES initialization vector
	IVLength = aes.BlockSize

	// KeyLength is the amount of salt bytes used as the AES-128 key
	KeyLength = 16
)

var (
	ErrSaltTooShort      = fmt.Errorf("the password encryption salt is shorter than %d bytes", KeyLength)
	ErrInvalidIV         = fmt.Errorf("the initialization vector has to be exactly %d bytes long", IVLength)
	ErrInvalidCiphertext = errors.New("the ciphertext is not a valid padded AES-CBC message")
)

// EncryptPassword encrypts a password the way the authentication server's login form script does.
// A new random prefix and IV are generated on every call.
func EncryptPassword(password, salt string) (string, error) {
	prefix, err := random.String(PrefixLength, Charset)
	if err != nil {
		return "", err
	}
	iv, err := random.String(IVLength, Charset)
	if err != nil {
		return "", err
	}
	return EncryptPasswordWith(password, salt, prefix, iv)
}

// EncryptPasswordWith deterministically encrypts prefix+password using AES-128-CBC with PKCS7 padding.
// The key consists of the first 16 bytes of the salt. The result is the standard base64 encoding of the ciphertext.
func EncryptPasswordWith(password, salt, prefix, iv string) (string, error) {
	block, err := newCipher(salt)
	if err != nil {
		return "", err
	}
	if len(iv) != IVLength {
		return "", ErrInvalidIV
	}

	plaintext := pad([]byte(prefix+password), aes.BlockSize)
	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, []byte(iv)).CryptBlocks(ciphertext, plaintext)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// DecryptPassword reverses EncryptPasswordWith and returns prefix+password.
// A wrong IV only garbles the first block, which lies inside the random prefix.
func DecryptPassword(encoded, salt, iv string) (string, error) {
	block, err := newCipher(salt)
	if err != nil {
		return "", err
	}
	if len(iv) != IVLength {
		return "", ErrInvalidIV
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrInvalidCiphertext
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, []byte(iv)).CryptBlocks(plaintext, ciphertext)
	plaintext, err = unpad(plaintext, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func newCipher(salt string) (cipher.Block, error) {
	key := []byte(salt)
	if len(key) < KeyLength {
		return nil, ErrSaltTooShort
	}
	return aes.NewCipher(key[:KeyLength])
}

func pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, blockSize int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, ErrInvalidCiphertext
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrInvalidCiphertext
		}
	}
	return data[:len(data)-n], nil
}
