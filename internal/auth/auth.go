// Package auth implements HTTP Basic credential checks for the query API.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"math/big"
)

const passwordBytes = 18

// GeneratePassword returns a random base62 password for first-run setups
// that did not configure one.
func GeneratePassword() (string, error) {
	raw := make([]byte, passwordBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return encodeBase62(raw), nil
}

func HashSecret(secret string) []byte {
	h := sha256.Sum256([]byte(secret))
	return h[:]
}

// Credentials is the configured username and password pair.
type Credentials struct {
	userHash []byte
	passHash []byte
}

func NewCredentials(username, password string) *Credentials {
	return &Credentials{
		userHash: HashSecret(username),
		passHash: HashSecret(password),
	}
}

// Verify compares both values in constant time. Both comparisons always run
// so a wrong username costs the same as a wrong password.
func (c *Credentials) Verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare(HashSecret(username), c.userHash)
	passOK := subtle.ConstantTimeCompare(HashSecret(password), c.passHash)
	return userOK&passOK == 1
}

// base62Alphabet includes A-Za-z0-9 (no special characters)
const base62Alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

func encodeBase62(data []byte) string {
	num := new(big.Int).SetBytes(data)
	base := big.NewInt(62)
	zero := big.NewInt(0)
	var result []byte

	for num.Cmp(zero) > 0 {
		mod := new(big.Int)
		num.DivMod(num, base, mod)
		result = append([]byte{base62Alphabet[mod.Int64()]}, result...)
	}

	// Preserve leading zeros
	for _, b := range data {
		if b != 0 {
			break
		}
		result = append([]byte{'0'}, result...)
	}

	if len(result) == 0 {
		return "0"
	}
	return string(result)
}
