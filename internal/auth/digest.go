package auth

import (
	"crypto/md5"
	"crypto/rand"
	"math/big"
	"strconv"
)

const (
	saltMin = 100000000
	saltMax = 9999999999
)

// Digest is the AIM 5.2+ login hash:
// MD5(MD5(MD5(password) || salt) || password).
func Digest(password, salt string) []byte {
	inner := md5.Sum([]byte(password))
	h := md5.New()
	h.Write(inner[:])
	h.Write([]byte(salt))
	mid := h.Sum(nil)

	h.Reset()
	h.Write(mid)
	h.Write([]byte(password))
	return h.Sum(nil)
}

// NewSalt returns a random decimal challenge in [saltMin, saltMax).
func NewSalt() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(saltMax-saltMin))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(n.Int64()+saltMin, 10), nil
}
