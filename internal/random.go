package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"math/big"
	"strings"
)

// CapabilityID identifies a stored reset capability. Only the id travels
// inside the capability token; the secret half never touches storage.
type CapabilityID [16]byte

const (
	capabilitySecretSize   = 32
	capabilityTokenRawSize = 16 + capabilitySecretSize
)

func NewCapabilityID() (CapabilityID, error) {
	var id CapabilityID
	_, err := rand.Read(id[:])
	return id, err
}

func (c CapabilityID) String() string {
	return base64.RawURLEncoding.EncodeToString(c[:])
}

func ParseCapabilityID(s string) (CapabilityID, error) {
	var id CapabilityID

	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return id, err
	}
	if len(raw) != len(id) {
		return id, errors.New("invalid capability id size")
	}

	copy(id[:], raw)
	return id, nil
}

func NewCapabilitySecret() ([capabilitySecretSize]byte, error) {
	var secret [capabilitySecretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

// HashSecret is the one-way transform applied to every secret before it is
// persisted: refresh tokens, one-time codes, and capability secrets alike.
func HashSecret(secret []byte) [32]byte {
	return sha256.Sum256(secret)
}

// EncodeCapabilityToken packs the capability id and secret into a single
// opaque base64url blob handed to the client.
func EncodeCapabilityToken(id CapabilityID, secret [capabilitySecretSize]byte) string {
	var raw [capabilityTokenRawSize]byte
	copy(raw[:len(id)], id[:])
	copy(raw[len(id):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:])
}

func DecodeCapabilityToken(token string) (CapabilityID, [capabilitySecretSize]byte, error) {
	var id CapabilityID
	var secret [capabilitySecretSize]byte

	if strings.TrimSpace(token) == "" {
		return id, secret, errors.New("empty capability token")
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return id, secret, err
	}
	if len(raw) != capabilityTokenRawSize {
		return id, secret, errors.New("invalid capability token size")
	}

	copy(id[:], raw[:len(id)])
	copy(secret[:], raw[len(id):])
	return id, secret, nil
}

// NumericCode returns a uniformly random code of the given number of
// decimal digits, left-padded with zeros.
func NumericCode(digits int) (string, error) {
	if digits < 4 || digits > 10 {
		return "", errors.New("invalid code length")
	}

	space := big.NewInt(1)
	for i := 0; i < digits; i++ {
		space.Mul(space, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, space)
	if err != nil {
		return "", err
	}

	code := n.String()
	if pad := digits - len(code); pad > 0 {
		code = strings.Repeat("0", pad) + code
	}
	return code, nil
}
