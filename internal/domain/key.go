package domain

import (
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
)

const accessKeyBytes = 15

// NewAccessKey returns a random opaque access key of 24 lower-case base32 characters.
func NewAccessKey() (string, error) {
	b := make([]byte, accessKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate access key: %w", err)
	}
	return strings.ToLower(base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(b)), nil
}
