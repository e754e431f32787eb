package auth

import (
	"crypto/rand"
	"fmt"
)

// alphanumeric is the 62-symbol alphabet for pins and reset tokens.
const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// maxUnbiased is the largest multiple of len(alphanumeric) that fits in a
// byte. Bytes at or above it are rejected so every symbol is equally likely.
const maxUnbiased = 256 - 256%len(alphanumeric)

// randomAlphanumeric returns n symbols drawn uniformly from crypto/rand.
func randomAlphanumeric(n int) (string, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, n+n/4+1)

	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}
			out = append(out, alphanumeric[int(b)%len(alphanumeric)])
			if len(out) == n {
				break
			}
		}
	}

	return string(out), nil
}
