package strutils

import (
	"fmt"
	"strings"
)

const BASE58_ALPHABET = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"

const (
	MIN_MINT_LENGTH = 32
	MAX_MINT_LENGTH = 44
)

// Trims surrounding whitespace and checks that the mint is a base58 encoded address.
// Base58 is case sensitive, so the case is left as is.
func NormalizeMint(mint string) (string, error) {
	trimmed := strings.TrimSpace(mint)

	for _, char := range trimmed {
		if !strings.ContainsRune(BASE58_ALPHABET, char) {
			return "", fmt.Errorf("invalid character in mint. input: '%s'", mint)
		}
	}

	if len(trimmed) < MIN_MINT_LENGTH || len(trimmed) > MAX_MINT_LENGTH {
		return "", fmt.Errorf("mint has incorrect length. input: '%s'", mint)
	}

	return trimmed, nil
}

func MintIsNormalized(mint string) bool {
	normalized, err := NormalizeMint(mint)
	if err != nil {
		return false
	}
	return normalized == mint
}
