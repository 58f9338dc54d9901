package room

import (
	"crypto/rand"
	"log/slog"
	"math/big"
	"strconv"
)

const (
	// MinCode and MaxCode bound the numeric pairing codes handed out to peers.
	MinCode = 1000
	MaxCode = 9999

	// CodeLength is the number of digits in a pairing code.
	CodeLength = 4

	randomTries = 32
)

// GenerateCode returns a random 4-digit code that exists reports as free.
// Codes are drawn uniformly from [MinCode, MaxCode] and retried on collision.
func GenerateCode(exists func(string) bool) string {
	for {
		code := strconv.Itoa(MinCode + randomIndex(MaxCode-MinCode+1))
		if exists == nil || !exists(code) {
			return code
		}
	}
}

// FindFreeCode is GenerateCode for callers that cannot bound the number of
// taken codes. After a few random draws it scans the whole range from a
// random start, and returns ErrExhausted if every code is taken.
func FindFreeCode(exists func(string) bool) (string, error) {
	span := MaxCode - MinCode + 1
	for range randomTries {
		code := strconv.Itoa(MinCode + randomIndex(span))
		if !exists(code) {
			return code, nil
		}
	}

	start := randomIndex(span)
	for i := range span {
		code := strconv.Itoa(MinCode + (start+i)%span)
		if !exists(code) {
			return code, nil
		}
	}
	return "", ErrExhausted
}

// ValidCode reports whether s looks like a pairing code.
func ValidCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	n, _ := strconv.Atoi(s)
	return n >= MinCode && n <= MaxCode
}

// randomIndex returns a cryptographically secure random index in [0, max).
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		slog.Error("failed to read random source", "error", err)
		panic(err)
	}
	return int(n.Int64())
}
