package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	responseIDPrefix = "resp-"
	toolCallIDPrefix = "tc-"
)

var responseIDPattern = regexp.MustCompile(`^resp-[a-zA-Z0-9]{24}$`)

// NewResponseID generates the identifier carried by a stream's done
// event: "resp-" followed by 24 cryptographically random alphanumeric
// characters.
func NewResponseID() string {
	return responseIDPrefix + randomAlphanumeric(idLength)
}

// NewToolCallID generates a fallback identifier for tool calls the
// upstream model emitted without one.
func NewToolCallID() string {
	return toolCallIDPrefix + randomAlphanumeric(idLength)
}

// ValidateResponseID checks whether the given string is a valid
// response ID.
func ValidateResponseID(id string) bool {
	return responseIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
