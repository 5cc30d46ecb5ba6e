package api

import (
	"crypto/rand"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	toolCallIDPrefix = "call_"
	textIDPrefix     = "txt_"
)

// NewToolCallID synthesizes an opaque tool call id for backends that omit
// one. It is unique per process, which is enough to pair a later tool result
// with its call.
func NewToolCallID() string {
	return toolCallIDPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewTextID generates a text segment id with the "txt_" prefix followed by
// 24 random alphanumeric characters.
func NewTextID() string {
	return textIDPrefix + randomAlphanumeric(idLength)
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
