package session

import (
	"strings"

	"github.com/google/uuid"
)

const (
	codePrefix = "S-"
	codeLen    = 6
)

// GenerateCode produces a short human-enterable session code such as S-7F3A2B.
// Generation is pure; uniqueness is enforced by the session_code constraint at
// insert time, with the caller retrying on collision.
func GenerateCode() string {
	hex := strings.ReplaceAll(uuid.NewString(), "-", "")
	return codePrefix + strings.ToUpper(hex[:codeLen])
}
