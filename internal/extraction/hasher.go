package extraction

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher derives stable message identifiers.
type Hasher struct {
	algorithm string
}

func NewHasher(algorithm string) *Hasher {
	return &Hasher{algorithm: strings.ToLower(algorithm)}
}

// ComputeID hashes the ordered parts joined by '|'.
func (h *Hasher) ComputeID(parts ...string) string {
	var builder strings.Builder
	for _, p := range parts {
		builder.WriteString(p)
		builder.WriteByte('|')
	}
	input := []byte(builder.String())

	switch h.algorithm {
	case "md5":
		sum := md5.Sum(input)
		return hex.EncodeToString(sum[:])
	default:
		sum := sha256.Sum256(input)
		return hex.EncodeToString(sum[:])
	}
}
