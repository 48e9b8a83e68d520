package queryexpr

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainQuery prefixes every query fingerprint. The version suffix leaves
// room for a change of canonical form.
const DomainQuery = "gall/query/v1"

// Fingerprint returns the hex SHA-256 of e's canonical form, separated
// from DomainQuery by a null byte. Structurally equal expressions share a
// fingerprint, so it can key a cache of compiled queries.
func Fingerprint(e Expr) (string, error) {
	canonical, err := MarshalCanonical(e)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainQuery, canonical), nil
}

func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
