package identity

import (
	"encoding/base32"
	"regexp"
	"strings"
)

var multiSpaceRegex = regexp.MustCompile(`\s+`)

// keyEncoding is a plain reversible byte transform, not a digest. Two
// distinct composed strings can never collide, and a key can be decoded
// back to its parts for debugging.
var keyEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Normalize canonicalizes free-text marketplace strings: trim, lowercase,
// collapse internal whitespace runs to a single space. Idempotent.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	return multiSpaceRegex.ReplaceAllString(text, " ")
}

// Key derives the identity key for an offer from its seller and title.
// Price is deliberately not part of the key: the same real-world offer at
// a new price must resolve to the same listing so the price change can be
// observed, rather than minting a fresh listing per price.
func Key(seller, title string) string {
	composed := Normalize(seller) + "-" + Normalize(title)
	return keyEncoding.EncodeToString([]byte(composed))
}

// DecodeKey inverts Key, returning the normalized "seller-title" string.
func DecodeKey(key string) (string, error) {
	raw, err := keyEncoding.DecodeString(key)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
