package anki

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const base91Alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789!#$%&()*+,-./:;<=>?@[]^_`{|}~"

// GUIDFor returns a stable note GUID for the given values, compatible with
// genanki's guid_for: the first 8 bytes of SHA-256 over the values joined by
// "__", as a big-endian integer in base91.
func GUIDFor(values ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(values, "__")))
	n := binary.BigEndian.Uint64(sum[:8])
	if n == 0 {
		return ""
	}
	var rev []byte
	for n > 0 {
		rev = append(rev, base91Alphabet[n%91])
		n /= 91
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return string(rev)
}

// fieldChecksum is the notes.csum value: the first 8 hex digits of the SHA-1
// of the sort field.
func fieldChecksum(sortField string) int64 {
	sum := sha1.Sum([]byte(sortField))
	v, _ := strconv.ParseInt(hex.EncodeToString(sum[:4]), 16, 64)
	return v
}

// deckNamespace scopes name-derived deck ids.
var deckNamespace = uuid.MustParse("6f1d8a56-4c1b-4f43-9a55-3b2f8e0c7a11")

// DeckIDFor derives a deck id from the deck name: a name-based (SHA-1) UUID
// folded into a positive 31-bit integer, so the same name maps to the same
// deck on every run.
func DeckIDFor(name string) int64 {
	u := uuid.NewSHA1(deckNamespace, []byte(name))
	id := int64(binary.BigEndian.Uint32(u[:4]) & 0x7fffffff)
	if id == 0 {
		id = 1 << 30
	}
	return id
}
