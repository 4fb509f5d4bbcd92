package blob

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var asciiFolder = transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// SanitizeFilename reduces an arbitrary client-supplied filename to a safe
// object key component. Accented letters are folded to their ASCII base
// before anything outside [a-zA-Z0-9.-] is replaced with an underscore.
func SanitizeFilename(name string) string {
	folded, _, err := transform.String(asciiFolder, name)
	if err != nil {
		folded = name
	}
	var builder strings.Builder
	builder.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			builder.WriteRune(r)
		default:
			builder.WriteByte('_')
		}
	}
	sanitized := builder.String()
	if strings.Trim(sanitized, "_") == "" {
		return "file"
	}
	return sanitized
}

// ObjectKey builds a collision-resistant key for an uploaded file, keeping
// the sanitized original name as a suffix so operators can recognise objects
// in bucket listings.
func ObjectKey(originalName string, now time.Time) string {
	var buf [6]byte
	if _, err := rand.Read(buf[:]); err != nil {
		// crypto/rand never fails on supported platforms; the timestamp
		// still keeps keys unique enough if it somehow does.
		copy(buf[:], []byte{0, 0, 0, 0, 0, 0})
	}
	return fmt.Sprintf("%d-%s-%s", now.UnixMilli(), hex.EncodeToString(buf[:]), SanitizeFilename(originalName))
}
