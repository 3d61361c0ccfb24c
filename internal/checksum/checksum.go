// Package checksum fingerprints item documents so sync can skip unchanged
// files and writers can detect concurrent edits.
package checksum

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sum returns the hex-encoded SHA-256 digest of data with CRLF line endings
// folded to LF, so a document re-saved with other line endings keeps its
// fingerprint.
func Sum(data []byte) string {
	h := sha256.Sum256(bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n")))
	return hex.EncodeToString(h[:])
}

// Matches reports whether tag, a Sum value optionally in ETag form
// ("abc" or W/"abc"), fingerprints data.
func Matches(tag string, data []byte) bool {
	tag = strings.TrimPrefix(strings.TrimSpace(tag), "W/")
	return strings.Trim(tag, `"`) == Sum(data)
}
