package syndication

import (
	"crypto/sha256"
	"encoding/hex"
)

// dedupKey returns the item's stable upstream identifier verbatim when one
// exists (a feed GUID), otherwise the hex SHA-256 digest of url‖title —
// the fallback used whenever the feed does not supply a persistent id.
func dedupKey(guid, url, title string) string {
	if guid != "" {
		return guid
	}
	sum := sha256.Sum256([]byte(url + title))
	return hex.EncodeToString(sum[:])
}
