package domain

import (
	"crypto/sha256"
	"encoding/hex"
)

// CoverKey derives the cache key for a cover image URL.
// Album siblings share a URL, so the image is fetched once per album.
func CoverKey(url string) string {
	h := sha256.Sum256([]byte(url))
	return hex.EncodeToString(h[:])
}
