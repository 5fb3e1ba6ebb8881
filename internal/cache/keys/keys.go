// Package keys builds Redis cache and lock keys for recommendation
// queries. Keys must be deterministic and safe for the Redis key space.
package keys

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"

	"github.com/mhrdika/besttime-cache/internal/core/model"
)

const (
	prefix = "besttime:v1"
	// locks live in their own keyspace: invalidation sweeps the
	// category prefix and must never delete an in-flight lock
	lockPrefix = "besttime:lock:v1"
)

// Key encodes (category, params) into a cache key. Two queries that
// differ only in incidental whitespace or casing encode identically.
func Key(category string, q model.Query) string {
	kw := NormalizeKeyword(category)
	canon := fmt.Sprintf("%s|w=%d|k=%d|d=%d", kw, q.WindowHours, q.TopK, q.DaysAhead)
	sum := xxhash.Sum64String(canon)
	return fmt.Sprintf("%s:%s:w%d:k%d:d%d:p=%016x", prefix, kw, q.WindowHours, q.TopK, q.DaysAhead, sum)
}

// LockKey derives the single-flight lock key for a cache key. The
// result sits outside every category's cache prefix so DelPrefix
// cannot touch it.
func LockKey(cacheKey string) string {
	return lockPrefix + strings.TrimPrefix(cacheKey, prefix)
}

// Prefix returns the key prefix covering every param combination for a
// category. Used by invalidation to drop all entries at once.
func Prefix(category string) string {
	return prefix + ":" + NormalizeKeyword(category) + ":"
}

// NormalizeKeyword lowercases the keyword and collapses any run of
// characters outside [a-z0-9] into a single underscore, trimming
// leading and trailing underscores.
func NormalizeKeyword(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	for _, r := range s {
		out := r
		if !isAlphaNum(r) {
			out = '_'
		}
		if out == '_' && prev == '_' {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return strings.Trim(b.String(), "_")
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') || unicode.IsDigit(r)
}
