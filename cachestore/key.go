// Package cachestore resolves the on-disk cache directory for a request
// and loads/saves deterministic-replay cache entries keyed on an
// instruction and its result schema.
package cachestore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var slugger = cases.Lower(language.Und)

// Key formats the cache key for an instruction and its result schema:
// a readable slug prefix (for directory-listing friendliness) followed
// by a sha256 digest over the instruction and the schema together, so
// two instructions that slug identically but ask for different shapes
// never collide.
func Key(instruction string, schemaJSON any) (string, error) {
	schemaBytes, err := json.Marshal(schemaJSON)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256([]byte(instruction + ":::" + string(schemaBytes)))
	digest := hex.EncodeToString(sum[:])

	slug := slugify(instruction)
	if len(slug) > 50 {
		slug = slug[:50]
	}
	return slug + "_" + digest, nil
}

// slugify lowercases s (Unicode-aware) and collapses every run of
// non-alphanumeric characters to a single underscore, trimmed from
// both ends.
func slugify(s string) string {
	s = slugger.String(s)
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	return strings.TrimRight(b.String(), "_")
}

// ResolveRoot picks the cache directory: the KLENDATHU_CACHE
// environment variable if set, otherwise "${projectRoot}/.klendathu/cache"
// where projectRoot is the nearest ancestor of start containing a
// ".klendathu" marker, else the nearest ancestor containing ".git",
// else start itself.
func ResolveRoot(start string) (string, error) {
	if v := os.Getenv("KLENDATHU_CACHE"); v != "" {
		return v, nil
	}
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}

	if root, ok := findAncestorWith(abs, ".klendathu"); ok {
		return filepath.Join(root, ".klendathu", "cache"), nil
	}
	if root, ok := findAncestorWith(abs, ".git"); ok {
		return filepath.Join(root, ".klendathu", "cache"), nil
	}
	return filepath.Join(abs, ".klendathu", "cache"), nil
}

func findAncestorWith(start, marker string) (string, bool) {
	dir := start
	for {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}
