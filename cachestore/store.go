package cachestore

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Mode controls how a Store consults and updates the cache, driven by
// KLENDATHU_CACHE_MODE.
type Mode int

const (
	// Normal looks up on read, replays on a hit, and writes a live
	// result back to the cache after a successful run.
	Normal Mode = iota
	// Ignore skips lookup entirely (always a miss) but still writes the
	// live result, so a stale or suspect cache can be refreshed without
	// deleting it by hand.
	Ignore
	// ForceUse requires a cache hit and fails the request rather than
	// falling back to a live run when the entry is missing.
	ForceUse
)

// ParseMode reads KLENDATHU_CACHE_MODE, defaulting to Normal for an
// unset or unrecognized value.
func ParseMode(v string) Mode {
	switch v {
	case "ignore":
		return Ignore
	case "force-use":
		return ForceUse
	default:
		return Normal
	}
}

// Entry is the persisted cache record: the recorded tool-call
// transcript plus the final validated result it produced. success
// mirrors the transcript's own success flag; an entry with
// success != true is never replayed.
type Entry struct {
	Success bool            `json:"success"`
	Result  any             `json:"result"`
	Calls   []EntryToolCall `json:"calls"`
}

// EntryToolCall is the minimal shape the replay engine needs to
// re-issue a recorded call: which tool, with what code. OK is always
// true for a persisted entry — spec §4.5 step 1 filters a transcript
// down to its Ok calls before it is ever written to the cache, so a
// failed eval/set_result attempt that the agent retried past never
// reaches disk — but the field is kept on the wire shape itself so a
// reader of a cache file (or an older entry written before this
// filter existed) can tell a genuinely-Ok call from one that slipped
// through.
type EntryToolCall struct {
	Tool string `json:"tool"`
	Code string `json:"code"`
	OK   bool   `json:"ok"`
}

// Store reads and writes cache entries as single JSON files named
// "<key>.json" under Root.
type Store struct {
	Root string
	Mode Mode
}

// New builds a Store rooted at root.
func New(root string, mode Mode) *Store {
	return &Store{Root: root, Mode: mode}
}

func (s *Store) path(key string) string {
	return filepath.Join(s.Root, key+".json")
}

// Lookup returns the cache entry for key, or nil if the mode skips
// lookup (Ignore), the file is missing, or it fails to parse — a
// corrupt or absent cache entry is always treated as a miss, never an
// error, except under ForceUse where the caller is expected to turn a
// nil return into CacheRequiredButMissing.
func (s *Store) Lookup(key string) (*Entry, error) {
	if s.Mode == Ignore {
		return nil, nil
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, nil
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, nil
	}
	if !entry.Success {
		return nil, nil
	}
	return &entry, nil
}

// Save writes entry to key's cache file, creating the root directory
// as needed. Writes go through a temp file in the same directory and
// an atomic rename so a crash mid-write never leaves a corrupt entry
// at the canonical path; a reader instead sees either the old entry
// or the new one. Failures are returned, not swallowed — callers treat
// a save failure as non-fatal to the request and merely log it.
func (s *Store) Save(key string, entry Entry) error {
	if err := os.MkdirAll(s.Root, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(s.Root, key+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, s.path(key)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
