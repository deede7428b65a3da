package cachestore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestKey_StableAndSchemaSensitive(t *testing.T) {
	k1, err := Key("Summarize the Quarterly Report!!", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	k2, err := Key("Summarize the Quarterly Report!!", map[string]any{"type": "object"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k1 != k2 {
		t.Fatalf("expected deterministic key, got %q vs %q", k1, k2)
	}

	k3, err := Key("Summarize the Quarterly Report!!", map[string]any{"type": "string"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k1 == k3 {
		t.Fatal("expected different schemas to produce different keys")
	}
}

func TestSlugify_LowercasesAndCollapsesPunctuation(t *testing.T) {
	got := slugify("Summarize THE Report!!  Now")
	want := "summarize_the_report_now"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestStore_SaveThenLookupRoundTrips(t *testing.T) {
	dir := t.TempDir()
	store := New(dir, Normal)

	entry := Entry{
		Success: true,
		Result:  map[string]any{"ok": true},
		Calls:   []EntryToolCall{{Tool: "eval", Code: "async () => 1"}},
	}
	if err := store.Save("abc_123", entry); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := store.Lookup("abc_123")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if got == nil {
		t.Fatal("expected a hit")
	}
	if len(got.Calls) != 1 || got.Calls[0].Tool != "eval" {
		t.Fatalf("unexpected entry: %#v", got)
	}

	if _, err := os.Stat(filepath.Join(dir, "abc_123.json")); err != nil {
		t.Fatalf("expected cache file on disk: %v", err)
	}
}

func TestStore_LookupMissIsNilNotError(t *testing.T) {
	store := New(t.TempDir(), Normal)
	got, err := store.Lookup("nope")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for a missing entry")
	}
}

func TestStore_UnsuccessfulEntryIsTreatedAsMiss(t *testing.T) {
	dir := t.TempDir()
	store := New(dir, Normal)
	if err := store.Save("partial", Entry{Success: false}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := store.Lookup("partial")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatal("expected an unsuccessful entry to be a miss")
	}
}

func TestStore_IgnoreModeSkipsLookup(t *testing.T) {
	dir := t.TempDir()
	saveStore := New(dir, Normal)
	if err := saveStore.Save("k", Entry{Success: true, Result: 1}); err != nil {
		t.Fatalf("save: %v", err)
	}

	ignoreStore := New(dir, Ignore)
	got, err := ignoreStore.Lookup("k")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Fatal("expected Ignore mode to always report a miss")
	}
}

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"":           Normal,
		"normal":     Normal,
		"ignore":     Ignore,
		"force-use":  ForceUse,
		"bogus":      Normal,
	}
	for input, want := range cases {
		if got := ParseMode(input); got != want {
			t.Fatalf("ParseMode(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestResolveRoot_HonorsEnvOverride(t *testing.T) {
	t.Setenv("KLENDATHU_CACHE", "/tmp/custom-cache")
	root, err := ResolveRoot(".")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if root != "/tmp/custom-cache" {
		t.Fatalf("got %q", root)
	}
}
