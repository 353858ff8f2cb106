package syndication

import "testing"

func TestDedupKeyPrefersGUID(t *testing.T) {
	if got := dedupKey("guid-1", "https://example.com/a", "Title"); got != "guid-1" {
		t.Fatalf("expected guid-1, got %s", got)
	}
}

func TestDedupKeyFallsBackToHash(t *testing.T) {
	a := dedupKey("", "https://example.com/a", "Title A")
	b := dedupKey("", "https://example.com/a", "Title B")
	if a == b {
		t.Fatal("expected different hashes for different titles")
	}
	if len(a) != 64 {
		t.Fatalf("expected 64-char hex digest, got %d chars", len(a))
	}
}

func TestCleanHTMLStripsTags(t *testing.T) {
	got := cleanHTML("<p>Hello <b>world</b></p>")
	if got != "Hello world" {
		t.Fatalf("expected 'Hello world', got %q", got)
	}
}
