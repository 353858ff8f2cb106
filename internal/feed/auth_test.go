package feed

import "testing"

func TestConstantTimeEq(t *testing.T) {
	if !constantTimeEq("secret", "secret") {
		t.Fatal("expected equal tokens to match")
	}
	if constantTimeEq("secret", "other!!") {
		t.Fatal("expected different-length tokens to not match")
	}
	if constantTimeEq("secret", "wrongx") {
		t.Fatal("expected different tokens to not match")
	}
}

func TestSplitFeedPath(t *testing.T) {
	user, slug, ok := splitFeedPath("default/tech-digest.atom")
	if !ok || user != "default" || slug != "tech-digest" {
		t.Fatalf("unexpected parse: user=%q slug=%q ok=%v", user, slug, ok)
	}

	if _, _, ok := splitFeedPath("default.atom"); ok {
		t.Fatal("expected malformed path to be rejected")
	}
}
