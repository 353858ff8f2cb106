package feed

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pail-dev/pail/internal/models"
)

func TestAtomGenerateIncludesChannelAndEntry(t *testing.T) {
	ch := &models.OutputChannel{ID: "chan-1", Name: "Tech Digest", Slug: "tech-digest"}
	articles := []*models.GeneratedArticle{
		{
			ID:           "art-1",
			Title:        "Weekly roundup & news",
			GeneratedAt:  time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC),
			CoversTo:     time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
			Topics:       models.StringSlice{"ai", "go"},
			BodyHTML:     "<p>hello & welcome</p>",
			ModelUsed:    "anthropic/claude-sonnet",
		},
	}

	out := NewAtomGenerator().Generate("https://pail.example.com", ch, articles)

	require.True(t, strings.HasPrefix(out, `<?xml version="1.0" encoding="UTF-8"?>`))
	require.Contains(t, out, "<title>Tech Digest</title>")
	require.Contains(t, out, "<subtitle>Tech Digest</subtitle>")
	require.Contains(t, out, "urn:pail:channel:chan-1")
	require.Contains(t, out, "urn:uuid:art-1")
	require.Contains(t, out, "Weekly roundup &amp; news")
	require.Contains(t, out, `<category term="ai"/>`)
	require.Contains(t, out, `<category term="go"/>`)
	require.Contains(t, out, "pail-opencode-claude-sonnet")
	require.Contains(t, out, "https://pail.example.com/article/art-1")
	require.Contains(t, out, "&lt;p&gt;hello &amp; welcome&lt;/p&gt;")
	require.True(t, strings.HasSuffix(out, "</feed>\n"))
}

func TestAtomGenerateEmptyChannel(t *testing.T) {
	ch := &models.OutputChannel{ID: "chan-2", Name: "Empty", Slug: "empty"}
	out := NewAtomGenerator().Generate("https://pail.example.com", ch, nil)
	require.Contains(t, out, "<title>Empty</title>")
	require.NotContains(t, out, "<entry>")
}

func TestModelShortName(t *testing.T) {
	require.Equal(t, "claude-sonnet", modelShortName("anthropic/claude-sonnet"))
	require.Equal(t, "unknown", modelShortName(""))
}
