package pipeline

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseOutputWithFrontmatter(t *testing.T) {
	dir := t.TempDir()
	content := "---\ntitle: \"Weekly Roundup\"\ntopics:\n  - \"infra\"\n  - \"security\"\n---\n\n# Weekly Roundup\n\nBody text here.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "output.md"), []byte(content), 0o644))

	article, err := parseOutput(dir, "example")
	require.NoError(t, err)
	require.Equal(t, "Weekly Roundup", article.Title)
	require.Equal(t, []string{"infra", "security"}, article.Topics)
	require.Contains(t, article.BodyHTML, "Body text here.")
}

func TestParseOutputFallsBackToHeading(t *testing.T) {
	dir := t.TempDir()
	content := "# Fallback Title\n\nSome body.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "output.md"), []byte(content), 0o644))

	article, err := parseOutput(dir, "example")
	require.NoError(t, err)
	require.Equal(t, "Fallback Title", article.Title)
}

func TestParseOutputFallsBackToChannelName(t *testing.T) {
	dir := t.TempDir()
	content := "Just a body, no heading.\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "output.md"), []byte(content), 0o644))

	article, err := parseOutput(dir, "example")
	require.NoError(t, err)
	require.Equal(t, "example digest", article.Title)
}

func TestParseOutputEmptyIsError(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "output.md"), []byte("   \n"), 0o644))

	_, err := parseOutput(dir, "example")
	require.ErrorIs(t, err, ErrEmptyOutput)
}
