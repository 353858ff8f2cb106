package pipeline

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pail-dev/pail/internal/models"
)

func strPtr(s string) *string { return &s }

func TestSlugifyName(t *testing.T) {
	require.Equal(t, "tech-news", slugifyName("Tech News!"))
	require.Equal(t, "a-b-c", slugifyName("A_B--C"))
	require.Equal(t, "source", slugifyName("###"))
}

func TestComputeSourceSlugsDisambiguates(t *testing.T) {
	groups := []sourceGroup{
		{key: "a", name: "Tech News"},
		{key: "b", name: "Tech News"},
	}
	slugs := computeSourceSlugs(groups)
	require.Equal(t, "tech-news", slugs["a"])
	require.Equal(t, "tech-news-2", slugs["b"])
}

func TestBuildSourceGroupsSplitsFolderByChildChannel(t *testing.T) {
	folder := &models.Source{ID: "folder-1", Kind: models.SourceKindChatFolder, Name: "News Folder"}
	sources := []*models.Source{folder}

	items := []*models.ContentItem{
		{ID: "1", SourceID: "folder-1", Body: "a", Metadata: models.JSON{"resolved_channel_name": "Channel A"}},
		{ID: "2", SourceID: "folder-1", Body: "b", Metadata: models.JSON{"resolved_channel_name": "Channel B"}},
		{ID: "3", SourceID: "folder-1", Body: "c", Metadata: models.JSON{"resolved_channel_name": "Channel A"}},
	}

	groups := buildSourceGroups(sources, items)
	require.Len(t, groups, 2)

	names := map[string]int{}
	for _, g := range groups {
		names[g.name] = len(g.items)
	}
	require.Equal(t, 2, names["Channel A"])
	require.Equal(t, 1, names["Channel B"])
}

func TestBuildSourceGroupsNonFolderKeepsSourceName(t *testing.T) {
	src := &models.Source{ID: "rss-1", Kind: models.SourceKindSyndication, Name: "Example Feed"}
	items := []*models.ContentItem{
		{ID: "1", SourceID: "rss-1", Body: "a"},
	}

	groups := buildSourceGroups([]*models.Source{src}, items)
	require.Len(t, groups, 1)
	require.Equal(t, "Example Feed", groups[0].name)
}

func TestFormatContentBodyTruncatesOnSizeLimit(t *testing.T) {
	big := make([]byte, maxSourceFileChars)
	for i := range big {
		big[i] = 'x'
	}
	items := []*models.ContentItem{
		{ID: "1", Body: string(big), OriginalDate: time.Now()},
		{ID: "2", Body: "small", OriginalDate: time.Now()},
	}

	body := formatContentBody(items)
	require.Contains(t, body, "xxx")
	require.NotContains(t, body, "small")
}

func TestWriteSourceFilesWritesFrontmatterAndItems(t *testing.T) {
	dir := t.TempDir()

	groups := []sourceGroup{
		{key: "rss-1", name: "Example Feed", kind: models.SourceKindSyndication, description: "A tech feed", items: []*models.ContentItem{
			{ID: "1", Body: "hello world", OriginalDate: time.Now()},
		}},
	}
	slugs := computeSourceSlugs(groups)

	err := writeSourceFiles(dir, groups, slugs)
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(dir, "sources", "example-feed.md"))
	require.NoError(t, err)

	content := string(raw)
	require.Contains(t, content, "name: Example Feed")
	require.Contains(t, content, "type: syndication")
	require.Contains(t, content, "item_count: 1")
	require.Contains(t, content, "description: A tech feed")
	require.Contains(t, content, "hello world")
}
