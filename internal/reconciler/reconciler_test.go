package reconciler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pail-dev/pail/internal/config"
	"github.com/pail-dev/pail/internal/models"
	"github.com/pail-dev/pail/internal/store"
	"github.com/pail-dev/pail/pkg/logger"
)

type fakeRepo struct {
	store.Repository
	sources        map[string]*models.Source
	channels       map[string]*models.OutputChannel
	deletedSources []string
	deletedSlugs   []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sources:  make(map[string]*models.Source),
		channels: make(map[string]*models.OutputChannel),
	}
}

func (f *fakeRepo) GetSourceByName(ctx context.Context, name string) (*models.Source, error) {
	return f.sources[name], nil
}

func (f *fakeRepo) UpsertSource(ctx context.Context, s *models.Source) error {
	f.sources[s.Name] = s
	return nil
}

func (f *fakeRepo) DeleteSourcesNotIn(ctx context.Context, names []string) (int64, error) {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	var n int64
	for name := range f.sources {
		if !keep[name] {
			delete(f.sources, name)
			f.deletedSources = append(f.deletedSources, name)
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) GetOutputChannelBySlug(ctx context.Context, slug string) (*models.OutputChannel, error) {
	return f.channels[slug], nil
}

func (f *fakeRepo) UpsertOutputChannel(ctx context.Context, c *models.OutputChannel, sourceNames []string) error {
	f.channels[c.Slug] = c
	return nil
}

func (f *fakeRepo) DeleteOutputChannelsNotIn(ctx context.Context, slugs []string) (int64, error) {
	keep := make(map[string]bool, len(slugs))
	for _, s := range slugs {
		keep[s] = true
	}
	var n int64
	for slug := range f.channels {
		if !keep[slug] {
			delete(f.channels, slug)
			f.deletedSlugs = append(f.deletedSlugs, slug)
			n++
		}
	}
	return n, nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Format: "console", Output: "stdout"})
}

func TestSyncUpsertsAndDeletes(t *testing.T) {
	repo := newFakeRepo()
	repo.sources["stale"] = &models.Source{ID: "old-id", Name: "stale"}
	repo.channels["stale-chan"] = &models.OutputChannel{ID: "old-chan-id", Slug: "stale-chan"}

	r := New(repo, testLogger())
	cfg := &config.Config{
		Sources: []config.SourceConfig{
			{Name: "tech-blog", Type: models.SourceKindSyndication, URL: "https://example.com/feed"},
		},
		OutputChannels: []config.OutputChannelConfig{
			{Name: "Tech Digest", Slug: "tech-digest", Sources: []string{"tech-blog"}},
		},
	}

	require.NoError(t, r.Sync(context.Background(), cfg))

	require.Contains(t, repo.sources, "tech-blog")
	require.NotContains(t, repo.sources, "stale")
	require.Contains(t, repo.channels, "tech-digest")
	require.NotContains(t, repo.channels, "stale-chan")
	require.Equal(t, []string{"stale"}, repo.deletedSources)
	require.Equal(t, []string{"stale-chan"}, repo.deletedSlugs)
}

func TestSyncPreservesExistingIDOnUpdate(t *testing.T) {
	repo := newFakeRepo()
	existing := &models.Source{ID: "kept-id", Name: "tech-blog", PollInterval: "15m"}
	repo.sources["tech-blog"] = existing

	r := New(repo, testLogger())
	cfg := &config.Config{
		Sources: []config.SourceConfig{
			{Name: "tech-blog", Type: models.SourceKindSyndication, URL: "https://example.com/feed"},
		},
	}

	require.NoError(t, r.Sync(context.Background(), cfg))

	require.Equal(t, "kept-id", repo.sources["tech-blog"].ID)
}
