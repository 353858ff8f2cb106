package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pail-dev/pail/internal/models"
	"github.com/pail-dev/pail/internal/store"
	"github.com/pail-dev/pail/pkg/logger"
)

type fakeRepo struct {
	store.Repository
	channel  *models.OutputChannel
	articles []*models.GeneratedArticle
	byID     map[string]*models.GeneratedArticle
}

func (f *fakeRepo) GetOutputChannelBySlug(ctx context.Context, slug string) (*models.OutputChannel, error) {
	if f.channel != nil && f.channel.Slug == slug {
		return f.channel, nil
	}
	return nil, nil
}

func (f *fakeRepo) GetRecentArticles(ctx context.Context, channelID string, limit int) ([]*models.GeneratedArticle, error) {
	return f.articles, nil
}

func (f *fakeRepo) GetArticleByID(ctx context.Context, id string) (*models.GeneratedArticle, error) {
	return f.byID[id], nil
}

func newTestServer() *Server {
	repo := &fakeRepo{
		channel: &models.OutputChannel{ID: "chan-1", Slug: "tech-digest", Name: "Tech"},
		articles: []*models.GeneratedArticle{
			{ID: "art-1", GeneratedAt: time.Now(), BodyHTML: "<p>hi</p>"},
		},
		byID: map[string]*models.GeneratedArticle{
			"art-1": {ID: "art-1", Title: "Hello", BodyHTML: "<p>hi</p>"},
		},
	}
	return NewServer(repo, "secrettoken", logger.New(logger.Config{Level: "error", Format: "console", Output: "stdout"}))
}

func TestHandleFeedRequiresAuth(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/feed/default/tech-digest.atom", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandleFeedServesAtom(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/feed/default/tech-digest.atom?token=secrettoken", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "urn:uuid:art-1")
}

func TestHandleFeedUnknownChannel(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/feed/default/nope.atom?token=secrettoken", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleArticle(t *testing.T) {
	srv := newTestServer()
	req := httptest.NewRequest(http.MethodGet, "/article/art-1", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "Hello")
}
