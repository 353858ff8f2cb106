// Package feed serves the authenticated Atom feed and article permalink
// pages over HTTP, via gin.
package feed

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pail-dev/pail/internal/store"
	"github.com/pail-dev/pail/pkg/logger"
)

const articlesPerFeed = 50

// Server wires the feed and article endpoints onto a gin router.
type Server struct {
	repo      store.Repository
	token     string
	generator *AtomGenerator
	log       *logger.Logger
}

func NewServer(repo store.Repository, token string, log *logger.Logger) *Server {
	return &Server{repo: repo, token: token, generator: NewAtomGenerator(), log: log.WithComponent("feed")}
}

// Router builds the gin engine. listen is not bound here — the daemon
// owns the http.Server lifecycle so it can participate in graceful
// shutdown alongside the scheduler and pollers.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/feed/*path", s.handleFeed)
	r.GET("/article/:id", s.handleArticle)
	return r
}

// handleFeed serves GET /feed/<username>/<slug>.atom. The username
// segment is currently always "default" — a placeholder for a future
// multi-account mode named explicitly in SPEC_FULL.md's Open Questions.
func (s *Server) handleFeed(c *gin.Context) {
	if !authenticate(c, s.token) {
		c.Header("WWW-Authenticate", `Basic realm="pail"`)
		c.String(http.StatusUnauthorized, "unauthorized")
		return
	}

	path := strings.TrimPrefix(c.Param("path"), "/")
	username, slug, ok := splitFeedPath(path)
	if !ok || username != "default" {
		c.String(http.StatusNotFound, "not found")
		return
	}

	ch, err := s.repo.GetOutputChannelBySlug(c.Request.Context(), slug)
	if err != nil {
		s.log.Error().Err(err).Str("slug", slug).Msg("failed to load channel")
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	if ch == nil {
		c.String(http.StatusNotFound, "channel not found")
		return
	}

	articles, err := s.repo.GetRecentArticles(c.Request.Context(), ch.ID, articlesPerFeed)
	if err != nil {
		s.log.Error().Err(err).Str("slug", slug).Msg("failed to load articles")
		c.String(http.StatusInternalServerError, "internal error")
		return
	}

	baseURL := deriveBaseURL(c)
	body := s.generator.Generate(baseURL, ch, articles)

	c.Header("Content-Type", "application/atom+xml; charset=utf-8")
	c.String(http.StatusOK, body)
}

// handleArticle serves a standalone HTML permalink page for one article.
func (s *Server) handleArticle(c *gin.Context) {
	id := c.Param("id")

	article, err := s.repo.GetArticleByID(c.Request.Context(), id)
	if err != nil {
		s.log.Error().Err(err).Str("id", id).Msg("failed to load article")
		c.String(http.StatusInternalServerError, "internal error")
		return
	}
	if article == nil {
		c.String(http.StatusNotFound, "article not found")
		return
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>%s</title>
<style>body{max-width:42rem;margin:2rem auto;padding:0 1rem;font-family:system-ui,sans-serif;line-height:1.6;color:#1a1a1a}
h1{font-size:1.8rem}blockquote{border-left:3px solid #ccc;margin-left:0;padding-left:1rem;color:#555}</style>
</head>
<body>
%s
</body>
</html>`, html.EscapeString(article.Title), article.BodyHTML)

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, page)
}

// splitFeedPath parses "<username>/<slug>.atom".
func splitFeedPath(path string) (username, slug string, ok bool) {
	if !strings.HasSuffix(path, ".atom") {
		return "", "", false
	}
	trimmed := strings.TrimSuffix(path, ".atom")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// deriveBaseURL honors a reverse proxy's X-Forwarded-Proto header over
// the connection's own scheme.
func deriveBaseURL(c *gin.Context) string {
	proto := c.GetHeader("X-Forwarded-Proto")
	if proto == "" {
		if c.Request.TLS != nil {
			proto = "https"
		} else {
			proto = "http"
		}
	}
	return fmt.Sprintf("%s://%s", proto, c.Request.Host)
}
