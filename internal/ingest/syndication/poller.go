// Package syndication polls configured RSS/Atom Sources on their own
// poll intervals, applying conditional GET and normalizing items into
// ContentItems for the store.
package syndication

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mmcdole/gofeed"

	"github.com/pail-dev/pail/internal/models"
	"github.com/pail-dev/pail/internal/store"
	"github.com/pail-dev/pail/pkg/logger"
	"github.com/pail-dev/pail/pkg/ratelimit"
)

const fetchTimeout = 30 * time.Second

// minPollInterval is the floor under which no syndication source may be
// polled, regardless of its configured poll_interval.
const minPollInterval = 5 * time.Minute

// Poller periodically fetches every enabled syndication Source on its own
// poll_interval and ingests new items into the store.
type Poller struct {
	repo    store.Repository
	limiter *ratelimit.MultiLimiter
	client  *http.Client
	parser  *gofeed.Parser
	log     *logger.Logger

	lastPolled map[string]time.Time
}

func New(repo store.Repository, limiter *ratelimit.MultiLimiter, log *logger.Logger) *Poller {
	return &Poller{
		repo:       repo,
		limiter:    limiter,
		client:     &http.Client{Timeout: fetchTimeout},
		parser:     gofeed.NewParser(),
		log:        log.WithComponent("syndication"),
		lastPolled: make(map[string]time.Time),
	}
}

// FetchNow performs one immediate conditional-GET fetch of src, bypassing
// the poll_interval gate entirely. The CLI one-shot `generate`/`interactive`
// commands call this once per syndication source in the channel before
// collecting the window, rather than waiting on Run's periodic tick.
func (p *Poller) FetchNow(ctx context.Context, src *models.Source) (int, error) {
	return p.fetchOne(ctx, src)
}

// Run blocks, checking every 30 seconds for sources whose poll_interval
// has elapsed, until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	p.log.Info().Msg("syndication poller started")
	defer p.log.Info().Msg("syndication poller shutting down")

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	sources, err := p.repo.ListEnabledSourcesByKind(ctx, models.SourceKindSyndication)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to list syndication sources")
		return
	}

	now := time.Now().UTC()
	for _, src := range sources {
		interval, err := time.ParseDuration(src.PollInterval)
		if err != nil {
			interval = 30 * time.Minute
		}
		if interval < minPollInterval {
			interval = minPollInterval
		}
		if last, ok := p.lastPolled[src.ID]; ok && now.Sub(last) < interval {
			continue
		}
		p.lastPolled[src.ID] = now

		if err := p.limiter.Wait(ctx, ratelimit.LimiterSyndication); err != nil {
			return
		}

		log := p.log.WithSource("syndication", src.Name)
		inserted, err := p.fetchOne(ctx, src)
		if err != nil {
			log.Warn().Err(err).Msg("fetch failed")
			continue
		}
		if inserted > 0 {
			log.Info().Int("inserted", inserted).Msg("ingested items")
		}
	}
}

// fetchOne performs one conditional-GET fetch cycle for a single source.
func (p *Poller) fetchOne(ctx context.Context, src *models.Source) (int, error) {
	if src.URL == nil || *src.URL == "" {
		return 0, fmt.Errorf("syndication: source %s has no url", src.Name)
	}

	reqCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, *src.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("syndication: building request: %w", err)
	}
	req.Header.Set("User-Agent", "pail/1.0 (+https://github.com/pail-dev/pail)")
	if src.LastETag != nil && *src.LastETag != "" {
		req.Header.Set("If-None-Match", *src.LastETag)
	}
	if src.LastModifiedHeader != nil && *src.LastModifiedHeader != "" {
		req.Header.Set("If-Modified-Since", *src.LastModifiedHeader)
	}
	applyAuth(req, src)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("syndication: fetching %s: %w", src.Name, err)
	}
	defer resp.Body.Close()

	fetchedAt := time.Now().UTC()

	if resp.StatusCode == http.StatusNotModified {
		return 0, p.repo.UpdateSourceFetchState(ctx, src.ID, src.LastETag, src.LastModifiedHeader, fetchedAt)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("syndication: %s returned status %d", src.Name, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("syndication: reading body: %w", err)
	}

	feed, err := p.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("syndication: parsing feed %s: %w", src.Name, err)
	}

	inserted, err := p.ingestItems(ctx, src, feed)
	if err != nil {
		return inserted, err
	}

	etag := headerOrNil(resp.Header.Get("ETag"))
	lastMod := headerOrNil(resp.Header.Get("Last-Modified"))
	if err := p.repo.UpdateSourceFetchState(ctx, src.ID, etag, lastMod, fetchedAt); err != nil {
		return inserted, fmt.Errorf("syndication: updating fetch state: %w", err)
	}

	return inserted, nil
}

func (p *Poller) ingestItems(ctx context.Context, src *models.Source, feed *gofeed.Feed) (int, error) {
	maxItems := src.MaxItems
	if maxItems <= 0 || maxItems > len(feed.Items) {
		maxItems = len(feed.Items)
	}

	inserted := 0
	for _, fi := range feed.Items[:maxItems] {
		item := itemFromFeed(src.ID, fi)
		ok, err := p.repo.InsertContentItemIfAbsent(ctx, item)
		if err != nil {
			return inserted, fmt.Errorf("syndication: storing item: %w", err)
		}
		if ok {
			inserted++
		}
	}
	return inserted, nil
}

func itemFromFeed(sourceID string, fi *gofeed.Item) *models.ContentItem {
	publishedAt := time.Now().UTC()
	if fi.PublishedParsed != nil {
		publishedAt = fi.PublishedParsed.UTC()
	} else if fi.UpdatedParsed != nil {
		publishedAt = fi.UpdatedParsed.UTC()
	}

	body := cleanHTML(fi.Content)
	if body == "" {
		body = cleanHTML(fi.Description)
	}

	var title, url, author *string
	if fi.Title != "" {
		title = &fi.Title
	}
	if fi.Link != "" {
		url = &fi.Link
	}
	if fi.Author != nil && fi.Author.Name != "" {
		author = &fi.Author.Name
	}

	key := dedupKey(fi.GUID, fi.Link, fi.Title)

	return &models.ContentItem{
		ID:           uuid.NewString(),
		SourceID:     sourceID,
		IngestedAt:   time.Now().UTC(),
		OriginalDate: publishedAt,
		ContentType:  models.ContentTypeLink,
		Title:        title,
		Body:         body,
		URL:          url,
		Author:       author,
		DedupKey:     key,
	}
}

func applyAuth(req *http.Request, src *models.Source) {
	if src.AuthType == nil {
		return
	}
	switch *src.AuthType {
	case "basic":
		if src.AuthUsername != nil && src.AuthPassword != nil {
			req.SetBasicAuth(*src.AuthUsername, *src.AuthPassword)
		}
	case "bearer":
		if src.AuthToken != nil {
			req.Header.Set("Authorization", "Bearer "+*src.AuthToken)
		}
	case "header":
		if src.AuthHeaderName != nil && src.AuthHeaderValue != nil {
			req.Header.Set(*src.AuthHeaderName, *src.AuthHeaderValue)
		}
	}
}

func headerOrNil(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}
