package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"gopkg.in/yaml.v3"
)

// ErrEmptyOutput means the generator exited without producing any usable
// article text in output.md — treated as a GenerationFatal condition by
// the caller, never retried a second time.
var ErrEmptyOutput = errors.New("pipeline: generator produced no output")

// untitledDigest is the final fallback title when the frontmatter has none
// and the body has no heading to fall back to either.
const untitledDigest = "Untitled Digest"

// shareLinkPattern matches the session share link opencode prints to
// stdout when invoked with --share.
var shareLinkPattern = regexp.MustCompile(`https://opencode\.ai/s/\S+`)

type frontmatter struct {
	Title  string   `yaml:"title"`
	Topics []string `yaml:"topics"`
}

// parsedArticle is the result of Phase 4 (parse), ready for Phase 5 (persist).
type parsedArticle struct {
	Title       string
	Topics      []string
	BodyMD      string
	BodyHTML    string
}

// parseOutput reads dir/output.md and splits it into YAML frontmatter and
// markdown body, rendering the body to HTML. A missing or absent title
// falls back first to an H1 heading in the body, then to the literal
// "Untitled Digest". generationLog is the accumulated subprocess
// stdout/stderr; if it contains a share-link, a line pointing to the
// session is appended to the body before HTML rendering, so both caches
// carry it.
func parseOutput(dir string, generationLog string) (*parsedArticle, error) {
	raw, err := os.ReadFile(filepath.Join(dir, "output.md"))
	if err != nil {
		return nil, fmt.Errorf("pipeline: reading output.md: %w", err)
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return nil, ErrEmptyOutput
	}

	fm, body := splitFrontmatter(text)

	title := fm.Title
	if title == "" {
		title = firstHeading(body)
	}
	if title == "" {
		title = untitledDigest
	}

	if link := shareLinkPattern.FindString(generationLog); link != "" {
		body = strings.TrimRight(body, "\n") + fmt.Sprintf("\n\n---\n\n[View the generation session](%s)\n", link)
	}

	var htmlBuf bytes.Buffer
	if err := goldmark.Convert([]byte(body), &htmlBuf); err != nil {
		return nil, fmt.Errorf("pipeline: rendering markdown: %w", err)
	}

	return &parsedArticle{
		Title:    title,
		Topics:   fm.Topics,
		BodyMD:   body,
		BodyHTML: htmlBuf.String(),
	}, nil
}

// splitFrontmatter separates a leading "---\n...\n---\n" YAML block from
// the remainder of the document. A malformed or missing block yields a
// zero-value frontmatter and the original text as the body, so a
// generator that forgets the block still produces a usable article.
func splitFrontmatter(text string) (frontmatter, string) {
	var fm frontmatter
	if !strings.HasPrefix(text, "---") {
		return fm, text
	}

	rest := text[3:]
	end := strings.Index(rest, "\n---")
	if end == -1 {
		return fm, text
	}

	block := strings.TrimPrefix(rest[:end], "\n")
	body := rest[end+4:]
	body = strings.TrimPrefix(body, "\n")

	if err := yaml.Unmarshal([]byte(block), &fm); err != nil {
		return frontmatter{}, text
	}

	return fm, strings.TrimSpace(body)
}

// firstHeading extracts the text of the first "# " or "## " line in body,
// used as a title fallback when the frontmatter omits one.
func firstHeading(body string) string {
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		}
	}
	return ""
}
