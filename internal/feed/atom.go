package feed

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"
	"time"

	"github.com/pail-dev/pail/internal/models"
)

// AtomGenerator builds Atom 1.0 XML for a channel's recent articles.
// Hand-rolled rather than imported, the way the example pack's own
// syndication server writes RSS 2.0 by hand instead of pulling in a
// feed-building library.
type AtomGenerator struct{}

func NewAtomGenerator() *AtomGenerator { return &AtomGenerator{} }

// Generate writes an Atom feed for channel, with one entry per article,
// each self-linking to baseURL/feed/default/<slug>.atom.
func (g *AtomGenerator) Generate(baseURL string, channel *models.OutputChannel, articles []*models.GeneratedArticle) string {
	var buf bytes.Buffer

	feedURL := fmt.Sprintf("%s/feed/default/%s.atom", baseURL, channel.Slug)

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	buf.WriteString(`<feed xmlns="http://www.w3.org/2005/Atom">` + "\n")
	writeElement(&buf, "title", channel.Name, 2)
	writeElement(&buf, "subtitle", channel.Name, 2)
	writeElement(&buf, "id", "urn:pail:channel:"+channel.ID, 2)
	buf.WriteString(fmt.Sprintf("  <link rel=\"self\" href=%q type=\"application/atom+xml\"/>\n", feedURL))
	buf.WriteString(fmt.Sprintf("  <link href=%q/>\n", baseURL))

	updated := time.Now().UTC()
	if len(articles) > 0 {
		updated = articles[0].GeneratedAt.UTC()
	}
	writeElement(&buf, "updated", updated.Format(time.RFC3339), 2)
	writeElement(&buf, "generator", "pail", 2)

	for _, a := range articles {
		g.writeEntry(&buf, baseURL, a)
	}

	buf.WriteString("</feed>\n")
	return buf.String()
}

func (g *AtomGenerator) writeEntry(buf *bytes.Buffer, baseURL string, a *models.GeneratedArticle) {
	buf.WriteString("  <entry>\n")
	writeElement(buf, "title", a.Title, 4)
	writeElement(buf, "id", "urn:uuid:"+a.ID, 4)
	writeElement(buf, "updated", a.GeneratedAt.UTC().Format(time.RFC3339), 4)
	writeElement(buf, "published", a.GeneratedAt.UTC().Format(time.RFC3339), 4)

	authorName := "pail-opencode-" + modelShortName(a.ModelUsed)
	buf.WriteString("    <author>\n")
	writeElement(buf, "name", authorName, 6)
	buf.WriteString("    </author>\n")

	link := fmt.Sprintf("%s/article/%s", baseURL, a.ID)
	buf.WriteString(fmt.Sprintf("    <link href=%q/>\n", link))

	for _, topic := range a.Topics {
		buf.WriteString(fmt.Sprintf("    <category term=%q/>\n", topic))
	}

	buf.WriteString(`    <content type="html">`)
	xml.EscapeText(buf, []byte(a.BodyHTML))
	buf.WriteString("</content>\n")

	buf.WriteString("  </entry>\n")
}

func writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}
	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}
	buf.WriteString("<" + tag + ">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</" + tag + ">\n")
}

// modelShortName derives a short author handle from a model identifier
// such as "anthropic/claude-sonnet", taking the final path segment.
func modelShortName(model string) string {
	if model == "" {
		return "unknown"
	}
	parts := strings.Split(model, "/")
	return parts[len(parts)-1]
}
