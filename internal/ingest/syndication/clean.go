package syndication

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// cleanHTML strips markup from a feed item's body, keeping only visible
// text, collapsed to single spaces. Grounded on goquery's DOM traversal
// rather than the character-scanning approach of a hand-rolled tag
// stripper, since goquery already ships in the dependency tree.
func cleanHTML(html string) string {
	if html == "" {
		return ""
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return strings.TrimSpace(html)
	}

	text := doc.Text()
	return strings.Join(strings.Fields(text), " ")
}
