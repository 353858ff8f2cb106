package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pail-dev/pail/internal/models"
)

// maxSourceFileChars bounds the size of any single sources/<slug>.md body,
// so the generator is never handed one unbounded file per source.
const maxSourceFileChars = 50_000

type sourceGroup struct {
	key         string // stable identifier used for slug disambiguation
	name        string
	kind        string
	description string
	items       []*models.ContentItem
}

// buildSourceGroups partitions the window's items by source, splitting
// chat_folder Sources into one group per resolved child channel (keyed by
// the child's own name from ContentItem metadata), per SPEC_FULL.md §4.5
// Phase 2 — folder Sources are never aggregated under the folder label.
func buildSourceGroups(sources []*models.Source, items []*models.ContentItem) []sourceGroup {
	bySourceID := make(map[string]*models.Source, len(sources))
	for _, s := range sources {
		bySourceID[s.ID] = s
	}

	groups := make(map[string]*sourceGroup)
	for _, item := range items {
		src, ok := bySourceID[item.SourceID]
		if !ok {
			continue
		}

		key := src.ID
		name := src.Name
		if src.Kind == models.SourceKindChatFolder {
			if item.Metadata != nil {
				if childName, ok := item.Metadata["resolved_channel_name"].(string); ok && childName != "" {
					name = childName
				}
			}
			key = src.ID + ":" + name
		}

		g, ok := groups[key]
		if !ok {
			description := ""
			if src.Description != nil {
				description = *src.Description
			}
			g = &sourceGroup{key: key, name: name, kind: src.Kind, description: description}
			groups[key] = g
		}
		g.items = append(g.items, item)
	}

	result := make([]sourceGroup, 0, len(groups))
	for _, g := range groups {
		result = append(result, *g)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].name < result[j].name })
	return result
}

// computeSourceSlugs assigns each group a filesystem-safe slug, derived
// from the group's name, disambiguating collisions with a numeric suffix.
func computeSourceSlugs(groups []sourceGroup) map[string]string {
	counts := make(map[string]int)
	slugs := make(map[string]string, len(groups))
	for _, g := range groups {
		base := slugifyName(g.name)
		counts[base]++
		if counts[base] == 1 {
			slugs[g.key] = base
		} else {
			slugs[g.key] = fmt.Sprintf("%s-%d", base, counts[base])
		}
	}
	return slugs
}

func slugifyName(name string) string {
	lowered := strings.ToLower(name)
	var b strings.Builder
	for _, r := range lowered {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	parts := strings.Split(b.String(), "-")
	segments := parts[:0]
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	if len(segments) == 0 {
		return "source"
	}
	return strings.Join(segments, "-")
}

// manifest mirrors SPEC_FULL.md §6.3 exactly.
type manifest struct {
	Channel manifestChannel  `json:"channel"`
	Window  manifestWindow   `json:"window"`
	TZ      string           `json:"timezone"`
	Sources []manifestSource `json:"sources"`
}

type manifestChannel struct {
	Name     string  `json:"name"`
	Slug     string  `json:"slug"`
	Language *string `json:"language"`
}

type manifestWindow struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type manifestSource struct {
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	ItemCount int    `json:"item_count"`
}

func writeManifest(dir string, ch *models.OutputChannel, tz string, from, to time.Time, groups []sourceGroup, slugs map[string]string) error {
	m := manifest{
		Channel: manifestChannel{Name: ch.Name, Slug: ch.Slug, Language: ch.Language},
		Window:  manifestWindow{From: from.UTC().Format(time.RFC3339), To: to.UTC().Format(time.RFC3339)},
		TZ:      tz,
	}
	for _, g := range groups {
		m.Sources = append(m.Sources, manifestSource{
			Slug: slugs[g.key], Name: g.name, Type: g.kind, ItemCount: len(g.items),
		})
	}

	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("pipeline: marshaling manifest: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, "manifest.json"), b, 0o644)
}

// sourceFrontmatter is the YAML header of each sources/<slug>.md file, per
// SPEC_FULL.md §4.5 Phase 2 — the generator relies on this for attribution,
// so the field names and their absence/presence are a bit-level contract.
type sourceFrontmatter struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	ItemCount   int    `yaml:"item_count"`
	Description string `yaml:"description"`
}

// writeSourceFiles writes one sources/<slug>.md per group: a YAML
// frontmatter block, then items separated by a single "---" line. Large
// groups are still bounded by maxSourceFileChars, but as a truncation
// within the one file rather than a split across files, since the
// generator is only ever handed the single path named in the manifest.
func writeSourceFiles(dir string, groups []sourceGroup, slugs map[string]string) error {
	srcDir := filepath.Join(dir, "sources")
	if err := os.MkdirAll(srcDir, 0o755); err != nil {
		return fmt.Errorf("pipeline: creating sources dir: %w", err)
	}

	for _, g := range groups {
		slug := slugs[g.key]

		fm := sourceFrontmatter{Name: g.name, Type: g.kind, ItemCount: len(g.items), Description: g.description}
		fmBytes, err := yaml.Marshal(fm)
		if err != nil {
			return fmt.Errorf("pipeline: marshaling frontmatter for %s: %w", slug, err)
		}

		var b strings.Builder
		b.WriteString("---\n")
		b.Write(fmBytes)
		b.WriteString("---\n\n")
		b.WriteString(formatContentBody(g.items))

		if err := os.WriteFile(filepath.Join(srcDir, slug+".md"), []byte(b.String()), 0o644); err != nil {
			return fmt.Errorf("pipeline: writing source file %s: %w", slug, err)
		}
	}
	return nil
}

// formatContentBody renders items as "---"-separated chunks, truncating
// once the accumulated text crosses maxSourceFileChars so a single
// unusually large source can't blow out the generator's context.
func formatContentBody(items []*models.ContentItem) string {
	var chunks []string
	total := 0
	for _, item := range items {
		chunk := formatContentItem(item)
		if total > 0 && total+len(chunk) > maxSourceFileChars {
			break
		}
		chunks = append(chunks, chunk)
		total += len(chunk)
	}
	return strings.Join(chunks, "\n---\n")
}

func formatContentItem(item *models.ContentItem) string {
	var b strings.Builder
	if item.Title != nil && *item.Title != "" {
		fmt.Fprintf(&b, "### %s\n\n", *item.Title)
	}
	fmt.Fprintf(&b, "**Date:** %s\n", item.OriginalDate.UTC().Format(time.RFC3339))
	if item.Author != nil && *item.Author != "" {
		fmt.Fprintf(&b, "**Author:** %s\n", *item.Author)
	}
	if item.URL != nil && *item.URL != "" {
		fmt.Fprintf(&b, "**Link:** %s\n", *item.URL)
	}
	b.WriteString("\n")
	b.WriteString(item.Body)
	b.WriteString("\n")
	return b.String()
}

// prepareWorkspace creates the temp directory and every file named in
// SPEC_FULL.md §4.5 Phase 2, returning a cleanup func bound to this scope
// so the directory vacates on every exit path, including a panic.
func prepareWorkspace(ch *models.OutputChannel, tz string, from, to time.Time, sources []*models.Source, items []*models.ContentItem, editorialDirective string, interactive bool) (dir string, cleanup func(), err error) {
	dir, err = os.MkdirTemp("", "pail-gen-")
	if err != nil {
		return "", func() {}, fmt.Errorf("pipeline: creating workspace: %w", err)
	}
	cleanup = func() { _ = os.RemoveAll(dir) }

	groups := buildSourceGroups(sources, items)
	slugs := computeSourceSlugs(groups)

	if err := writeManifest(dir, ch, tz, from, to, groups, slugs); err != nil {
		cleanup()
		return "", func() {}, err
	}
	if err := writeSourceFiles(dir, groups, slugs); err != nil {
		cleanup()
		return "", func() {}, err
	}
	if err := os.WriteFile(filepath.Join(dir, "output.md"), nil, 0o644); err != nil {
		cleanup()
		return "", func() {}, err
	}
	if err := os.WriteFile(filepath.Join(dir, "prompt.md"), []byte(renderPrompt(editorialDirective)), 0o644); err != nil {
		cleanup()
		return "", func() {}, err
	}
	if interactive {
		if err := os.WriteFile(filepath.Join(dir, "AGENTS.md"), []byte(renderAgentsFile(editorialDirective)), 0o644); err != nil {
			cleanup()
			return "", func() {}, err
		}
	}

	return dir, cleanup, nil
}
