package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Validate checks every rule in SPEC_FULL.md §4.1 before any Store write is
// attempted. A non-nil error pinpoints the offending field.
func Validate(cfg *Config) error {
	if cfg.Pail.Version != 1 {
		return fmt.Errorf("config: unsupported version %d (this binary supports version 1)", cfg.Pail.Version)
	}

	if _, err := parseHumanDuration(cfg.Pail.Retention); err != nil {
		return fmt.Errorf("config: pail.retention %q: %w", cfg.Pail.Retention, err)
	}
	if _, err := time.LoadLocation(cfg.Pail.Timezone); err != nil {
		return fmt.Errorf("config: unknown timezone %q", cfg.Pail.Timezone)
	}
	if _, err := parseHumanDuration(cfg.Opencode.Timeout); err != nil {
		return fmt.Errorf("config: opencode.timeout %q: %w", cfg.Opencode.Timeout, err)
	}

	sourceNames := make(map[string]bool, len(cfg.Sources))
	for _, src := range cfg.Sources {
		if sourceNames[src.Name] {
			return fmt.Errorf("config: duplicate source name %q", src.Name)
		}
		sourceNames[src.Name] = true

		if err := validateSourceName(src.Name); err != nil {
			return fmt.Errorf("config: source %q: %w", src.Name, err)
		}
		if err := validateSourceDescription(src.Description); err != nil {
			return fmt.Errorf("config: source %q: description: %w", src.Name, err)
		}

		switch src.Type {
		case "syndication":
			if src.URL == "" {
				return fmt.Errorf("config: source %q: syndication source must have a 'url'", src.Name)
			}
		case "chat_channel", "chat_group", "chat_folder":
			if !cfg.Pail.ChatEnabled {
				return fmt.Errorf("config: source %q: chat source requires pail.chat_enabled = true", src.Name)
			}
			if src.Type == "chat_folder" && src.FolderName == "" {
				return fmt.Errorf("config: source %q: chat_folder source requires 'folder_name'", src.Name)
			}
		default:
			return fmt.Errorf("config: source %q: unknown type %q", src.Name, src.Type)
		}

		if src.Auth != nil {
			if err := validateAuth(src.Name, src.Auth); err != nil {
				return err
			}
		}

		if src.MaxItems < 0 {
			return fmt.Errorf("config: source %q: max_items must be non-negative", src.Name)
		}

		if src.Type == "syndication" {
			if _, err := parseHumanDuration(src.PollInterval); err != nil {
				return fmt.Errorf("config: source %q: invalid poll_interval %q: %w", src.Name, src.PollInterval, err)
			}
		}
	}

	slugs := make(map[string]bool, len(cfg.OutputChannels))
	for _, ch := range cfg.OutputChannels {
		if slugs[ch.Slug] {
			return fmt.Errorf("config: duplicate output channel slug %q", ch.Slug)
		}
		slugs[ch.Slug] = true

		if !validSlug(ch.Slug) {
			return fmt.Errorf("config: output channel %q: slug %q must be non-empty, lowercase letters/digits/hyphens only, and not start or end with a hyphen", ch.Name, ch.Slug)
		}

		if len(ch.Sources) == 0 {
			return fmt.Errorf("config: output channel %q: must have at least one source", ch.Name)
		}
		for _, refName := range ch.Sources {
			if !sourceNames[refName] {
				return fmt.Errorf("config: output channel %q: references unknown source %q", ch.Name, refName)
			}
		}

		if !strings.Contains(ch.Prompt, "{editorial_directive}") {
			return fmt.Errorf("config: output channel %q: prompt must be non-empty and contain the literal token {editorial_directive}", ch.Name)
		}

		if err := validateSchedule(ch.Schedule); err != nil {
			return fmt.Errorf("config: output channel %q: %w", ch.Name, err)
		}
	}

	return nil
}

func validateAuth(sourceName string, auth *SourceAuthConfig) error {
	switch auth.Type {
	case "basic":
		if auth.Username == "" || auth.Password == "" {
			return fmt.Errorf("config: source %q: basic auth requires 'username' and 'password'", sourceName)
		}
	case "bearer":
		if auth.Token == "" {
			return fmt.Errorf("config: source %q: bearer auth requires 'token'", sourceName)
		}
	case "header":
		if auth.HeaderName == "" || auth.HeaderValue == "" {
			return fmt.Errorf("config: source %q: header auth requires 'header_name' and 'header_value'", sourceName)
		}
	default:
		return fmt.Errorf("config: source %q: unknown auth type %q", sourceName, auth.Type)
	}
	return nil
}

// validateSourceName rejects control characters, double-quote, and
// backslash in a source's unique display name, per SPEC_FULL.md §4.1.
func validateSourceName(name string) error {
	if name == "" {
		return fmt.Errorf("name must be non-empty")
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f || r == '"' || r == '\\' {
			return fmt.Errorf("name contains a disallowed character")
		}
	}
	return nil
}

// validateSourceDescription rejects control characters in a source's
// optional free-text description, per SPEC_FULL.md §4.1. Unlike the name,
// an empty description is allowed — it's optional workspace-frontmatter
// flavor text, not an identifier.
func validateSourceDescription(description string) error {
	for _, r := range description {
		if r < 0x20 || r == 0x7f || r == '"' || r == '\\' {
			return fmt.Errorf("description contains a disallowed character")
		}
	}
	return nil
}

func validSlug(slug string) bool {
	if slug == "" || strings.HasPrefix(slug, "-") || strings.HasSuffix(slug, "-") {
		return false
	}
	for _, r := range slug {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-' {
			return false
		}
	}
	return true
}

// validateSchedule performs a syntax-only check of the grammar in
// SPEC_FULL.md §6.2, mirroring scheduler.Parse without importing the
// scheduler package (config must not depend on it, to keep validate-only
// startup free of any scheduling side effects).
func validateSchedule(schedule string) error {
	switch {
	case strings.HasPrefix(schedule, "at:"):
		for _, part := range strings.Split(strings.TrimPrefix(schedule, "at:"), ",") {
			if err := validateTime(strings.TrimSpace(part)); err != nil {
				return err
			}
		}
		return nil
	case strings.HasPrefix(schedule, "weekly:"):
		rest := strings.TrimPrefix(schedule, "weekly:")
		parts := strings.SplitN(rest, ",", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid weekly schedule %q: expected 'weekly:DAY,HH:MM'", schedule)
		}
		if !validWeekday(strings.ToLower(strings.TrimSpace(parts[0]))) {
			return fmt.Errorf("invalid day %q in schedule %q", parts[0], schedule)
		}
		return validateTime(strings.TrimSpace(parts[1]))
	case strings.HasPrefix(schedule, "cron:"):
		return nil // accepted without deep validation, matching the grammar's own looseness
	default:
		return fmt.Errorf("invalid schedule %q: must start with 'at:', 'weekly:', or 'cron:'", schedule)
	}
}

func validWeekday(day string) bool {
	switch day {
	case "monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday":
		return true
	default:
		return false
	}
}

func validateTime(s string) error {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return fmt.Errorf("invalid time %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return fmt.Errorf("invalid minute in %q", s)
	}
	return nil
}

// parseHumanDuration parses durations with day units ("7d"), which
// time.ParseDuration does not support. No library in the example pack
// offers human-readable duration parsing with day units, so this is a
// deliberate stdlib fallback (documented in DESIGN.md).
func parseHumanDuration(s string) (time.Duration, error) {
	if strings.HasSuffix(s, "d") {
		n, err := strconv.Atoi(strings.TrimSuffix(s, "d"))
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}

// ParseHumanDuration exports parseHumanDuration for use outside this
// package (retention sweeper, generator timeout, poll interval).
func ParseHumanDuration(s string) (time.Duration, error) {
	return parseHumanDuration(s)
}
