package http

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"leadwidget/internal/entities"
	"leadwidget/internal/usecases"
)

// Input validation constants
const (
	MaxWidgetIDLength  = 64
	MaxMessageLength   = 2000
	MaxHistoryEntries  = 100
	MaxSystemPrompt    = 8000
	MaxCopyLength      = 500
	MaxDescription     = 4000
	MaxListEntries     = 10
	MaxOriginLength    = 64
	DefaultLeadsLimit  = 50
	MaxLeadsLimit      = 500
	DefaultHistoryDays = 30
	MaxHistoryDays     = 365
)

var (
	widgetIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	colorPattern    = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
)

// ValidWidgetID checks if an id is safe to look up and echo into a script
// (alphanumeric + underscore + hyphen).
func ValidWidgetID(s string) bool {
	return s != "" && len(s) <= MaxWidgetIDLength && widgetIDPattern.MatchString(s)
}

// SanitizeString removes null bytes and invalid UTF-8.
func SanitizeString(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	return s
}

// TruncateString truncates to maxLen runes.
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen])
}

// validateSettings reports the first problem with a widget settings update.
func validateSettings(w entities.WidgetSettings) string {
	if w.PrimaryColor != "" && !colorPattern.MatchString(w.PrimaryColor) {
		return "primary_color must be a hex color like #2563eb"
	}
	switch w.IdleVibration {
	case "", entities.VibrationNone, entities.VibrationSoft, entities.VibrationStrong:
	default:
		return "idle_vibration must be none, soft or strong"
	}
	if w.Template != "" && !usecases.KnownTemplate(w.Template) {
		return "unknown template " + w.Template
	}
	if w.TriggerDelay != nil && (*w.TriggerDelay < 0 || *w.TriggerDelay > 3600) {
		return "trigger_delay must be between 0 and 3600 seconds"
	}
	if len(w.Teasers) > MaxListEntries || len(w.QuickReplies) > MaxListEntries {
		return "too many teasers or quick replies"
	}
	for _, s := range []string{w.BusinessName, w.WelcomeMessage, w.Placeholder, w.ExitIntentMessage} {
		if utf8.RuneCountInString(s) > MaxCopyLength {
			return "copy fields are limited to 500 characters"
		}
	}
	if utf8.RuneCountInString(w.BusinessDescription) > MaxDescription {
		return "business_description is too long"
	}
	return ""
}
