package i18n

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"github.com/pavelanni/examgen/internal/model"
)

//go:embed locales/*.json
var localeFS embed.FS

type ctxKey struct{}

type langKey struct{}

var (
	bundle      *i18n.Bundle
	matcher     language.Matcher
	defaultLang = "id"
)

// Init loads every embedded locale and makes lang the fallback language.
func Init(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("parse language %q: %w", lang, err)
	}

	b := i18n.NewBundle(tag)
	b.RegisterUnmarshalFunc("json", json.Unmarshal)
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return fmt.Errorf("read locales dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + e.Name())
		if err != nil {
			return fmt.Errorf("read locale file %s: %w", e.Name(), err)
		}
		if _, err := b.ParseMessageFileBytes(data, e.Name()); err != nil {
			return fmt.Errorf("parse locale file %s: %w", e.Name(), err)
		}
	}
	slog.Debug("loaded locales", "count", len(entries), "default", lang)

	bundle = b
	matcher = language.NewMatcher(b.LanguageTags())
	defaultLang = lang
	return nil
}

// Supported returns the base language codes with a locale file.
func Supported() []string {
	tags := bundle.LanguageTags()
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		base, _ := t.Base()
		out = append(out, base.String())
	}
	return out
}

// Match maps a requested language (a tag or an Accept-Language value) to a
// supported one. It reports false when nothing matches.
func Match(requested string) (string, bool) {
	requested = strings.TrimSpace(requested)
	if requested == "" || matcher == nil {
		return "", false
	}
	tags, _, err := language.ParseAcceptLanguage(requested)
	if err != nil || len(tags) == 0 {
		return "", false
	}
	_, idx, conf := matcher.Match(tags...)
	if conf == language.No {
		return "", false
	}
	base, _ := bundle.LanguageTags()[idx].Base()
	return base.String(), true
}

// NewLocalizer creates a localizer preferring langs in order, then the default.
func NewLocalizer(langs ...string) *i18n.Localizer {
	return i18n.NewLocalizer(bundle, append(langs, defaultLang)...)
}

// WithLang records the language a request is served in and attaches its
// localizer.
func WithLang(ctx context.Context, lang string) context.Context {
	ctx = context.WithValue(ctx, langKey{}, lang)
	return WithLocalizer(ctx, NewLocalizer(lang))
}

// Lang returns the language set by WithLang, or the default language.
func Lang(ctx context.Context) string {
	if lang, ok := ctx.Value(langKey{}).(string); ok {
		return lang
	}
	return defaultLang
}

// WithLocalizer stores a localizer in the context.
func WithLocalizer(ctx context.Context, loc *i18n.Localizer) context.Context {
	return context.WithValue(ctx, ctxKey{}, loc)
}

func localize(ctx context.Context, cfg *i18n.LocalizeConfig) string {
	loc, ok := ctx.Value(ctxKey{}).(*i18n.Localizer)
	if !ok {
		loc = i18n.NewLocalizer(bundle, defaultLang)
	}
	s, err := loc.Localize(cfg)
	if err != nil {
		slog.Warn("missing translation", "id", cfg.MessageID, "error", err)
		return cfg.MessageID
	}
	return s
}

// T translates a message by ID. Unknown IDs are returned unchanged.
func T(ctx context.Context, msgID string) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID})
}

// Td translates a message with template data.
func Td(ctx context.Context, msgID string, data map[string]any) string {
	return localize(ctx, &i18n.LocalizeConfig{MessageID: msgID, TemplateData: data})
}

// Tp translates a pluralized message; {{.Count}} is set to count.
func Tp(ctx context.Context, msgID string, count int) string {
	return localize(ctx, &i18n.LocalizeConfig{
		MessageID:    msgID,
		PluralCount:  count,
		TemplateData: map[string]any{"Count": count},
	})
}

func ExamTypeLabel(ctx context.Context, t model.ExamType) string {
	return T(ctx, "ExamType_"+string(t))
}

func DifficultyLabel(ctx context.Context, d model.Difficulty) string {
	return T(ctx, "Difficulty_"+string(d))
}

// BloomLabel returns a Bloom level with its name, e.g. "C1 - Mengingat".
func BloomLabel(ctx context.Context, b model.BloomLevel) string {
	return T(ctx, "Bloom_"+string(b))
}
