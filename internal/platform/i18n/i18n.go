// Package i18n loads the embedded message catalogs and resolves the request
// locale from the Accept-Language header.
package i18n

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"path"

	"github.com/BurntSushi/toml"
	goi18n "github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var localeFS embed.FS

// Catalog is a loaded message bundle.
type Catalog struct {
	bundle   *goi18n.Bundle
	fallback language.Tag
	matcher  language.Matcher
}

// NewCatalog loads every embedded locale. defaultLocale is used when no
// requested language matches; it must parse as a BCP 47 tag.
func NewCatalog(defaultLocale string) (*Catalog, error) {
	tag, err := language.Parse(defaultLocale)
	if err != nil {
		return nil, fmt.Errorf("i18n: invalid default locale %q: %w", defaultLocale, err)
	}

	bundle := goi18n.NewBundle(tag)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	files, err := fs.Glob(localeFS, "locales/*.toml")
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if _, err := bundle.LoadMessageFileFS(localeFS, f); err != nil {
			return nil, fmt.Errorf("i18n: load %s: %w", path.Base(f), err)
		}
	}

	// Matcher order puts the default first so it wins ties.
	tags := []language.Tag{tag}
	for _, t := range bundle.LanguageTags() {
		if t != tag {
			tags = append(tags, t)
		}
	}

	return &Catalog{
		bundle:   bundle,
		fallback: tag,
		matcher:  language.NewMatcher(tags),
	}, nil
}

// Languages returns the loaded language tags.
func (c *Catalog) Languages() []language.Tag {
	return c.bundle.LanguageTags()
}

// Localizer returns a localizer for the given preferences, most preferred
// first. Entries may be raw Accept-Language header values.
func (c *Catalog) Localizer(langs ...string) *Localizer {
	tag := c.fallback
	var prefs []language.Tag
	for _, l := range langs {
		parsed, _, err := language.ParseAcceptLanguage(l)
		if err != nil {
			continue
		}
		prefs = append(prefs, parsed...)
	}
	if len(prefs) > 0 {
		matched, _, confidence := c.matcher.Match(prefs...)
		if confidence != language.No {
			base, _ := matched.Base()
			tag = language.Make(base.String())
		}
	}
	return &Localizer{
		loc: goi18n.NewLocalizer(c.bundle, tag.String(), c.fallback.String()),
		tag: tag,
	}
}

// Localizer translates message IDs for one resolved language.
type Localizer struct {
	loc *goi18n.Localizer
	tag language.Tag
}

// Tag returns the resolved language. A nil Localizer reports English.
func (l *Localizer) Tag() language.Tag {
	if l == nil {
		return language.English
	}
	return l.tag
}

// T returns the translation of id, or fallback when id is unknown or l is nil.
func (l *Localizer) T(id, fallback string) string {
	if l == nil || id == "" {
		return fallback
	}
	msg, err := l.loc.Localize(&goi18n.LocalizeConfig{MessageID: id})
	if err != nil || msg == "" {
		return fallback
	}
	return msg
}

type ctxKey struct{}

// WithLocalizer stores l in ctx.
func WithLocalizer(ctx context.Context, l *Localizer) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the request localizer, or nil. T is safe on nil.
func FromContext(ctx context.Context) *Localizer {
	l, _ := ctx.Value(ctxKey{}).(*Localizer)
	return l
}

// Middleware resolves the locale from the "lang" query parameter, then the
// Accept-Language header, and stores the localizer in the request context.
func (c *Catalog) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var prefs []string
		if q := r.URL.Query().Get("lang"); q != "" {
			prefs = append(prefs, q)
		}
		if h := r.Header.Get("Accept-Language"); h != "" {
			prefs = append(prefs, h)
		}
		l := c.Localizer(prefs...)
		w.Header().Set("Content-Language", l.Tag().String())
		next.ServeHTTP(w, r.WithContext(WithLocalizer(r.Context(), l)))
	})
}
