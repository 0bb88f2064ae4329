// Package i18n provides the English and Spanish message catalogs used by the
// dashboard and the chat assistant. Translations are embedded YAML files.
package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"strings"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Supported languages, default first.
var supported = []language.Tag{language.English, language.Spanish}

var matcher = language.NewMatcher(supported)

// Catalog holds every loaded translation.
type Catalog struct {
	bundle *i18n.Bundle
}

// New parses the embedded locale files.
func New() (*Catalog, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("yaml", yaml.Unmarshal)

	files, err := fs.ReadDir(localeFS, "locales")
	if err != nil {
		return nil, fmt.Errorf("failed to list locales: %w", err)
	}
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		data, err := localeFS.ReadFile("locales/" + f.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name(), err)
		}
		if _, err := bundle.ParseMessageFileBytes(data, f.Name()); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", f.Name(), err)
		}
	}

	return &Catalog{bundle: bundle}, nil
}

// MustNew is New for package initialization; the locales are embedded so a
// failure is a build defect.
func MustNew() *Catalog {
	c, err := New()
	if err != nil {
		panic(err)
	}
	return c
}

// Match returns the supported base language ("en" or "es") closest to the
// given preferences. Accept-Language style values are accepted.
func Match(prefs ...string) string {
	tag, _ := language.MatchStrings(matcher, prefs...)
	base, _ := tag.Base()
	return base.String()
}

// IsSupported reports whether lang names one of the catalog languages exactly.
func IsSupported(lang string) bool {
	lang = strings.ToLower(strings.TrimSpace(lang))
	for _, t := range supported {
		if t.String() == lang {
			return true
		}
	}
	return false
}

// Localizer translates into one language.
type Localizer struct {
	lang string
	l    *i18n.Localizer
}

// Localizer returns a translator for the best match of prefs.
func (c *Catalog) Localizer(prefs ...string) *Localizer {
	lang := Match(prefs...)
	return &Localizer{
		lang: lang,
		l:    i18n.NewLocalizer(c.bundle, lang),
	}
}

// Lang returns the selected language.
func (l *Localizer) Lang() string {
	return l.lang
}

// T translates a message. Missing ids are returned as-is.
func (l *Localizer) T(id string) string {
	return l.TData(id, nil)
}

// TData translates a message that has template fields.
func (l *Localizer) TData(id string, data map[string]any) string {
	msg, err := l.l.Localize(&i18n.LocalizeConfig{
		MessageID:    id,
		TemplateData: data,
	})
	if err != nil {
		return id
	}
	return msg
}
