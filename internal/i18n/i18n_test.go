package i18n

import "testing"

func TestMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		prefs []string
		want  string
	}{
		{nil, "en"},
		{[]string{"es"}, "es"},
		{[]string{"es-MX"}, "es"},
		{[]string{"fr"}, "en"},
		{[]string{"", "es"}, "es"},
		{[]string{"fr-CA,es;q=0.8"}, "es"},
	}

	for _, tt := range tests {
		if got := Match(tt.prefs...); got != tt.want {
			t.Errorf("Match(%q) = %q, want %q", tt.prefs, got, tt.want)
		}
	}
}

func TestLocalizer_T(t *testing.T) {
	t.Parallel()

	c, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	en := c.Localizer("en")
	if got := en.T("dashboard.filters"); got != "Filters" {
		t.Errorf("en filters = %q", got)
	}

	es := c.Localizer("es")
	if es.Lang() != "es" {
		t.Fatalf("Lang = %q, want es", es.Lang())
	}
	if got := es.T("dashboard.filters"); got != "Filtros" {
		t.Errorf("es filters = %q", got)
	}
	if got := es.TData("dashboard.locations_found", map[string]any{"Count": 3}); got != "3 ubicaciones encontradas" {
		t.Errorf("es locations_found = %q", got)
	}

	if got := en.T("no.such.message"); got != "no.such.message" {
		t.Errorf("missing id = %q, want the id back", got)
	}
}

func TestIsSupported(t *testing.T) {
	t.Parallel()

	for lang, want := range map[string]bool{"en": true, "ES": true, "fr": false, "": false} {
		if got := IsSupported(lang); got != want {
			t.Errorf("IsSupported(%q) = %v, want %v", lang, got, want)
		}
	}
}
