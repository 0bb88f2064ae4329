package repository

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/pantrynav/pantrynav/internal/model"
)

func TestBuildServiceLocationsQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		filter    model.ServiceLocationFilter
		wantConds []string
		wantArgs  []any
	}{
		{
			name:     "no filter",
			filter:   model.ServiceLocationFilter{},
			wantArgs: nil,
		},
		{
			name:      "types only",
			filter:    model.ServiceLocationFilter{Types: []model.OrganizationType{model.OrgTypeDHHS, model.OrgTypeYWCA}},
			wantConds: []string{"o.type = ANY($1)"},
			wantArgs:  []any{[]string{"dhhs", "ywca"}},
		},
		{
			name: "all filters",
			filter: model.ServiceLocationFilter{
				Types:          []model.OrganizationType{model.OrgTypeFoodPantry},
				Categories:     []string{"housing"},
				AccessibleOnly: true,
			},
			wantConds: []string{"o.type = ANY($1)", "fs.category = ANY($2)", "l.wheelchair_accessible"},
			wantArgs:  []any{[]string{"food_pantry"}, []string{"housing"}},
		},
		{
			name:      "categories without types",
			filter:    model.ServiceLocationFilter{Categories: []string{"legal"}},
			wantConds: []string{"fs.category = ANY($1)"},
			wantArgs:  []any{[]string{"legal"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			query, args := buildServiceLocationsQuery(tt.filter)

			if !strings.HasSuffix(query, "GROUP BY o.id, l.id\n\tORDER BY o.type, o.name") {
				t.Errorf("query must end with grouping and ordering:\n%s", query)
			}
			if len(tt.wantConds) == 0 && strings.Contains(query, "WHERE") {
				t.Errorf("unexpected WHERE clause:\n%s", query)
			}
			for _, c := range tt.wantConds {
				if !strings.Contains(query, c) {
					t.Errorf("query missing %q:\n%s", c, query)
				}
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %#v, want %#v", args, tt.wantArgs)
			}
		})
	}
}

func TestSplitDatabaseURL(t *testing.T) {
	t.Parallel()

	name, admin, err := splitDatabaseURL("postgres://user:pw@db:5432/pantry?sslmode=disable")
	if err != nil {
		t.Fatalf("splitDatabaseURL() error = %v", err)
	}
	if name != "pantry" {
		t.Errorf("name = %q, want pantry", name)
	}
	if admin != "postgres://user:pw@db:5432/postgres?sslmode=disable" {
		t.Errorf("admin url = %q", admin)
	}

	if _, _, err := splitDatabaseURL("postgres://db:5432"); !errors.Is(err, ErrInvalidDatabaseURL) {
		t.Errorf("expected ErrInvalidDatabaseURL, got %v", err)
	}
}
