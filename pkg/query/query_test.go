package query_test

import (
	"strings"
	"testing"

	"github.com/JaimeStill/evidence-lab/pkg/query"
)

func claimsProjection() *query.ProjectionMap {
	return query.NewProjectionMap("public", "claims", "c").
		Project("id", "ID").
		Project("case_id", "CaseID").
		Project("status", "Status").
		Project("created_at", "CreatedAt")
}

func TestProjectionMap(t *testing.T) {
	pm := claimsProjection()

	if pm.Table() != "public.claims c" {
		t.Errorf("Table() = %q", pm.Table())
	}
	if pm.Column("Status") != "c.status" {
		t.Errorf("Column(Status) = %q", pm.Column("Status"))
	}
	if pm.Column("Unknown") != "Unknown" {
		t.Errorf("Column(Unknown) = %q", pm.Column("Unknown"))
	}
	if pm.Columns() != "c.id, c.case_id, c.status, c.created_at" {
		t.Errorf("Columns() = %q", pm.Columns())
	}
	if len(pm.ColumnList()) != 4 {
		t.Errorf("len(ColumnList()) = %d", len(pm.ColumnList()))
	}
}

func TestBuilder_Build(t *testing.T) {
	tests := []struct {
		name     string
		build    func() *query.Builder
		wantSQL  string
		wantArgs int
	}{
		{
			name: "default sort",
			build: func() *query.Builder {
				return query.NewBuilder(claimsProjection(), query.SortField{Field: "CreatedAt"}, query.SortField{Field: "ID"})
			},
			wantSQL: "SELECT c.id, c.case_id, c.status, c.created_at FROM public.claims c ORDER BY c.created_at ASC, c.id ASC",
		},
		{
			name: "equals and in",
			build: func() *query.Builder {
				return query.NewBuilder(claimsProjection()).
					WhereEquals("CaseID", "case-1").
					WhereIn("Status", []any{"suggested", "accepted"})
			},
			wantSQL:  "SELECT c.id, c.case_id, c.status, c.created_at FROM public.claims c WHERE c.case_id = $1 AND c.status IN ($2, $3)",
			wantArgs: 3,
		},
		{
			name: "nil equals ignored",
			build: func() *query.Builder {
				return query.NewBuilder(claimsProjection()).
					WhereEquals("CaseID", nil).
					WhereBefore("CreatedAt", "2024-01-01").
					OrderBy(query.SortField{Field: "CreatedAt", Descending: true})
			},
			wantSQL:  "SELECT c.id, c.case_id, c.status, c.created_at FROM public.claims c WHERE c.created_at < $1 ORDER BY c.created_at DESC",
			wantArgs: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args := tt.build().Build()
			if sql != tt.wantSQL {
				t.Errorf("sql = %q\nwant  %q", sql, tt.wantSQL)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("len(args) = %d, want %d", len(args), tt.wantArgs)
			}
		})
	}
}

func TestBuilder_BuildSingle(t *testing.T) {
	sql, args := query.NewBuilder(claimsProjection()).BuildSingle("ID", "abc")

	want := "SELECT c.id, c.case_id, c.status, c.created_at FROM public.claims c WHERE c.id = $1"
	if sql != want {
		t.Errorf("sql = %q, want %q", sql, want)
	}
	if len(args) != 1 || args[0] != "abc" {
		t.Errorf("args = %v", args)
	}
}

func TestBuilder_BuildCount(t *testing.T) {
	sql, args := query.NewBuilder(claimsProjection()).WhereEquals("Status", "accepted").BuildCount()

	want := "SELECT COUNT(*) FROM public.claims c WHERE c.status = $1"
	if sql != want {
		t.Errorf("sql = %q, want %q", sql, want)
	}
	if len(args) != 1 {
		t.Errorf("len(args) = %d, want 1", len(args))
	}
}

func TestBuilder_BuildPage(t *testing.T) {
	sql, args := query.NewBuilder(claimsProjection()).WhereEquals("Status", "accepted").BuildPage(3, 20)

	if !strings.HasSuffix(sql, " LIMIT 20 OFFSET 40") {
		t.Errorf("sql = %q, want LIMIT 20 OFFSET 40 suffix", sql)
	}
	if len(args) != 1 {
		t.Errorf("len(args) = %d, want 1", len(args))
	}
}
