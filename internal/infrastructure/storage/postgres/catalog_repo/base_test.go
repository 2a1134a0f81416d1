package catalog_repo

import (
	"strings"
	"testing"

	"tillpoint/internal/core/apperror"
)

type testEntity struct {
	ID           string `db:"id"`
	Code         string `db:"code"`
	Name         string `db:"name"`
	Category     string `db:"category"`
	DeletionMark bool   `db:"deletion_mark"`
	Version      int    `db:"version"`
}

func newTestRepo() *BaseCatalogRepo[*testEntity] {
	return NewBaseCatalogRepo(
		"test_table",
		[]string{"id", "code", "name", "category", "deletion_mark", "version"},
		func() *testEntity { return &testEntity{} },
	)
}

func TestParseOrderBy(t *testing.T) {
	repo := newTestRepo()

	tests := []struct {
		name    string
		orderBy string
		want    string
		wantErr bool
	}{
		{"default", "", "name ASC", false},
		{"plain field", "code", "code ASC", false},
		{"descending", "-code", "code DESC", false},
		{"explicit ascending", "+name", "name ASC", false},
		{"whitespace trimmed", "-code ", "code DESC", false},
		{"unknown column", "password_hash", "", true},
		{"bare minus", "-", "", true},
		{"injection attempt", "name; DROP TABLE test_table", "", true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := repo.parseOrderBy(tc.orderBy)
			if tc.wantErr {
				appErr, ok := apperror.AsAppError(err)
				if !ok || appErr.Code != apperror.CodeValidation {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseOrderBy(%q): %v", tc.orderBy, err)
			}
			if got != tc.want {
				t.Errorf("parseOrderBy(%q) = %q, want %q", tc.orderBy, got, tc.want)
			}
		})
	}
}

func TestParseOrderByAllowsIDAndNameAlways(t *testing.T) {
	// Even a repo whose column list omits them sorts by id or name.
	repo := NewBaseCatalogRepo(
		"narrow_table",
		[]string{"code"},
		func() *testEntity { return &testEntity{} },
	)

	for _, orderBy := range []string{"id", "-name"} {
		if _, err := repo.parseOrderBy(orderBy); err != nil {
			t.Errorf("parseOrderBy(%q): %v", orderBy, err)
		}
	}
}

func TestHasColumn(t *testing.T) {
	repo := newTestRepo()

	if !repo.hasColumn("category") {
		t.Error("category not found")
	}
	if repo.hasColumn("warehouse_id") {
		t.Error("unknown column reported as present")
	}
}

func TestBaseSelectSQL(t *testing.T) {
	repo := newTestRepo()

	sql, _, err := repo.baseSelect().ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if !strings.HasPrefix(sql, "SELECT id, code, name, category, deletion_mark, version FROM test_table") {
		t.Errorf("unexpected select: %s", sql)
	}
}

func TestBuilderUsesDollarPlaceholders(t *testing.T) {
	repo := newTestRepo()

	sql, args, err := repo.Builder().
		Select("1").
		From("test_table").
		Where("code = ?", "P-001").
		Where("deletion_mark = ?", false).
		ToSql()
	if err != nil {
		t.Fatalf("ToSql: %v", err)
	}
	if !strings.Contains(sql, "$1") || !strings.Contains(sql, "$2") {
		t.Errorf("placeholders not rewritten for postgres: %s", sql)
	}
	if len(args) != 2 {
		t.Errorf("args = %d, want 2", len(args))
	}
}
