package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/querykit/internal/domain"
)

func TestCompileQueryMatchAll(t *testing.T) {
	compiled := compileQuery(domain.Query{EntityType: "Book", Mode: domain.ModeAll})

	assert.Equal(t, "WHERE e.entity_type = $1", compiled.where)
	assert.Equal(t, "ORDER BY e.created_at ASC, e.id ASC", compiled.order)
	assert.Equal(t, []any{"Book"}, compiled.args)
}

func TestCompileQueryComposition(t *testing.T) {
	q := domain.Query{
		EntityType: "Book",
		Mode:       domain.ModeAny,
		Predicates: []domain.Predicate{
			pred("title", domain.FieldTypeString, domain.OpIContains, "50%_off"),
			pred("title", domain.FieldTypeString, domain.OpExact, "Dune"),
		},
	}
	compiled := compileQuery(q)

	assert.Equal(t,
		"WHERE e.entity_type = $1 AND ((e.properties ->> $2::text ILIKE $3) OR (e.properties ->> $4::text = $5::text))",
		compiled.where)
	assert.Equal(t, []any{"Book", "title", `%50\%\_off%`, "title", "Dune"}, compiled.args)

	q.Mode = domain.ModeAll
	assert.Contains(t, compileQuery(q).where, ") AND (")
}

func TestCompileConditionTyped(t *testing.T) {
	tests := []struct {
		name     string
		p        domain.Predicate
		contains []string
		args     []any
	}{
		{
			name:     "numeric comparison",
			p:        pred("pages", domain.FieldTypeInteger, domain.OpGte, "100"),
			contains: []string{"jsonb_typeof(e.properties -> $1::text) = 'number'", ">= $2::numeric"},
			args:     []any{"pages", float64(100)},
		},
		{
			name:     "boolean",
			p:        pred("in_print", domain.FieldTypeBoolean, domain.OpExact, "maybe"),
			contains: []string{"FALSE"},
			args:     []any{"in_print"},
		},
		{
			name:     "timestamp range",
			p:        pred("published", domain.FieldTypeTimestamp, domain.OpRange, "1900-01-01", "1950-12-31"),
			contains: []string{"BETWEEN $2::timestamptz AND $3::timestamptz"},
		},
		{
			name:     "numeric in",
			p:        pred("pages", domain.FieldTypeFloat, domain.OpIn, "1", "x", "2.5"),
			contains: []string{"= ANY($2::numeric[])"},
			args:     []any{"pages", []float64{1, 2.5}},
		},
		{
			name:     "isnull",
			p:        pred("isbn", domain.FieldTypeString, domain.OpIsNull, "true"),
			contains: []string{"(e.properties -> $1::text IS NULL OR jsonb_typeof(e.properties -> $1::text) = 'null')"},
			args:     []any{"isbn"},
		},
		{
			name:     "array field",
			p:        pred("authors", domain.FieldTypeEntityReferenceArray, domain.OpExact, "abc"),
			contains: []string{"EXISTS (SELECT 1 FROM jsonb_array_elements_text(", "WHERE (arr.val = $2::text)"},
			args:     []any{"authors", "abc"},
		},
		{
			name:     "iregex",
			p:        pred("title", domain.FieldTypeString, domain.OpIRegex, "^du"),
			contains: []string{"~* $2"},
			args:     []any{"title", "^du"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder := newSQLBuilder()
			sql := compileCondition(builder, tt.p)
			for _, want := range tt.contains {
				assert.Contains(t, sql, want)
			}
			if tt.args != nil {
				assert.Equal(t, tt.args, builder.args)
			}
		})
	}
}

func TestCompileTimestampUsesSafeCast(t *testing.T) {
	sql := compileCondition(newSQLBuilder(), pred("published", domain.FieldTypeTimestamp, domain.OpGte, "2024-01-01"))

	assert.Contains(t, sql, "try_timestamptz(e.properties ->> $1::text)")
	assert.NotContains(t, sql, ")::timestamptz END")
}

func TestCompileUnaccent(t *testing.T) {
	p := pred("author", domain.FieldTypeString, domain.OpIContains, "exupery")
	p.Unaccent = true

	builder := newSQLBuilder()
	assert.Equal(t, "(unaccent(e.properties ->> $1::text) ILIKE unaccent($2))", compileCondition(builder, p))

	in := pred("author", domain.FieldTypeString, domain.OpIn, "a", "b")
	in.Unaccent = true
	assert.Contains(t, compileCondition(newSQLBuilder(), in), "= ANY (SELECT unaccent(v) FROM unnest($2::text[]) AS v)")
}

func TestCompileNegationAndExclusion(t *testing.T) {
	negated := pred("title", domain.FieldTypeString, domain.OpContains, "x")
	negated.Negated = true

	compiled := compileQuery(domain.Query{
		EntityType: "Book",
		Mode:       domain.ModeAll,
		Predicates: []domain.Predicate{negated},
		Exclusion:  &domain.Exclusion{Field: "year", FieldType: domain.FieldTypeInteger, Values: []string{"1965", "1815"}},
	})

	assert.Contains(t, compiled.where, "(NOT COALESCE((e.properties ->> $2::text LIKE $3), FALSE))")
	assert.Contains(t, compiled.where, "AND NOT COALESCE(")
	assert.Contains(t, compiled.where, "= ANY($5::numeric[])), FALSE)")
	require.Len(t, compiled.args, 5)
	assert.Equal(t, []float64{1965, 1815}, compiled.args[4])
}

func TestBuildOrderClause(t *testing.T) {
	builder := newSQLBuilder()
	order := buildOrderClause(&domain.SortSpec{Field: "title", FieldType: domain.FieldTypeString, Direction: domain.SortDirectionDesc}, builder)
	assert.Equal(t, "ORDER BY e.properties ->> $1::text DESC NULLS LAST, e.created_at ASC, e.id ASC", order)

	order = buildOrderClause(&domain.SortSpec{Field: "year", FieldType: domain.FieldTypeInteger}, newSQLBuilder())
	assert.Contains(t, order, "::numeric END) ASC NULLS LAST")
}

func TestTypedArrayRejectsAllInvalid(t *testing.T) {
	_, ok := typedArray(domain.FieldTypeInteger, []string{"a", "b"})
	assert.False(t, ok)

	values, ok := typedArray(domain.FieldTypeTimestamp, []string{"2024-01-02"})
	require.True(t, ok)
	times, isTimes := values.([]time.Time)
	require.True(t, isTimes)
	require.Len(t, times, 1)
	assert.True(t, times[0].Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `a\%b\_c\\d`, escapeLike(`a%b_c\d`))
}
