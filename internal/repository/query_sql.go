package repository

import (
	"fmt"
	"strings"
	"time"

	"github.com/rpattn/querykit/internal/domain"
)

const entityAlias = "e"

type sqlBuilder struct {
	args []any
}

func newSQLBuilder() *sqlBuilder {
	return &sqlBuilder{args: make([]any, 0)}
}

func (b *sqlBuilder) addArg(value any) int {
	b.args = append(b.args, value)
	return len(b.args)
}

func (b *sqlBuilder) placeholder(idx int) string {
	return fmt.Sprintf("$%d", idx)
}

// bind adds value as an argument and returns its placeholder.
func (b *sqlBuilder) bind(value any) string {
	return b.placeholder(b.addArg(value))
}

// compiledQuery is the WHERE and ORDER BY text for a domain.Query over the
// entities table aliased as e.
type compiledQuery struct {
	where string
	order string
	args  []any
}

func compileQuery(q domain.Query) compiledQuery {
	builder := newSQLBuilder()

	where := []string{fmt.Sprintf("%s.entity_type = %s", entityAlias, builder.bind(q.EntityType))}
	if clause := compilePredicates(builder, q.Mode, q.Predicates); clause != "" {
		where = append(where, clause)
	}
	if q.Exclusion != nil && len(q.Exclusion.Values) > 0 {
		member := compileCondition(builder, domain.Predicate{
			Field:     q.Exclusion.Field,
			FieldType: q.Exclusion.FieldType,
			Operator:  domain.OpIn,
			Values:    q.Exclusion.Values,
		})
		where = append(where, "NOT COALESCE("+member+", FALSE)")
	}

	return compiledQuery{
		where: "WHERE " + strings.Join(where, " AND "),
		order: buildOrderClause(q.Sort, builder),
		args:  builder.args,
	}
}

func compilePredicates(builder *sqlBuilder, mode domain.CompositionMode, predicates []domain.Predicate) string {
	if len(predicates) == 0 {
		return ""
	}
	clauses := make([]string, 0, len(predicates))
	for _, p := range predicates {
		clause := compileCondition(builder, p)
		if p.Negated {
			clause = "NOT COALESCE(" + clause + ", FALSE)"
		}
		clauses = append(clauses, clause)
	}
	joiner := " AND "
	if mode == domain.ModeAny {
		joiner = " OR "
	}
	return "(" + strings.Join(clauses, joiner) + ")"
}

// compileCondition renders p without its negation. The result may evaluate
// to NULL for missing or mistyped values, which callers treat as false.
func compileCondition(builder *sqlBuilder, p domain.Predicate) string {
	key := builder.bind(p.Field)
	jsonExpr := fmt.Sprintf("%s.properties -> %s::text", entityAlias, key)

	if p.Operator == domain.OpIsNull {
		missing := fmt.Sprintf("(%s IS NULL OR jsonb_typeof(%s) = 'null')", jsonExpr, jsonExpr)
		if p.Value() == "true" {
			return missing
		}
		return "(NOT " + missing + ")"
	}

	if p.FieldType == domain.FieldTypeEntityReferenceArray {
		elements := fmt.Sprintf("CASE WHEN jsonb_typeof(%[1]s) = 'array' THEN %[1]s "+
			"WHEN jsonb_typeof(%[1]s) IN ('string', 'number', 'boolean') THEN jsonb_build_array(%[1]s) "+
			"ELSE '[]'::jsonb END", jsonExpr)
		inner := compileScalar(builder, p, "", "arr.val")
		return fmt.Sprintf("EXISTS (SELECT 1 FROM jsonb_array_elements_text(%s) AS arr(val) WHERE %s)", elements, inner)
	}

	textExpr := fmt.Sprintf("%s.properties ->> %s::text", entityAlias, key)
	return compileScalar(builder, p, jsonExpr, textExpr)
}

// compileScalar renders p against a single value. jsonExpr is empty when the
// value is an array element, which is always compared as text.
func compileScalar(builder *sqlBuilder, p domain.Predicate, jsonExpr, textExpr string) string {
	if p.Operator.IsPattern() {
		return compilePattern(builder, p, textExpr)
	}

	fieldType := p.FieldType
	if jsonExpr == "" {
		fieldType = domain.FieldTypeText
	}
	subject, sqlType := typedExpression(fieldType, jsonExpr, textExpr)
	textual := sqlType == "text"
	if textual && p.Unaccent {
		subject = "unaccent(" + subject + ")"
	}

	param := func(raw string) (string, bool) {
		value, ok := domain.CoerceValue(fieldType, raw)
		if !ok {
			return "", false
		}
		ph := builder.bind(value) + "::" + sqlType
		if textual && p.Unaccent {
			ph = "unaccent(" + ph + ")"
		}
		return ph, true
	}

	switch p.Operator {
	case domain.OpExact, domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte:
		ph, ok := param(p.Value())
		if !ok {
			return "FALSE"
		}
		return fmt.Sprintf("(%s %s %s)", subject, comparisonOperators[p.Operator], ph)
	case domain.OpRange:
		if len(p.Values) != 2 {
			return "FALSE"
		}
		lo, ok := param(p.Values[0])
		if !ok {
			return "FALSE"
		}
		hi, ok := param(p.Values[1])
		if !ok {
			return "FALSE"
		}
		return fmt.Sprintf("(%s BETWEEN %s AND %s)", subject, lo, hi)
	case domain.OpIn:
		values, ok := typedArray(fieldType, p.Values)
		if !ok {
			return "FALSE"
		}
		ph := builder.bind(values)
		if textual && p.Unaccent {
			return fmt.Sprintf("(%s = ANY (SELECT unaccent(v) FROM unnest(%s::text[]) AS v))", subject, ph)
		}
		return fmt.Sprintf("(%s = ANY(%s::%s[]))", subject, ph, sqlType)
	default:
		return "FALSE"
	}
}

var comparisonOperators = map[domain.Operator]string{
	domain.OpExact: "=",
	domain.OpGt:    ">",
	domain.OpGte:   ">=",
	domain.OpLt:    "<",
	domain.OpLte:   "<=",
}

func compilePattern(builder *sqlBuilder, p domain.Predicate, textExpr string) string {
	subject := textExpr
	value := p.Value()

	var (
		operator string
		pattern  string
	)
	switch p.Operator {
	case domain.OpIExact:
		operator, pattern = "ILIKE", escapeLike(value)
	case domain.OpContains:
		operator, pattern = "LIKE", "%"+escapeLike(value)+"%"
	case domain.OpIContains:
		operator, pattern = "ILIKE", "%"+escapeLike(value)+"%"
	case domain.OpStartsWith:
		operator, pattern = "LIKE", escapeLike(value)+"%"
	case domain.OpIStartsWith:
		operator, pattern = "ILIKE", escapeLike(value)+"%"
	case domain.OpEndsWith:
		operator, pattern = "LIKE", "%"+escapeLike(value)
	case domain.OpIEndsWith:
		operator, pattern = "ILIKE", "%"+escapeLike(value)
	case domain.OpRegex:
		operator, pattern = "~", value
	case domain.OpIRegex:
		operator, pattern = "~*", value
	default:
		return "FALSE"
	}

	ph := builder.bind(pattern)
	if p.Unaccent {
		subject = "unaccent(" + subject + ")"
		ph = "unaccent(" + ph + ")"
	}
	return fmt.Sprintf("(%s %s %s)", subject, operator, ph)
}

// escapeLike quotes LIKE wildcards using the default backslash escape.
func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

// typedExpression returns the expression that reads a property as fieldType,
// NULL when the stored value cannot be read that way, and the SQL type name
// used for its parameters.
func typedExpression(fieldType domain.FieldType, jsonExpr, textExpr string) (string, string) {
	switch {
	case fieldType.IsNumeric():
		return fmt.Sprintf("(CASE WHEN jsonb_typeof(%[1]s) = 'number' "+
			`OR (jsonb_typeof(%[1]s) = 'string' AND %[2]s ~ '^\s*[-+]?(\d+\.?\d*|\.\d+)([eE][-+]?\d+)?\s*$') `+
			"THEN (%[2]s)::numeric END)", jsonExpr, textExpr), "numeric"
	case fieldType == domain.FieldTypeBoolean:
		return fmt.Sprintf("(CASE WHEN jsonb_typeof(%[1]s) = 'boolean' THEN (%[2]s)::boolean "+
			"WHEN jsonb_typeof(%[1]s) = 'string' AND lower(%[2]s) IN ('true', 'false', 't', 'f', '1', '0') "+
			"THEN lower(%[2]s)::boolean END)", jsonExpr, textExpr), "boolean"
	case fieldType == domain.FieldTypeTimestamp:
		// try_timestamptz (migration 000004) yields NULL for impossible dates.
		return fmt.Sprintf("(CASE WHEN jsonb_typeof(%[1]s) = 'string' "+
			`AND %[2]s ~ '^\d{4}-\d{2}-\d{2}' THEN try_timestamptz(%[2]s) END)`, jsonExpr, textExpr), "timestamptz"
	default:
		return textExpr, "text"
	}
}

// typedArray coerces raw into a slice pgx can bind as an array of the field's
// SQL type, dropping values that cannot be coerced.
func typedArray(fieldType domain.FieldType, raw []string) (any, bool) {
	switch {
	case fieldType.IsNumeric():
		return coerceAll[float64](fieldType, raw)
	case fieldType == domain.FieldTypeBoolean:
		return coerceAll[bool](fieldType, raw)
	case fieldType == domain.FieldTypeTimestamp:
		return coerceAll[time.Time](fieldType, raw)
	default:
		return coerceAll[string](fieldType, raw)
	}
}

func coerceAll[T any](fieldType domain.FieldType, raw []string) ([]T, bool) {
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		v, ok := domain.CoerceValue(fieldType, r)
		if !ok {
			continue
		}
		if typed, ok := v.(T); ok {
			out = append(out, typed)
		}
	}
	return out, len(out) > 0
}

// buildOrderClause always ends with created_at and id so pagination over an
// unsorted or tied result stays stable.
func buildOrderClause(sort *domain.SortSpec, builder *sqlBuilder) string {
	tail := fmt.Sprintf("%[1]s.created_at ASC, %[1]s.id ASC", entityAlias)
	if sort == nil || sort.Field == "" {
		return "ORDER BY " + tail
	}

	direction := "ASC"
	if sort.Direction == domain.SortDirectionDesc {
		direction = "DESC"
	}

	key := builder.bind(sort.Field)
	jsonExpr := fmt.Sprintf("%s.properties -> %s::text", entityAlias, key)
	textExpr := fmt.Sprintf("%s.properties ->> %s::text", entityAlias, key)
	orderExpr, _ := typedExpression(sort.FieldType, jsonExpr, textExpr)

	return fmt.Sprintf("ORDER BY %s %s NULLS LAST, %s", orderExpr, direction, tail)
}
