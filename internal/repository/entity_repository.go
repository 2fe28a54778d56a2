package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rpattn/querykit/internal/db"
	"github.com/rpattn/querykit/internal/domain"
)

const entityColumns = "e.id, e.entity_type, e.properties, e.created_at, e.updated_at"

// entityRepository implements EntityRepository on PostgreSQL, storing
// properties as JSONB.
type entityRepository struct {
	db       db.DBTX
	unaccent bool
}

// NewEntityRepository creates a new entity repository. unaccent should be
// true only when the unaccent extension is installed.
func NewEntityRepository(conn db.DBTX, unaccent bool) EntityRepository {
	return &entityRepository{
		db:       conn,
		unaccent: unaccent,
	}
}

// Create creates a new entity
func (r *entityRepository) Create(ctx context.Context, entity domain.Entity) (domain.Entity, error) {
	if entity.ID == uuid.Nil {
		entity.ID = uuid.New()
	}
	propertiesJSON, err := entity.GetPropertiesAsJSONB()
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to marshal properties: %w", err)
	}

	row := r.db.QueryRow(ctx, `
		INSERT INTO entities AS e (id, entity_type, properties)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET properties = EXCLUDED.properties, updated_at = now()
		RETURNING `+entityColumns,
		entity.ID, entity.EntityType, propertiesJSON,
	)
	created, err := scanEntity(row)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("failed to create entity: %w", err)
	}
	return created, nil
}

// GetByID retrieves an entity by ID
func (r *entityRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Entity, error) {
	row := r.db.QueryRow(ctx, "SELECT "+entityColumns+" FROM entities e WHERE e.id = $1", id)
	entity, err := scanEntity(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Entity{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return domain.Entity{}, fmt.Errorf("failed to get entity: %w", err)
	}
	return entity, nil
}

// GetByIDs retrieves multiple entities by their IDs.
func (r *entityRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]domain.Entity, error) {
	if len(ids) == 0 {
		return []domain.Entity{}, nil
	}

	rows, err := r.db.Query(ctx, "SELECT "+entityColumns+" FROM entities e WHERE e.id = ANY($1::uuid[])", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to get entities by IDs: %w", err)
	}
	entities, err := collectEntities(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get entities by IDs: %w", err)
	}
	return entities, nil
}

// Filter compiles q to SQL. Regex predicates are checked against the server
// first; nothing else runs until the collection is counted or sliced.
func (r *entityRepository) Filter(ctx context.Context, q domain.Query) (domain.Collection, error) {
	q, err := r.dropInvalidRegex(ctx, q)
	if err != nil {
		return nil, err
	}
	return &entityCollection{db: r.db, query: compileQuery(q)}, nil
}

// sqlStateInvalidRegex is invalid_regular_expression.
const sqlStateInvalidRegex = "2201B"

// dropInvalidRegex removes regex predicates whose pattern PostgreSQL refuses
// to compile. Go's RE2 accepts syntax such as (?P<name>...) that the server
// rejects, and a rejected pattern would otherwise fail the whole query.
func (r *entityRepository) dropInvalidRegex(ctx context.Context, q domain.Query) (domain.Query, error) {
	kept := make([]domain.Predicate, 0, len(q.Predicates))
	for _, p := range q.Predicates {
		if p.Operator != domain.OpRegex && p.Operator != domain.OpIRegex {
			kept = append(kept, p)
			continue
		}
		var matched bool
		err := r.db.QueryRow(ctx, "SELECT '' ~ $1::text", p.Value()).Scan(&matched)
		var pgErr *pgconn.PgError
		switch {
		case err == nil:
			kept = append(kept, p)
		case errors.As(err, &pgErr) && pgErr.Code == sqlStateInvalidRegex:
		default:
			return q, fmt.Errorf("failed to check pattern for %s: %w", p.Key(), err)
		}
	}
	q.Predicates = kept
	return q, nil
}

func (r *entityRepository) SupportsUnaccent() bool {
	return r.unaccent
}

// entityCollection runs a compiled query as COUNT plus LIMIT/OFFSET.
type entityCollection struct {
	db    db.DBTX
	query compiledQuery
}

func (c *entityCollection) Count(ctx context.Context) (int, error) {
	var total int64
	sql := "SELECT COUNT(*) FROM entities e " + c.query.where
	if err := c.db.QueryRow(ctx, sql, c.query.args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count entities: %w", err)
	}
	return int(total), nil
}

func (c *entityCollection) Slice(ctx context.Context, offset, limit int) ([]domain.Entity, error) {
	builder := &sqlBuilder{args: append([]any(nil), c.query.args...)}

	var sql strings.Builder
	sql.WriteString("SELECT " + entityColumns + " FROM entities e ")
	sql.WriteString(c.query.where)
	sql.WriteString(" ")
	sql.WriteString(c.query.order)
	if limit > 0 {
		fmt.Fprintf(&sql, " LIMIT %s", builder.bind(limit))
	}
	if offset > 0 {
		fmt.Fprintf(&sql, " OFFSET %s", builder.bind(offset))
	}

	rows, err := c.db.Query(ctx, sql.String(), builder.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to filter entities: %w", err)
	}
	entities, err := collectEntities(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to filter entities: %w", err)
	}
	return entities, nil
}

func scanEntity(row pgx.Row) (domain.Entity, error) {
	var (
		entity     domain.Entity
		properties []byte
	)
	if err := row.Scan(&entity.ID, &entity.EntityType, &properties, &entity.CreatedAt, &entity.UpdatedAt); err != nil {
		return domain.Entity{}, err
	}
	props, err := domain.FromJSONBProperties(properties)
	if err != nil {
		return domain.Entity{}, fmt.Errorf("decode entity properties: %w", err)
	}
	entity.Properties = props
	return entity, nil
}

func collectEntities(rows pgx.Rows) ([]domain.Entity, error) {
	defer rows.Close()

	entities := make([]domain.Entity, 0)
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entities, nil
}
