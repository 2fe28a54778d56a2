package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/rpattn/querykit/internal/catalog"
	"github.com/rpattn/querykit/internal/config"
	"github.com/rpattn/querykit/internal/db"
	"github.com/rpattn/querykit/internal/ingestion"
	"github.com/rpattn/querykit/internal/query"
	"github.com/rpattn/querykit/internal/repository"
)

// stores holds the repositories selected by store.driver.
type stores struct {
	schemas  repository.EntitySchemaRepository
	entities repository.EntityRepository
	logs     repository.IngestionLogRepository
	conn     *db.Connection
}

func (s *stores) Close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

// openStores connects to Postgres, or builds in-memory stores from the
// configured schema and seed files.
func openStores(ctx context.Context, logger *slog.Logger) (*stores, error) {
	if cfg.Store.Driver == config.DriverPostgres {
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		return &stores{
			schemas:  repository.NewEntitySchemaRepository(conn.Pool),
			entities: repository.NewEntityRepository(conn.Pool, conn.Unaccent),
			logs:     repository.NewIngestionLogRepository(conn.Pool),
			conn:     conn,
		}, nil
	}

	schemaRepo := repository.NewStaticSchemaRepository()
	if cfg.Store.SchemaPath != "" {
		schemas, err := repository.LoadSchemaFile(cfg.Store.SchemaPath)
		if err != nil {
			return nil, err
		}
		schemaRepo = repository.NewStaticSchemaRepository(schemas...)
	}
	st := &stores{
		schemas:  schemaRepo,
		entities: repository.NewMemoryEntityRepository(),
		logs:     repository.NewMemoryIngestionLogRepository(),
	}

	if cfg.Store.SeedPath != "" {
		summary, err := st.importer(logger).SeedFile(ctx, cfg.Store.SeedPath)
		if err != nil {
			return nil, err
		}
		logger.Info("seeded in-memory store", "path", cfg.Store.SeedPath,
			"entities", summary.ValidRows, "rejected", summary.InvalidRows)
	}
	return st, nil
}

// inTx runs fn with an ingestion service bound to one transaction when the
// store is Postgres, so a bulk load is applied entirely or not at all.
func (s *stores) inTx(ctx context.Context, logger *slog.Logger, fn func(svc *ingestion.Service) error) error {
	if s.conn == nil {
		return fn(s.importer(logger))
	}
	return s.conn.WithTx(ctx, func(tx pgx.Tx) error {
		txStores := &stores{
			schemas:  repository.NewEntitySchemaRepository(tx),
			entities: repository.NewEntityRepository(tx, s.conn.Unaccent),
			logs:     repository.NewIngestionLogRepository(tx),
		}
		return fn(txStores.importer(logger))
	})
}

func (s *stores) importer(logger *slog.Logger) *ingestion.Service {
	return ingestion.NewService(s.schemas, s.entities, logger, ingestion.WithIngestionLog(s.logs))
}

func newBuilder(st *stores, logger *slog.Logger, opts ...query.Option) (*query.Builder, *catalog.Cache, error) {
	cache, err := catalog.NewCache(st.schemas,
		catalog.WithSize(cfg.Catalog.CacheSize),
		catalog.WithLogger(logger),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("creating catalog cache: %w", err)
	}
	opts = append([]query.Option{query.WithLogger(logger)}, opts...)
	return query.NewBuilder(cache, st.entities, opts...), cache, nil
}
