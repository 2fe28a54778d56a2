package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, 500, cfg.Pagination.MaxItemsPerPage)
	assert.Equal(t, 256, cfg.Catalog.CacheSize)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFileAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	content := `
server:
  addr: ":9090"
store:
  driver: postgres
  schema_path: schemas.yaml
database:
  host: db.internal
  dbname: catalog
pagination:
  max_items_per_page: 100
logging:
  format: json
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o600))
	t.Setenv("QUERYKIT_DATABASE_PORT", "6543")
	t.Setenv("QUERYKIT_LOGGING_LEVEL", "debug")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "schemas.yaml", cfg.Store.SchemaPath)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "catalog", cfg.Database.DBName)
	assert.Equal(t, 100, cfg.Pagination.MaxItemsPerPage)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [unclosed"), 0o600))

	_, err := Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading config")
}

func TestValidateReportsEveryProblem(t *testing.T) {
	cfg := Config{
		Store:      StoreConfig{Driver: DriverPostgres},
		Pagination: PaginationConfig{MaxItemsPerPage: -1},
		Logging:    LoggingConfig{Level: "loud", Format: "xml"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	for _, want := range []string{
		"server.addr must not be empty",
		"database.host must not be empty",
		"database.port must be between 1 and 65535",
		"database.dbname must not be empty",
		"pagination.max_items_per_page must be >= 0",
		"catalog.cache_size must be greater than 0",
		"logging.level must be one of",
		"logging.format must be text or json",
	} {
		assert.Contains(t, msg, want)
	}
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	cfg := Config{
		Server:  ServerConfig{Addr: ":8080"},
		Store:   StoreConfig{Driver: "sqlite"},
		Catalog: CatalogConfig{CacheSize: 1},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver must be "memory" or "postgres", got "sqlite"`)
}
