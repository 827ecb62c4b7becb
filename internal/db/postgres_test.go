package db

import (
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolOptions(t *testing.T) {
	cfg, err := pgxpool.ParseConfig("postgres://clinic:pw@localhost:5432/clinic?pool_min_conns=4")
	require.NoError(t, err)

	WithApplicationName("clinic-test")(cfg)
	WithMaxConns(3)(cfg)

	assert.Equal(t, "clinic-test", cfg.ConnConfig.RuntimeParams["application_name"])
	assert.Equal(t, int32(3), cfg.MaxConns)
	assert.Equal(t, int32(3), cfg.MinConns)

	WithMaxConns(0)(cfg)
	assert.Equal(t, int32(3), cfg.MaxConns)
}

func TestSchemaIsEmbedded(t *testing.T) {
	assert.Contains(t, schemaSQL, "CREATE TABLE IF NOT EXISTS queue_entries")
	assert.Contains(t, schemaSQL, "uq_queue_entries_one_consulting")
}
