package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/wellness-hub/internal/domain/shared"
)

func TestConfig_DSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "secret"

	assert.Equal(t,
		"host=localhost port=5432 dbname=wellness user=postgres password=secret sslmode=disable connect_timeout=10",
		cfg.DSN())

	cfg.URL = "postgres://u:p@db:5432/wellness"
	assert.Equal(t, "postgres://u:p@db:5432/wellness", cfg.DSN())
}

func TestConfig_PoolConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.URL = "postgres://u:p@db:5432/wellness?sslmode=disable"
	cfg.MaxConns = 7
	cfg.MinConns = 0
	cfg.MaxConnLifetime = 5 * time.Minute

	pc, err := cfg.PoolConfig()
	require.NoError(t, err)
	assert.Equal(t, int32(7), pc.MaxConns)
	assert.Equal(t, 5*time.Minute, pc.MaxConnLifetime)
	assert.Equal(t, "db", pc.ConnConfig.Host)
	assert.Equal(t, "wellness", pc.ConnConfig.Database)

	cfg.URL = "postgres://u:p@db:notaport/wellness"
	_, err = cfg.PoolConfig()
	assert.Error(t, err)
}

func TestGetMigrations(t *testing.T) {
	migrations := GetMigrations()
	require.NotEmpty(t, migrations)

	for i, m := range migrations {
		assert.Equal(t, i+1, m.Version, "migrations are numbered from 1 without gaps")
		assert.NotEmpty(t, strings.TrimSpace(m.UpSQL), m.Name)
		assert.NotEmpty(t, strings.TrimSpace(m.DownSQL), m.Name)
	}
}

func TestErrorHelpers(t *testing.T) {
	unique := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"})
	foreignKey := &pgconn.PgError{Code: "23503"}

	assert.True(t, IsUniqueViolation(unique))
	assert.False(t, IsUniqueViolation(foreignKey))
	assert.True(t, IsForeignKeyViolation(foreignKey))
	assert.False(t, IsForeignKeyViolation(errors.New("boom")))
	assert.True(t, IsNoRows(fmt.Errorf("get: %w", pgx.ErrNoRows)))
}

func TestErrorMapping(t *testing.T) {
	down := errors.New("connection refused")

	err := readErr("GetStudents", down)
	assert.True(t, shared.IsDataUnavailable(err))
	assert.ErrorIs(t, err, down)
	assert.ErrorIs(t, readErr("GetStudents", context.Canceled), context.Canceled)
	assert.False(t, shared.IsDataUnavailable(readErr("GetStudents", context.Canceled)))

	err = writeErr("UpsertStudents", down)
	assert.ErrorIs(t, err, shared.ErrWriteFailed)

	notFound := shared.NewDomainError("intervention", "Get", shared.ErrNotFound, "missing")
	assert.Same(t, notFound, writeErr("RecordTransition", notFound))
}

func TestConnection_ClosedPoolRejectsQueries(t *testing.T) {
	conn := &Connection{closed: true}

	_, err := conn.Exec(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, ErrConnectionClosed)
	assert.ErrorIs(t, conn.Ping(context.Background()), ErrConnectionClosed)
}
