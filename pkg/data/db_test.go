package data

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(context.Background(), filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesDatabase(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")
	s, err := Open(context.Background(), dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
	assert.Equal(t, driverSQLite, s.Driver())
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestOpen_RunsMigrations(t *testing.T) {
	s := setupTestStore(t)

	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	assert.NoError(t, err)

	migrations, err := listMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)
	assert.Equal(t, migrations[len(migrations)-1].version, version)
}

func TestOpen_Idempotent(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "test.db")

	s1, err := Open(context.Background(), dbPath)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(context.Background(), dbPath)
	require.NoError(t, err)
	defer s2.Close()
	assert.NoError(t, s2.Migrate(context.Background()))
}

func TestNilStore(t *testing.T) {
	var s *Store
	ctx := context.Background()
	assert.ErrorIs(t, s.Migrate(ctx), errDBNotInitialized)
	assert.ErrorIs(t, s.SavePrediction(ctx, &Prediction{}), errDBNotInitialized)
	_, err := s.GetPrediction(ctx, "x")
	assert.ErrorIs(t, err, errDBNotInitialized)
	_, err = s.ListPredictions(ctx, nil, 10)
	assert.ErrorIs(t, err, errDBNotInitialized)
	_, err = s.SummarizePredictions(ctx)
	assert.ErrorIs(t, err, errDBNotInitialized)
	assert.NoError(t, s.Close())
}

func TestDriverFor(t *testing.T) {
	assert.Equal(t, driverPostgres, driverFor("postgres://u:p@localhost:5432/db"))
	assert.Equal(t, driverPostgres, driverFor("postgresql://localhost/db"))
	assert.Equal(t, driverSQLite, driverFor("/tmp/data.db"))
	assert.Equal(t, driverSQLite, driverFor("file:data.db?cache=shared"))
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: driverPostgres}
	assert.Equal(t, "SELECT * FROM t WHERE a = $1 AND b = $2", pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"))

	lite := &Store{driver: driverSQLite}
	assert.Equal(t, "SELECT ? FROM t", lite.rebind("SELECT ? FROM t"))
}

func TestListMigrations_Ordered(t *testing.T) {
	list, err := listMigrations()
	require.NoError(t, err)
	for i := 1; i < len(list); i++ {
		assert.Less(t, list[i-1].version, list[i].version)
	}
}

func TestContains(t *testing.T) {
	assert.True(t, Contains([]string{"a", "b", "c"}, "b"))
	assert.False(t, Contains([]string{"a", "b"}, "d"))
	assert.False(t, Contains[string](nil, "a"))
}
