package migration

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// TestCollect はマイグレーションファイルの収集を検証する。
func TestCollect(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"m/000002_second.up.sql":   {Data: []byte("SELECT 1;")},
		"m/000001_first.up.sql":    {Data: []byte("SELECT 1;")},
		"m/000001_first.down.sql":  {Data: []byte("SELECT 1;")},
		"m/readme.md":              {Data: []byte("x")},
		"m/abc_invalid.up.sql":     {Data: []byte("SELECT 1;")},
		"m/noseparator.up.sql":     {Data: []byte("SELECT 1;")},
		"m/000003_third.up.sql/ok": {Data: []byte("SELECT 1;")},
	}

	files, err := Collect(fsys, "m")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, File{Version: 1, Name: "first", Path: "m/000001_first.up.sql"}, files[0])
	assert.Equal(t, File{Version: 2, Name: "second", Path: "m/000002_second.up.sql"}, files[1])
}

// TestRun はマイグレーションの適用を検証する。
func TestRun(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"m/000001_create.up.sql": {Data: []byte("CREATE TABLE items (id INTEGER PRIMARY KEY);")},
		"m/000002_insert.up.sql": {Data: []byte("INSERT INTO items (id) VALUES (1);")},
	}

	t.Run("未適用のマイグレーションが順に適用されること", func(t *testing.T) {
		t.Parallel()

		db := openMemoryDB(t)
		require.NoError(t, Run(context.Background(), db, fsys, "m", nil))

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items").Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("2回実行しても適用済みのものはスキップされること", func(t *testing.T) {
		t.Parallel()

		db := openMemoryDB(t)
		require.NoError(t, Run(context.Background(), db, fsys, "m", nil))
		require.NoError(t, Run(context.Background(), db, fsys, "m", nil))

		var count int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM items").Scan(&count))
		assert.Equal(t, 1, count)

		var versions int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
		assert.Equal(t, 2, versions)
	})

	t.Run("SQLエラーの場合はエラーが返り記録されないこと", func(t *testing.T) {
		t.Parallel()

		broken := fstest.MapFS{
			"m/000001_broken.up.sql": {Data: []byte("CREATE TABL broken;")},
		}
		db := openMemoryDB(t)
		err := Run(context.Background(), db, broken, "m", nil)
		require.Error(t, err)

		var versions int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&versions))
		assert.Equal(t, 0, versions)
	})

	t.Run("ディレクトリが存在しない場合はエラーになること", func(t *testing.T) {
		t.Parallel()

		db := openMemoryDB(t)
		require.Error(t, Run(context.Background(), db, fstest.MapFS{}, "missing", nil))
	})
}
