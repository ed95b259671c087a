package migration

import (
	"context"
	"database/sql"
	"testing"
	"testing/fstest"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// openTestDB はテスト用のインメモリSQLiteを開く。
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDB接続に失敗: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

// TestRun はマイグレーションの適用を検証する。
func TestRun(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"migrations/000002_add_name.up.sql":       {Data: []byte("ALTER TABLE items ADD COLUMN name TEXT NOT NULL DEFAULT '';")},
		"migrations/000001_create_items.up.sql":   {Data: []byte("CREATE TABLE items (id TEXT PRIMARY KEY);")},
		"migrations/000001_create_items.down.sql": {Data: []byte("DROP TABLE items;")},
		"migrations/README.md":                    {Data: []byte("ignored")},
	}

	t.Run("バージョン順に適用され再実行ではスキップされること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		ctx := context.Background()

		n, err := Run(ctx, db, fsys, "migrations", zap.NewNop())
		if err != nil {
			t.Fatalf("Run()でエラーが発生: %v", err)
		}
		if n != 2 {
			t.Errorf("適用件数 = %d, want 2", n)
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO items (id, name) VALUES ('a', 'b')"); err != nil {
			t.Fatalf("マイグレーション後のテーブルに挿入できない: %v", err)
		}

		n, err = Run(ctx, db, fsys, "migrations", zap.NewNop())
		if err != nil {
			t.Fatalf("2回目のRun()でエラーが発生: %v", err)
		}
		if n != 0 {
			t.Errorf("2回目の適用件数 = %d, want 0", n)
		}
	})

	t.Run("不正なSQLはエラーになりバージョンが記録されないこと", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		ctx := context.Background()
		broken := fstest.MapFS{
			"m/000001_broken.up.sql": {Data: []byte("CREATE TABLE;")},
		}

		if _, err := Run(ctx, db, broken, "m", zap.NewNop()); err == nil {
			t.Fatal("不正なSQLでエラーが返されるべき")
		}
		var count int
		if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
			t.Fatalf("件数取得に失敗: %v", err)
		}
		if count != 0 {
			t.Errorf("記録件数 = %d, want 0", count)
		}
	})

	t.Run("重複したバージョンはエラーになること", func(t *testing.T) {
		t.Parallel()

		db := openTestDB(t)
		dup := fstest.MapFS{
			"m/000001_a.up.sql": {Data: []byte("SELECT 1;")},
			"m/000001_b.up.sql": {Data: []byte("SELECT 1;")},
		}
		if _, err := Run(context.Background(), db, dup, "m", zap.NewNop()); err == nil {
			t.Fatal("重複したバージョンでエラーが返されるべき")
		}
	})
}
