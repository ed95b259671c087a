package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nao1215/kizuna/pkg/migration"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound は対象のレコードが存在しないことを表す。
var ErrNotFound = errors.New("レコードが見つかりません")

// ErrDuplicate は一意制約に違反したことを表す。
var ErrDuplicate = errors.New("レコードが既に存在します")

// Open はSQLiteデータベースを開く。pathに ":memory:" を指定するとインメモリDBになる。
func Open(path string) (*sql.DB, error) {
	pragmas := "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	dsn := "file:" + path + "?" + pragmas + "&_pragma=journal_mode(WAL)"
	if path == ":memory:" {
		dsn = "file::memory:?" + pragmas
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if path == ":memory:" {
		// インメモリDBは接続ごとに別のDBになるため1接続に制限する
		db.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate は埋め込まれたマイグレーションを適用する。
func Migrate(ctx context.Context, db *sql.DB, logger *zap.Logger) error {
	if _, err := migration.Run(ctx, db, migrations, "migrations", logger); err != nil {
		return fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return nil
}

// timeLayout はDBに保存する日時の書式。
// 文字列比較で大小が決まるよう、小数部を固定桁にしている。
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// formatTime は日時をUTCの文字列に変換する。
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime はDBの文字列を日時に変換する。
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("日時の解析に失敗: %q: %w", s, err)
	}
	return t, nil
}

// isUniqueViolation はエラーが一意制約違反かどうかを返す。
func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}
