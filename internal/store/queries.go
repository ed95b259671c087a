package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/kizuna/pkg/event"
)

// Queries はSQLiteに対するクエリを実行する。
type Queries struct {
	db *sql.DB
}

// New はQueriesを生成する。
func New(db *sql.DB) *Queries {
	return &Queries{db: db}
}

// User はusersテーブルの1行を表す。
type User struct {
	// ID はユーザーの一意識別子。
	ID string
	// Email はメールアドレス。大文字小文字を区別せず一意。
	Email string
	// Name は表示名。
	Name string
	// PasswordHash はargon2idのハッシュ（PHC形式）。
	PasswordHash string
	// PartnerName はパートナーの呼び名。
	PartnerName string
	// RelationshipGoal は関係についての目標。
	RelationshipGoal string
	// HasCompletedOnboarding はオンボーディング完了フラグ。
	HasCompletedOnboarding bool
	// OnboardingCompletedAt はオンボーディングの完了日時。未完了ならnil。
	OnboardingCompletedAt *time.Time
	// CreatedAt は作成日時。
	CreatedAt time.Time
	// UpdatedAt は更新日時。
	UpdatedAt time.Time
}

// CreateUserParams はCreateUserの引数。
type CreateUserParams struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
}

const userColumns = `id, email, name, password_hash, partner_name, relationship_goal,
	has_completed_onboarding, onboarding_completed_at, created_at, updated_at`

// CreateUser はユーザーを作成する。メールアドレスが重複する場合はErrDuplicateを返す。
func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) error {
	now := formatTime(arg.CreatedAt)
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO users (id, email, name, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		arg.ID, arg.Email, arg.Name, arg.PasswordHash, now, now,
	)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("ユーザー作成に失敗: %w", err)
	}
	return nil
}

// GetUserByID はIDでユーザーを取得する。
func (q *Queries) GetUserByID(ctx context.Context, id string) (*User, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail はメールアドレスでユーザーを取得する。
func (q *Queries) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	return scanUser(row)
}

// CompleteOnboarding はオンボーディング完了フラグと完了日時を設定する。
// 既に完了済みの場合は完了日時を更新しない。
func (q *Queries) CompleteOnboarding(ctx context.Context, userID string, at time.Time) error {
	ts := formatTime(at)
	res, err := q.db.ExecContext(ctx, `
		UPDATE users
		SET has_completed_onboarding = 1,
		    onboarding_completed_at = COALESCE(onboarding_completed_at, ?),
		    updated_at = ?
		WHERE id = ?`,
		ts, ts, userID,
	)
	if err != nil {
		return fmt.Errorf("オンボーディング状態の更新に失敗: %w", err)
	}
	return requireAffected(res)
}

// UpdateProfileParams はUpdateProfileの引数。nilのフィールドは更新しない。
type UpdateProfileParams struct {
	UserID           string
	Name             *string
	PartnerName      *string
	RelationshipGoal *string
	UpdatedAt        time.Time
}

// UpdateProfile はプロフィールを更新する。
func (q *Queries) UpdateProfile(ctx context.Context, arg UpdateProfileParams) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE users
		SET name = COALESCE(?, name),
		    partner_name = COALESCE(?, partner_name),
		    relationship_goal = COALESCE(?, relationship_goal),
		    updated_at = ?
		WHERE id = ?`,
		nullString(arg.Name), nullString(arg.PartnerName), nullString(arg.RelationshipGoal),
		formatTime(arg.UpdatedAt), arg.UserID,
	)
	if err != nil {
		return fmt.Errorf("プロフィールの更新に失敗: %w", err)
	}
	return requireAffected(res)
}

// SessionRow はsessionsテーブルの1行にユーザー情報を結合したもの。
type SessionRow struct {
	// ID はセッションの一意識別子。
	ID string
	// UserID はセッションの所有者。
	UserID string
	// Email は所有者のメールアドレス。
	Email string
	// HasCompletedOnboarding は所有者のオンボーディング完了フラグ。
	HasCompletedOnboarding bool
	// IPAddress は作成時のIPアドレス。
	IPAddress string
	// UserAgent は作成時のUser-Agent。
	UserAgent string
	// ExpiresAt は有効期限。
	ExpiresAt time.Time
	// CreatedAt は作成日時。
	CreatedAt time.Time
}

// CreateSessionParams はCreateSessionの引数。
type CreateSessionParams struct {
	ID        string
	UserID    string
	IPAddress string
	UserAgent string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// CreateSession はセッションを作成する。
func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, ip_address, user_agent, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		arg.ID, arg.UserID, arg.IPAddress, arg.UserAgent, formatTime(arg.ExpiresAt), formatTime(arg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("セッション作成に失敗: %w", err)
	}
	return nil
}

// GetSession はセッションを所有者の情報と合わせて取得する。
func (q *Queries) GetSession(ctx context.Context, id string) (*SessionRow, error) {
	var (
		s                   SessionRow
		expires, created    string
		completedOnboarding int64
	)
	err := q.db.QueryRowContext(ctx, `
		SELECT s.id, s.user_id, u.email, u.has_completed_onboarding,
		       s.ip_address, s.user_agent, s.expires_at, s.created_at
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = ?`, id,
	).Scan(&s.ID, &s.UserID, &s.Email, &completedOnboarding, &s.IPAddress, &s.UserAgent, &expires, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("セッション取得に失敗: %w", err)
	}

	s.HasCompletedOnboarding = completedOnboarding != 0
	if s.ExpiresAt, err = parseTime(expires); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	return &s, nil
}

// DeleteSession はセッションを削除する。存在しない場合もエラーにしない。
func (q *Queries) DeleteSession(ctx context.Context, id string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("セッション削除に失敗: %w", err)
	}
	return nil
}

// DeleteExpiredSessions は期限切れのセッションを削除し、削除件数を返す。
func (q *Queries) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at <= ?`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}
	return res.RowsAffected()
}

// AppendEvent は監査イベントを追記する。
func (q *Queries) AppendEvent(ctx context.Context, ev *event.Event) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO auth_events (id, aggregate_id, aggregate_type, event_type, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.AggregateID, string(ev.AggregateType), string(ev.EventType), string(ev.Data), formatTime(ev.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("イベントの追記に失敗: %w", err)
	}
	return nil
}

// ListEvents は対象エンティティのイベントを古い順に取得する。
func (q *Queries) ListEvents(ctx context.Context, aggregateID string) ([]*event.Event, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, aggregate_id, aggregate_type, event_type, data, created_at
		FROM auth_events
		WHERE aggregate_id = ?
		ORDER BY created_at, rowid`, aggregateID,
	)
	if err != nil {
		return nil, fmt.Errorf("イベント取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var events []*event.Event
	for rows.Next() {
		var (
			ev              event.Event
			aggType, evType string
			data, created   string
		)
		if err := rows.Scan(&ev.ID, &ev.AggregateID, &aggType, &evType, &data, &created); err != nil {
			return nil, fmt.Errorf("イベントの読み取りに失敗: %w", err)
		}
		ev.AggregateType = event.AggregateType(aggType)
		ev.EventType = event.Type(evType)
		ev.Data = []byte(data)
		if ev.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		events = append(events, &ev)
	}
	return events, rows.Err()
}

// rowScanner は*sql.Rowと*sql.Rowsの共通インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanUser はusersテーブルの1行を読み取る。
func scanUser(row rowScanner) (*User, error) {
	var (
		u                User
		completed        int64
		completedAt      sql.NullString
		created, updated string
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.PartnerName, &u.RelationshipGoal,
		&completed, &completedAt, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザー取得に失敗: %w", err)
	}

	u.HasCompletedOnboarding = completed != 0
	if completedAt.Valid {
		t, err := parseTime(completedAt.String)
		if err != nil {
			return nil, err
		}
		u.OnboardingCompletedAt = &t
	}
	if u.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if u.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &u, nil
}

// requireAffected は更新対象が存在しなかった場合にErrNotFoundを返す。
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// nullString はnilをSQLのNULLに変換する。
func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
