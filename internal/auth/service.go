package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nao1215/kizuna/internal/session"
	"github.com/nao1215/kizuna/internal/store"
	"github.com/nao1215/kizuna/pkg/event"
)

const (
	// MinPasswordBytes はパスワードの最小バイト数。
	MinPasswordBytes = 8
	// MaxPasswordBytes はパスワードの最大バイト数。argon2の計算量を抑えるため上限を設ける。
	MaxPasswordBytes = 128
	// MaxNameLength は表示名の最大文字数。
	MaxNameLength = 100
)

var (
	// ErrEmailTaken はメールアドレスが登録済みであることを表す。
	ErrEmailTaken = errors.New("このメールアドレスは既に登録されています")
	// ErrInvalidCredentials はメールアドレスまたはパスワードが一致しないことを表す。
	// 存在しないメールアドレスの場合も同じエラーを返す。
	ErrInvalidCredentials = errors.New("メールアドレスまたはパスワードが正しくありません")
)

// ValidationError は入力値が不正であることを表す。
type ValidationError struct {
	// Field は不正なフィールド名。
	Field string
	// Reason は不正な理由。
	Reason string
}

// Error はエラーメッセージを返す。
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Service はアカウントの登録とサインイン・サインアウトを行う。
type Service struct {
	queries  *store.Queries
	sessions *session.Manager
	hasher   *Hasher
	logger   *zap.Logger
	now      func() time.Time

	// dummyHash は存在しないユーザーでも照合コストを揃えるためのハッシュ。
	dummyHash string
}

// NewService はServiceを生成する。
func NewService(queries *store.Queries, sessions *session.Manager, hasher *Hasher, logger *zap.Logger) (*Service, error) {
	dummy, err := hasher.Hash(uuid.New().String())
	if err != nil {
		return nil, err
	}
	return &Service{
		queries:   queries,
		sessions:  sessions,
		hasher:    hasher,
		logger:    logger,
		now:       time.Now,
		dummyHash: dummy,
	}, nil
}

// Client はリクエスト元の情報。セッションと監査イベントに記録する。
type Client struct {
	// IPAddress はクライアントのIPアドレス。
	IPAddress string
	// UserAgent はクライアントのUser-Agent。
	UserAgent string
}

// SignUpInput はSignUpの引数。
type SignUpInput struct {
	Email    string
	Password string
	Name     string
	Client   Client
}

// SignInInput はSignInの引数。
type SignInInput struct {
	Email    string
	Password string
	Client   Client
}

// Result はサインアップ・サインインの結果。
type Result struct {
	// User は対象のユーザー。
	User *store.User
	// Session は発行したセッション。
	Session *session.Issued
}

// SignUp はユーザーを登録してセッションを発行する。
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*Result, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, &ValidationError{Field: "name", Reason: "必須です"}
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return nil, &ValidationError{Field: "name", Reason: fmt.Sprintf("%d文字以内で入力してください", MaxNameLength)}
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗: %w", err)
	}

	userID := uuid.New().String()
	err = s.queries.CreateUser(ctx, store.CreateUserParams{
		ID:           userID,
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, ErrEmailTaken
	}
	if err != nil {
		return nil, err
	}
	event.Emit(ctx, s.queries, s.logger, userID, event.AggregateTypeUser, event.TypeUserSignedUp,
		event.UserSignedUpData{Email: email})

	return s.startSession(ctx, userID, in.Client)
}

// SignIn はメールアドレスとパスワードを照合してセッションを発行する。
func (s *Service) SignIn(ctx context.Context, in SignInInput) (*Result, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if len(in.Password) == 0 || len(in.Password) > MaxPasswordBytes {
		return nil, ErrInvalidCredentials
	}

	user, err := s.queries.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		// 応答時間からメールアドレスの登録有無を推測されないよう照合だけ行う
		_, _ = s.hasher.Verify(in.Password, s.dummyHash)
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("パスワードの照合に失敗: %w", err)
	}
	if !ok {
		event.Emit(ctx, s.queries, s.logger, user.ID, event.AggregateTypeUser, event.TypeUserSignInFailed,
			event.UserSignInFailedData{Reason: "password_mismatch", IPAddress: in.Client.IPAddress})
		return nil, ErrInvalidCredentials
	}

	res, err := s.startSession(ctx, user.ID, in.Client)
	if err != nil {
		return nil, err
	}
	event.Emit(ctx, s.queries, s.logger, user.ID, event.AggregateTypeUser, event.TypeUserSignedIn,
		event.UserSignedInData{
			SessionID: res.Session.Record.ID,
			IPAddress: in.Client.IPAddress,
			UserAgent: in.Client.UserAgent,
		})
	return res, nil
}

// SignOut はトークンが指すセッションを破棄する。無効なトークンは無視する。
func (s *Service) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	sess, err := s.sessions.Resolve(ctx, token)
	if err != nil && !errors.Is(err, session.ErrNoSession) {
		return err
	}
	sessionID, err := s.sessions.Revoke(ctx, token)
	if err != nil {
		return err
	}
	if sess != nil {
		event.Emit(ctx, s.queries, s.logger, sess.UserID, event.AggregateTypeUser, event.TypeUserSignedOut,
			event.UserSignedOutData{SessionID: sessionID})
	}
	return nil
}

// User はIDでユーザーを取得する。
func (s *Service) User(ctx context.Context, userID string) (*store.User, error) {
	return s.queries.GetUserByID(ctx, userID)
}

// startSession はセッションを発行してユーザー情報と合わせて返す。
func (s *Service) startSession(ctx context.Context, userID string, client Client) (*Result, error) {
	issued, err := s.sessions.Issue(ctx, userID, client.IPAddress, client.UserAgent)
	if err != nil {
		return nil, err
	}
	user, err := s.queries.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Result{User: user, Session: issued}, nil
}

// normalizeEmail はメールアドレスを検証し、前後の空白を除いて小文字にする。
func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", &ValidationError{Field: "email", Reason: "必須です"}
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || len(email) > 254 {
		return "", &ValidationError{Field: "email", Reason: "メールアドレスの形式が正しくありません"}
	}
	return email, nil
}

// validatePassword はパスワードの長さを検証する。
func validatePassword(password string) error {
	if len(password) < MinPasswordBytes || len(password) > MaxPasswordBytes {
		return &ValidationError{
			Field:  "password",
			Reason: fmt.Sprintf("%d〜%dバイトで入力してください", MinPasswordBytes, MaxPasswordBytes),
		}
	}
	return nil
}
