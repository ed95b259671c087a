// Package event はユーザーと認証に関する監査イベントを定義する。
//
// サインアップ・サインイン・サインアウト・オンボーディング完了といった
// 状態変更を不変のイベントとして auth_events テーブルに追記する。
package event

import (
	"encoding/json"
	"time"
)

// AggregateType はイベントの対象となるエンティティの種類を表す。
type AggregateType string

const (
	// AggregateTypeUser はユーザーエンティティを表す。
	AggregateTypeUser AggregateType = "User"
	// AggregateTypeSession はセッションエンティティを表す。
	AggregateTypeSession AggregateType = "Session"
)

// Type はイベントの種類を表す。
type Type string

const (
	// TypeUserSignedUp はユーザーが登録されたことを表す。
	TypeUserSignedUp Type = "UserSignedUp"
	// TypeUserSignedIn はユーザーがサインインしたことを表す。
	TypeUserSignedIn Type = "UserSignedIn"
	// TypeUserSignInFailed はサインインに失敗したことを表す。
	TypeUserSignInFailed Type = "UserSignInFailed"
	// TypeUserSignedOut はユーザーがサインアウトしたことを表す。
	TypeUserSignedOut Type = "UserSignedOut"
	// TypeOnboardingCompleted はオンボーディングが完了したことを表す。
	TypeOnboardingCompleted Type = "OnboardingCompleted"
	// TypeProfileUpdated はプロフィールが更新されたことを表す。
	TypeProfileUpdated Type = "ProfileUpdated"
)

// Event は不変の監査イベントレコードを表す。
type Event struct {
	// ID はイベントの一意識別子（UUID）。
	ID string `json:"id"`
	// AggregateID は対象エンティティの識別子。
	AggregateID string `json:"aggregate_id"`
	// AggregateType は対象エンティティの種類。
	AggregateType AggregateType `json:"aggregate_type"`
	// EventType はイベントの種類。
	EventType Type `json:"event_type"`
	// Data はイベント固有のデータ（JSON形式）。
	Data json.RawMessage `json:"data"`
	// CreatedAt はイベントが作成された日時。
	CreatedAt time.Time `json:"created_at"`
}

// UserSignedUpData はUserSignedUpイベントのデータ。
type UserSignedUpData struct {
	// Email は登録されたメールアドレス。
	Email string `json:"email"`
}

// UserSignedInData はUserSignedInイベントのデータ。
type UserSignedInData struct {
	// SessionID は発行されたセッションのID。
	SessionID string `json:"session_id"`
	// IPAddress はリクエスト元のIPアドレス。
	IPAddress string `json:"ip_address"`
	// UserAgent はリクエスト元のUser-Agent。
	UserAgent string `json:"user_agent"`
}

// UserSignInFailedData はUserSignInFailedイベントのデータ。
type UserSignInFailedData struct {
	// Reason は失敗の理由。
	Reason string `json:"reason"`
	// IPAddress はリクエスト元のIPアドレス。
	IPAddress string `json:"ip_address"`
}

// UserSignedOutData はUserSignedOutイベントのデータ。
type UserSignedOutData struct {
	// SessionID は破棄されたセッションのID。
	SessionID string `json:"session_id"`
}

// OnboardingCompletedData はOnboardingCompletedイベントのデータ。
type OnboardingCompletedData struct {
	// CompletedAt はオンボーディングが完了した日時。
	CompletedAt time.Time `json:"completed_at"`
}

// ProfileUpdatedData はProfileUpdatedイベントのデータ。
type ProfileUpdatedData struct {
	// Fields は更新されたフィールド名の一覧。
	Fields []string `json:"fields"`
}
