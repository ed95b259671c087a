package route

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Category はリクエストパスの分類を表す。
type Category int

const (
	// Unclassified はどの分類にも一致しないパス。ゲートは常に通過させる。
	Unclassified Category = iota
	// Public はログイン・サインアップなど未認証ユーザー向けのパス。
	Public
	// API はAPIエンドポイント。ページゲートの対象外。
	API
	// Protected はセッションが必要な保護領域のパス。
	Protected
)

// String はCategoryの文字列表現を返す。
func (c Category) String() string {
	switch c {
	case Public:
		return "public"
	case API:
		return "api"
	case Protected:
		return "protected"
	default:
		return "unclassified"
	}
}

// CallbackParam はログインURLに付与するコールバックパラメータ名。
const CallbackParam = "callbackUrl"

// Table はルート分類の静的テーブル。
type Table struct {
	// PublicPrefixes は未認証ユーザー向けパスのプレフィックス。
	PublicPrefixes []string
	// APIPrefixes はゲート対象外のAPIパスのプレフィックス。
	APIPrefixes []string
	// ProtectedPrefixes は保護領域のパスのプレフィックス。
	ProtectedPrefixes []string
	// LoginPath はログインページのパス。
	LoginPath string
	// HomePath は認証済みユーザーのホーム。
	HomePath string
	// OnboardingPath はオンボーディングフローのパス。
	OnboardingPath string
	// DefaultCallback はコールバックが無効な場合の遷移先。
	DefaultCallback string
}

// DefaultTable はアプリケーションのルートテーブルを返す。
func DefaultTable() Table {
	return Table{
		PublicPrefixes:    []string{"/login", "/signup"},
		APIPrefixes:       []string{"/api"},
		ProtectedPrefixes: []string{"/conversations", "/onboarding", "/assistant"},
		LoginPath:         "/login",
		HomePath:          "/conversations",
		OnboardingPath:    "/onboarding",
		DefaultCallback:   "/onboarding",
	}
}

// Policy はエッジゲートと認証ゲートの両方が参照するルート分類ポリシー。
// 2つのゲートが別々のテーブルを持つとずれが生じるため、必ずこの型を共有する。
type Policy struct {
	table Table
}

// NewPolicy はテーブルを検証してPolicyを生成する。
// 異なる分類のプレフィックス同士が重なっている場合はエラーを返す。
func NewPolicy(t Table) (*Policy, error) {
	groups := []struct {
		name     string
		prefixes []string
	}{
		{"public", t.PublicPrefixes},
		{"api", t.APIPrefixes},
		{"protected", t.ProtectedPrefixes},
	}

	for _, g := range groups {
		for _, p := range g.prefixes {
			if !strings.HasPrefix(p, "/") || p == "/" {
				return nil, fmt.Errorf("%sプレフィックスが不正です: %q", g.name, p)
			}
		}
	}

	for i, a := range groups {
		for _, b := range groups[i+1:] {
			for _, pa := range a.prefixes {
				for _, pb := range b.prefixes {
					if hasPathPrefix(pa, pb) || hasPathPrefix(pb, pa) {
						return nil, fmt.Errorf("プレフィックスが重複しています: %s %q と %s %q", a.name, pa, b.name, pb)
					}
				}
			}
		}
	}

	p := &Policy{table: t}
	for name, target := range map[string]string{
		"home":       t.HomePath,
		"onboarding": t.OnboardingPath,
	} {
		if p.Classify(target) != Protected {
			return nil, fmt.Errorf("%sパスは保護領域である必要があります: %q", name, target)
		}
	}
	if p.Classify(t.LoginPath) != Public {
		return nil, fmt.Errorf("ログインパスは公開領域である必要があります: %q", t.LoginPath)
	}
	if p.Classify(t.DefaultCallback) == Public {
		return nil, fmt.Errorf("デフォルトのコールバックに公開パスは指定できません: %q", t.DefaultCallback)
	}
	return p, nil
}

// MustDefault はDefaultTableからPolicyを生成する。テーブルは静的なので失敗しない。
func MustDefault() *Policy {
	p, err := NewPolicy(DefaultTable())
	if err != nil {
		panic(err)
	}
	return p
}

// Classify はパスを分類する。public → api → protected の順で判定し、
// 最初に一致した分類を返す。
func (p *Policy) Classify(urlPath string) Category {
	switch {
	case matchAny(urlPath, p.table.PublicPrefixes):
		return Public
	case matchAny(urlPath, p.table.APIPrefixes):
		return API
	case matchAny(urlPath, p.table.ProtectedPrefixes):
		return Protected
	default:
		return Unclassified
	}
}

// IsOnboarding はパスがオンボーディングフロー内かどうかを返す。
func (p *Policy) IsOnboarding(urlPath string) bool {
	return hasPathPrefix(urlPath, p.table.OnboardingPath)
}

// HomePath は保護領域のホームを返す。
func (p *Policy) HomePath() string { return p.table.HomePath }

// OnboardingPath はオンボーディングフローのパスを返す。
func (p *Policy) OnboardingPath() string { return p.table.OnboardingPath }

// LoginPath はログインページのパスを返す。
func (p *Policy) LoginPath() string { return p.table.LoginPath }

// LoginURL は元のリクエスト先をcallbackUrlとして付与したログインURLを返す。
func (p *Policy) LoginURL(target string) string {
	if target == "" {
		return p.table.LoginPath
	}
	q := url.Values{}
	q.Set(CallbackParam, target)
	return p.table.LoginPath + "?" + q.Encode()
}

// ResolveCallback はサインイン後の遷移先を決定する。
// 空・ルート・公開パス・ローカル以外のURLはリダイレクトループやオープンリダイレクトを
// 防ぐためデフォルトの遷移先に置き換える。
func (p *Policy) ResolveCallback(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "/" {
		return p.table.DefaultCallback
	}
	if !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.Contains(raw, `\`) {
		return p.table.DefaultCallback
	}

	u, err := url.Parse(raw)
	if err != nil || u.IsAbs() || u.Host != "" {
		return p.table.DefaultCallback
	}
	if u.Path == "" || u.Path == "/" || p.Classify(path.Clean(u.Path)) == Public {
		return p.table.DefaultCallback
	}
	return raw
}

// matchAny はパスがいずれかのプレフィックスに一致するかを返す。
func matchAny(urlPath string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if hasPathPrefix(urlPath, prefix) {
			return true
		}
	}
	return false
}

// hasPathPrefix はセグメント単位でプレフィックス一致を判定する。
// "/login" は "/login" と "/login/..." に一致し、"/loginx" には一致しない。
func hasPathPrefix(urlPath, prefix string) bool {
	if urlPath == prefix {
		return true
	}
	return strings.HasPrefix(urlPath, strings.TrimSuffix(prefix, "/")+"/")
}
