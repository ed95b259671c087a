package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/kizuna/internal/route"
	"github.com/nao1215/kizuna/internal/session"
	"github.com/nao1215/kizuna/internal/store"
)

// Handler は /api/auth 配下のHTTPハンドラ。
type Handler struct {
	service *Service
	policy  *route.Policy
	cookies session.CookieWriter
	logger  *zap.Logger
}

// NewHandler はHandlerを生成する。
func NewHandler(service *Service, policy *route.Policy, cookies session.CookieWriter, logger *zap.Logger) *Handler {
	return &Handler{service: service, policy: policy, cookies: cookies, logger: logger}
}

// Register はルーターグループにハンドラを登録する。
// session.Attach が事前に適用されている必要がある。
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/sign-up/email", h.handleSignUp())
	rg.POST("/sign-in/email", h.handleSignIn())
	rg.POST("/sign-out", h.handleSignOut())
	rg.GET("/get-session", h.handleGetSession())
}

// signUpRequest はサインアップリクエストのJSON構造。
type signUpRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required"`
	// Password は平文のパスワード。暗号化されている場合はリレーで復号済み。
	Password string `json:"password" binding:"required"`
	// Name は表示名。
	Name string `json:"name" binding:"required"`
}

// signInRequest はサインインリクエストのJSON構造。
type signInRequest struct {
	// Email はメールアドレス。
	Email string `json:"email" binding:"required"`
	// Password は平文のパスワード。
	Password string `json:"password" binding:"required"`
	// CallbackURL はサインイン後の遷移先。
	CallbackURL string `json:"callbackURL"`
}

// UserResponse はユーザーのJSONレスポンス構造。
type UserResponse struct {
	ID                     string     `json:"id"`
	Email                  string     `json:"email"`
	Name                   string     `json:"name"`
	PartnerName            string     `json:"partner_name"`
	RelationshipGoal       string     `json:"relationship_goal"`
	HasCompletedOnboarding bool       `json:"has_completed_onboarding"`
	OnboardingCompletedAt  *time.Time `json:"onboarding_completed_at"`
	CreatedAt              time.Time  `json:"created_at"`
}

// NewUserResponse はDB行をJSONレスポンスに変換する。パスワードハッシュは含めない。
func NewUserResponse(u *store.User) UserResponse {
	return UserResponse{
		ID:                     u.ID,
		Email:                  u.Email,
		Name:                   u.Name,
		PartnerName:            u.PartnerName,
		RelationshipGoal:       u.RelationshipGoal,
		HasCompletedOnboarding: u.HasCompletedOnboarding,
		OnboardingCompletedAt:  u.OnboardingCompletedAt,
		CreatedAt:              u.CreatedAt,
	}
}

// sessionResponse はセッションのJSONレスポンス構造。トークンは含めない。
type sessionResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// authResponse はサインアップ・サインインのJSONレスポンス構造。
type authResponse struct {
	User    UserResponse    `json:"user"`
	Session sessionResponse `json:"session"`
	// Redirect はサインイン後にクライアントが遷移すべき先。
	Redirect string `json:"redirect,omitempty"`
}

// handleSignUp はサインアップを処理するハンドラを返す。
func (h *Handler) handleSignUp() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req signUpRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です"})
			return
		}

		res, err := h.service.SignUp(c.Request.Context(), SignUpInput{
			Email:    req.Email,
			Password: req.Password,
			Name:     req.Name,
			Client:   clientOf(c),
		})
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
			return
		case errors.Is(err, ErrEmailTaken):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		case err != nil:
			h.logger.Error("サインアップエラー", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "アカウントの作成に失敗しました"})
			return
		}

		h.cookies.Set(c.Writer, res.Session.Token, res.Session.Record.ExpiresAt)
		c.JSON(http.StatusOK, h.toAuthResponse(res, h.policy.ResolveCallback("")))
	}
}

// handleSignIn はサインインを処理するハンドラを返す。
func (h *Handler) handleSignIn() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req signInRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です"})
			return
		}

		res, err := h.service.SignIn(c.Request.Context(), SignInInput{
			Email:    req.Email,
			Password: req.Password,
			Client:   clientOf(c),
		})
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		case err != nil:
			h.logger.Error("サインインエラー", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "サインインに失敗しました"})
			return
		}

		h.cookies.Set(c.Writer, res.Session.Token, res.Session.Record.ExpiresAt)
		c.JSON(http.StatusOK, h.toAuthResponse(res, h.policy.ResolveCallback(req.CallbackURL)))
	}
}

// handleSignOut はサインアウトを処理するハンドラを返す。
// Cookieは失敗した場合も削除する。
func (h *Handler) handleSignOut() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := session.TokenFromRequest(c.Request)
		h.cookies.Clear(c.Writer)

		if err := h.service.SignOut(c.Request.Context(), token); err != nil {
			h.logger.Error("サインアウトエラー", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "サインアウトに失敗しました"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// handleGetSession は現在のセッションを返すハンドラを返す。
// セッションが無い場合はnullを返す。
func (h *Handler) handleGetSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		sess, err := session.FromContext(ctx)
		if errors.Is(err, session.ErrNoSession) {
			c.JSON(http.StatusOK, nil)
			return
		}
		if err != nil {
			h.logger.Error("セッション取得エラー", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "セッションの取得に失敗しました"})
			return
		}

		user, err := h.service.User(ctx, sess.UserID)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusOK, nil)
			return
		}
		if err != nil {
			h.logger.Error("ユーザー取得エラー", zap.String("user_id", sess.UserID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "セッションの取得に失敗しました"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"session": sessionResponse{ID: sess.ID, UserID: sess.UserID, ExpiresAt: sess.ExpiresAt},
			"user":    NewUserResponse(user),
		})
	}
}

// toAuthResponse はサインアップ・サインインの結果をJSONレスポンスに変換する。
func (h *Handler) toAuthResponse(res *Result, redirect string) authResponse {
	rec := res.Session.Record
	return authResponse{
		User:     NewUserResponse(res.User),
		Session:  sessionResponse{ID: rec.ID, UserID: rec.UserID, ExpiresAt: rec.ExpiresAt},
		Redirect: redirect,
	}
}

// clientOf はリクエスト元の情報を取り出す。
func clientOf(c *gin.Context) Client {
	return Client{IPAddress: c.ClientIP(), UserAgent: c.Request.UserAgent()}
}
