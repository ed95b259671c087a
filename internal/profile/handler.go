// Package profile はログイン中のユーザー自身のプロフィールとオンボーディング状態を扱う。
package profile

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nao1215/kizuna/internal/auth"
	"github.com/nao1215/kizuna/internal/gate"
	"github.com/nao1215/kizuna/internal/store"
	"github.com/nao1215/kizuna/pkg/event"
)

const (
	// maxNameLength は表示名・パートナー名の最大文字数。
	maxNameLength = 100
	// maxGoalLength は関係の目標の最大文字数。
	maxGoalLength = 500
)

// Handler はプロフィール関連のHTTPハンドラ。
type Handler struct {
	queries *store.Queries
	logger  *zap.Logger
	now     func() time.Time
}

// NewHandler はHandlerを生成する。
func NewHandler(queries *store.Queries, logger *zap.Logger) *Handler {
	return &Handler{queries: queries, logger: logger, now: time.Now}
}

// Register はルーターグループにハンドラを登録する。
// グループには gate.SessionGate.RequireSession が適用されている必要がある。
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/onboarding/complete", h.handleCompleteOnboarding())
	rg.GET("/me", h.handleGetMe())
	rg.PATCH("/me", h.handleUpdateMe())
	rg.GET("/me/events", h.handleListEvents())
}

// updateProfileRequest はプロフィール更新リクエストのJSON構造。
// 省略したフィールドは更新しない。
type updateProfileRequest struct {
	// Name は表示名。
	Name *string `json:"name"`
	// PartnerName はパートナーの呼び名。
	PartnerName *string `json:"partner_name"`
	// RelationshipGoal は関係についての目標。
	RelationshipGoal *string `json:"relationship_goal"`
}

// handleCompleteOnboarding はオンボーディング完了を処理するハンドラを返す。
// DBのエラー内容はログにのみ記録し、クライアントには汎用のメッセージを返す。
func (h *Handler) handleCompleteOnboarding() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := gate.GetSession(c)
		if sess == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "認証が必要です"})
			return
		}

		ctx := c.Request.Context()
		completedAt := h.now().UTC()
		if err := h.queries.CompleteOnboarding(ctx, sess.UserID, completedAt); err != nil {
			h.logger.Error("オンボーディング完了エラー",
				zap.String("user_id", sess.UserID),
				zap.Error(err),
			)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "オンボーディングの完了に失敗しました"})
			return
		}

		event.Emit(ctx, h.queries, h.logger, sess.UserID, event.AggregateTypeUser, event.TypeOnboardingCompleted,
			event.OnboardingCompletedData{CompletedAt: completedAt})
		c.JSON(http.StatusOK, gin.H{"success": true})
	}
}

// handleGetMe はログイン中のユーザーのプロフィールを返すハンドラを返す。
func (h *Handler) handleGetMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := gate.GetSession(c)
		if sess == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "認証が必要です"})
			return
		}

		user, err := h.queries.GetUserByID(c.Request.Context(), sess.UserID)
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "ユーザーが見つかりません"})
			return
		}
		if err != nil {
			h.logger.Error("ユーザー取得エラー", zap.String("user_id", sess.UserID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロフィールの取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, auth.NewUserResponse(user))
	}
}

// handleUpdateMe はプロフィール更新を処理するハンドラを返す。
func (h *Handler) handleUpdateMe() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := gate.GetSession(c)
		if sess == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "認証が必要です"})
			return
		}

		var req updateProfileRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "リクエストが不正です"})
			return
		}
		fields, err := req.normalize()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if len(fields) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "更新する項目がありません"})
			return
		}

		ctx := c.Request.Context()
		err = h.queries.UpdateProfile(ctx, store.UpdateProfileParams{
			UserID:           sess.UserID,
			Name:             req.Name,
			PartnerName:      req.PartnerName,
			RelationshipGoal: req.RelationshipGoal,
			UpdatedAt:        h.now(),
		})
		if err != nil {
			h.logger.Error("プロフィール更新エラー", zap.String("user_id", sess.UserID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロフィールの更新に失敗しました"})
			return
		}
		event.Emit(ctx, h.queries, h.logger, sess.UserID, event.AggregateTypeUser, event.TypeProfileUpdated,
			event.ProfileUpdatedData{Fields: fields})

		user, err := h.queries.GetUserByID(ctx, sess.UserID)
		if err != nil {
			h.logger.Error("ユーザー取得エラー", zap.String("user_id", sess.UserID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "プロフィールの取得に失敗しました"})
			return
		}
		c.JSON(http.StatusOK, auth.NewUserResponse(user))
	}
}

// normalize は前後の空白を除き、長さを検証して更新対象のフィールド名を返す。
func (r *updateProfileRequest) normalize() ([]string, error) {
	var fields []string
	check := func(field string, v *string, limit int, required bool) error {
		if v == nil {
			return nil
		}
		*v = strings.TrimSpace(*v)
		if required && *v == "" {
			return fmt.Errorf("%s: 必須です", field)
		}
		if utf8.RuneCountInString(*v) > limit {
			return fmt.Errorf("%s: %d文字以内で入力してください", field, limit)
		}
		fields = append(fields, field)
		return nil
	}

	if err := check("name", r.Name, maxNameLength, true); err != nil {
		return nil, err
	}
	if err := check("partner_name", r.PartnerName, maxNameLength, false); err != nil {
		return nil, err
	}
	if err := check("relationship_goal", r.RelationshipGoal, maxGoalLength, false); err != nil {
		return nil, err
	}
	return fields, nil
}

// handleListEvents はログイン中のユーザーの監査イベントを古い順に返すハンドラを返す。
func (h *Handler) handleListEvents() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := gate.GetSession(c)
		if sess == nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "認証が必要です"})
			return
		}

		events, err := h.queries.ListEvents(c.Request.Context(), sess.UserID)
		if err != nil {
			h.logger.Error("イベント取得エラー", zap.String("user_id", sess.UserID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "履歴の取得に失敗しました"})
			return
		}
		if events == nil {
			events = []*event.Event{}
		}
		c.JSON(http.StatusOK, events)
	}
}
