package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenIssuer はセッショントークンの発行者。
const tokenIssuer = "kizuna"

// Claims はセッショントークンのクレームを表す。
type Claims struct {
	jwt.RegisteredClaims
	// SessionID はStore上のセッションID。
	SessionID string `json:"sid"`
	// UserID はセッションの所有者。
	UserID string `json:"uid"`
}

// Codec はセッショントークンの署名と検証を行う。
type Codec struct {
	secret []byte
}

// NewCodec はCodecを生成する。秘密鍵は32バイト以上を要求する。
func NewCodec(secret string) (*Codec, error) {
	if len(secret) < 32 {
		return nil, errors.New("セッションの秘密鍵は32バイト以上必要です")
	}
	return &Codec{secret: []byte(secret)}, nil
}

// Encode はセッションIDとユーザーIDを含むトークンを生成する。
func (c *Codec) Encode(sessionID, userID string, issuedAt, expiresAt time.Time) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			Issuer:    tokenIssuer,
			Subject:   userID,
		},
		SessionID: sessionID,
		UserID:    userID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("セッショントークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// Decode はトークンを検証してクレームを返す。
func (c *Codec) Decode(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(_ *jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("セッショントークンが無効です: %w", err)
	}
	if claims.SessionID == "" || claims.UserID == "" {
		return nil, errors.New("セッショントークンにIDが含まれていません")
	}
	return claims, nil
}
