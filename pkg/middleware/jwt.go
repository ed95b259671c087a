package middleware

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ServiceIssuer はサービス間JWTの発行者。
const ServiceIssuer = "kizuna-web"

// serviceTokenTTL はサービス間JWTの有効期間。
const serviceTokenTTL = 5 * time.Minute

// ServiceClaims はタスク計算APIへ送るJWTのクレームを表す。
type ServiceClaims struct {
	jwt.RegisteredClaims
	// UserID はリクエスト元ユーザーの一意識別子。
	UserID string `json:"user_id"`
}

// GenerateJWT はユーザーIDを載せた短命のサービス間JWTを生成する。
// タスク計算APIへのプロキシ時に呼び出す。
func GenerateJWT(secret, userID string) (string, error) {
	if secret == "" {
		return "", errors.New("サービス間JWTのシークレットが空です")
	}
	now := time.Now()
	claims := ServiceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(serviceTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    ServiceIssuer,
			Subject:   userID,
		},
		UserID: userID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("JWTトークンの署名に失敗: %w", err)
	}
	return signed, nil
}

// ParseJWT はサービス間JWTを検証してクレームを返す。
// タスク計算API側の検証と同じ規則（HS256・発行者一致）で検証する。
func ParseJWT(secret, tokenString string) (*ServiceClaims, error) {
	claims := &ServiceClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ServiceIssuer),
	)
	if err != nil {
		return nil, fmt.Errorf("トークンが無効です: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("トークンが無効です")
	}
	return claims, nil
}
