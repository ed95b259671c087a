package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// maxBodyBytes は書き換え対象とするリクエストボディの最大サイズ。
// これを超えるボディは書き換えずにそのまま転送する。
const maxBodyBytes = 64 << 10

// passwordField は復号対象のJSONフィールド名。
const passwordField = "password"

// pathMarkers は書き換え対象となるパスに含まれる文字列。
var pathMarkers = []string{"/sign-in", "/sign-up"}

// Decrypter は暗号化されたパスワードを復号する。*KeyPair が実装する。
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// Relay は認証リクエストのパスワードを復号してから後続に渡す。
type Relay struct {
	keys   Decrypter
	logger *zap.Logger
}

// New はRelayを生成する。
func New(keys Decrypter, logger *zap.Logger) *Relay {
	return &Relay{keys: keys, logger: logger}
}

// Matches はリクエストが書き換え対象（サインイン・サインアップのPOST）かどうかを返す。
func (r *Relay) Matches(req *http.Request) bool {
	if req.Method != http.MethodPost {
		return false
	}
	for _, marker := range pathMarkers {
		if strings.Contains(req.URL.Path, marker) {
			return true
		}
	}
	return false
}

// Middleware はパスワードを復号するGinミドルウェアを返す。
// どのような失敗でもリクエストを中断せず、元のボディのまま後続に渡す。
func (r *Relay) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.Matches(c.Request) || c.Request.Body == nil {
			c.Next()
			return
		}

		original, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
		if err != nil || len(original) > maxBodyBytes {
			// 読み取れた分と残りを連結して元のボディを復元する
			r.logger.Warn("リクエストボディを書き換えずに転送します",
				zap.String("path", c.Request.URL.Path),
				zap.Int("read_bytes", len(original)),
				zap.Error(err),
			)
			c.Request.Body = readCloser{Reader: io.MultiReader(bytes.NewReader(original), c.Request.Body), Closer: c.Request.Body}
			c.Next()
			return
		}
		_ = c.Request.Body.Close()

		body := r.rewrite(c.Request.URL.Path, original)
		setBody(c.Request, body)
		c.Next()
	}
}

// rewrite はボディのpasswordフィールドを復号したボディを返す。
// 書き換えられない場合は元のバイト列をそのまま返す。
func (r *Relay) rewrite(path string, original []byte) (out []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("パスワードの書き換え中に予期しないエラーが発生しました",
				zap.String("path", path),
				zap.String("panic", fmt.Sprint(rec)),
			)
			out = original
		}
	}()

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(original, &fields); err != nil || fields == nil {
		return original
	}
	raw, ok := fields[passwordField]
	if !ok {
		return original
	}
	var encrypted string
	if err := json.Unmarshal(raw, &encrypted); err != nil {
		return original
	}

	plain, err := r.keys.Decrypt(encrypted)
	if err != nil {
		r.logger.Warn("パスワードの復号に失敗したため平文として扱います",
			zap.String("path", path),
			zap.Error(err),
		)
		return original
	}

	replaced, err := json.Marshal(plain)
	if err != nil {
		return original
	}
	fields[passwordField] = replaced
	rebuilt, err := json.Marshal(fields)
	if err != nil {
		r.logger.Error("リクエストボディの再構築に失敗しました", zap.String("path", path), zap.Error(err))
		return original
	}
	return rebuilt
}

// setBody はリクエストのボディと長さを差し替える。
func setBody(req *http.Request, body []byte) {
	req.Body = io.NopCloser(bytes.NewReader(body))
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Length", strconv.Itoa(len(body)))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}
}

// readCloser は任意のReaderに元ボディのCloseを組み合わせる。
type readCloser struct {
	io.Reader
	io.Closer
}

// PublicKeyHandler は公開鍵を返すハンドラを返す。
// 公開鍵はプロセスの生存期間中変わらないため、1時間キャッシュさせる。
func PublicKeyHandler(keys *KeyPair) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "public, max-age=3600, stale-while-revalidate=86400")
		c.JSON(http.StatusOK, gin.H{"publicKey": keys.PublicKeyPEM()})
	}
}
