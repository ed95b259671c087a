package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	// algorithm はPHC文字列に記録するアルゴリズム名。
	algorithm = "argon2id"

	minMemoryKB   uint32 = 8 * 1024
	minSaltLength uint32 = 16
	minKeyLength  uint32 = 16
)

// ErrMalformedHash は保存されたハッシュがPHC形式として解釈できないことを表す。
var ErrMalformedHash = errors.New("パスワードハッシュの形式が不正です")

// HashParams はargon2idのパラメータ。
type HashParams struct {
	// Memory は使用メモリ（KiB）。
	Memory uint32
	// Time は反復回数。
	Time uint32
	// Parallelism は並列度。
	Parallelism uint8
	// SaltLength はソルトのバイト数。
	SaltLength uint32
	// KeyLength は導出する鍵のバイト数。
	KeyLength uint32
}

// DefaultHashParams は本番用のパラメータを返す。
func DefaultHashParams() HashParams {
	return HashParams{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher はパスワードのハッシュ化と照合を行う。
type Hasher struct {
	params HashParams
}

// NewHasher はHasherを生成する。安全でないパラメータはエラーになる。
func NewHasher(p HashParams) (*Hasher, error) {
	switch {
	case p.Memory < minMemoryKB:
		return nil, fmt.Errorf("メモリは%dKiB以上が必要です", minMemoryKB)
	case p.Time < 1:
		return nil, errors.New("反復回数は1以上が必要です")
	case p.Parallelism < 1:
		return nil, errors.New("並列度は1以上が必要です")
	case p.SaltLength < minSaltLength:
		return nil, fmt.Errorf("ソルトは%dバイト以上が必要です", minSaltLength)
	case p.KeyLength < minKeyLength:
		return nil, fmt.Errorf("鍵長は%dバイト以上が必要です", minKeyLength)
	}
	return &Hasher{params: p}, nil
}

// Hash はパスワードをハッシュ化し、PHC形式の文字列を返す。
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("ソルトの生成に失敗: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Time, h.params.Memory, h.params.Parallelism, h.params.KeyLength)
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithm, argon2.Version,
		h.params.Memory, h.params.Time, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify はパスワードが保存済みハッシュと一致するかを定数時間で照合する。
// ハッシュ自体のパラメータで再計算するため、パラメータ変更前のハッシュも検証できる。
func (h *Hasher) Verify(password, encoded string) (bool, error) {
	p, salt, key, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(got, key) == 1, nil
}

// decodeHash はPHC形式の文字列を分解する。
func decodeHash(encoded string) (HashParams, []byte, []byte, error) {
	var p HashParams

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithm {
		return p, nil, nil, ErrMalformedHash
	}
	if parts[2] != "v="+strconv.Itoa(argon2.Version) {
		return p, nil, nil, fmt.Errorf("%w: 未対応のバージョン %s", ErrMalformedHash, parts[2])
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Parallelism); err != nil {
		return p, nil, nil, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	if p.Memory < minMemoryKB || p.Time < 1 || p.Parallelism < 1 {
		return p, nil, nil, fmt.Errorf("%w: パラメータが範囲外です", ErrMalformedHash)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || uint32(len(salt)) < minSaltLength {
		return p, nil, nil, fmt.Errorf("%w: ソルトが不正です", ErrMalformedHash)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, fmt.Errorf("%w: ハッシュ値が不正です", ErrMalformedHash)
	}
	return p, salt, key, nil
}
