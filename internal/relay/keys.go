package relay

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"strings"
)

// minKeyBits は受け付けるRSA鍵の最小ビット長。
const minKeyBits = 2048

// KeyPair はパスワード暗号化用のRSA鍵ペア。
type KeyPair struct {
	private   *rsa.PrivateKey
	publicPEM string
}

// GenerateKeyPair は新しいRSA鍵ペアを生成する。
func GenerateKeyPair(bits int) (*KeyPair, error) {
	if bits < minKeyBits {
		return nil, fmt.Errorf("鍵長は%dビット以上が必要です: %d", minKeyBits, bits)
	}
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("RSA鍵の生成に失敗: %w", err)
	}
	return newKeyPair(key)
}

// ParsePrivateKey はPEM形式（PKCS#1またはPKCS#8）の秘密鍵を読み込む。
func ParsePrivateKey(pemData []byte) (*KeyPair, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, errors.New("PEMブロックが見つかりません")
	}

	var key *rsa.PrivateKey
	switch block.Type {
	case "RSA PRIVATE KEY":
		k, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("PKCS#1秘密鍵の解析に失敗: %w", err)
		}
		key = k
	case "PRIVATE KEY":
		k, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("PKCS#8秘密鍵の解析に失敗: %w", err)
		}
		rsaKey, ok := k.(*rsa.PrivateKey)
		if !ok {
			return nil, errors.New("RSA以外の秘密鍵は使用できません")
		}
		key = rsaKey
	default:
		return nil, fmt.Errorf("未対応のPEMブロックです: %s", block.Type)
	}

	if key.N.BitLen() < minKeyBits {
		return nil, fmt.Errorf("鍵長は%dビット以上が必要です: %d", minKeyBits, key.N.BitLen())
	}
	return newKeyPair(key)
}

// LoadPrivateKeyFile はファイルから秘密鍵を読み込む。
func LoadPrivateKeyFile(path string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("秘密鍵ファイルの読み込みに失敗: %w", err)
	}
	return ParsePrivateKey(data)
}

// newKeyPair は公開鍵のPEMを事前に組み立ててKeyPairを生成する。
func newKeyPair(key *rsa.PrivateKey) (*KeyPair, error) {
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("公開鍵のエンコードに失敗: %w", err)
	}
	publicPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return &KeyPair{private: key, publicPEM: string(publicPEM)}, nil
}

// PublicKeyPEM はSPKI形式の公開鍵PEMを返す。
func (k *KeyPair) PublicKeyPEM() string {
	return k.publicPEM
}

// PrivateKeyPEM はPKCS#8形式の秘密鍵PEMを返す。
func (k *KeyPair) PrivateKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k.private)
	if err != nil {
		return nil, fmt.Errorf("秘密鍵のエンコードに失敗: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// Decrypt はbase64エンコードされたRSA-OAEP(SHA-256)暗号文を復号する。
// 標準・URLセーフのどちらのbase64も受け付ける。
func (k *KeyPair) Decrypt(ciphertext string) (string, error) {
	data, err := decodeBase64(ciphertext)
	if err != nil {
		return "", fmt.Errorf("暗号文のデコードに失敗: %w", err)
	}
	if len(data) != k.private.Size() {
		return "", fmt.Errorf("暗号文の長さが不正です: %d", len(data))
	}
	plain, err := rsa.DecryptOAEP(sha256.New(), nil, k.private, data, nil)
	if err != nil {
		return "", fmt.Errorf("復号に失敗: %w", err)
	}
	return string(plain), nil
}

// decodeBase64 はパディングの有無とアルファベットの違いを吸収してデコードする。
func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	encodings := []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	}
	var lastErr error
	for _, enc := range encodings {
		data, err := enc.DecodeString(s)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, lastErr
}
