package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hitoshi/mangatalk/internal/model"
)

// SessionTokenTTL はセッショントークンの有効期間。
// 失効リストを持たないステートレス設計のため、期限切れのみが
// トークンを無効化する唯一の手段となる。自動更新は行わない。
const SessionTokenTTL = 7 * 24 * time.Hour

// AdminRole は管理者昇格トークンに要求されるロール名。
const AdminRole = "admin"

// sessionClaims はセッショントークンのペイロード。
// 検証済みユーザー情報と発行・失効時刻を持つ。
type sessionClaims struct {
	User      *model.VerifiedIdentity `json:"user"`
	IssuedAt  int64                   `json:"iat"`
	ExpiresAt int64                   `json:"exp"`
}

// adminClaims は管理者昇格トークンのペイロード。
// 特定のユーザー識別子は持たず、ロールと失効時刻のみを運ぶ。
type adminClaims struct {
	Role      string `json:"role"`
	ExpiresAt int64  `json:"exp"`
}

// EncodeSessionToken は検証済みユーザー情報を署名付きトークンに変換する。
// トークン形式は base64url(ペイロードJSON) + "." + hex(HMAC-SHA256(ペイロード部))。
func EncodeSessionToken(identity *model.VerifiedIdentity, secret string) (string, error) {
	return encodeSessionTokenAt(identity, secret, time.Now())
}

// encodeSessionTokenAt は発行時刻を指定してセッショントークンを生成する。
// 期限切れトークンの検証テストで使用する。
func encodeSessionTokenAt(identity *model.VerifiedIdentity, secret string, now time.Time) (string, error) {
	if identity == nil {
		return "", fmt.Errorf("identity is required")
	}
	claims := sessionClaims{
		User:      identity,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(SessionTokenTTL).Unix(),
	}
	return signClaims(claims, secret)
}

// DecodeSessionToken はセッショントークンを検証し、検証済みユーザー情報を返す。
// 署名不一致、形式不正、userまたはexpの欠落、期限切れの場合はnilを返す。
// 低レベルのデコードエラーは外へ伝播させない。
func DecodeSessionToken(token, secret string) *model.VerifiedIdentity {
	payload, ok := verifyToken(token, secret)
	if !ok {
		return nil
	}

	var claims sessionClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil
	}
	if claims.User == nil || claims.ExpiresAt == 0 {
		return nil
	}
	if time.Now().Unix() >= claims.ExpiresAt {
		return nil
	}

	return claims.User
}

// EncodeAdminToken は管理者昇格トークンを生成する。
// admintokenサブコマンドから運用者向けに発行される。
func EncodeAdminToken(secret string, ttl time.Duration) (string, error) {
	claims := adminClaims{
		Role:      AdminRole,
		ExpiresAt: time.Now().Add(ttl).Unix(),
	}
	return signClaims(claims, secret)
}

// VerifyAdminToken は管理者昇格トークンを検証する。
// 署名が正しく、role == "admin" かつ期限内の場合のみtrueを返す。
// セッショントークンとはペイロード型を分けて独立にデコードし、
// 2種類のトークンが混同されないようにしている。
func VerifyAdminToken(token, secret string) bool {
	payload, ok := verifyToken(token, secret)
	if !ok {
		return false
	}

	var claims adminClaims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return false
	}
	if claims.Role != AdminRole || claims.ExpiresAt == 0 {
		return false
	}
	return time.Now().Unix() < claims.ExpiresAt
}

// signClaims はペイロードをJSONにシリアライズし、署名付きトークン文字列を生成する。
func signClaims(claims any, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("signing secret is required")
	}

	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token payload: %w", err)
	}

	encoded := base64.RawURLEncoding.EncodeToString(payload)
	return encoded + "." + signPayload(encoded, secret), nil
}

// verifyToken はトークンの形式と署名を検証し、デコード済みペイロードを返す。
// セッショントークンと管理者トークンで共有される検証プリミティブ。
func verifyToken(token, secret string) ([]byte, bool) {
	if token == "" || secret == "" {
		return nil, false
	}

	// ペイロードと署名のちょうど2セグメントであること
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return nil, false
	}

	expected, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(parts[0]))
	if !hmac.Equal(mac.Sum(nil), expected) {
		return nil, false
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, false
	}
	return payload, true
}

// signPayload はエンコード済みペイロードのHMAC-SHA256署名をhex文字列で返す。
func signPayload(encodedPayload, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(encodedPayload))
	return hex.EncodeToString(mac.Sum(nil))
}
