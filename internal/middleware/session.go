// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"

	"github.com/hitoshi/mangatalk/internal/model"
)

// SessionCookieName はセッショントークンを保持するCookie名。
const SessionCookieName = "tg_auth"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// identityContextKey はリクエストコンテキストに検証済みユーザー情報を格納するためのキー。
var identityContextKey = contextKey("verified_identity")

// SessionResolver はセッショントークンの検証に必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type SessionResolver interface {
	Resolve(token string) *model.VerifiedIdentity
}

// NewSessionMiddleware はHTTP Only Cookieからセッショントークンを読み取り、
// 署名を検証して検証済みユーザー情報をリクエストコンテキストに注入する
// ミドルウェアを返す。
// セッションはステートレスなためサーバー側の照会は発生しない。
// Cookieが無い・無効な場合でもリクエストは拒否しない。
// コメント一覧は認証不要であり、書き込み操作の認可判断は
// サービス層がトークンから直接行うため、ここでは注釈のみを行う。
func NewSessionMiddleware(resolver SessionResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			identity := resolver.Resolve(cookie.Value)
			if identity == nil {
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), identityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext はリクエストコンテキストから検証済みユーザー情報を取得する。
// セッションミドルウェアを通過した認証済みリクエストでのみ有効。
func IdentityFromContext(ctx context.Context) (*model.VerifiedIdentity, error) {
	identity, ok := ctx.Value(identityContextKey).(*model.VerifiedIdentity)
	if !ok || identity == nil {
		return nil, fmt.Errorf("verified identity not found in context")
	}
	return identity, nil
}

// ContextWithIdentity はコンテキストに検証済みユーザー情報を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, identity *model.VerifiedIdentity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}
