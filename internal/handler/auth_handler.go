// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/mangatalk/internal/middleware"
	"github.com/hitoshi/mangatalk/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Login はTelegramログインクレームを検証し、セッショントークンを発行する。
	Login(data *model.TelegramAuthData) (*model.VerifiedIdentity, string, error)
	// Resolve はセッショントークンから検証済みユーザー情報を取り出す。
	Resolve(token string) *model.VerifiedIdentity
	// Logout はログアウトを記録する（ステートレスのためサーバー側の破棄はない）。
	Logout(telegramID int64)
}

// AuthHandlerConfig は認証ハンドラーの設定。
type AuthHandlerConfig struct {
	CookieDomain  string
	CookieSecure  bool
	SessionMaxAge int // セッションCookieの有効期間（秒）
}

// AuthHandler はTelegramログイン関連のHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	config  AuthHandlerConfig
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, config AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{
		service: service,
		config:  config,
	}
}

// loginResponse はログイン成功レスポンス。
type loginResponse struct {
	Success bool                    `json:"success"`
	User    *model.VerifiedIdentity `json:"user"`
}

// sessionResponse はセッション確認レスポンス。
type sessionResponse struct {
	Authenticated bool                    `json:"authenticated"`
	User          *model.VerifiedIdentity `json:"user,omitempty"`
}

// Login はTelegramログインウィジェットからのクレームを受け付ける。
// POST /auth/telegram
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var data model.TelegramAuthData
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidInputError("リクエストボディのJSONが不正です"))
		return
	}

	identity, token, err := h.service.Login(&data)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// セッションCookieを設定（HTTP Only）
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   h.config.SessionMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, loginResponse{
		Success: true,
		User:    identity,
	})
}

// Session は現在のセッション状態を返す。
// GET /auth/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil || cookie.Value == "" {
		writeJSON(w, http.StatusUnauthorized, sessionResponse{Authenticated: false})
		return
	}

	identity := h.service.Resolve(cookie.Value)
	if identity == nil {
		writeJSON(w, http.StatusUnauthorized, sessionResponse{Authenticated: false})
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		Authenticated: true,
		User:          identity,
	})
}

// Logout はセッションCookieをクリアする。
// トークン自体は失効まで有効なままである（受容済みのトレードオフ）。
// POST /auth/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(middleware.SessionCookieName); err == nil && cookie.Value != "" {
		if identity := h.service.Resolve(cookie.Value); identity != nil {
			h.service.Logout(identity.TelegramID)
		}
	}

	// セッションCookieをクリア（Max-Age=0）
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookieName,
		Value:    "",
		Path:     "/",
		Domain:   h.config.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// sessionTokenFromRequest はリクエストのCookieからセッショントークンを取り出す。
// Cookieが無い場合は空文字列を返す。
func sessionTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(middleware.SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
