package handler

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/mangatalk/internal/model"
	"github.com/hitoshi/mangatalk/internal/security"
)

// AvatarHandler はTelegramアバター画像のプロキシハンドラー。
// フロントエンドがphoto_urlを直接参照するとリファラ漏洩や
// 混在コンテンツの問題があるため、サーバー側で取得して返す。
// プロキシ先はSSRFガードによりTelegramの配信ホストに限定される。
type AvatarHandler struct {
	guard   security.AvatarURLGuardService
	client  *http.Client
	maxSize int64
}

// NewAvatarHandler はAvatarHandlerを生成する。
// HTTPクライアントはSSRF防止機能付きのものをガードから生成する。
func NewAvatarHandler(guard security.AvatarURLGuardService, timeout time.Duration, maxSize int64) *AvatarHandler {
	return &AvatarHandler{
		guard:   guard,
		client:  guard.NewSafeClient(timeout),
		maxSize: maxSize,
	}
}

// GetAvatar はアバター画像を取得して返す。
// GET /api/avatar?url=https://t.me/i/userpic/...
func (h *AvatarHandler) GetAvatar(w http.ResponseWriter, r *http.Request) {
	rawURL := r.URL.Query().Get("url")
	if rawURL == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidInputError("urlは必須です"))
		return
	}

	if err := h.guard.ValidateURL(rawURL); err != nil {
		slog.Warn("avatar URL rejected",
			slog.String("url", rawURL),
			slog.String("error", err.Error()),
		)
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidInputError("許可されていないアバターURLです"))
		return
	}

	resp, err := h.client.Get(rawURL)
	if err != nil {
		slog.Warn("avatar fetch failed", slog.String("error", err.Error()))
		writeAPIErrorResponse(w, http.StatusBadGateway, &model.APIError{
			Code:     "AVATAR_FETCH_FAILED",
			Message:  "アバター画像の取得に失敗しました。",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		})
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		writeAPIErrorResponse(w, http.StatusBadGateway, &model.APIError{
			Code:     "AVATAR_FETCH_FAILED",
			Message:  "アバター画像の取得に失敗しました。",
			Category: "system",
			Action:   "しばらく待ってから再度お試しください。",
		})
		return
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "public, max-age=86400")

	// 巨大レスポンスの転送を防ぐためサイズを制限する
	if _, err := io.Copy(w, io.LimitReader(resp.Body, h.maxSize)); err != nil {
		slog.Warn("avatar copy failed", slog.String("error", err.Error()))
	}
}
