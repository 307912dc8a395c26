package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/mangatalk/internal/model"
)

// CommentServiceInterface はコメントハンドラーが必要とするサービスインターフェース。
type CommentServiceInterface interface {
	// List はトップレベルコメントの一覧を直接の返信付きで返す。
	List(ctx context.Context, seriesID string, chapterID *string) ([]model.CommentWithReplies, error)
	// Create は新規コメントを投稿する。
	Create(ctx context.Context, sessionToken, seriesID string, chapterID *string, content string, parentID *string) (*model.Comment, error)
	// Delete はコメントを削除する。所有者または管理者のみ許可される。
	Delete(ctx context.Context, commentID, sessionToken, adminToken string) error
}

// CommentHandler はコメント管理のHTTPハンドラー。
type CommentHandler struct {
	service CommentServiceInterface
}

// NewCommentHandler はCommentHandlerを生成する。
func NewCommentHandler(service CommentServiceInterface) *CommentHandler {
	return &CommentHandler{service: service}
}

// --- リクエスト・レスポンス型 ---

// commentResponse はコメント1件のAPIレスポンス。
type commentResponse struct {
	ID               string    `json:"id"`
	SeriesID         string    `json:"series_id"`
	ChapterID        *string   `json:"chapter_id"`
	TelegramID       int64     `json:"telegram_id"`
	TelegramUsername *string   `json:"telegram_username"`
	TelegramName     string    `json:"telegram_name"`
	Content          string    `json:"content"`
	CreatedAt        time.Time `json:"created_at"`
	ParentID         *string   `json:"parent_id"`
}

// commentWithRepliesResponse はトップレベルコメントと直接の返信のレスポンス。
type commentWithRepliesResponse struct {
	commentResponse
	Replies []commentResponse `json:"replies"`
}

// commentListResponse はコメント一覧のレスポンス。
type commentListResponse struct {
	Data []commentWithRepliesResponse `json:"data"`
}

// createCommentRequest はコメント投稿リクエストのボディ。
type createCommentRequest struct {
	SeriesID  string  `json:"seriesId"`
	ChapterID *string `json:"chapterId,omitempty"`
	Content   string  `json:"content"`
	ParentID  *string `json:"parentId,omitempty"`
}

// deleteCommentRequest はコメント削除リクエストのボディ。
type deleteCommentRequest struct {
	CommentID string `json:"commentId"`
}

// ListComments はコメント一覧を取得する。認証不要。
// GET /api/comments?seriesId=xxx&chapterId=yyy
func (h *CommentHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	seriesID := r.URL.Query().Get("seriesId")
	if seriesID == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidInputError("seriesIdは必須です"))
		return
	}

	var chapterID *string
	if v := r.URL.Query().Get("chapterId"); v != "" {
		chapterID = &v
	}

	comments, err := h.service.List(r.Context(), seriesID, chapterID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	data := make([]commentWithRepliesResponse, len(comments))
	for i, c := range comments {
		data[i] = toCommentWithRepliesResponse(c)
	}

	writeJSON(w, http.StatusOK, commentListResponse{Data: data})
}

// CreateComment はコメントを投稿する。セッションCookieが必要。
// POST /api/comments
func (h *CommentHandler) CreateComment(w http.ResponseWriter, r *http.Request) {
	var req createCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidInputError("リクエストボディのJSONが不正です"))
		return
	}

	comment, err := h.service.Create(
		r.Context(),
		sessionTokenFromRequest(r),
		req.SeriesID,
		req.ChapterID,
		req.Content,
		req.ParentID,
	)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]commentResponse{
		"data": toCommentResponse(*comment),
	})
}

// DeleteComment はコメントを削除する。
// セッションCookie（所有者）またはBearer管理者トークンのいずれかが必要。
// DELETE /api/comments
func (h *CommentHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	var req deleteCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest,
			model.NewInvalidInputError("リクエストボディのJSONが不正です"))
		return
	}

	err := h.service.Delete(
		r.Context(),
		req.CommentID,
		sessionTokenFromRequest(r),
		bearerTokenFromRequest(r),
	)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// --- ヘルパー関数 ---

// bearerTokenFromRequest はAuthorizationヘッダーからBearerトークンを取り出す。
// ヘッダーが無い・形式が異なる場合は空文字列を返す。
func bearerTokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found {
		return ""
	}
	return token
}

// toCommentResponse はmodel.CommentからAPIレスポンスに変換する。
func toCommentResponse(c model.Comment) commentResponse {
	return commentResponse{
		ID:               c.ID,
		SeriesID:         c.SeriesID,
		ChapterID:        c.ChapterID,
		TelegramID:       c.TelegramID,
		TelegramUsername: c.TelegramUsername,
		TelegramName:     c.TelegramName,
		Content:          c.Content,
		CreatedAt:        c.CreatedAt,
		ParentID:         c.ParentID,
	}
}

// toCommentWithRepliesResponse は返信付きコメントをAPIレスポンスに変換する。
func toCommentWithRepliesResponse(c model.CommentWithReplies) commentWithRepliesResponse {
	replies := make([]commentResponse, len(c.Replies))
	for i, reply := range c.Replies {
		replies[i] = toCommentResponse(reply)
	}
	return commentWithRepliesResponse{
		commentResponse: toCommentResponse(c.Comment),
		Replies:         replies,
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Error:    apiErr.Message,
		Code:     apiErr.Code,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// apiErrorResponse はAPIエラーレスポンスのボディ。
type apiErrorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		writeAPIErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case model.ErrCodeAuthExpired, model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeCommentNotFound, model.ErrCodeParentNotFound:
		return http.StatusNotFound
	case model.ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case model.ErrCodeMisconfigured, model.ErrCodeStorageFailure:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
