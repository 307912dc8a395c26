package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/mangatalk/internal/middleware"
	"github.com/hitoshi/mangatalk/internal/model"
)

// --- モック定義 ---

type mockCommentService struct {
	listFn   func(ctx context.Context, seriesID string, chapterID *string) ([]model.CommentWithReplies, error)
	createFn func(ctx context.Context, sessionToken, seriesID string, chapterID *string, content string, parentID *string) (*model.Comment, error)
	deleteFn func(ctx context.Context, commentID, sessionToken, adminToken string) error
}

func (m *mockCommentService) List(ctx context.Context, seriesID string, chapterID *string) ([]model.CommentWithReplies, error) {
	if m.listFn != nil {
		return m.listFn(ctx, seriesID, chapterID)
	}
	return []model.CommentWithReplies{}, nil
}

func (m *mockCommentService) Create(ctx context.Context, sessionToken, seriesID string, chapterID *string, content string, parentID *string) (*model.Comment, error) {
	if m.createFn != nil {
		return m.createFn(ctx, sessionToken, seriesID, chapterID, content, parentID)
	}
	return nil, model.NewUnauthorizedError()
}

func (m *mockCommentService) Delete(ctx context.Context, commentID, sessionToken, adminToken string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, commentID, sessionToken, adminToken)
	}
	return nil
}

var _ CommentServiceInterface = (*mockCommentService)(nil)

func sampleComment() model.Comment {
	username := "taro"
	return model.Comment{
		ID:               "c1",
		SeriesID:         "s1",
		TelegramID:       123456789,
		TelegramUsername: &username,
		TelegramName:     "山田 太郎",
		Content:          "面白かった",
		CreatedAt:        time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
	}
}

// --- ListCommentsのテスト ---

func TestListComments_ReturnsThreads(t *testing.T) {
	var gotSeriesID string
	var gotChapterID *string
	svc := &mockCommentService{
		listFn: func(ctx context.Context, seriesID string, chapterID *string) ([]model.CommentWithReplies, error) {
			gotSeriesID = seriesID
			gotChapterID = chapterID
			return []model.CommentWithReplies{
				{Comment: sampleComment(), Replies: []model.Comment{}},
			}, nil
		},
	}
	h := NewCommentHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/comments?seriesId=s1&chapterId=ch1", nil)
	rec := httptest.NewRecorder()

	h.ListComments(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotSeriesID != "s1" {
		t.Errorf("seriesID = %q, want s1", gotSeriesID)
	}
	if gotChapterID == nil || *gotChapterID != "ch1" {
		t.Errorf("chapterID = %v, want ch1", gotChapterID)
	}

	var resp commentListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(resp.Data) != 1 {
		t.Fatalf("data length = %d, want 1", len(resp.Data))
	}
	if resp.Data[0].ID != "c1" {
		t.Errorf("comment id = %q, want c1", resp.Data[0].ID)
	}
	if resp.Data[0].Replies == nil {
		t.Error("replies must be an empty array, not null")
	}
}

// chapterIdを省略するとシリーズ単位の一覧になる。
func TestListComments_WithoutChapterID(t *testing.T) {
	var gotChapterID *string
	svc := &mockCommentService{
		listFn: func(ctx context.Context, seriesID string, chapterID *string) ([]model.CommentWithReplies, error) {
			gotChapterID = chapterID
			return []model.CommentWithReplies{}, nil
		},
	}
	h := NewCommentHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/comments?seriesId=s1", nil)
	rec := httptest.NewRecorder()

	h.ListComments(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotChapterID != nil {
		t.Errorf("chapterID = %v, want nil", gotChapterID)
	}
}

func TestListComments_MissingSeriesID_Returns400(t *testing.T) {
	h := NewCommentHandler(&mockCommentService{})

	req := httptest.NewRequest(http.MethodGet, "/api/comments", nil)
	rec := httptest.NewRecorder()

	h.ListComments(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestListComments_StorageFailure_Returns500(t *testing.T) {
	svc := &mockCommentService{
		listFn: func(ctx context.Context, seriesID string, chapterID *string) ([]model.CommentWithReplies, error) {
			return nil, model.NewStorageFailureError()
		},
	}
	h := NewCommentHandler(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/comments?seriesId=s1", nil)
	rec := httptest.NewRecorder()

	h.ListComments(rec, req)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

// --- CreateCommentのテスト ---

func TestCreateComment_Returns201WithComment(t *testing.T) {
	var gotToken, gotContent string
	svc := &mockCommentService{
		createFn: func(ctx context.Context, sessionToken, seriesID string, chapterID *string, content string, parentID *string) (*model.Comment, error) {
			gotToken = sessionToken
			gotContent = content
			c := sampleComment()
			return &c, nil
		},
	}
	h := NewCommentHandler(svc)

	body := `{"seriesId":"s1","content":"面白かった"}`
	req := httptest.NewRequest(http.MethodPost, "/api/comments", strings.NewReader(body))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-token"})
	rec := httptest.NewRecorder()

	h.CreateComment(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201", rec.Code)
	}
	if gotToken != "session-token" {
		t.Errorf("session token = %q, want session-token", gotToken)
	}
	if gotContent != "面白かった" {
		t.Errorf("content = %q, want 面白かった", gotContent)
	}

	var resp map[string]commentResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if resp["data"].ID != "c1" {
		t.Errorf("data.id = %q, want c1", resp["data"].ID)
	}
}

func TestCreateComment_InvalidJSON_Returns400(t *testing.T) {
	h := NewCommentHandler(&mockCommentService{})

	req := httptest.NewRequest(http.MethodPost, "/api/comments", strings.NewReader("{broken"))
	rec := httptest.NewRecorder()

	h.CreateComment(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestCreateComment_ServiceErrors_MappedToStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        *model.APIError
		wantStatus int
	}{
		{name: "未認証", err: model.NewUnauthorizedError(), wantStatus: http.StatusUnauthorized},
		{name: "レート制限", err: model.NewRateLimitedError(), wantStatus: http.StatusTooManyRequests},
		{name: "入力不正", err: model.NewInvalidInputError("empty"), wantStatus: http.StatusBadRequest},
		{name: "返信先未検出", err: model.NewParentNotFoundError("p1"), wantStatus: http.StatusNotFound},
		{name: "永続化失敗", err: model.NewStorageFailureError(), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCommentService{
				createFn: func(ctx context.Context, sessionToken, seriesID string, chapterID *string, content string, parentID *string) (*model.Comment, error) {
					return nil, tt.err
				},
			}
			h := NewCommentHandler(svc)

			req := httptest.NewRequest(http.MethodPost, "/api/comments",
				strings.NewReader(`{"seriesId":"s1","content":"x"}`))
			rec := httptest.NewRecorder()

			h.CreateComment(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

// --- DeleteCommentのテスト ---

func TestDeleteComment_PassesBothTokens(t *testing.T) {
	var gotCommentID, gotSession, gotAdmin string
	svc := &mockCommentService{
		deleteFn: func(ctx context.Context, commentID, sessionToken, adminToken string) error {
			gotCommentID = commentID
			gotSession = sessionToken
			gotAdmin = adminToken
			return nil
		},
	}
	h := NewCommentHandler(svc)

	req := httptest.NewRequest(http.MethodDelete, "/api/comments",
		strings.NewReader(`{"commentId":"c1"}`))
	req.AddCookie(&http.Cookie{Name: middleware.SessionCookieName, Value: "session-token"})
	req.Header.Set("Authorization", "Bearer admin-token")
	rec := httptest.NewRecorder()

	h.DeleteComment(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotCommentID != "c1" {
		t.Errorf("commentID = %q, want c1", gotCommentID)
	}
	if gotSession != "session-token" {
		t.Errorf("sessionToken = %q, want session-token", gotSession)
	}
	if gotAdmin != "admin-token" {
		t.Errorf("adminToken = %q, want admin-token", gotAdmin)
	}

	var resp map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if !resp["success"] {
		t.Error("success = false, want true")
	}
}

func TestDeleteComment_ServiceErrors_MappedToStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        *model.APIError
		wantStatus int
	}{
		{name: "未認証", err: model.NewUnauthorizedError(), wantStatus: http.StatusUnauthorized},
		{name: "権限不足", err: model.NewForbiddenError(), wantStatus: http.StatusForbidden},
		{name: "コメント未検出", err: model.NewCommentNotFoundError("c1"), wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCommentService{
				deleteFn: func(ctx context.Context, commentID, sessionToken, adminToken string) error {
					return tt.err
				},
			}
			h := NewCommentHandler(svc)

			req := httptest.NewRequest(http.MethodDelete, "/api/comments",
				strings.NewReader(`{"commentId":"c1"}`))
			rec := httptest.NewRecorder()

			h.DeleteComment(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

// --- ヘルパーのテスト ---

func TestBearerTokenFromRequest(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{name: "Bearer形式", header: "Bearer my-token", want: "my-token"},
		{name: "ヘッダー無し", header: "", want: ""},
		{name: "Bearer以外の形式", header: "Basic dXNlcjpwYXNz", want: ""},
		{name: "プレフィックスのみ", header: "Bearer ", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodDelete, "/api/comments", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			if got := bearerTokenFromRequest(req); got != tt.want {
				t.Errorf("bearerTokenFromRequest() = %q, want %q", got, tt.want)
			}
		})
	}
}

// 予期しないエラー型は500に変換される。
func TestHandleServiceError_UnknownError_Returns500(t *testing.T) {
	rec := httptest.NewRecorder()

	handleServiceError(rec, context.DeadlineExceeded)

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
