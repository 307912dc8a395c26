package comment

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/mangatalk/internal/model"
	"github.com/hitoshi/mangatalk/internal/repository"
)

// 一覧取得の上限件数。
const (
	maxTopLevelComments = 100 // トップレベルコメントの最大取得数
	maxRepliesPerParent = 50  // 親コメント1件あたりの返信の最大取得数
)

// TokenVerifier はコメント操作の呼び出し元特定に必要なインターフェース。
// auth.Serviceの部分集合として定義する。
type TokenVerifier interface {
	// Resolve はセッショントークンから検証済みユーザー情報を取り出す。
	// 無効なトークンの場合はnilを返す。
	Resolve(token string) *model.VerifiedIdentity
	// IsAdmin は管理者昇格トークンを検証する。
	IsAdmin(token string) bool
}

// RateLimiter は投稿頻度制限のインターフェース。
type RateLimiter interface {
	Allow(telegramID int64) bool
}

// ContentSanitizer はコメント本文サニタイズのインターフェース。
// security.ContentSanitizerServiceの部分集合として定義する。
type ContentSanitizer interface {
	Sanitize(raw string) string
}

// MetricsRecorder はコメント操作の記録に必要なインターフェース。
// metrics.Collectorの部分集合として定義する。
type MetricsRecorder interface {
	RecordCommentCreated()
	RecordCommentDeleted(byAdmin bool)
	RecordRateLimited()
}

// Service はコメントのCRUD、スレッド構成、削除認可を提供する。
type Service struct {
	repo      repository.CommentRepository
	tokens    TokenVerifier
	limiter   RateLimiter
	sanitizer ContentSanitizer
	metrics   MetricsRecorder
}

// NewService はServiceを生成する。
func NewService(
	repo repository.CommentRepository,
	tokens TokenVerifier,
	limiter RateLimiter,
	sanitizer ContentSanitizer,
	metrics MetricsRecorder,
) *Service {
	return &Service{
		repo:      repo,
		tokens:    tokens,
		limiter:   limiter,
		sanitizer: sanitizer,
		metrics:   metrics,
	}
}

// List はトップレベルコメントの一覧を直接の返信付きで返す。認証不要。
// chapterIDがnilの場合はシリーズ単位のコメントを対象とする。
// トップレベルはcreated_at降順で最大100件、返信は昇順で親ごとに最大50件。
func (s *Service) List(ctx context.Context, seriesID string, chapterID *string) ([]model.CommentWithReplies, error) {
	if seriesID == "" {
		return nil, model.NewInvalidInputError("seriesIdは必須です")
	}

	parents, err := s.repo.ListTopLevel(ctx, seriesID, chapterID, maxTopLevelComments)
	if err != nil {
		slog.Error("failed to list comments", slog.String("error", err.Error()))
		return nil, model.NewStorageFailureError()
	}

	if len(parents) == 0 {
		return []model.CommentWithReplies{}, nil
	}

	parentIDs := make([]string, len(parents))
	for i, p := range parents {
		parentIDs[i] = p.ID
	}

	replies, err := s.repo.ListRepliesByParents(ctx, parentIDs, maxRepliesPerParent)
	if err != nil {
		slog.Error("failed to list replies", slog.String("error", err.Error()))
		return nil, model.NewStorageFailureError()
	}

	result := make([]model.CommentWithReplies, len(parents))
	for i, p := range parents {
		result[i] = model.CommentWithReplies{
			Comment: p,
			Replies: replies[p.ID],
		}
	}
	return result, nil
}

// Create は新規コメントを投稿する。
// 処理順: 呼び出し元の特定 → レート制限 → 入力検証 → サニタイズ →
// 返信先の存在確認 → 永続化。
func (s *Service) Create(ctx context.Context, sessionToken, seriesID string, chapterID *string, content string, parentID *string) (*model.Comment, error) {
	identity := s.tokens.Resolve(sessionToken)
	if identity == nil {
		return nil, model.NewUnauthorizedError()
	}

	if !s.limiter.Allow(identity.TelegramID) {
		slog.Warn("comment rate limit exceeded",
			slog.Int64("telegram_id", identity.TelegramID),
		)
		s.metrics.RecordRateLimited()
		return nil, model.NewRateLimitedError()
	}

	if seriesID == "" {
		return nil, model.NewInvalidInputError("seriesIdは必須です")
	}

	sanitized := s.sanitizer.Sanitize(content)
	if sanitized == "" {
		return nil, model.NewInvalidInputError("コメント本文が空です")
	}

	// 返信の場合は親コメントの存在を挿入前に確認する。
	// 返信への返信も受け付ける（一覧では1段のみ具現化される）。
	if parentID != nil {
		exists, err := s.repo.Exists(ctx, *parentID)
		if err != nil {
			slog.Error("failed to check parent comment", slog.String("error", err.Error()))
			return nil, model.NewStorageFailureError()
		}
		if !exists {
			return nil, model.NewParentNotFoundError(*parentID)
		}
	}

	c := &model.Comment{
		ID:           uuid.New().String(),
		SeriesID:     seriesID,
		ChapterID:    chapterID,
		TelegramID:   identity.TelegramID,
		TelegramName: identity.TelegramName,
		Content:      sanitized,
		CreatedAt:    time.Now(),
		ParentID:     parentID,
	}
	if identity.TelegramUsername != "" {
		username := identity.TelegramUsername
		c.TelegramUsername = &username
	}

	if err := s.repo.Create(ctx, c); err != nil {
		slog.Error("failed to create comment", slog.String("error", err.Error()))
		return nil, model.NewStorageFailureError()
	}

	slog.Info("comment created",
		slog.String("comment_id", c.ID),
		slog.String("series_id", c.SeriesID),
		slog.Int64("telegram_id", c.TelegramID),
	)
	s.metrics.RecordCommentCreated()

	return c, nil
}

// Delete はコメントを削除する。
// 所有者トークンと管理者トークンは独立に検証し、どちらか一方の成功で
// 削除を許可する（排他的ORではない）。不正な管理者トークンは
// リクエストを中断させず、所有者チェックへフォールスルーする。
// ストレージ層のCASCADEにより直接の返信も一緒に削除される。
func (s *Service) Delete(ctx context.Context, commentID, sessionToken, adminToken string) error {
	if sessionToken == "" && adminToken == "" {
		return model.NewUnauthorizedError()
	}
	if commentID == "" {
		return model.NewInvalidInputError("commentIdは必須です")
	}

	c, err := s.repo.FindByID(ctx, commentID)
	if err != nil {
		slog.Error("failed to find comment", slog.String("error", err.Error()))
		return model.NewStorageFailureError()
	}
	if c == nil {
		return model.NewCommentNotFoundError(commentID)
	}

	isAdmin := adminToken != "" && s.tokens.IsAdmin(adminToken)

	isOwner := false
	if identity := s.tokens.Resolve(sessionToken); identity != nil {
		isOwner = identity.TelegramID == c.TelegramID
	}

	if !isAdmin && !isOwner {
		return model.NewForbiddenError()
	}

	if err := s.repo.Delete(ctx, commentID); err != nil {
		slog.Error("failed to delete comment", slog.String("error", err.Error()))
		return model.NewStorageFailureError()
	}

	slog.Info("comment deleted",
		slog.String("comment_id", commentID),
		slog.Bool("by_admin", isAdmin && !isOwner),
	)
	s.metrics.RecordCommentDeleted(isAdmin && !isOwner)

	return nil
}
