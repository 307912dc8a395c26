// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, comment, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidInput    = "INVALID_INPUT"
	ErrCodeAuthExpired     = "AUTH_EXPIRED"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeCommentNotFound = "COMMENT_NOT_FOUND"
	ErrCodeParentNotFound  = "PARENT_NOT_FOUND"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeMisconfigured   = "MISCONFIGURED"
	ErrCodeStorageFailure  = "STORAGE_FAILURE"
)

// NewInvalidInputError は入力不正エラーを生成する。
func NewInvalidInputError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidInput,
		Message:  fmt.Sprintf("入力が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewAuthExpiredError は認証データの期限切れエラーを生成する。
// auth_dateが許容ウィンドウ外の場合に返される。
func NewAuthExpiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAuthExpired,
		Message:  "認証データの有効期限が切れています。",
		Category: "auth",
		Action:   "もう一度Telegramログインをやり直してください。",
	}
}

// NewUnauthorizedError は未認証エラーを生成する。
// 署名不一致、トークン不正・期限切れ、Cookie欠落のすべてを包含する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "Telegramログインを行ってください。",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
// 認証済みだが対象操作が許可されていない場合に返される。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "自分のコメント以外は削除できません。",
		Category: "auth",
		Action:   "削除できるのは自分が投稿したコメントのみです。",
	}
}

// NewCommentNotFoundError はコメント未検出エラーを生成する。
func NewCommentNotFoundError(commentID string) *APIError {
	return &APIError{
		Code:     ErrCodeCommentNotFound,
		Message:  fmt.Sprintf("指定されたコメントが見つかりません: %s", commentID),
		Category: "comment",
		Action:   "コメントIDを確認してください。",
	}
}

// NewParentNotFoundError は返信先コメント未検出エラーを生成する。
func NewParentNotFoundError(parentID string) *APIError {
	return &APIError{
		Code:     ErrCodeParentNotFound,
		Message:  fmt.Sprintf("返信先のコメントが見つかりません: %s", parentID),
		Category: "comment",
		Action:   "返信先のコメントは削除された可能性があります。ページを再読み込みしてください。",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "投稿間隔が短すぎます。",
		Category: "system",
		Action:   "しばらく待ってから再度投稿してください。",
	}
}

// NewMisconfiguredError はサーバー設定不備エラーを生成する。
// シークレットが未設定の場合に返される。詳細はログのみに記録する。
func NewMisconfiguredError() *APIError {
	return &APIError{
		Code:     ErrCodeMisconfigured,
		Message:  "サーバーの設定に問題があります。",
		Category: "system",
		Action:   "管理者に連絡してください。",
	}
}

// NewStorageFailureError は永続化層のエラーを生成する。
// リトライは行わず呼び出し側へそのまま返す。
func NewStorageFailureError() *APIError {
	return &APIError{
		Code:     ErrCodeStorageFailure,
		Message:  "データベース処理に失敗しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}
