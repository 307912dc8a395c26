// Package model はドメインモデルを定義する。
package model

import "time"

// Comment はシリーズまたはチャプターに対するコメントを表す。
// ChapterIDがnilの場合はシリーズ単位のコメント。
// ParentIDが非nilの場合は既存コメントへの返信で、
// 親コメント削除時にはストレージ層のCASCADEで一緒に削除される。
type Comment struct {
	ID               string
	SeriesID         string
	ChapterID        *string
	TelegramID       int64
	TelegramUsername *string
	TelegramName     string
	Content          string // サニタイズ済みテキスト（最大2000文字）
	CreatedAt        time.Time
	ParentID         *string
}

// CommentWithReplies はトップレベルコメントと直接の返信を結合したモデル。
// 読み取りAPIは1段のネストのみを具現化する。
// 返信の返信は保存はされるがこの形では返却されない。
type CommentWithReplies struct {
	Comment
	Replies []Comment
}
