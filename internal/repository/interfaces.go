// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/mangatalk/internal/model"
)

// CommentRepository はコメントデータの永続化インターフェース。
// トランザクション制御は行わず、各操作は単一の論理単位として実行される。
type CommentRepository interface {
	// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Comment, error)

	// Exists は指定IDのコメントが存在するかを返す。
	// 返信作成時の親存在チェックに使用する。
	Exists(ctx context.Context, id string) (bool, error)

	// Create はコメントを作成する。
	Create(ctx context.Context, comment *model.Comment) error

	// ListTopLevel はトップレベルコメント（parent_id IS NULL）の一覧を返す。
	// chapterIDがnilの場合はchapter_id IS NULLのシリーズ単位コメントを対象とする。
	// created_at降順でlimit件まで取得する。
	ListTopLevel(ctx context.Context, seriesID string, chapterID *string, limit int) ([]model.Comment, error)

	// ListRepliesByParents は複数の親コメントに対する直接の返信を一括取得する。
	// 親IDをキーとし、created_at昇順で親ごとにperParentLimit件までのマップを返す。
	ListRepliesByParents(ctx context.Context, parentIDs []string, perParentLimit int) (map[string][]model.Comment, error)

	// Delete は指定IDのコメントを削除する。
	// 直接の返信はON DELETE CASCADEにより一緒に削除される。
	Delete(ctx context.Context, id string) error
}
