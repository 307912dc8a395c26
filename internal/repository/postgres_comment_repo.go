package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/mangatalk/internal/model"
)

// commentColumns はコメント取得クエリで選択するカラム。
const commentColumns = `id, series_id, chapter_id, telegram_id, telegram_username, telegram_name, content, created_at, parent_id`

// PostgresCommentRepo はPostgreSQLを使用したコメントリポジトリ。
type PostgresCommentRepo struct {
	db *sql.DB
}

// NewPostgresCommentRepo はPostgresCommentRepoを生成する。
func NewPostgresCommentRepo(db *sql.DB) *PostgresCommentRepo {
	return &PostgresCommentRepo{db: db}
}

// FindByID は指定IDのコメントを取得する。見つからない場合はnilを返す。
func (r *PostgresCommentRepo) FindByID(ctx context.Context, id string) (*model.Comment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE id = $1`,
		id,
	)

	c, err := scanComment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find comment by ID: %w", err)
	}

	return c, nil
}

// Exists は指定IDのコメントが存在するかを返す。
func (r *PostgresCommentRepo) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM comments WHERE id = $1)`,
		id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check comment existence: %w", err)
	}
	return exists, nil
}

// Create はコメントを作成する。
func (r *PostgresCommentRepo) Create(ctx context.Context, comment *model.Comment) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO comments (id, series_id, chapter_id, telegram_id, telegram_username, telegram_name, content, created_at, parent_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		comment.ID,
		comment.SeriesID,
		comment.ChapterID,
		comment.TelegramID,
		comment.TelegramUsername,
		comment.TelegramName,
		comment.Content,
		comment.CreatedAt,
		comment.ParentID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert comment: %w", err)
	}
	return nil
}

// ListTopLevel はトップレベルコメントの一覧をcreated_at降順で返す。
func (r *PostgresCommentRepo) ListTopLevel(ctx context.Context, seriesID string, chapterID *string, limit int) ([]model.Comment, error) {
	var (
		rows *sql.Rows
		err  error
	)

	if chapterID != nil {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+commentColumns+`
			 FROM comments
			 WHERE series_id = $1 AND chapter_id = $2 AND parent_id IS NULL
			 ORDER BY created_at DESC
			 LIMIT $3`,
			seriesID, *chapterID, limit,
		)
	} else {
		rows, err = r.db.QueryContext(ctx,
			`SELECT `+commentColumns+`
			 FROM comments
			 WHERE series_id = $1 AND chapter_id IS NULL AND parent_id IS NULL
			 ORDER BY created_at DESC
			 LIMIT $2`,
			seriesID, limit,
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list top-level comments: %w", err)
	}
	defer rows.Close()

	return collectComments(rows)
}

// ListRepliesByParents は複数の親コメントに対する直接の返信を一括取得する。
// ウィンドウ関数で親ごとにperParentLimit件へ絞り込み、N+1クエリを避ける。
func (r *PostgresCommentRepo) ListRepliesByParents(ctx context.Context, parentIDs []string, perParentLimit int) (map[string][]model.Comment, error) {
	result := make(map[string][]model.Comment)
	if len(parentIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM (
			SELECT `+commentColumns+`,
			       ROW_NUMBER() OVER (PARTITION BY parent_id ORDER BY created_at ASC) AS rn
			FROM comments
			WHERE parent_id = ANY($1)
		 ) ranked
		 WHERE rn <= $2
		 ORDER BY parent_id, created_at ASC`,
		pq.Array(parentIDs), perParentLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list replies: %w", err)
	}
	defer rows.Close()

	replies, err := collectComments(rows)
	if err != nil {
		return nil, err
	}

	for _, reply := range replies {
		if reply.ParentID == nil {
			continue
		}
		result[*reply.ParentID] = append(result[*reply.ParentID], reply)
	}
	return result, nil
}

// Delete は指定IDのコメントを削除する。
// 直接の返信はスキーマのON DELETE CASCADEで一緒に削除される。
func (r *PostgresCommentRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM comments WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("comment not found: %s", id)
	}
	return nil
}

// rowScanner はsql.Rowとsql.Rowsの両方を受けるための最小インターフェース。
type rowScanner interface {
	Scan(dest ...any) error
}

// scanComment は1行をmodel.Commentにスキャンする。
func scanComment(row rowScanner) (*model.Comment, error) {
	c := &model.Comment{}
	var (
		chapterID        sql.NullString
		telegramUsername sql.NullString
		parentID         sql.NullString
	)

	err := row.Scan(
		&c.ID,
		&c.SeriesID,
		&chapterID,
		&c.TelegramID,
		&telegramUsername,
		&c.TelegramName,
		&c.Content,
		&c.CreatedAt,
		&parentID,
	)
	if err != nil {
		return nil, err
	}

	if chapterID.Valid {
		c.ChapterID = &chapterID.String
	}
	if telegramUsername.Valid {
		c.TelegramUsername = &telegramUsername.String
	}
	if parentID.Valid {
		c.ParentID = &parentID.String
	}
	return c, nil
}

// collectComments は全行をスキャンしてスライスに集める。
func collectComments(rows *sql.Rows) ([]model.Comment, error) {
	var comments []model.Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate comments: %w", err)
	}
	return comments, nil
}

// compile-time interface check
var _ CommentRepository = (*PostgresCommentRepo)(nil)
