// Package comment はコメントの読み書きとその認可判断を提供する。
package comment

import (
	"sync"
	"time"
)

// FixedWindowConfig は投稿レート制限の設定を保持する。
type FixedWindowConfig struct {
	Limit           int           // 1ウィンドウあたりの許容投稿数
	Window          time.Duration // ウィンドウ長
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔
}

// DefaultFixedWindowConfig はデフォルトの投稿レート制限設定を返す。
// 要件: ユーザーごとに1分あたり5コメントまで
func DefaultFixedWindowConfig() FixedWindowConfig {
	return FixedWindowConfig{
		Limit:           5,
		Window:          time.Minute,
		CleanupInterval: 5 * time.Minute,
	}
}

// rateLimitEntry はユーザーごとの投稿カウントとウィンドウ失効時刻を保持する。
// countとwindowResetAtは必ず同一ロック下で一緒に更新する。
type rateLimitEntry struct {
	count         int
	windowResetAt time.Time
}

// FixedWindowLimiter はtelegram_idごとの固定ウィンドウレート制限を管理する。
// ウィンドウ境界では最大2倍の投稿が通過しうる近似的なリミッターであり、
// 悪用緩和が目的で厳密な計数は保証しない。
// 状態はプロセスローカルで、再起動でリセットされる。
// グローバル変数は持たず、コンストラクタ経由で注入して使用する。
type FixedWindowLimiter struct {
	config FixedWindowConfig

	mu      sync.Mutex
	entries map[int64]*rateLimitEntry

	stopCh chan struct{}
}

// NewFixedWindowLimiter は新しいFixedWindowLimiterを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewFixedWindowLimiter(config FixedWindowConfig) *FixedWindowLimiter {
	l := &FixedWindowLimiter{
		config:  config,
		entries: make(map[int64]*rateLimitEntry),
		stopCh:  make(chan struct{}),
	}

	go l.cleanupLoop()

	return l
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (l *FixedWindowLimiter) Stop() {
	close(l.stopCh)
}

// Allow は指定ユーザーの投稿を許可するかを判定する（副作用あり）。
// 初回またはウィンドウ経過後はカウント1で新しいウィンドウを開始して許可する。
// ウィンドウ内でカウントが上限未満なら加算して許可、上限到達済みなら拒否する。
func (l *FixedWindowLimiter) Allow(telegramID int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	e, exists := l.entries[telegramID]
	if !exists || now.After(e.windowResetAt) {
		// エントリはインクリメントではなく置き換える
		l.entries[telegramID] = &rateLimitEntry{
			count:         1,
			windowResetAt: now.Add(l.config.Window),
		}
		return true
	}

	if e.count >= l.config.Limit {
		return false
	}

	e.count++
	return true
}

// EntryCount は現在管理されているエントリ数を返す。
// テストおよびメトリクス用。
func (l *FixedWindowLimiter) EntryCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (l *FixedWindowLimiter) cleanupLoop() {
	ticker := time.NewTicker(l.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.cleanup()
		case <-l.stopCh:
			return
		}
	}
}

// cleanup はウィンドウ失効からCleanupInterval以上経過したエントリを削除する。
func (l *FixedWindowLimiter) cleanup() {
	now := time.Now()

	l.mu.Lock()
	for id, e := range l.entries {
		if now.Sub(e.windowResetAt) > l.config.CleanupInterval {
			delete(l.entries, id)
		}
	}
	l.mu.Unlock()
}
