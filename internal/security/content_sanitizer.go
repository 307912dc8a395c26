// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizer はユーザー投稿コメントの本文をサニタイズし、
// XSS攻撃などのセキュリティリスクから閲覧者を保護する。
// コメントはプレーンテキストとして扱うため、許可リスト方式ではなく
// HTML上意味を持つ5文字を実体参照へエスケープする方式を採用する。
// 表示名はbluemondayのStrictPolicyでマークアップを完全に除去する。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// MaxContentLength はサニタイズ後のコメント本文の最大文字数。
const MaxContentLength = 2000

// ContentSanitizerService はコメント本文サニタイズ機能のインターフェースを定義する。
type ContentSanitizerService interface {
	// Sanitize はコメント本文をサニタイズして返す。
	// HTML上意味を持つ5文字（< > " ' /）を実体参照へエスケープし、
	// 前後の空白を除去した上で2000文字に切り詰める。
	// サニタイズ結果が空文字列になる入力は呼び出し側で入力不正として扱う。
	// 同一入力に対して常に同一出力を返す（冪等ではない点に注意:
	// エスケープ済み文字列を再度通すと&が二重エスケープされる）。
	Sanitize(raw string) string
}

// NameSanitizerService は表示名サニタイズ機能のインターフェースを定義する。
type NameSanitizerService interface {
	// SanitizeName はウィジェット由来の表示名からHTMLマークアップを除去する。
	SanitizeName(raw string) string
}

// contentReplacer はHTML上意味を持つ5文字を実体参照へ変換する。
var contentReplacer = strings.NewReplacer(
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#x27;",
	"/", "&#x2F;",
)

// contentSanitizer はContentSanitizerServiceとNameSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type contentSanitizer struct {
	namePolicy *bluemonday.Policy
}

// NewContentSanitizer はサニタイザの新しいインスタンスを生成する。
// 表示名用にはタグを一切許可しないStrictPolicyを使用する。
func NewContentSanitizer() *contentSanitizer {
	return &contentSanitizer{
		namePolicy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はコメント本文をサニタイズして返す。
// エスケープ → 前後空白の除去 → 2000文字への切り詰め、の順に処理する。
func (s *contentSanitizer) Sanitize(raw string) string {
	escaped := contentReplacer.Replace(raw)
	trimmed := strings.TrimSpace(escaped)

	runes := []rune(trimmed)
	if len(runes) > MaxContentLength {
		return string(runes[:MaxContentLength])
	}
	return trimmed
}

// SanitizeName はウィジェット由来の表示名からHTMLマークアップを除去する。
// Telegram側で任意に設定できる名前をそのまま保存しないための防壁。
func (s *contentSanitizer) SanitizeName(raw string) string {
	return strings.TrimSpace(s.namePolicy.Sanitize(raw))
}
