// Package model はドメインモデルを定義する。
package model

// TelegramAuthData はTelegramログインウィジェットが返す未検証の認証クレームを表す。
// hash以外のフィールドがHMAC検証の対象となる。
// last_name、username、photo_urlは省略可能。
type TelegramAuthData struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
	PhotoURL  string `json:"photo_url,omitempty"`
	AuthDate  int64  `json:"auth_date"`
	Hash      string `json:"hash"`
}

// HasRequiredFields は必須フィールド（id, first_name, auth_date, hash）が
// すべて揃っているかを返す。
func (d *TelegramAuthData) HasRequiredFields() bool {
	return d.ID != 0 && d.FirstName != "" && d.AuthDate != 0 && d.Hash != ""
}

// VerifiedIdentity は署名検証を通過した後にのみ構築される信頼済みユーザー情報を表す。
// 未検証のTelegramAuthDataから直接構築してはならない。
type VerifiedIdentity struct {
	TelegramID       int64  `json:"telegram_id"`
	TelegramUsername string `json:"telegram_username,omitempty"`
	TelegramName     string `json:"telegram_name"`
	PhotoURL         string `json:"photo_url,omitempty"`
}
