// Package auth はTelegramログイン認証とセッショントークンの発行・検証を提供する。
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"
	"strings"

	"github.com/hitoshi/mangatalk/internal/model"
)

// VerifyTelegramAuth はTelegramログインウィジェットが付与したHMAC署名を検証する。
//
// 検証手順:
//  1. hash以外の全フィールドからチェック文字列を構築する。
//     空のフィールドは除外し、キー名の辞書順にソートして
//     "key=value" を改行で連結する。
//  2. ボットトークンのSHA-256ハッシュを署名鍵とする。
//  3. チェック文字列のHMAC-SHA256を計算し、hashクレームと定数時間で比較する。
//
// hashが不正なhex、必須フィールド欠落、その他いかなる場合も
// panicせずfalseを返す。
func VerifyTelegramAuth(data *model.TelegramAuthData, botToken string) bool {
	if data == nil || botToken == "" || data.Hash == "" {
		return false
	}

	checkString := buildCheckString(data)

	// ボットトークンのSHA-256を鍵としてHMACを計算
	secretKey := sha256.Sum256([]byte(botToken))
	mac := hmac.New(sha256.New, secretKey[:])
	mac.Write([]byte(checkString))
	expected := mac.Sum(nil)

	// hashクレームは小文字hex。デコード失敗はそのまま検証失敗として扱う。
	claimed, err := hex.DecodeString(strings.ToLower(data.Hash))
	if err != nil {
		return false
	}

	// hmac.Equalは定数時間比較
	return hmac.Equal(expected, claimed)
}

// buildCheckString は署名対象のチェック文字列を構築する。
// hashを除く全フィールドを対象とし、空フィールドは除外、
// キー名の辞書順でソートして "key=value" を改行区切りで連結する。
func buildCheckString(data *model.TelegramAuthData) string {
	fields := map[string]string{
		"id":         strconv.FormatInt(data.ID, 10),
		"first_name": data.FirstName,
		"last_name":  data.LastName,
		"username":   data.Username,
		"photo_url":  data.PhotoURL,
		"auth_date":  strconv.FormatInt(data.AuthDate, 10),
	}

	keys := make([]string, 0, len(fields))
	for k, v := range fields {
		if v == "" || v == "0" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+fields[k])
	}
	return strings.Join(pairs, "\n")
}
