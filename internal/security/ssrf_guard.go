// Package security はアプリケーションのセキュリティ機能を提供する。
package security

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// AvatarURLGuardService はアバター画像プロキシのSSRF防止機能のインターフェースを定義する。
// プロキシ先をTelegramの配信ホストに限定し、オープンプロキシ化を防ぐ。
type AvatarURLGuardService interface {
	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// safeurlライブラリにより、プライベートIP、ループバック、リンクローカル、
	// メタデータIPへのリクエストが自動的にブロックされる。
	// DNS再バインディング攻撃への対策も有効化される。
	NewSafeClient(timeout time.Duration) *http.Client

	// ValidateURL はプロキシ対象URLの安全性を事前に検証する。
	// httpsスキームかつ許可ホストのみを通過させる。
	ValidateURL(rawURL string) error
}

// allowedAvatarHosts はアバター画像の取得を許可するホスト。
// Telegramログインウィジェットのphoto_urlはt.meまたはtelesco.peの
// CDNドメインを指す。サブドメインも許可する。
var allowedAvatarHosts = []string{
	"t.me",
	"telegram.org",
	"telesco.pe",
}

// avatarURLGuard はAvatarURLGuardServiceの実装。
type avatarURLGuard struct{}

// NewAvatarURLGuard はAvatarURLGuardServiceの新しいインスタンスを生成する。
func NewAvatarURLGuard() *avatarURLGuard {
	return &avatarURLGuard{}
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// safeurlはnet.DialerのControlフックでDNS解決後のIPアドレスを検証するため、
// DNS再バインディング攻撃にも対応している。
func (g *avatarURLGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes("https").
		SetAllowedPorts(443).
		Build()

	wrappedClient := safeurl.Client(config)
	return wrappedClient.Client
}

// ValidateURL はプロキシ対象URLの安全性を事前に検証する。
// DNS解決を伴わない静的な検証を行う。DNS再バインディング攻撃は
// NewSafeClientが生成するHTTPクライアント側のDialer検証で防止される。
func (g *avatarURLGuard) ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	// スキーム検証: httpsのみ許可
	if strings.ToLower(parsed.Scheme) != "https" {
		return fmt.Errorf("disallowed scheme: %s (only https is allowed)", parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	// ホスト検証: Telegramの配信ホストのみ許可
	for _, allowed := range allowedAvatarHosts {
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return nil
		}
	}
	return fmt.Errorf("disallowed avatar host: %s", host)
}
