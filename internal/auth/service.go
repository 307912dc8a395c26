package auth

import (
	"log/slog"
	"strings"
	"time"

	"github.com/hitoshi/mangatalk/internal/model"
)

// NameSanitizer は表示名のサニタイズに必要なインターフェース。
// security.NameSanitizerの部分集合として定義する。
type NameSanitizer interface {
	SanitizeName(raw string) string
}

// MetricsRecorder はログイン結果の記録に必要なインターフェース。
// metrics.Collectorの部分集合として定義する。
type MetricsRecorder interface {
	RecordLoginSuccess()
	RecordLoginFailure(reason string)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	BotToken    string        // Telegramボットトークン（署名検証用シークレット）
	TokenSecret string        // セッション・管理者トークンの署名シークレット
	AuthMaxAge  time.Duration // auth_dateの許容経過時間
	ClockSkew   time.Duration // auth_dateが未来である場合の許容ずれ
}

// Service はTelegramログインのオーケストレーションを提供する。
// クレーム検証 → 鮮度チェック → 署名検証 → トークン発行の順に処理する。
type Service struct {
	config        ServiceConfig
	nameSanitizer NameSanitizer
	metrics       MetricsRecorder
}

// NewService はServiceを生成する。
func NewService(config ServiceConfig, nameSanitizer NameSanitizer, metrics MetricsRecorder) *Service {
	return &Service{
		config:        config,
		nameSanitizer: nameSanitizer,
		metrics:       metrics,
	}
}

// Login はTelegramログインウィジェットからのクレームを検証し、
// セッショントークンを発行する。
// 戻り値は検証済みユーザー情報と署名付きトークン。
func (s *Service) Login(data *model.TelegramAuthData) (*model.VerifiedIdentity, string, error) {
	// シークレット欠落はリクエスト単位の設定不備として500を返す（クラッシュしない）
	if s.config.BotToken == "" || s.config.TokenSecret == "" {
		slog.Error("auth secrets are not configured")
		s.metrics.RecordLoginFailure("misconfigured")
		return nil, "", model.NewMisconfiguredError()
	}

	if data == nil || !data.HasRequiredFields() {
		s.metrics.RecordLoginFailure("invalid_input")
		return nil, "", model.NewInvalidInputError("必須フィールドが不足しています")
	}

	// 鮮度チェック: auth_dateが古すぎる、または許容ずれを超えて未来
	now := time.Now()
	authAt := time.Unix(data.AuthDate, 0)
	if now.Sub(authAt) > s.config.AuthMaxAge || authAt.Sub(now) > s.config.ClockSkew {
		slog.Warn("stale telegram auth data",
			slog.Int64("telegram_id", data.ID),
			slog.Int64("auth_date", data.AuthDate),
		)
		s.metrics.RecordLoginFailure("expired")
		return nil, "", model.NewAuthExpiredError()
	}

	if !VerifyTelegramAuth(data, s.config.BotToken) {
		slog.Warn("telegram auth signature mismatch",
			slog.Int64("telegram_id", data.ID),
		)
		s.metrics.RecordLoginFailure("signature")
		return nil, "", model.NewUnauthorizedError()
	}

	identity := s.deriveIdentity(data)

	token, err := EncodeSessionToken(identity, s.config.TokenSecret)
	if err != nil {
		slog.Error("failed to encode session token", slog.String("error", err.Error()))
		s.metrics.RecordLoginFailure("token_encode")
		return nil, "", model.NewMisconfiguredError()
	}

	slog.Info("user logged in",
		slog.Int64("telegram_id", identity.TelegramID),
		slog.String("telegram_username", identity.TelegramUsername),
	)
	s.metrics.RecordLoginSuccess()

	return identity, token, nil
}

// Resolve はセッショントークンから検証済みユーザー情報を取り出す。
// 無効なトークンの場合はnilを返す。
func (s *Service) Resolve(token string) *model.VerifiedIdentity {
	return DecodeSessionToken(token, s.config.TokenSecret)
}

// IsAdmin は管理者昇格トークンを検証する。
func (s *Service) IsAdmin(token string) bool {
	return VerifyAdminToken(token, s.config.TokenSecret)
}

// Logout はこの層では何もしない。
// セッションはステートレスなため、ログアウトはクライアント保持の
// Cookieを破棄する境界層の責務となる。
func (s *Service) Logout(telegramID int64) {
	slog.Info("user logged out", slog.Int64("telegram_id", telegramID))
}

// deriveIdentity は署名検証済みのクレームから信頼済みユーザー情報を導出する。
// 表示名はfirst_nameとlast_nameをスペースで連結し、
// HTMLマークアップを除去してから保存する。
func (s *Service) deriveIdentity(data *model.TelegramAuthData) *model.VerifiedIdentity {
	nameParts := []string{data.FirstName}
	if data.LastName != "" {
		nameParts = append(nameParts, data.LastName)
	}
	name := strings.Join(nameParts, " ")
	if s.nameSanitizer != nil {
		name = s.nameSanitizer.SanitizeName(name)
	}

	return &model.VerifiedIdentity{
		TelegramID:       data.ID,
		TelegramUsername: data.Username,
		TelegramName:     name,
		PhotoURL:         data.PhotoURL,
	}
}
