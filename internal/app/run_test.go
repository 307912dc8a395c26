package app

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/mangatalk/internal/auth"
)

// TestRun_MigrateCommand_FailsWithoutDB はmigrateコマンドがDB接続を試みることを検証する。
// テスト環境ではDB接続が失敗するため、エラーが返ることを許容する。
func TestRun_MigrateCommand_FailsWithoutDB(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"migrate"})
	if err == nil {
		// CI/ローカルにDBがある場合は成功する可能性がある。
		t.Log("Run(migrate) succeeded - DB is available in test environment")
	}
}

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("BASE_URL", "")

	var buf bytes.Buffer
	err := Run(&buf, []string{"migrate"})
	if err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

// TestRun_AdminTokenCommand_PrintsVerifiableToken はadmintokenコマンドが
// 検証可能な管理者トークンを出力することを検証する。DB接続は不要。
func TestRun_AdminTokenCommand_PrintsVerifiableToken(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"admintoken"}); err != nil {
		t.Fatalf("Run(admintoken) returned error: %v", err)
	}

	// 出力はログ行とトークン行が混在するため、最後の非空行をトークンとして取り出す
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	token := lines[len(lines)-1]

	if !auth.VerifyAdminToken(token, "test-session-secret-32bytes-long!") {
		t.Errorf("issued admin token failed verification: %q", token)
	}
}

func TestRun_AdminTokenCommand_AcceptsTTLArgument(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"admintoken", "30m"}); err != nil {
		t.Fatalf("Run(admintoken 30m) returned error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	token := lines[len(lines)-1]
	if !auth.VerifyAdminToken(token, "test-session-secret-32bytes-long!") {
		t.Errorf("issued admin token failed verification: %q", token)
	}
}

func TestRun_AdminTokenCommand_RejectsInvalidTTL(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"admintoken", "not-a-duration"}); err == nil {
		t.Fatal("Run(admintoken not-a-duration) should return error")
	}
}

func TestRunAdminToken_DefaultTTL(t *testing.T) {
	if defaultAdminTokenTTL != time.Hour {
		t.Errorf("defaultAdminTokenTTL = %v, want 1h", defaultAdminTokenTTL)
	}
}
