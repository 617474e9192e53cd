package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	content := "MASTODON_INSTANCE_URL=https://example.social\nMASTODON_ACCESS_TOKEN=test-token\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}

	cfg, err := loadConfig(envPath)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.Env.ThrottleRPS != defaultThrottleRPS {
		t.Errorf("ThrottleRPS = %d, want %d", cfg.Env.ThrottleRPS, defaultThrottleRPS)
	}
	if !cfg.Env.RSSEnabled {
		t.Errorf("expected RSS parser enabled by default")
	}
	if cfg.Env.TelegramEnabled || cfg.Env.MastodonEnabled {
		t.Errorf("expected telegram/mastodon parsers disabled by default")
	}
	if cfg.Env.DefaultMaxLength != defaultDefaultMaxLength {
		t.Errorf("DefaultMaxLength = %d, want %d", cfg.Env.DefaultMaxLength, defaultDefaultMaxLength)
	}
}

func TestLoadConfigFailsWithoutTelegramCreds(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	content := "TELEGRAM_PARSER_ENABLED=true\nMASTODON_INSTANCE_URL=https://example.social\nMASTODON_ACCESS_TOKEN=test-token\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	os.Unsetenv("TELEGRAM_API_ID")
	os.Unsetenv("TELEGRAM_API_HASH")
	os.Unsetenv("TELEGRAM_PHONE_NUMBER")

	if _, err := loadConfig(envPath); err == nil {
		t.Fatalf("expected error when telegram parser enabled without credentials")
	}
}

func TestLoadConfigFailsWithoutMastodonCreds(t *testing.T) {
	envPath := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(envPath, []byte(""), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	os.Unsetenv("MASTODON_INSTANCE_URL")
	os.Unsetenv("MASTODON_ACCESS_TOKEN")

	if _, err := loadConfig(envPath); err == nil {
		t.Fatalf("expected error: Mastodon is always the publish target, not gated by MASTODON_PARSER_ENABLED")
	}
}

func TestSanitizeDialectFallback(t *testing.T) {
	var warnings []string
	if got := sanitizeDialect("bluesky", &warnings); got != defaultMastodonDialect {
		t.Errorf("sanitizeDialect(invalid) = %q, want %q", got, defaultMastodonDialect)
	}
	if len(warnings) == 0 {
		t.Errorf("expected a warning for an invalid dialect")
	}
}

func TestParseLocationAcceptsOffsetsAndIANA(t *testing.T) {
	if _, err := ParseLocation("Europe/Moscow"); err != nil {
		t.Errorf("IANA zone should parse: %v", err)
	}
	if _, err := ParseLocation("+03:00"); err != nil {
		t.Errorf("UTC offset should parse: %v", err)
	}
	if _, err := ParseLocation("not-a-zone"); err == nil {
		t.Errorf("expected error for invalid timezone")
	}
}
