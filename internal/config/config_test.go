package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":8080" {
		t.Fatalf("BindAddr = %q, want %q", cfg.BindAddr, ":8080")
	}
	if cfg.ReconcileInterval != 10*time.Second {
		t.Fatalf("ReconcileInterval = %v, want 10s", cfg.ReconcileInterval)
	}
	if cfg.ConversationScope != "session" || cfg.LeadStore != "file" {
		t.Fatalf("scope/store = %q/%q, want session/file", cfg.ConversationScope, cfg.LeadStore)
	}
	if cfg.InferenceMode != "auto" || cfg.InferenceHTTPURL != "" {
		t.Fatalf("InferenceMode = %q HTTPURL = %q", cfg.InferenceMode, cfg.InferenceHTTPURL)
	}
	if !cfg.ExtractOnTurn || !cfg.ReconcileWatch {
		t.Fatalf("ExtractOnTurn/ReconcileWatch should default to true")
	}
	if cfg.PurgeExpiredCron != "" {
		t.Fatalf("PurgeExpiredCron = %q, want disabled", cfg.PurgeExpiredCron)
	}
}

func TestLoadOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("CONVERSATION_SCOPE", "GLOBAL")
	t.Setenv("RECONCILE_INTERVAL", "30s")
	t.Setenv("EXTRACT_ON_TURN", "off")
	t.Setenv("INFERENCE_PROFILE_ARN", "arn:aws:bedrock:us-east-1:1:inference-profile/x")
	t.Setenv("PURGE_EXPIRED_CRON", "0 3 * * *")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" || cfg.ConversationScope != "global" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.ReconcileInterval != 30*time.Second || cfg.ExtractOnTurn {
		t.Fatalf("ReconcileInterval = %v ExtractOnTurn = %v", cfg.ReconcileInterval, cfg.ExtractOnTurn)
	}
	if cfg.BedrockModel != "arn:aws:bedrock:us-east-1:1:inference-profile/x" {
		t.Fatalf("BedrockModel = %q", cfg.BedrockModel)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"CONVERSATION_SCOPE":   "tenant",
		"LEAD_STORE":           "s3",
		"RECONCILE_INTERVAL":   "10ms",
		"INFERENCE_MAX_TOKENS": "0",
		"APP_ALLOW_ANY_ORIGIN": "maybe",
		"PURGE_EXPIRED_CRON":   "every tuesday",
		"PURGE_EXPIRED_AFTER":  "soon",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q expected error", key, value)
			}
		})
	}
}

func TestLoadDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	body := "TENSAI_TEST_FROM_FILE=file\nTENSAI_TEST_PRESET=file\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("TENSAI_TEST_PRESET", "env")
	t.Cleanup(func() { _ = os.Unsetenv("TENSAI_TEST_FROM_FILE") })

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv() error = %v", err)
	}
	if got := os.Getenv("TENSAI_TEST_FROM_FILE"); got != "file" {
		t.Fatalf("TENSAI_TEST_FROM_FILE = %q, want file", got)
	}
	if got := os.Getenv("TENSAI_TEST_PRESET"); got != "env" {
		t.Fatalf("TENSAI_TEST_PRESET = %q, want env", got)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"LOG_LEVEL",
		"LOG_DEVELOPMENT",
		"DATABASE_URL",
		"CONVERSATIONS_DIR",
		"CONVERSATION_SCOPE",
		"CONTACTS_DIR",
		"LEAD_STORE",
		"RECONCILE_INTERVAL",
		"RECONCILE_WATCH",
		"EXTRACT_ON_TURN",
		"INFERENCE_MODE",
		"INFERENCE_HTTP_URL",
		"INFERENCE_TIMEOUT",
		"INFERENCE_MAX_TOKENS",
		"ANTHROPIC_API_KEY",
		"ANTHROPIC_MODEL",
		"ANTHROPIC_BASE_URL",
		"AWS_REGION",
		"BEDROCK_MODEL",
		"INFERENCE_PROFILE_ARN",
		"OPENAI_API_KEY",
		"OPENAI_MODEL",
		"OPENAI_BASE_URL",
		"PROMPT_FILE",
		"PURGE_EXPIRED_CRON",
		"PURGE_EXPIRED_AFTER",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}
