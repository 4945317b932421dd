package sbconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSbConfigMissingFileAppliesDefaults(t *testing.T) {
	cfg, err := LoadSbConfig(filepath.Join(t.TempDir(), "sb.yml"))
	if err != nil {
		t.Fatalf("LoadSbConfig() error = %v", err)
	}
	if cfg.Render.AppSettingsMode != AppSettingsModeEnv {
		t.Errorf("AppSettingsMode = %q, want %q", cfg.Render.AppSettingsMode, AppSettingsModeEnv)
	}
	if cfg.Render.OutDir != defaultOutDir {
		t.Errorf("OutDir = %q, want %q", cfg.Render.OutDir, defaultOutDir)
	}
	if len(cfg.Render.OverlayOrder) == 0 {
		t.Errorf("expected default OverlayOrder to be populated")
	}
	if cfg.Render.AppSettingsConfigPath != defaultAppSettingsConfigPath {
		t.Errorf("AppSettingsConfigPath = %q, want %q", cfg.Render.AppSettingsConfigPath, defaultAppSettingsConfigPath)
	}
}

func TestLoadSbConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sb.yml")
	content := "render:\n  appsettingsMode: config\n  writeHistory: true\ntokens:\n  user:\n    REGION: us-east-1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadSbConfig(path)
	if err != nil {
		t.Fatalf("LoadSbConfig() error = %v", err)
	}
	if cfg.Render.AppSettingsMode != AppSettingsModeConfig {
		t.Errorf("AppSettingsMode = %q, want %q", cfg.Render.AppSettingsMode, AppSettingsModeConfig)
	}
	if !cfg.Render.WriteHistory {
		t.Errorf("WriteHistory = false, want true")
	}
	if cfg.Tokens.User["REGION"] != "us-east-1" {
		t.Errorf("Tokens.User[REGION] = %q", cfg.Tokens.User["REGION"])
	}
}

func TestLoadSecretsPolicyDefaults(t *testing.T) {
	policy, err := LoadSecretsPolicy(filepath.Join(t.TempDir(), "secrets.yml"))
	if err != nil {
		t.Fatalf("LoadSecretsPolicy() error = %v", err)
	}
	if policy.Secretize.Enabled {
		t.Errorf("expected Enabled=false by default")
	}
	if policy.Secretize.NameTemplate != "{key}" {
		t.Errorf("NameTemplate = %q, want {key}", policy.Secretize.NameTemplate)
	}
}
