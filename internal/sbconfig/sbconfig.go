// Package sbconfig loads the two YAML configuration documents that drive a
// render or sync run: SbConfig (ops/sb.yml) and SecretsPolicy
// (ops/policies/secrets.yml).
package sbconfig

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"

	"swarmbender/pkg/namesafe"
)

const (
	AppSettingsModeEnv    = "env"
	AppSettingsModeConfig = "config"
)

const (
	defaultOutDir               = "ops/state/last"
	defaultAppSettingsConfigPath = "/app/appsettings.json"
)

// DefaultOverlayOrder is render.overlayOrder's default value: the glob list
// the ApplyOverlays stage walks, in order, when the config omits it.
func DefaultOverlayOrder() []string {
	return []string{
		"stacks/all/{env}/stack/*.yml",
		"stacks/all/{env}/stack/*.yaml",
		"stacks/{stackId}/{env}/stack/*.yml",
		"stacks/{stackId}/{env}/stack/*.yaml",
		"services/{svc}/{env}/*.yml",
		"services/{svc}/{env}/*.yaml",
	}
}

// RenderSettings is the `render.*` section of SbConfig.
type RenderSettings struct {
	AppSettingsMode string   `yaml:"appsettingsMode"`
	OutDir          string   `yaml:"outDir"`
	WriteHistory    bool     `yaml:"writeHistory"`
	OverlayOrder    []string `yaml:"overlayOrder"`
	// AppSettingsConfigPath is the mount path used when AppSettingsMode is
	// "config"; defaults to /app/appsettings.json per §6, but is
	// configurable rather than hardcoded.
	AppSettingsConfigPath string `yaml:"appsettingsConfigPath"`
}

// SbConfig is the top-level ops/sb.yml document.
type SbConfig struct {
	Render   RenderSettings    `yaml:"render"`
	Tokens   TokensSettings    `yaml:"tokens"`
	Metadata MetadataSettings  `yaml:"metadata"`
}

// TokensSettings is the `tokens.*` section.
type TokensSettings struct {
	User map[string]string `yaml:"user"`
}

// MetadataSettings is the `metadata.*` section.
type MetadataSettings struct {
	Tenants []string            `yaml:"tenants"`
	Groups  map[string][]string `yaml:"groups"`
}

func (c *SbConfig) applyDefaults() {
	if c.Render.AppSettingsMode != AppSettingsModeConfig {
		c.Render.AppSettingsMode = AppSettingsModeEnv
	}
	if c.Render.OutDir == "" {
		c.Render.OutDir = defaultOutDir
	}
	if len(c.Render.OverlayOrder) == 0 {
		c.Render.OverlayOrder = DefaultOverlayOrder()
	}
	if c.Render.AppSettingsConfigPath == "" {
		c.Render.AppSettingsConfigPath = defaultAppSettingsConfigPath
	}
	if c.Tokens.User == nil {
		c.Tokens.User = map[string]string{}
	}
	if c.Metadata.Groups == nil {
		c.Metadata.Groups = map[string][]string{}
	}
}

// LoadSbConfig reads and validates ops/sb.yml. A missing file yields a
// default-valued config, matching the teacher's "tolerate absent config,
// apply defaults" pattern.
func LoadSbConfig(path string) (*SbConfig, error) {
	cfg := &SbConfig{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyDefaults()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

// SecretizeSettings is the `secretize.*` section of SecretsPolicy.
type SecretizeSettings struct {
	Enabled      bool                `yaml:"enabled"`
	Paths        []string            `yaml:"paths"`
	NameTemplate string              `yaml:"nameTemplate"`
	VersionMode  namesafe.VersionMode `yaml:"versionMode"`
	TargetDir    string              `yaml:"targetDir"`
	Mode         string              `yaml:"mode"`
	Labels       map[string]string   `yaml:"labels"`
}

// SecretsPolicy is the ops/policies/secrets.yml document.
type SecretsPolicy struct {
	Secretize SecretizeSettings `yaml:"secretize"`
}

func (p *SecretsPolicy) applyDefaults() {
	if p.Secretize.NameTemplate == "" {
		p.Secretize.NameTemplate = "{key}"
	}
	if p.Secretize.VersionMode == "" {
		p.Secretize.VersionMode = namesafe.VersionContentSHA
	}
	if p.Secretize.Mode == "" {
		p.Secretize.Mode = "0444"
	}
	if p.Secretize.Labels == nil {
		p.Secretize.Labels = map[string]string{}
	}
}

// LoadSecretsPolicy reads ops/policies/secrets.yml. A missing file yields a
// disabled, default-valued policy.
func LoadSecretsPolicy(path string) (*SecretsPolicy, error) {
	policy := &SecretsPolicy{}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			policy.applyDefaults()
			return policy, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	policy.applyDefaults()
	return policy, nil
}
