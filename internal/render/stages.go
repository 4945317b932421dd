package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"swarmbender/internal/compose"
	"swarmbender/internal/envresolve"
	"swarmbender/internal/merge"
	"swarmbender/internal/secretslifecycle"
	"swarmbender/pkg/caseinsens"
	"swarmbender/pkg/fsatomic"
	"swarmbender/pkg/log"
	"swarmbender/pkg/ordered"
	"swarmbender/pkg/tokenexpand"
)

// Exit-code contract for a wrapping CLI, per §6.
const (
	ExitSuccess    = 0
	ExitValidation = 2
	ExitInternal   = -1
)

// DefaultStages returns the Render Pipeline's fixed stage list, ordered per
// §4.4's stage table.
func DefaultStages() []Stage {
	return []Stage{
		{Order: 100, Name: "LoadTemplate", Modes: ModeAll, Run: stageLoadTemplate},
		{Order: 200, Name: "ApplyOverlays", Modes: ModeAll, Run: stageApplyOverlays},
		{Order: 300, Name: "EnvironmentApply", Modes: ModeAll, Run: stageEnvironmentApply},
		{Order: 400, Name: "Labels", Modes: ModeAll, Run: stageLabels},
		{Order: 500, Name: "SecretsAttach", Modes: ModeAll, Run: stageSecretsAttach},
		{Order: 600, Name: "TokenExpand", Modes: ModeAll, Run: stageTokenExpand},
		{Order: 800, Name: "Serialize", Modes: ModeAll, Run: stageSerialize},
	}
}

// UnresolvedSecretError means a service's x-sb-secrets entry names a flat
// key with no corresponding entry in the persisted secrets map.
type UnresolvedSecretError struct {
	Service string
	FlatKey string
}

func (e *UnresolvedSecretError) Error() string {
	return fmt.Sprintf("service %q references unresolved secret key %q", e.Service, e.FlatKey)
}

// ---- 100 LoadTemplate ----

func stageLoadTemplate(ctx context.Context, rc *RenderContext) error {
	path := filepath.Join(rc.StacksDir, rc.Request.StackId, "docker-stack.template.yml")
	data, err := os.ReadFile(path)
	if err != nil {
		return log.Errorf("failed to read template %s: %v", path, err)
	}
	doc, err := compose.Decode(data, path)
	if err != nil {
		return err
	}
	log.Debug("loaded stack template", "stack", rc.Request.StackId, "path", path)
	rc.Template = doc
	raw, err := compose.ToRaw(doc)
	if err != nil {
		return err
	}
	cloned := merge.Clone(raw).(*ordered.Map)
	working, err := compose.FromRaw(cloned)
	if err != nil {
		return err
	}
	rc.Working = working
	return nil
}

// ---- 200 ApplyOverlays ----

func stageApplyOverlays(ctx context.Context, rc *RenderContext) error {
	workingRaw, err := compose.ToRaw(rc.Working)
	if err != nil {
		return err
	}

	serviceNames := rc.Working.Services.Keys()
	patterns := rc.Config.Render.OverlayOrder
	var overlays []*ordered.Map

	for _, pattern := range patterns {
		if err := ctx.Err(); err != nil {
			return err
		}
		expandedGlobs := expandOverlayPattern(pattern, rc.Request.Env, rc.Request.StackId, serviceNames)
		for _, glob := range expandedGlobs {
			matches, err := filepath.Glob(filepath.Join(rc.Request.RootPath, glob))
			if err != nil {
				return fmt.Errorf("invalid overlay glob %q: %w", glob, err)
			}
			sort.Strings(matches)
			for _, path := range matches {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("failed to read overlay %s: %w", path, err)
				}
				overlayRaw, err := compose.RawFromBytes(data)
				if err != nil {
					return fmt.Errorf("overlay %s: %w", path, err)
				}
				overlays = append(overlays, overlayRaw)
			}
		}
	}

	merged := merge.MergeAll(workingRaw, overlays)
	newWorking, err := compose.FromRaw(merged)
	if err != nil {
		return err
	}
	rc.Working = newWorking
	log.Debug("applied overlays", "stack", rc.Request.StackId, "env", rc.Request.Env, "count", len(overlays))
	return nil
}

// expandOverlayPattern substitutes {env} and {stackId} directly, and expands
// {svc} into one glob per service currently known to Working, preserving
// service declaration order.
func expandOverlayPattern(pattern, env, stackID string, serviceNames []string) []string {
	base := strings.NewReplacer("{env}", env, "{stackId}", stackID).Replace(pattern)
	if !strings.Contains(base, "{svc}") {
		return []string{base}
	}
	out := make([]string, 0, len(serviceNames))
	for _, svc := range serviceNames {
		out = append(out, strings.ReplaceAll(base, "{svc}", svc))
	}
	return out
}

// ---- 300 EnvironmentApply ----

func stageEnvironmentApply(ctx context.Context, rc *RenderContext) error {
	resolver := envresolve.New()
	allowlistPath := filepath.Join(rc.StacksDir, "all", rc.Request.Env, "env", "use-envvars.json")
	allowlist, err := envresolve.LoadAllowlist(allowlistPath)
	if err != nil {
		return err
	}

	globalAppSettings, err := loadAppSettingsUnder(filepath.Join(rc.StacksDir, "all", rc.Request.Env, "env"))
	if err != nil {
		return err
	}

	for _, svcName := range rc.Working.Services.Keys() {
		if err := ctx.Err(); err != nil {
			return err
		}
		svc, _ := rc.Working.Services.Get(svcName)

		var envFilePaths []string
		if svc.EnvFile != nil {
			for _, p := range svc.EnvFile.Values() {
				envFilePaths = append(envFilePaths, resolvePath(rc.Request.RootPath, p))
			}
		}

		serviceEnvMap := map[string]string{}
		envIsMap := false
		if svc.Environment != nil {
			envIsMap = svc.Environment.IsMap()
			svc.Environment.ToMap().Range(func(k, v string) { serviceEnvMap[k] = v })
		}

		overlayEnv := map[string]string{}
		if rc.Config.Render.AppSettingsMode == "env" {
			for k, v := range globalAppSettings {
				overlayEnv[k] = v
			}
			svcAppSettings, err := loadAppSettingsUnder(filepath.Join(rc.ServicesDir, svcName, rc.Request.Env, "env"))
			if err != nil {
				return err
			}
			for k, v := range svcAppSettings {
				overlayEnv[k] = v
			}
		} else {
			if err := attachAppSettingsConfig(rc, svcName, &svc); err != nil {
				return err
			}
		}

		finalEnv, err := resolver.Resolve(envFilePaths, serviceEnvMap, overlayEnv, allowlist)
		if err != nil {
			return fmt.Errorf("service %s: %w", svcName, err)
		}

		rc.AggregatedEnvironment[svcName] = finalEnv
		envLM := toListOrMap(finalEnv, envIsMap)
		svc.Environment = &envLM
		rc.Working.Services.Set(svcName, svc)
	}
	return nil
}

func resolvePath(root, p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// loadAppSettingsUnder flattens every appsettings*.json file found directly
// under dir; a missing directory yields no entries.
func loadAppSettingsUnder(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "appsettings") && strings.HasSuffix(name, ".json") {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	out := map[string]string{}
	for _, name := range names {
		flat, err := envresolve.LoadAppSettings(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		for k, v := range flat {
			out[k] = v
		}
	}
	return out, nil
}

func toListOrMap(m *caseinsens.Map, asMap bool) compose.ListOrMap {
	om := ordered.NewTypedMap[string]()
	m.Range(func(k, v string) { om.Set(k, v) })
	return compose.FromMap(om, asMap)
}

// attachAppSettingsConfig declares a root-level config named
// <stackId>_<service>_appsettings and mounts it on the service at
// Render.AppSettingsConfigPath (AppSettingsMode=config). The config entry
// carries only its name: the appsettings are not serialized to JSON and no
// file or content is attached to it here.
func attachAppSettingsConfig(rc *RenderContext, svcName string, svc *compose.Service) error {
	configName := namesafeConfigName(rc.Request.StackId, svcName)
	if rc.Working.Configs == nil {
		rc.Working.Configs = ordered.NewTypedMap[compose.SecretDef]()
	}
	if _, exists := rc.Working.Configs.Get(configName); !exists {
		rc.Working.Configs.Set(configName, compose.SecretDef{Name: configName})
	}
	target := rc.Config.Render.AppSettingsConfigPath
	for _, ref := range svc.Configs {
		if ref.Source == configName {
			return nil
		}
	}
	svc.Configs = append(svc.Configs, compose.ServiceSecretRef{Source: configName, Target: target})
	return nil
}

func namesafeConfigName(stackID, svcName string) string {
	return fmt.Sprintf("%s_%s_appsettings", stackID, svcName)
}

// ---- 400 Labels ----

func stageLabels(ctx context.Context, rc *RenderContext) error {
	for _, svcName := range rc.Working.Services.Keys() {
		if err := ctx.Err(); err != nil {
			return err
		}
		svc, _ := rc.Working.Services.Get(svcName)

		unified := caseinsens.New()
		serviceLabelsIsMap := false
		if svc.Labels != nil {
			serviceLabelsIsMap = svc.Labels.IsMap()
			svc.Labels.ToMap().Range(func(k, v string) { unified.Set(k, v) })
		}
		deployLabelsIsMap := false
		if svc.Deploy != nil && svc.Deploy.Labels != nil {
			deployLabelsIsMap = svc.Deploy.Labels.IsMap()
			svc.Deploy.Labels.ToMap().Range(func(k, v string) { unified.Set(k, v) })
		}

		if svc.Extra != nil {
			if raw, ok := svc.Extra.Get("x-sb-groups"); ok {
				for _, groupName := range asStringSlice(raw) {
					for k, v := range rc.Config.Metadata.Groups {
						if k != groupName {
							continue
						}
						for _, kv := range v {
							key, value := splitEq(kv)
							unified.Set(key, value)
						}
					}
				}
			}
		}

		rc.AggregatedLabels[svcName] = unified

		labelsLM := toListOrMap(unified, serviceLabelsIsMap)
		svc.Labels = &labelsLM
		if svc.Deploy != nil {
			deployLM := toListOrMap(unified, deployLabelsIsMap)
			svc.Deploy.Labels = &deployLM
		}
		rc.Working.Services.Set(svcName, svc)
	}
	return nil
}

func asStringSlice(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func splitEq(s string) (string, string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

// ---- 500 SecretsAttach ----

func stageSecretsAttach(ctx context.Context, rc *RenderContext) error {
	mapPath := filepath.Join(rc.OpsDir, "vars", fmt.Sprintf("secrets-map.%s.yml", rc.Request.Env))
	secretsMap, err := secretslifecycle.LoadSecretsMap(mapPath)
	if err != nil {
		return err
	}
	for _, k := range secretsMap.Keys() {
		name, _ := secretsMap.Get(k)
		rc.SecretsBag.Set(k, name)
	}

	for _, svcName := range rc.Working.Services.Keys() {
		if err := ctx.Err(); err != nil {
			return err
		}
		svc, _ := rc.Working.Services.Get(svcName)
		if svc.Extra == nil {
			continue
		}
		raw, ok := svc.Extra.Get("x-sb-secrets")
		if !ok {
			continue
		}
		om, ok := raw.(*ordered.Map)
		if !ok {
			continue
		}

		for _, flatKey := range om.Keys() {
			targetRaw, _ := om.Get(flatKey)
			target, _ := targetRaw.(string)

			externalName, found := rc.SecretsBag.Get(flatKey)
			if !found {
				log.Warn("unresolved secret key", "service", svcName, "key", flatKey)
				return &UnresolvedSecretError{Service: svcName, FlatKey: flatKey}
			}
			svc.Secrets = append(svc.Secrets, compose.ServiceSecretRef{Source: externalName, Target: target})

			if rc.Working.Secrets == nil {
				rc.Working.Secrets = ordered.NewTypedMap[compose.SecretDef]()
			}
			if _, exists := rc.Working.Secrets.Get(externalName); !exists {
				rc.Working.Secrets.Set(externalName, compose.SecretDef{
					External: &compose.ExternalDef{Name: externalName},
				})
			}
		}
		rc.Working.Services.Set(svcName, svc)
	}
	return nil
}

// ---- 600 TokenExpand ----

func stageTokenExpand(ctx context.Context, rc *RenderContext) error {
	raw, err := compose.ToRaw(rc.Working)
	if err != nil {
		return err
	}

	globalSources := tokenexpand.Sources{UserTokens: rc.Config.Tokens.User}
	servicesNode, hasServices := raw.Get("services")

	for _, key := range raw.Keys() {
		if key == "services" {
			continue
		}
		value, _ := raw.Get(key)
		expanded, err := walkExpand(value, globalSources, key)
		if err != nil {
			return err
		}
		raw.Set(key, expanded)
	}

	if hasServices {
		servicesMap, ok := servicesNode.(*ordered.Map)
		if ok {
			for _, svcName := range servicesMap.Keys() {
				if err := ctx.Err(); err != nil {
					return err
				}
				svcNode, _ := servicesMap.Get(svcName)
				sources := tokenexpand.Sources{
					ServiceEnv: rc.AggregatedEnvironment[svcName],
					UserTokens: rc.Config.Tokens.User,
				}
				expanded, err := walkExpand(svcNode, sources, "services."+svcName)
				if err != nil {
					return err
				}
				servicesMap.Set(svcName, expanded)
			}
		}
		raw.Set("services", servicesMap)
	}

	working, err := compose.FromRaw(raw)
	if err != nil {
		return err
	}
	rc.Working = working
	return nil
}

func walkExpand(node any, sources tokenexpand.Sources, location string) (any, error) {
	switch v := node.(type) {
	case string:
		return tokenexpand.Expand(v, sources, location)
	case *ordered.Map:
		for _, k := range v.Keys() {
			val, _ := v.Get(k)
			expanded, err := walkExpand(val, sources, location+"."+k)
			if err != nil {
				return nil, err
			}
			v.Set(k, expanded)
		}
		return v, nil
	case []any:
		for i, e := range v {
			expanded, err := walkExpand(e, sources, fmt.Sprintf("%s[%d]", location, i))
			if err != nil {
				return nil, err
			}
			v[i] = expanded
		}
		return v, nil
	default:
		return v, nil
	}
}

// ---- 800 Serialize ----

func stageSerialize(ctx context.Context, rc *RenderContext) error {
	data, err := compose.Encode(rc.Working)
	if err != nil {
		return err
	}

	filename := fmt.Sprintf("%s-%s.stack.yml", sanitizeOutputComponent(rc.Request.StackId), sanitizeOutputComponent(rc.Request.Env))
	outPath := filepath.Join(rc.ResolvedOutDir(), filename)
	if err := fsatomic.WriteFile(outPath, data, 0o644); err != nil {
		return err
	}

	if rc.Request.WriteHistory {
		historyDir := filepath.Join(rc.OpsDir, "state", time.Now().UTC().Format("20060102_150405"))
		historyPath := filepath.Join(historyDir, filename)
		if err := fsatomic.WriteFile(historyPath, data, 0o644); err != nil {
			return err
		}
	}
	log.Info("rendered stack", "stack", rc.Request.StackId, "env", rc.Request.Env, "path", outPath)
	return nil
}

func sanitizeOutputComponent(s string) string {
	s = strings.ReplaceAll(s, "/", "-")
	s = strings.ReplaceAll(s, string(os.PathSeparator), "-")
	if s == "" {
		return "unknown"
	}
	return s
}
