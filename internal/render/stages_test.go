package render

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"swarmbender/internal/compose"
	"swarmbender/internal/sbconfig"
)

func writeFixture(t *testing.T, root, relPath, content string) {
	t.Helper()
	path := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newFixtureRoot(t *testing.T) string {
	root := t.TempDir()

	writeFixture(t, root, "stacks/demo/docker-stack.template.yml", `
version: "3.8"
services:
  api:
    image: myapp:${TAG:-latest}
    environment:
      - FOO=bar
    x-sb-secrets:
      db/password: /run/secrets/db_password
`)

	writeFixture(t, root, "stacks/all/prod/stack/10-labels.yml", `
services:
  "*":
    labels:
      - env=prod
`)

	writeFixture(t, root, "services/api/prod/10-env.yml", `
services:
  api:
    environment:
      - EXTRA=1
`)

	writeFixture(t, root, "stacks/all/prod/env/appsettings.json", `{"Logging":{"Level":"Info"}}`)

	writeFixture(t, root, "ops/vars/secrets-map.prod.yml", "db/password: demo_prod_db_password_abc123\n")

	return root
}

func runPipeline(t *testing.T, root string) *RenderContext {
	t.Helper()
	cfg, err := sbconfig.LoadSbConfig(filepath.Join(root, "ops", "sb.yml"))
	if err != nil {
		t.Fatalf("LoadSbConfig() error = %v", err)
	}
	rc := NewContext(RenderRequest{RootPath: root, StackId: "demo", Env: "prod"}, cfg)
	orc := NewOrchestrator(DefaultStages())
	if err := orc.Run(context.Background(), rc, ModeAll); err != nil {
		t.Fatalf("pipeline run error = %v", err)
	}
	return rc
}

func TestRenderPipelineEndToEnd(t *testing.T) {
	root := newFixtureRoot(t)
	rc := runPipeline(t, root)

	outPath := filepath.Join(rc.ResolvedOutDir(), "demo-prod.stack.yml")
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("expected output stack file at %s: %v", outPath, err)
	}

	doc, err := compose.Decode(data, outPath)
	if err != nil {
		t.Fatalf("failed to decode rendered stack: %v", err)
	}

	svc, ok := doc.Services.Get("api")
	if !ok {
		t.Fatalf("expected service %q in rendered stack", "api")
	}

	if svc.Image != "myapp:latest" {
		t.Errorf("Image = %q, want %q (TAG default applied)", svc.Image, "myapp:latest")
	}

	env := svc.Environment.ToMap()
	if v, _ := env.Get("FOO"); v != "bar" {
		t.Errorf("env FOO = %q, want bar", v)
	}
	if v, _ := env.Get("EXTRA"); v != "1" {
		t.Errorf("env EXTRA = %q, want 1 (overlay applied)", v)
	}
	if v, _ := env.Get("Logging__Level"); v != "Info" {
		t.Errorf("env Logging__Level = %q, want Info (appsettings flattened)", v)
	}

	labels := svc.Labels.ToMap()
	if v, _ := labels.Get("env"); v != "prod" {
		t.Errorf("label env = %q, want prod (wildcard overlay applied)", v)
	}

	if len(svc.Secrets) != 1 {
		t.Fatalf("expected exactly one attached secret, got %d", len(svc.Secrets))
	}
	if svc.Secrets[0].Source != "demo_prod_db_password_abc123" {
		t.Errorf("secret source = %q, want resolved external name", svc.Secrets[0].Source)
	}
	if svc.Secrets[0].Target != "/run/secrets/db_password" {
		t.Errorf("secret target = %q, want /run/secrets/db_password", svc.Secrets[0].Target)
	}

	secretDef, ok := doc.Secrets.Get("demo_prod_db_password_abc123")
	if !ok {
		t.Fatalf("expected root secrets entry for resolved external name")
	}
	if secretDef.External == nil || secretDef.External.Name != "demo_prod_db_password_abc123" {
		t.Errorf("expected secret to reference an external name")
	}
}

func TestApplyOverlaysWildcardIsOverriddenByPerServiceOverlay(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "stacks/demo/docker-stack.template.yml", `
version: "3.8"
services:
  api:
    image: myapp:latest
  worker:
    image: myapp:latest
`)
	writeFixture(t, root, "stacks/all/prod/stack/10-labels.yml", `
services:
  "*":
    labels:
      - tier=shared
`)
	writeFixture(t, root, "stacks/demo/prod/stack/20-override.yml", `
services:
  api:
    labels:
      - tier=frontend
`)

	cfg, err := sbconfig.LoadSbConfig(filepath.Join(root, "ops", "sb.yml"))
	if err != nil {
		t.Fatal(err)
	}
	rc := NewContext(RenderRequest{RootPath: root, StackId: "demo", Env: "prod"}, cfg)
	if err := stageLoadTemplate(context.Background(), rc); err != nil {
		t.Fatal(err)
	}
	if err := stageApplyOverlays(context.Background(), rc); err != nil {
		t.Fatal(err)
	}

	api, _ := rc.Working.Services.Get("api")
	apiLabels := api.Labels.ToMap()
	if v, _ := apiLabels.Get("tier"); v != "frontend" {
		t.Errorf("api tier label = %q, want frontend (later overlay wins)", v)
	}

	worker, _ := rc.Working.Services.Get("worker")
	workerLabels := worker.Labels.ToMap()
	if v, _ := workerLabels.Get("tier"); v != "shared" {
		t.Errorf("worker tier label = %q, want shared (wildcard still applies)", v)
	}
}

func TestSecretsAttachReturnsUnresolvedSecretError(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, "stacks/demo/docker-stack.template.yml", `
version: "3.8"
services:
  api:
    image: myapp:latest
    x-sb-secrets:
      missing/key: /run/secrets/missing
`)

	cfg, err := sbconfig.LoadSbConfig(filepath.Join(root, "ops", "sb.yml"))
	if err != nil {
		t.Fatal(err)
	}
	rc := NewContext(RenderRequest{RootPath: root, StackId: "demo", Env: "prod"}, cfg)
	if err := stageLoadTemplate(context.Background(), rc); err != nil {
		t.Fatal(err)
	}
	if err := stageApplyOverlays(context.Background(), rc); err != nil {
		t.Fatal(err)
	}
	if err := stageEnvironmentApply(context.Background(), rc); err != nil {
		t.Fatal(err)
	}
	if err := stageLabels(context.Background(), rc); err != nil {
		t.Fatal(err)
	}

	err = stageSecretsAttach(context.Background(), rc)
	if err == nil {
		t.Fatal("expected an UnresolvedSecretError")
	}
	var unresolved *UnresolvedSecretError
	if !asUnresolvedSecretError(err, &unresolved) {
		t.Fatalf("expected *UnresolvedSecretError, got %T: %v", err, err)
	}
	if unresolved.FlatKey != "missing/key" {
		t.Errorf("FlatKey = %q, want missing/key", unresolved.FlatKey)
	}
}

func asUnresolvedSecretError(err error, target **UnresolvedSecretError) bool {
	if e, ok := err.(*UnresolvedSecretError); ok {
		*target = e
		return true
	}
	return false
}

func TestOrchestratorWrapsStageErrorAsPipelineError(t *testing.T) {
	root := t.TempDir() // no template file written
	cfg, err := sbconfig.LoadSbConfig(filepath.Join(root, "ops", "sb.yml"))
	if err != nil {
		t.Fatal(err)
	}
	rc := NewContext(RenderRequest{RootPath: root, StackId: "demo", Env: "prod"}, cfg)
	orc := NewOrchestrator(DefaultStages())

	err = orc.Run(context.Background(), rc, ModeAll)
	if err == nil {
		t.Fatal("expected an error for a missing template")
	}
	pipeErr, ok := err.(*PipelineError)
	if !ok {
		t.Fatalf("expected *PipelineError, got %T", err)
	}
	if pipeErr.Stage != "LoadTemplate" {
		t.Errorf("Stage = %q, want LoadTemplate", pipeErr.Stage)
	}
}
