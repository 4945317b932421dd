package secretslifecycle

import (
	"context"
	"testing"
	"time"

	"swarmbender/internal/swarmengine"
	"swarmbender/pkg/namesafe"
)

func TestEnsureCreatedIdempotentAcrossCalls(t *testing.T) {
	ctx := context.Background()
	adapter := swarmengine.NewFakeAdapter()
	engine := NewEngine(adapter)

	name := namesafe.Synthesize("demo", "api", "prod", "connstring", namesafe.ContentSHA("secret-value"))
	labels := BaseLabels("api", "prod", nil)

	created, err := engine.EnsureCreated(ctx, name, []byte("secret-value"), labels)
	if err != nil || !created {
		t.Fatalf("first EnsureCreated: created=%v err=%v", created, err)
	}

	created, err = engine.EnsureCreated(ctx, name, []byte("secret-value"), labels)
	if err != nil || created {
		t.Fatalf("second EnsureCreated should be a no-op: created=%v err=%v", created, err)
	}

	v, ok := adapter.Value(name)
	if !ok || string(v) != "secret-value" {
		t.Fatalf("stored value = %q, want %q", v, "secret-value")
	}
}

func TestRotateWritesMapOnlyAfterAllEngineOpsSucceed(t *testing.T) {
	ctx := context.Background()
	adapter := swarmengine.NewFakeAdapter()
	engine := NewEngine(adapter)

	secretsMap := NewSecretsMap()
	mapPath := tempMapPath(t)

	requests := []RotateRequest{
		{FlatKey: "ConnectionStrings__Main", Scope: "api", Env: "prod", Key: "connstring", NewValue: []byte("v1"), VersionMode: namesafe.VersionContentSHA, Keep: -1},
		{FlatKey: "ApiKeys__Stripe", Scope: "api", Env: "prod", Key: "stripe", NewValue: []byte("v2"), VersionMode: namesafe.VersionContentSHA, Keep: -1},
	}

	results, err := engine.Rotate(ctx, secretsMap, mapPath, requests)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}

	reloaded, err := LoadSecretsMap(mapPath)
	if err != nil {
		t.Fatalf("LoadSecretsMap() error = %v", err)
	}
	for _, r := range results {
		name, ok := reloaded.Get(r.FlatKey)
		if !ok || name != r.NewName {
			t.Fatalf("persisted map entry for %s = %q, want %q", r.FlatKey, name, r.NewName)
		}
	}
}

func TestRotateDoesNotDoubleScopeSegment(t *testing.T) {
	ctx := context.Background()
	adapter := swarmengine.NewFakeAdapter()
	engine := NewEngine(adapter)

	secretsMap := NewSecretsMap()
	mapPath := tempMapPath(t)

	requests := []RotateRequest{
		{FlatKey: "Db__Password", Scope: "demo", Env: "dev", Key: "db_password", NewValue: []byte("v1"), VersionMode: namesafe.VersionContentSHA, Keep: -1},
	}
	results, err := engine.Rotate(ctx, secretsMap, mapPath, requests)
	if err != nil {
		t.Fatalf("Rotate() error = %v", err)
	}
	want := namesafe.Synthesize("demo", "", "dev", "db_password", namesafe.ContentSHA("v1"))
	if results[0].NewName != want {
		t.Fatalf("NewName = %q, want %q (scope must not appear twice)", results[0].NewName, want)
	}
}

func TestRotatePrunesAfterMapWrite(t *testing.T) {
	ctx := context.Background()
	adapter := swarmengine.NewFakeAdapter()
	tick := time.Unix(1000, 0)
	adapter.Now = func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	}
	engine := NewEngine(adapter)

	secretsMap := NewSecretsMap()
	mapPath := tempMapPath(t)

	for i := 0; i < 3; i++ {
		requests := []RotateRequest{
			{FlatKey: "ConnectionStrings__Main", Scope: "api", Env: "prod", Key: "connstring", NewValue: []byte("v" + string(rune('0'+i))), VersionMode: namesafe.VersionContentSHA, Keep: 2},
		}
		if _, err := engine.Rotate(ctx, secretsMap, mapPath, requests); err != nil {
			t.Fatalf("Rotate() iteration %d error = %v", i, err)
		}
	}

	detailed, err := adapter.ListDetailed(ctx)
	if err != nil {
		t.Fatalf("ListDetailed() error = %v", err)
	}
	if len(detailed) != 2 {
		t.Fatalf("expected prune to retain 2 versions, got %d: %+v", len(detailed), detailed)
	}
}

func tempMapPath(t *testing.T) string {
	t.Helper()
	return t.TempDir() + "/secrets-map.prod.yml"
}
