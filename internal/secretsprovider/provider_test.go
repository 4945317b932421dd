package secretsprovider

import (
	"os"
	"path/filepath"
	"testing"

	"swarmbender/pkg/ordered"
)

// FakeProvider is a deterministic in-memory Provider for hub ordering tests.
type FakeProvider struct {
	name  string
	order []string
	data  map[string]string
}

func (f FakeProvider) Name() string { return f.name }

func (f FakeProvider) Get(root, scope, env string) (*ordered.TypedMap[string], error) {
	out := ordered.NewTypedMap[string]()
	for _, k := range f.order {
		out.Set(k, f.data[k])
	}
	return out, nil
}

func TestFileProviderReadsSecretFiles(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "secrets", "files", "billing", "prod")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "api-key.secret"), []byte("s3cr3t\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	p := FileProvider{}
	got, err := p.Get(root, "billing", "prod")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	v, ok := got.Get("api-key")
	if !ok || v != "s3cr3t" {
		t.Fatalf("api-key = %q, ok=%v", v, ok)
	}
}

func TestEnvProviderSortsKeys(t *testing.T) {
	p := EnvProvider{Environ: func() []string {
		return []string{"ZEBRA=z", "ALPHA=a"}
	}}
	got, err := p.Get("", "scope", "env")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	keys := got.Keys()
	if len(keys) != 2 || keys[0] != "ALPHA" || keys[1] != "ZEBRA" {
		t.Fatalf("Keys() = %v, want sorted [ALPHA ZEBRA]", keys)
	}
}

func TestHubAggregateLastWinsFirstPosition(t *testing.T) {
	first := FakeProvider{name: "first", data: map[string]string{"A": "1", "B": "2"}, order: []string{"A", "B"}}
	second := FakeProvider{name: "second", data: map[string]string{"B": "override", "C": "3"}, order: []string{"B", "C"}}
	hub := &Hub{Providers: []Provider{first, second}}

	got, err := hub.Aggregate("", "scope", "env")
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	keys := got.Keys()
	if len(keys) != 3 || keys[0] != "A" || keys[1] != "B" || keys[2] != "C" {
		t.Fatalf("Keys() = %v, want [A B C] (position fixed by first provider)", keys)
	}
	if v, _ := got.Get("B"); v != "override" {
		t.Fatalf("B = %q, want override (last provider wins on value)", v)
	}
}

func TestFilterIncludeGlobs(t *testing.T) {
	agg := ordered.NewTypedMap[string]()
	agg.Set("Kafka__Bootstrap", "x")
	agg.Set("Db__Password", "y")

	got := Filter(agg, Policy{IncludeGlobs: []string{"Kafka__*"}})
	if got.Len() != 1 {
		t.Fatalf("Filter() kept %d keys, want 1", got.Len())
	}
	if _, ok := got.Get("Kafka__Bootstrap"); !ok {
		t.Fatal("expected Kafka__Bootstrap to pass the include filter")
	}
}

func TestFilterNormalizesDottedAndColonGlobs(t *testing.T) {
	agg := ordered.NewTypedMap[string]()
	agg.Set("Db__Password", "y")
	agg.Set("Kafka__Bootstrap", "x")

	dotted := Filter(agg, Policy{IncludeGlobs: []string{"Db.Password"}})
	if _, ok := dotted.Get("Db__Password"); !ok || dotted.Len() != 1 {
		t.Fatalf("dotted glob should match flattened key, got %v keys", dotted.Keys())
	}

	colon := Filter(agg, Policy{IncludeGlobs: []string{"Db:Password"}})
	if _, ok := colon.Get("Db__Password"); !ok || colon.Len() != 1 {
		t.Fatalf("colon glob should match flattened key, got %v keys", colon.Keys())
	}
}

func TestExternalKeyRenameReplaceTemplate(t *testing.T) {
	policy := Policy{
		RenameMap:    map[string]string{"Special__Key": "special-override"},
		ReplaceRules: []ReplaceRule{{From: "__", To: "-"}},
		KeyTemplate:  "{scope}/{key}",
	}
	if got := ExternalKey("Special__Key", policy, "svc"); got != "special-override" {
		t.Fatalf("rename override = %q", got)
	}
	if got := ExternalKey("Kafka__Bootstrap", policy, "svc"); got != "svc/Kafka-Bootstrap" {
		t.Fatalf("templated key = %q, want svc/Kafka-Bootstrap", got)
	}
	if got := ReverseKey("Kafka-Bootstrap", policy); got != "Kafka__Bootstrap" {
		t.Fatalf("ReverseKey() = %q, want Kafka__Bootstrap", got)
	}
}
