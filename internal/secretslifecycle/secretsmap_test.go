package secretslifecycle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadSecretsMapMissingFileIsEmpty(t *testing.T) {
	m, err := LoadSecretsMap(filepath.Join(t.TempDir(), "does-not-exist.yml"))
	if err != nil {
		t.Fatalf("LoadSecretsMap() error = %v", err)
	}
	if len(m.Keys()) != 0 {
		t.Fatalf("expected empty map, got %v", m.Keys())
	}
}

func TestSaveLoadRoundTripSortedKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets-map.prod.yml")
	m := NewSecretsMap()
	m.Set("Zebra__Key", "sb_global_prod_zebra_abc")
	m.Set("alpha__key", "sb_global_prod_alpha_def")
	m.Set("Middle__Key", "sb_global_prod_middle_ghi")

	if err := m.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	content := string(raw)
	alphaIdx := strings.Index(content, "alpha__key")
	middleIdx := strings.Index(content, "Middle__Key")
	zebraIdx := strings.Index(content, "Zebra__Key")
	if !(alphaIdx < middleIdx && middleIdx < zebraIdx) {
		t.Fatalf("expected case-insensitive sorted order alpha < middle < zebra, got:\n%s", content)
	}

	reloaded, err := LoadSecretsMap(path)
	if err != nil {
		t.Fatalf("LoadSecretsMap() error = %v", err)
	}
	name, ok := reloaded.Get("alpha__key")
	if !ok || name != "sb_global_prod_alpha_def" {
		t.Fatalf("reloaded alpha__key = %q, %v", name, ok)
	}
}

func TestSecretsMapCloneIndependence(t *testing.T) {
	m := NewSecretsMap()
	m.Set("k", "v1")
	clone := m.Clone()
	clone.Set("k", "v2")
	if v, _ := m.Get("k"); v != "v1" {
		t.Fatalf("original map mutated by clone: %v", v)
	}
}

func TestSecretsMapDelete(t *testing.T) {
	m := NewSecretsMap()
	m.Set("k", "v")
	m.Delete("k")
	if _, ok := m.Get("k"); ok {
		t.Fatalf("expected key to be deleted")
	}
}
