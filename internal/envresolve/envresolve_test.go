package envresolve

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveLastWinsOrder(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "base.env")
	if err := os.WriteFile(envFile, []byte("LOG_LEVEL=debug\nSHARED=from-file\n"), 0o644); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	r := &Resolver{Lookup: func(key string) (string, bool) {
		if key == "HOST_SECRET" {
			return "from-host", true
		}
		return "", false
	}}

	got, err := r.Resolve(
		[]string{envFile},
		map[string]string{"SHARED": "from-service"},
		map[string]string{"SHARED": "from-overlay", "EXTRA": "from-overlay"},
		[]string{"HOST_SECRET", "NOT_SET"},
	)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}

	if v, _ := got.Get("LOG_LEVEL"); v != "debug" {
		t.Fatalf("LOG_LEVEL = %q, want debug (only set by env_file)", v)
	}
	if v, _ := got.Get("SHARED"); v != "from-overlay" {
		t.Fatalf("SHARED = %q, want from-overlay (overlay wins over service env and env_file)", v)
	}
	if v, _ := got.Get("EXTRA"); v != "from-overlay" {
		t.Fatalf("EXTRA = %q, want from-overlay", v)
	}
	if v, _ := got.Get("HOST_SECRET"); v != "from-host" {
		t.Fatalf("HOST_SECRET = %q, want from-host", v)
	}
	if _, ok := got.Get("NOT_SET"); ok {
		t.Fatal("NOT_SET should be absent: not present in the fake host environment")
	}
}

func TestLoadAllowlistArrayAndObject(t *testing.T) {
	dir := t.TempDir()
	arrPath := filepath.Join(dir, "array.json")
	objPath := filepath.Join(dir, "object.json")
	if err := os.WriteFile(arrPath, []byte(`["A", "B"]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(objPath, []byte(`{"A": true, "B": true}`), 0o644); err != nil {
		t.Fatal(err)
	}

	arr, err := LoadAllowlist(arrPath)
	if err != nil || len(arr) != 2 {
		t.Fatalf("LoadAllowlist(array) = %v, %v", arr, err)
	}
	obj, err := LoadAllowlist(objPath)
	if err != nil || len(obj) != 2 {
		t.Fatalf("LoadAllowlist(object) = %v, %v", obj, err)
	}
}

func TestLoadAllowlistMissingFileIsEmpty(t *testing.T) {
	got, err := LoadAllowlist(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("missing allowlist should not error: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %v, want empty", got)
	}
}

func TestLoadAppSettingsFlattens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "appsettings.json")
	if err := os.WriteFile(path, []byte(`{"ConnectionStrings":{"Main":"Server=db"},"Redis":{"Hosts":["a","b"]}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadAppSettings(path)
	if err != nil {
		t.Fatalf("LoadAppSettings() error = %v", err)
	}
	if got["ConnectionStrings__Main"] != "Server=db" {
		t.Fatalf("ConnectionStrings__Main = %q", got["ConnectionStrings__Main"])
	}
	if got["Redis__Hosts__0"] != "a" || got["Redis__Hosts__1"] != "b" {
		t.Fatalf("Redis__Hosts flattening = %#v", got)
	}
}
