package flatten

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestFlattenAndUnflatten(t *testing.T) {
	input := `{"ConnectionStrings":{"Main":"x"},"Redis":{"Hosts":["a","b"]}}`

	var v any
	if err := json.Unmarshal([]byte(input), &v); err != nil {
		t.Fatalf("failed to unmarshal fixture: %v", err)
	}

	flat := Flatten(v)
	want := map[string]string{
		"ConnectionStrings__Main": "x",
		"Redis__Hosts__0":         "a",
		"Redis__Hosts__1":         "b",
	}
	if !reflect.DeepEqual(flat, want) {
		t.Fatalf("Flatten() = %#v, want %#v", flat, want)
	}

	restored := Unflatten(flat)
	wantRestored := map[string]any{
		"ConnectionStrings": map[string]any{"Main": "x"},
		"Redis":             map[string]any{"Hosts": []any{"a", "b"}},
	}
	if !reflect.DeepEqual(restored, wantRestored) {
		t.Fatalf("Unflatten() = %#v, want %#v", restored, wantRestored)
	}
}

func TestUnflattenMixedKeysStaysMap(t *testing.T) {
	flat := map[string]string{
		"X__0":    "a",
		"X__name": "b",
	}
	restored := Unflatten(flat)
	x, ok := restored["X"].(map[string]any)
	if !ok {
		t.Fatalf("expected X to stay a map, got %T", restored["X"])
	}
	if x["0"] != "a" || x["name"] != "b" {
		t.Fatalf("unexpected map contents: %#v", x)
	}
}

func TestFlattenScalars(t *testing.T) {
	var v any
	if err := json.Unmarshal([]byte(`{"Port":8080,"Enabled":true,"Nothing":null}`), &v); err != nil {
		t.Fatalf("failed to unmarshal fixture: %v", err)
	}
	flat := Flatten(v)
	want := map[string]string{"Port": "8080", "Enabled": "true", "Nothing": ""}
	if !reflect.DeepEqual(flat, want) {
		t.Fatalf("Flatten() = %#v, want %#v", flat, want)
	}
}
