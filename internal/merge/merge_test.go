package merge

import (
	"reflect"
	"testing"

	"swarmbender/internal/compose"
	"swarmbender/pkg/ordered"
)

func rawOf(t *testing.T, doc string) *ordered.Map {
	t.Helper()
	m, err := compose.RawFromBytes([]byte(doc))
	if err != nil {
		t.Fatalf("RawFromBytes() error = %v", err)
	}
	return m
}

func TestMergeAssociativity(t *testing.T) {
	base := rawOf(t, "services:\n  api:\n    image: base:1\n")
	a := rawOf(t, "services:\n  api:\n    hostname: a-host\n")
	b := rawOf(t, "networks:\n  public:\n    driver: overlay\n")
	c := rawOf(t, "services:\n  worker:\n    image: worker:1\n")

	left := Merge(Merge(Merge(base, a), b), c)
	right := Merge(base, Merge(a, Merge(b, c)))

	leftBytes := mustMarshal(t, left)
	rightBytes := mustMarshal(t, right)
	if !reflect.DeepEqual(leftBytes, rightBytes) {
		t.Fatalf("merge is not associative over disjoint overlays:\nleft:\n%s\nright:\n%s", leftBytes, rightBytes)
	}
}

func TestMergeOverlayOverride(t *testing.T) {
	base := rawOf(t, "services:\n  api:\n    image: base:1\n    hostname: base-host\n")
	overlay := rawOf(t, "services:\n  api:\n    image: override:2\n")

	result := Merge(base, overlay).(*ordered.Map)
	svc := getMap(t, result, "services")
	apiSvc := getMap(t, svc, "api")

	if v, _ := apiSvc.Get("image"); v != "override:2" {
		t.Fatalf("image = %v, want override:2", v)
	}
	if v, _ := apiSvc.Get("hostname"); v != "base-host" {
		t.Fatalf("hostname = %v, want base-host (base-only key must survive)", v)
	}
}

func TestMergeSequenceReplacesWholesale(t *testing.T) {
	base := rawOf(t, "services:\n  api:\n    ports:\n      - \"8080:8080\"\n      - \"9090:9090\"\n")
	overlay := rawOf(t, "services:\n  api:\n    ports:\n      - \"8081:8081\"\n")

	result := Merge(base, overlay).(*ordered.Map)
	apiSvc := getMap(t, getMap(t, result, "services"), "api")
	ports, _ := apiSvc.Get("ports")
	list, ok := ports.([]any)
	if !ok || len(list) != 1 || list[0] != "8081:8081" {
		t.Fatalf("ports = %#v, want wholesale-replaced single-element list", ports)
	}
}

func TestExpandWildcardServices(t *testing.T) {
	working := rawOf(t, "services:\n  api:\n    image: api:1\n  worker:\n    image: worker:1\n")
	overlay := rawOf(t, "services:\n  \"*\":\n    labels:\n      owner: swarmbender\n")

	ExpandWildcardServices(working, overlay)

	overlayServices := getMap(t, overlay, "services")
	if _, ok := overlayServices.Get("*"); ok {
		t.Fatal("wildcard entry should have been discarded")
	}
	for _, svc := range []string{"api", "worker"} {
		entry, ok := overlayServices.Get(svc)
		if !ok {
			t.Fatalf("expected wildcard to expand into service %q", svc)
		}
		m, ok := entry.(*ordered.Map)
		if !ok {
			t.Fatalf("expanded entry for %q is not a map", svc)
		}
		labels := getMap(t, m, "labels")
		if v, _ := labels.Get("owner"); v != "swarmbender" {
			t.Fatalf("expanded labels = %#v", labels)
		}
	}
}

func getMap(t *testing.T, m *ordered.Map, key string) *ordered.Map {
	t.Helper()
	v, ok := m.Get(key)
	if !ok {
		t.Fatalf("missing key %q", key)
	}
	sub, ok := v.(*ordered.Map)
	if !ok {
		t.Fatalf("key %q is not a map: %#v", key, v)
	}
	return sub
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	m, ok := v.(*ordered.Map)
	if !ok {
		t.Fatalf("value is not a map: %#v", v)
	}
	b, err := m.MarshalYAML()
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	return b
}
