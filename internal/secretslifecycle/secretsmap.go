package secretslifecycle

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	"swarmbender/pkg/fsatomic"
	"swarmbender/pkg/ordered"
)

// SecretsMap is the persisted flat-key -> external-name mapping consumed by
// the render pipeline's SecretsAttach stage.
type SecretsMap struct {
	entries map[string]string
}

// NewSecretsMap returns an empty map.
func NewSecretsMap() *SecretsMap {
	return &SecretsMap{entries: make(map[string]string)}
}

// Get returns the external name for flatKey.
func (m *SecretsMap) Get(flatKey string) (string, bool) {
	v, ok := m.entries[flatKey]
	return v, ok
}

// Set records flatKey's external name, overwriting any previous value.
func (m *SecretsMap) Set(flatKey, externalName string) {
	m.entries[flatKey] = externalName
}

// Delete removes flatKey from the map.
func (m *SecretsMap) Delete(flatKey string) {
	delete(m.entries, flatKey)
}

// Keys returns the map's flat keys, sorted case-insensitively (the map's
// on-disk order).
func (m *SecretsMap) Keys() []string {
	keys := make([]string, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.ToLower(keys[i]) < strings.ToLower(keys[j])
	})
	return keys
}

// Clone returns a deep copy.
func (m *SecretsMap) Clone() *SecretsMap {
	out := NewSecretsMap()
	for k, v := range m.entries {
		out.entries[k] = v
	}
	return out
}

// LoadSecretsMap reads a secrets-map.<env>.yml file. A missing file is not
// an error: it returns an empty map, since a stack may not have synced
// secrets yet.
func LoadSecretsMap(path string) (*SecretsMap, error) {
	data, err := readFileOrEmpty(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return NewSecretsMap(), nil
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse secrets map %s: %w", path, err)
	}
	m := NewSecretsMap()
	for k, v := range raw {
		m.entries[k] = v
	}
	return m, nil
}

// Save writes the map back out, keys sorted case-insensitively ascending,
// using write-temp-then-rename so readers never observe a partial file.
func (m *SecretsMap) Save(path string) error {
	om := ordered.NewTypedMap[string]()
	for _, k := range m.Keys() {
		om.Set(k, m.entries[k])
	}
	data, err := om.MarshalYAML()
	if err != nil {
		return fmt.Errorf("failed to marshal secrets map: %w", err)
	}
	if err := fsatomic.WriteFile(path, data, 0o644); err != nil {
		return &MapWriteError{Cause: err}
	}
	return nil
}

func readFileOrEmpty(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// MapWriteError means the secrets map's write-temp-then-rename failed.
type MapWriteError struct {
	Cause error
}

func (e *MapWriteError) Error() string { return fmt.Sprintf("secrets map write failed: %v", e.Cause) }
func (e *MapWriteError) Unwrap() error { return e.Cause }
