package compose

import (
	"github.com/goccy/go-yaml"

	"swarmbender/pkg/ordered"
)

// ToRaw flattens a ComposeFile (or any overlay fragment byte source) into the
// generic ordered.Map tree the Merge Engine folds overlays on top of. It
// round-trips through YAML bytes so every union-type MarshalYAML hook runs,
// keeping the raw tree in plain scalar/list/map form.
func ToRaw(doc *ComposeFile) (*ordered.Map, error) {
	data, err := Encode(doc)
	if err != nil {
		return nil, err
	}
	return RawFromBytes(data)
}

// RawFromBytes parses arbitrary compose-shaped YAML (a full document or a
// partial overlay fragment) directly into a raw ordered tree, without going
// through the typed ComposeFile schema. Overlay fragments are not required
// to be valid complete documents, so this bypasses schema validation.
func RawFromBytes(data []byte) (*ordered.Map, error) {
	var om ordered.Map
	if err := om.UnmarshalYAML(data); err != nil {
		return nil, &MalformedDocument{Cause: err}
	}
	return &om, nil
}

// FromRaw decodes a merged raw tree back into the typed ComposeFile schema,
// invoking every union type's UnmarshalYAML hook along the way.
func FromRaw(raw *ordered.Map) (*ComposeFile, error) {
	data, err := raw.MarshalYAML()
	if err != nil {
		return nil, err
	}
	var doc ComposeFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &MalformedDocument{Cause: err}
	}
	return &doc, nil
}
