package compose

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-yaml"

	"swarmbender/pkg/ordered"
)

// ScalarOrList is the {scalar} | {list} union used for command, entrypoint,
// env_file, dns and healthcheck.test.
type ScalarOrList struct {
	Scalar *string
	List   []string
	isList bool // tracks which variant was *chosen*, even for a single-item list
}

// NewScalarOrListScalar builds the scalar variant.
func NewScalarOrListScalar(s string) ScalarOrList { return ScalarOrList{Scalar: &s} }

// NewScalarOrListList builds the list variant.
func NewScalarOrListList(items []string) ScalarOrList {
	return ScalarOrList{List: items, isList: true}
}

// IsList reports which variant is currently held.
func (s ScalarOrList) IsList() bool { return s.isList || s.Scalar == nil }

// Values returns the contents as a slice regardless of variant (empty slice
// for an empty/zero value).
func (s ScalarOrList) Values() []string {
	if s.Scalar != nil {
		return []string{*s.Scalar}
	}
	return s.List
}

func (s *ScalarOrList) UnmarshalYAML(data []byte) error {
	var scalar string
	if err := yaml.Unmarshal(data, &scalar); err == nil {
		s.Scalar = &scalar
		s.isList = false
		return nil
	}
	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		s.List = list
		s.isList = true
		s.Scalar = nil
		return nil
	}
	return fmt.Errorf("value is neither a scalar nor a list of strings")
}

func (s ScalarOrList) MarshalYAML() ([]byte, error) {
	if s.Scalar != nil && !s.isList {
		return yaml.Marshal(*s.Scalar)
	}
	return yaml.Marshal(s.List)
}

// ListOrMap is the {list of "K=V"/"K"} | {map K->V} union used for
// environment and labels.
type ListOrMap struct {
	List  []string
	Map   *ordered.TypedMap[string]
	isMap bool
}

func (lm ListOrMap) IsMap() bool { return lm.isMap }

// ToMap normalizes either variant into an ordered K->V map. List entries
// without "=" map to an empty string value.
func (lm ListOrMap) ToMap() *ordered.TypedMap[string] {
	if lm.isMap && lm.Map != nil {
		return lm.Map
	}
	out := ordered.NewTypedMap[string]()
	for _, item := range lm.List {
		k, v := splitKV(item)
		out.Set(k, v)
	}
	return out
}

// FromMap rebuilds a ListOrMap in the requested variant from a flat map,
// used when re-emitting in the originally-held variant after merge.
func FromMap(m *ordered.TypedMap[string], asMap bool) ListOrMap {
	if asMap {
		return ListOrMap{Map: m, isMap: true}
	}
	list := make([]string, 0, m.Len())
	m.Range(func(k, v string) {
		if v == "" {
			list = append(list, k)
		} else {
			list = append(list, k+"="+v)
		}
	})
	return ListOrMap{List: list}
}

func splitKV(s string) (string, string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:]
		}
	}
	return s, ""
}

func (lm *ListOrMap) UnmarshalYAML(data []byte) error {
	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		lm.List = list
		lm.isMap = false
		return nil
	}
	var raw yaml.MapSlice
	if err := yaml.Unmarshal(data, &raw); err == nil {
		m := ordered.NewTypedMap[string]()
		for _, item := range raw {
			key := fmt.Sprintf("%v", item.Key)
			m.Set(key, scalarToString(item.Value))
		}
		lm.Map = m
		lm.isMap = true
		return nil
	}
	return fmt.Errorf("value is neither a list nor a mapping")
}

func (lm ListOrMap) MarshalYAML() ([]byte, error) {
	if lm.isMap {
		slice := make(yaml.MapSlice, 0, lm.Map.Len())
		lm.Map.Range(func(k, v string) {
			slice = append(slice, yaml.MapItem{Key: k, Value: v})
		})
		return yaml.Marshal(slice)
	}
	return yaml.Marshal(lm.List)
}

func scalarToString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// ExtraHosts is the {list "host:ip"} | {map host->ip} union.
type ExtraHosts struct {
	List  []string
	Map   *ordered.TypedMap[string]
	isMap bool
}

func (eh *ExtraHosts) UnmarshalYAML(data []byte) error {
	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		eh.List = list
		eh.isMap = false
		return nil
	}
	var raw yaml.MapSlice
	if err := yaml.Unmarshal(data, &raw); err == nil {
		m := ordered.NewTypedMap[string]()
		for _, item := range raw {
			m.Set(fmt.Sprintf("%v", item.Key), scalarToString(item.Value))
		}
		eh.Map = m
		eh.isMap = true
		return nil
	}
	return fmt.Errorf("extra_hosts is neither a list nor a mapping")
}

func (eh ExtraHosts) MarshalYAML() ([]byte, error) {
	if eh.isMap {
		slice := make(yaml.MapSlice, 0, eh.Map.Len())
		eh.Map.Range(func(k, v string) {
			slice = append(slice, yaml.MapItem{Key: k, Value: v})
		})
		return yaml.Marshal(slice)
	}
	return yaml.Marshal(eh.List)
}

// NetworkAttachment is the long-form per-service network attachment.
type NetworkAttachment struct {
	Aliases      []string `yaml:"aliases,omitempty"`
	Priority     *int     `yaml:"priority,omitempty"`
	IPv4Address  string   `yaml:"ipv4_address,omitempty"`
	IPv6Address  string   `yaml:"ipv6_address,omitempty"`
	LinkLocalIPs []string `yaml:"link_local_ips,omitempty"`
}

// ServiceNetworks is the {list [name]} | {map name->attachment} union.
type ServiceNetworks struct {
	List  []string
	Map   *ordered.TypedMap[NetworkAttachment]
	isMap bool
}

func (sn *ServiceNetworks) UnmarshalYAML(data []byte) error {
	var list []string
	if err := yaml.Unmarshal(data, &list); err == nil {
		sn.List = list
		sn.isMap = false
		return nil
	}
	var raw map[string]NetworkAttachment
	if err := yaml.Unmarshal(data, &raw); err == nil {
		var order []string
		var keyOrder yaml.MapSlice
		if err := yaml.Unmarshal(data, &keyOrder); err == nil {
			for _, item := range keyOrder {
				order = append(order, fmt.Sprintf("%v", item.Key))
			}
		}
		m := ordered.NewTypedMap[NetworkAttachment]()
		for _, k := range order {
			m.Set(k, raw[k])
		}
		sn.Map = m
		sn.isMap = true
		return nil
	}
	return fmt.Errorf("networks is neither a list nor a mapping")
}

func (sn ServiceNetworks) MarshalYAML() ([]byte, error) {
	if sn.isMap {
		slice := make(yaml.MapSlice, 0, sn.Map.Len())
		sn.Map.Range(func(k string, v NetworkAttachment) {
			slice = append(slice, yaml.MapItem{Key: k, Value: v})
		})
		return yaml.Marshal(slice)
	}
	return yaml.Marshal(sn.List)
}

// ExternalDef is the {bool} | {name: string} union; it collapses to truthy
// "external" iff either variant signals so.
type ExternalDef struct {
	Bool bool
	Name string
}

func (e ExternalDef) External() bool { return e.Bool || e.Name != "" }

func (e *ExternalDef) UnmarshalYAML(data []byte) error {
	var b bool
	if err := yaml.Unmarshal(data, &b); err == nil {
		e.Bool = b
		return nil
	}
	var named struct {
		Name string `yaml:"name"`
	}
	if err := yaml.Unmarshal(data, &named); err == nil {
		e.Name = named.Name
		return nil
	}
	return fmt.Errorf("external is neither a bool nor {name: ...}")
}

func (e ExternalDef) MarshalYAML() ([]byte, error) {
	if e.Name != "" {
		return yaml.Marshal(map[string]string{"name": e.Name})
	}
	return yaml.Marshal(e.Bool)
}

// UlimitEntry is the {single int} | {soft,hard int} union.
type UlimitEntry struct {
	Single *int
	Soft   int
	Hard   int
}

func (u *UlimitEntry) UnmarshalYAML(data []byte) error {
	var single int
	if err := yaml.Unmarshal(data, &single); err == nil {
		u.Single = &single
		return nil
	}
	var pair struct {
		Soft int `yaml:"soft"`
		Hard int `yaml:"hard"`
	}
	if err := yaml.Unmarshal(data, &pair); err == nil {
		u.Soft = pair.Soft
		u.Hard = pair.Hard
		return nil
	}
	return fmt.Errorf("ulimit entry is neither an int nor {soft,hard}")
}

func (u UlimitEntry) MarshalYAML() ([]byte, error) {
	if u.Single != nil {
		return yaml.Marshal(*u.Single)
	}
	return yaml.Marshal(map[string]int{"soft": u.Soft, "hard": u.Hard})
}

// PortSpec is the {"published:target/protocol"} | {long form object} union
// used for a service's ports entries.
type PortSpec struct {
	Short string
	Long  *PortLong
}

// PortLong is the long-form port mapping object.
type PortLong struct {
	Target    uint32 `yaml:"target,omitempty"`
	Published string `yaml:"published,omitempty"`
	Protocol  string `yaml:"protocol,omitempty"`
	Mode      string `yaml:"mode,omitempty"`
}

// IsLong reports which variant is currently held.
func (p PortSpec) IsLong() bool { return p.Long != nil }

func (p *PortSpec) UnmarshalYAML(data []byte) error {
	var short string
	if err := yaml.Unmarshal(data, &short); err == nil {
		p.Short = short
		p.Long = nil
		return nil
	}
	var long PortLong
	if err := yaml.Unmarshal(data, &long); err == nil {
		p.Long = &long
		return nil
	}
	return fmt.Errorf("port entry is neither a short-form string nor a long-form mapping")
}

func (p PortSpec) MarshalYAML() ([]byte, error) {
	if p.Long != nil {
		return yaml.Marshal(*p.Long)
	}
	return yaml.Marshal(p.Short)
}

// MountSpec is the {"host:container[:mode]"} | {long form object} union used
// for a service's volumes entries.
type MountSpec struct {
	Short string
	Long  *MountLong
}

// MountLong is the long-form bind/volume mount object.
type MountLong struct {
	Type     string         `yaml:"type,omitempty"`
	Source   string         `yaml:"source,omitempty"`
	Target   string         `yaml:"target,omitempty"`
	ReadOnly bool           `yaml:"read_only,omitempty"`
	Volume   *VolumeOptions `yaml:"volume,omitempty"`
	Bind     *BindOptions   `yaml:"bind,omitempty"`
}

// VolumeOptions holds driver-specific behavior for a "volume"-type mount.
type VolumeOptions struct {
	NoCopy bool `yaml:"nocopy,omitempty"`
}

// BindOptions holds driver-specific behavior for a "bind"-type mount.
type BindOptions struct {
	Propagation string `yaml:"propagation,omitempty"`
}

// IsLong reports which variant is currently held.
func (m MountSpec) IsLong() bool { return m.Long != nil }

func (m *MountSpec) UnmarshalYAML(data []byte) error {
	var short string
	if err := yaml.Unmarshal(data, &short); err == nil {
		m.Short = short
		m.Long = nil
		return nil
	}
	var long MountLong
	if err := yaml.Unmarshal(data, &long); err == nil {
		m.Long = &long
		return nil
	}
	return fmt.Errorf("volume entry is neither a short-form string nor a long-form mapping")
}

func (m MountSpec) MarshalYAML() ([]byte, error) {
	if m.Long != nil {
		return yaml.Marshal(*m.Long)
	}
	return yaml.Marshal(m.Short)
}

// Sysctls is a name->string mapping; numeric scalars are normalized to
// string on decode.
type Sysctls struct {
	Map *ordered.TypedMap[string]
}

func (s *Sysctls) UnmarshalYAML(data []byte) error {
	var raw yaml.MapSlice
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("sysctls is not a mapping: %w", err)
	}
	m := ordered.NewTypedMap[string]()
	for _, item := range raw {
		m.Set(fmt.Sprintf("%v", item.Key), scalarToString(item.Value))
	}
	s.Map = m
	return nil
}

func (s Sysctls) MarshalYAML() ([]byte, error) {
	if s.Map == nil {
		return yaml.Marshal(map[string]string{})
	}
	slice := make(yaml.MapSlice, 0, s.Map.Len())
	s.Map.Range(func(k, v string) {
		slice = append(slice, yaml.MapItem{Key: k, Value: v})
	})
	return yaml.Marshal(slice)
}
