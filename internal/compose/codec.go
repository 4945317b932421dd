// Package compose models the deploy-stack compose document: a lossless,
// order-preserving representation that round-trips through decode, merge and
// re-encode without dropping or reordering fields the schema doesn't know
// about.
package compose

import (
	"fmt"

	"github.com/goccy/go-yaml"

	"swarmbender/pkg/ordered"
)

var composeFileKnownKeys = []string{"version", "name", "services", "networks", "volumes", "secrets", "configs"}
var serviceKnownKeys = []string{
	"image", "command", "entrypoint", "environment", "labels", "env_file",
	"extra_hosts", "networks", "ports", "volumes", "secrets", "configs",
	"ulimits", "sysctls", "logging", "healthcheck", "deploy", "hostname",
	"user", "working_dir", "stop_signal", "stop_grace_period", "tty",
	"stdin_open", "depends_on", "dns", "dns_search", "dns_opt", "cap_add",
	"cap_drop", "devices", "tmpfs", "profiles",
}
var networkKnownKeys = []string{"driver", "driver_opts", "ipam", "external", "internal", "attachable", "labels"}
var volumeKnownKeys = []string{"driver", "driver_opts", "external", "labels"}
var secretDefKnownKeys = []string{"file", "external", "labels", "name"}

// Decode parses a compose document's bytes into a ComposeFile. path is used
// only to annotate errors.
func Decode(data []byte, path string) (*ComposeFile, error) {
	var raw ordered.Map
	if err := raw.UnmarshalYAML(data); err != nil {
		return nil, &MalformedDocument{Path: path, Cause: err}
	}
	if services, ok := raw.Get("services"); ok && services != nil {
		servicesMap, isMap := services.(*ordered.Map)
		if !isMap {
			return nil, &SchemaViolation{Path: path, Detail: "services is not a mapping"}
		}
		for _, name := range servicesMap.Keys() {
			if svc, _ := servicesMap.Get(name); svc != nil {
				if _, isMap := svc.(*ordered.Map); !isMap {
					return nil, &SchemaViolation{Path: path, Detail: fmt.Sprintf("service %q is not a mapping", name)}
				}
			}
		}
	}
	var doc ComposeFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &MalformedDocument{Path: path, Cause: err}
	}
	if doc.Services != nil {
		keys := doc.Services.Keys()
		seen := make(map[string]bool, len(keys))
		for _, k := range keys {
			if seen[k] {
				return nil, &SchemaViolation{Path: path, Detail: fmt.Sprintf("duplicate service key %q", k)}
			}
			seen[k] = true
		}
	}
	return &doc, nil
}

// Encode re-emits a ComposeFile as canonical YAML bytes.
func Encode(doc *ComposeFile) ([]byte, error) {
	return yaml.MarshalWithOptions(doc, yaml.Indent(2))
}

type composeFileShadow struct {
	Version  string                       `yaml:"version,omitempty"`
	Name     string                       `yaml:"name,omitempty"`
	Services *ordered.TypedMap[Service]   `yaml:"services,omitempty"`
	Networks *ordered.TypedMap[Network]   `yaml:"networks,omitempty"`
	Volumes  *ordered.TypedMap[Volume]    `yaml:"volumes,omitempty"`
	Secrets  *ordered.TypedMap[SecretDef] `yaml:"secrets,omitempty"`
	Configs  *ordered.TypedMap[SecretDef] `yaml:"configs,omitempty"`
}

func (c *ComposeFile) UnmarshalYAML(data []byte) error {
	var om ordered.Map
	if err := om.UnmarshalYAML(data); err != nil {
		return err
	}
	var shadow composeFileShadow
	if err := yaml.Unmarshal(data, &shadow); err != nil {
		return err
	}
	c.Version = shadow.Version
	c.Name = shadow.Name
	c.Services = shadow.Services
	c.Networks = shadow.Networks
	c.Volumes = shadow.Volumes
	c.Secrets = shadow.Secrets
	c.Configs = shadow.Configs
	for _, k := range composeFileKnownKeys {
		om.Delete(k)
	}
	c.Extra = &om
	return nil
}

func (c ComposeFile) MarshalYAML() ([]byte, error) {
	shadow := composeFileShadow{
		Version: c.Version, Name: c.Name, Services: c.Services,
		Networks: c.Networks, Volumes: c.Volumes, Secrets: c.Secrets, Configs: c.Configs,
	}
	return marshalWithExtra(shadow, c.Extra)
}

type serviceShadow struct {
	Image           string                 `yaml:"image,omitempty"`
	Command         *ScalarOrList          `yaml:"command,omitempty"`
	Entrypoint      *ScalarOrList          `yaml:"entrypoint,omitempty"`
	Environment     *ListOrMap             `yaml:"environment,omitempty"`
	Labels          *ListOrMap             `yaml:"labels,omitempty"`
	EnvFile         *ScalarOrList          `yaml:"env_file,omitempty"`
	ExtraHosts      *ExtraHosts            `yaml:"extra_hosts,omitempty"`
	Networks        *ServiceNetworks       `yaml:"networks,omitempty"`
	Ports           []PortSpec             `yaml:"ports,omitempty"`
	Volumes         []MountSpec            `yaml:"volumes,omitempty"`
	Secrets         []ServiceSecretRef     `yaml:"secrets,omitempty"`
	Configs         []ServiceSecretRef     `yaml:"configs,omitempty"`
	Ulimits         map[string]UlimitEntry `yaml:"ulimits,omitempty"`
	Sysctls         *Sysctls               `yaml:"sysctls,omitempty"`
	Logging         *Logging               `yaml:"logging,omitempty"`
	HealthCheck     *HealthCheck           `yaml:"healthcheck,omitempty"`
	Deploy          *Deploy                `yaml:"deploy,omitempty"`
	Hostname        string                 `yaml:"hostname,omitempty"`
	User            string                 `yaml:"user,omitempty"`
	WorkingDir      string                 `yaml:"working_dir,omitempty"`
	StopSignal      string                 `yaml:"stop_signal,omitempty"`
	StopGracePeriod string                 `yaml:"stop_grace_period,omitempty"`
	Tty             bool                   `yaml:"tty,omitempty"`
	StdinOpen       bool                   `yaml:"stdin_open,omitempty"`
	DependsOn       *ScalarOrList          `yaml:"depends_on,omitempty"`
	DNS             *ScalarOrList          `yaml:"dns,omitempty"`
	DNSSearch       *ScalarOrList          `yaml:"dns_search,omitempty"`
	DNSOpt          []string               `yaml:"dns_opt,omitempty"`
	CapAdd          []string               `yaml:"cap_add,omitempty"`
	CapDrop         []string               `yaml:"cap_drop,omitempty"`
	Devices         []string               `yaml:"devices,omitempty"`
	Tmpfs           *ScalarOrList          `yaml:"tmpfs,omitempty"`
	Profiles        []string               `yaml:"profiles,omitempty"`
}

func (s *Service) UnmarshalYAML(data []byte) error {
	var om ordered.Map
	if err := om.UnmarshalYAML(data); err != nil {
		return err
	}
	var shadow serviceShadow
	if err := yaml.Unmarshal(data, &shadow); err != nil {
		return err
	}
	s.Image = shadow.Image
	s.Command = shadow.Command
	s.Entrypoint = shadow.Entrypoint
	s.Environment = shadow.Environment
	s.Labels = shadow.Labels
	s.EnvFile = shadow.EnvFile
	s.ExtraHosts = shadow.ExtraHosts
	s.Networks = shadow.Networks
	s.Ports = shadow.Ports
	s.Volumes = shadow.Volumes
	s.Secrets = shadow.Secrets
	s.Configs = shadow.Configs
	s.Ulimits = shadow.Ulimits
	s.Sysctls = shadow.Sysctls
	s.Logging = shadow.Logging
	s.HealthCheck = shadow.HealthCheck
	s.Deploy = shadow.Deploy
	s.Hostname = shadow.Hostname
	s.User = shadow.User
	s.WorkingDir = shadow.WorkingDir
	s.StopSignal = shadow.StopSignal
	s.StopGracePeriod = shadow.StopGracePeriod
	s.Tty = shadow.Tty
	s.StdinOpen = shadow.StdinOpen
	s.DependsOn = shadow.DependsOn
	s.DNS = shadow.DNS
	s.DNSSearch = shadow.DNSSearch
	s.DNSOpt = shadow.DNSOpt
	s.CapAdd = shadow.CapAdd
	s.CapDrop = shadow.CapDrop
	s.Devices = shadow.Devices
	s.Tmpfs = shadow.Tmpfs
	s.Profiles = shadow.Profiles
	for _, k := range serviceKnownKeys {
		om.Delete(k)
	}
	s.Extra = &om
	return nil
}

func (s Service) MarshalYAML() ([]byte, error) {
	shadow := serviceShadow{
		Image: s.Image, Command: s.Command, Entrypoint: s.Entrypoint,
		Environment: s.Environment, Labels: s.Labels, EnvFile: s.EnvFile,
		ExtraHosts: s.ExtraHosts, Networks: s.Networks, Ports: s.Ports,
		Volumes: s.Volumes, Secrets: s.Secrets, Configs: s.Configs,
		Ulimits: s.Ulimits, Sysctls: s.Sysctls, Logging: s.Logging,
		HealthCheck: s.HealthCheck, Deploy: s.Deploy, Hostname: s.Hostname,
		User: s.User, WorkingDir: s.WorkingDir, StopSignal: s.StopSignal,
		StopGracePeriod: s.StopGracePeriod, Tty: s.Tty, StdinOpen: s.StdinOpen,
		DependsOn: s.DependsOn, DNS: s.DNS, DNSSearch: s.DNSSearch,
		DNSOpt: s.DNSOpt, CapAdd: s.CapAdd, CapDrop: s.CapDrop,
		Devices: s.Devices, Tmpfs: s.Tmpfs, Profiles: s.Profiles,
	}
	return marshalWithExtra(shadow, s.Extra)
}

type networkShadow struct {
	Driver     string            `yaml:"driver,omitempty"`
	DriverOpts map[string]string `yaml:"driver_opts,omitempty"`
	IPAM       *IPAM             `yaml:"ipam,omitempty"`
	External   *ExternalDef      `yaml:"external,omitempty"`
	Internal   bool              `yaml:"internal,omitempty"`
	Attachable bool              `yaml:"attachable,omitempty"`
	Labels     *ListOrMap        `yaml:"labels,omitempty"`
}

func (n *Network) UnmarshalYAML(data []byte) error {
	var om ordered.Map
	if err := om.UnmarshalYAML(data); err != nil {
		return err
	}
	var shadow networkShadow
	if err := yaml.Unmarshal(data, &shadow); err != nil {
		return err
	}
	n.Driver = shadow.Driver
	n.DriverOpts = shadow.DriverOpts
	n.IPAM = shadow.IPAM
	n.External = shadow.External
	n.Internal = shadow.Internal
	n.Attachable = shadow.Attachable
	n.Labels = shadow.Labels
	for _, k := range networkKnownKeys {
		om.Delete(k)
	}
	n.Extra = &om
	return nil
}

func (n Network) MarshalYAML() ([]byte, error) {
	shadow := networkShadow{
		Driver: n.Driver, DriverOpts: n.DriverOpts, IPAM: n.IPAM,
		External: n.External, Internal: n.Internal, Attachable: n.Attachable, Labels: n.Labels,
	}
	return marshalWithExtra(shadow, n.Extra)
}

type volumeShadow struct {
	Driver     string            `yaml:"driver,omitempty"`
	DriverOpts map[string]string `yaml:"driver_opts,omitempty"`
	External   *ExternalDef      `yaml:"external,omitempty"`
	Labels     *ListOrMap        `yaml:"labels,omitempty"`
}

func (v *Volume) UnmarshalYAML(data []byte) error {
	var om ordered.Map
	if err := om.UnmarshalYAML(data); err != nil {
		return err
	}
	var shadow volumeShadow
	if err := yaml.Unmarshal(data, &shadow); err != nil {
		return err
	}
	v.Driver = shadow.Driver
	v.DriverOpts = shadow.DriverOpts
	v.External = shadow.External
	v.Labels = shadow.Labels
	for _, k := range volumeKnownKeys {
		om.Delete(k)
	}
	v.Extra = &om
	return nil
}

func (v Volume) MarshalYAML() ([]byte, error) {
	shadow := volumeShadow{
		Driver: v.Driver, DriverOpts: v.DriverOpts, External: v.External, Labels: v.Labels,
	}
	return marshalWithExtra(shadow, v.Extra)
}

type secretDefShadow struct {
	File     string       `yaml:"file,omitempty"`
	External *ExternalDef `yaml:"external,omitempty"`
	Labels   *ListOrMap   `yaml:"labels,omitempty"`
	Name     string       `yaml:"name,omitempty"`
}

func (sd *SecretDef) UnmarshalYAML(data []byte) error {
	var om ordered.Map
	if err := om.UnmarshalYAML(data); err != nil {
		return err
	}
	var shadow secretDefShadow
	if err := yaml.Unmarshal(data, &shadow); err != nil {
		return err
	}
	sd.File = shadow.File
	sd.External = shadow.External
	sd.Labels = shadow.Labels
	sd.Name = shadow.Name
	for _, k := range secretDefKnownKeys {
		om.Delete(k)
	}
	sd.Extra = &om
	return nil
}

func (sd SecretDef) MarshalYAML() ([]byte, error) {
	shadow := secretDefShadow{File: sd.File, External: sd.External, Labels: sd.Labels, Name: sd.Name}
	return marshalWithExtra(shadow, sd.Extra)
}

// marshalWithExtra marshals a "known fields only" shadow struct, then folds
// in any preserved unknown keys after the known ones.
func marshalWithExtra(shadow any, extra *ordered.Map) ([]byte, error) {
	knownBytes, err := yaml.Marshal(shadow)
	if err != nil {
		return nil, err
	}
	var om ordered.Map
	if err := om.UnmarshalYAML(knownBytes); err != nil {
		return nil, err
	}
	if extra != nil {
		extra.Range(func(k string, v any) {
			om.Set(k, v)
		})
	}
	return om.MarshalYAML()
}
