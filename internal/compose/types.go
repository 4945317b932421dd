package compose

import "swarmbender/pkg/ordered"

// ComposeFile is the top-level document model. Fields not recognized by this
// schema are preserved in Extra so a render round-trip never silently drops
// operator-authored keys.
type ComposeFile struct {
	Version  string                           `yaml:"version,omitempty"`
	Name     string                           `yaml:"name,omitempty"`
	Services *ordered.TypedMap[Service]       `yaml:"services,omitempty"`
	Networks *ordered.TypedMap[Network]       `yaml:"networks,omitempty"`
	Volumes  *ordered.TypedMap[Volume]        `yaml:"volumes,omitempty"`
	Secrets  *ordered.TypedMap[SecretDef]     `yaml:"secrets,omitempty"`
	Configs  *ordered.TypedMap[SecretDef]     `yaml:"configs,omitempty"`
	Extra    *ordered.Map                     `yaml:"-"`
}

// Service is a single entry under the top-level services mapping.
type Service struct {
	Image       string             `yaml:"image,omitempty"`
	Command     *ScalarOrList      `yaml:"command,omitempty"`
	Entrypoint  *ScalarOrList      `yaml:"entrypoint,omitempty"`
	Environment *ListOrMap         `yaml:"environment,omitempty"`
	Labels      *ListOrMap         `yaml:"labels,omitempty"`
	EnvFile     *ScalarOrList      `yaml:"env_file,omitempty"`
	ExtraHosts  *ExtraHosts        `yaml:"extra_hosts,omitempty"`
	Networks    *ServiceNetworks   `yaml:"networks,omitempty"`
	Ports       []PortSpec         `yaml:"ports,omitempty"`
	Volumes     []MountSpec        `yaml:"volumes,omitempty"`
	Secrets     []ServiceSecretRef `yaml:"secrets,omitempty"`
	Configs     []ServiceSecretRef `yaml:"configs,omitempty"`
	Ulimits     map[string]UlimitEntry `yaml:"ulimits,omitempty"`
	Sysctls     *Sysctls           `yaml:"sysctls,omitempty"`
	Logging     *Logging           `yaml:"logging,omitempty"`
	HealthCheck *HealthCheck       `yaml:"healthcheck,omitempty"`
	Deploy      *Deploy            `yaml:"deploy,omitempty"`
	Hostname    string             `yaml:"hostname,omitempty"`
	User        string             `yaml:"user,omitempty"`
	WorkingDir  string             `yaml:"working_dir,omitempty"`
	StopSignal  string             `yaml:"stop_signal,omitempty"`
	StopGracePeriod string         `yaml:"stop_grace_period,omitempty"`
	Tty         bool               `yaml:"tty,omitempty"`
	StdinOpen   bool               `yaml:"stdin_open,omitempty"`
	DependsOn   *ScalarOrList      `yaml:"depends_on,omitempty"`
	DNS         *ScalarOrList      `yaml:"dns,omitempty"`
	DNSSearch   *ScalarOrList      `yaml:"dns_search,omitempty"`
	DNSOpt      []string           `yaml:"dns_opt,omitempty"`
	CapAdd      []string           `yaml:"cap_add,omitempty"`
	CapDrop     []string           `yaml:"cap_drop,omitempty"`
	Devices     []string           `yaml:"devices,omitempty"`
	Tmpfs       *ScalarOrList      `yaml:"tmpfs,omitempty"`
	Profiles    []string           `yaml:"profiles,omitempty"`

	Extra *ordered.Map `yaml:"-"`
}

// ServiceSecretRef is the long or short form secret/config attachment.
type ServiceSecretRef struct {
	Source string `yaml:"source"`
	Target string `yaml:"target,omitempty"`
	UID    string `yaml:"uid,omitempty"`
	GID    string `yaml:"gid,omitempty"`
	Mode   *uint32 `yaml:"mode,omitempty"`
}

// Logging holds the service's log driver configuration.
type Logging struct {
	Driver  string            `yaml:"driver,omitempty"`
	Options map[string]string `yaml:"options,omitempty"`
}

// HealthCheck holds the service's healthcheck configuration.
type HealthCheck struct {
	Test     *ScalarOrList `yaml:"test,omitempty"`
	Interval string        `yaml:"interval,omitempty"`
	Timeout  string        `yaml:"timeout,omitempty"`
	Retries  *uint64       `yaml:"retries,omitempty"`
	StartPeriod string     `yaml:"start_period,omitempty"`
	Disable  bool          `yaml:"disable,omitempty"`
}

// Deploy holds Swarm-specific deployment settings.
type Deploy struct {
	Mode          string         `yaml:"mode,omitempty"`
	Replicas      *uint64        `yaml:"replicas,omitempty"`
	Labels        *ListOrMap     `yaml:"labels,omitempty"`
	UpdateConfig  *UpdateConfig  `yaml:"update_config,omitempty"`
	RollbackConfig *UpdateConfig `yaml:"rollback_config,omitempty"`
	Resources     *Resources     `yaml:"resources,omitempty"`
	RestartPolicy *RestartPolicy `yaml:"restart_policy,omitempty"`
	Placement     *Placement     `yaml:"placement,omitempty"`
	EndpointMode  string         `yaml:"endpoint_mode,omitempty"`
}

// UpdateConfig governs rolling update/rollback behavior.
type UpdateConfig struct {
	Parallelism     *uint64 `yaml:"parallelism,omitempty"`
	Delay           string  `yaml:"delay,omitempty"`
	FailureAction   string  `yaml:"failure_action,omitempty"`
	Monitor         string  `yaml:"monitor,omitempty"`
	MaxFailureRatio float64 `yaml:"max_failure_ratio,omitempty"`
	Order           string  `yaml:"order,omitempty"`
}

// Resources bounds the resource limits and reservations for the service.
type Resources struct {
	Limits       *Resource `yaml:"limits,omitempty"`
	Reservations *Resource `yaml:"reservations,omitempty"`
}

// Resource is one side (limit or reservation) of Resources.
type Resource struct {
	NanoCPUs    string `yaml:"cpus,omitempty"`
	MemoryBytes string `yaml:"memory,omitempty"`
}

// RestartPolicy governs automatic task restart on failure.
type RestartPolicy struct {
	Condition   string `yaml:"condition,omitempty"`
	Delay       string `yaml:"delay,omitempty"`
	MaxAttempts *uint64 `yaml:"max_attempts,omitempty"`
	Window      string `yaml:"window,omitempty"`
}

// Placement constrains which nodes a service's tasks may run on.
type Placement struct {
	Constraints          []string               `yaml:"constraints,omitempty"`
	Preferences          []PlacementPreference  `yaml:"preferences,omitempty"`
	MaxReplicasPerNode   *uint64                `yaml:"max_replicas_per_node,omitempty"`
}

// PlacementPreference is a soft scheduling preference.
type PlacementPreference struct {
	Spread string `yaml:"spread,omitempty"`
}

// Network is a top-level network definition.
type Network struct {
	Driver     string            `yaml:"driver,omitempty"`
	DriverOpts map[string]string `yaml:"driver_opts,omitempty"`
	IPAM       *IPAM             `yaml:"ipam,omitempty"`
	External   *ExternalDef      `yaml:"external,omitempty"`
	Internal   bool              `yaml:"internal,omitempty"`
	Attachable bool              `yaml:"attachable,omitempty"`
	Labels     *ListOrMap        `yaml:"labels,omitempty"`

	Extra *ordered.Map `yaml:"-"`
}

// IPAM is a network's IP address management configuration.
type IPAM struct {
	Driver string      `yaml:"driver,omitempty"`
	Config []IPAMPool  `yaml:"config,omitempty"`
}

// IPAMPool is one subnet pool within an IPAM config.
type IPAMPool struct {
	Subnet string `yaml:"subnet,omitempty"`
	Gateway string `yaml:"gateway,omitempty"`
}

// Volume is a top-level named volume definition.
type Volume struct {
	Driver     string            `yaml:"driver,omitempty"`
	DriverOpts map[string]string `yaml:"driver_opts,omitempty"`
	External   *ExternalDef      `yaml:"external,omitempty"`
	Labels     *ListOrMap        `yaml:"labels,omitempty"`

	Extra *ordered.Map `yaml:"-"`
}

// SecretDef is a top-level secret or config definition: either a file-backed
// definition or a reference to a pre-existing (external) Swarm object.
type SecretDef struct {
	File     string       `yaml:"file,omitempty"`
	External *ExternalDef `yaml:"external,omitempty"`
	Labels   *ListOrMap   `yaml:"labels,omitempty"`
	Name     string       `yaml:"name,omitempty"`

	Extra *ordered.Map `yaml:"-"`
}
