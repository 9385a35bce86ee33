package config

// TargetParameters holds the parameters of a deployment target which can be
// defined at the target_defaults level and overridden per target.
type TargetParameters struct {
	// User is the remote username the secure channel authenticates as.
	User string `yaml:"user"`

	// Port is the SSH port of the remote host.
	Port int `default:"22" validate:"gte=1,lte=65535" yaml:"port"`

	// Password authenticates the secure channel with a shared secret.
	// Mutually optional with PrivateKeyPath; one of the two is required.
	Password string `yaml:"password"`

	// PrivateKeyPath authenticates the secure channel with an asymmetric key.
	PrivateKeyPath string `yaml:"private_key_path"`

	// KnownHostsPath is the OpenSSH known_hosts file used to verify the
	// remote host key.
	KnownHostsPath string `default:"~/.ssh/known_hosts" yaml:"known_hosts_path"`

	// InsecureSkipHostKeyVerify disables remote host key verification.
	InsecureSkipHostKeyVerify bool `default:"false" yaml:"insecure_skip_host_key_verify"`

	// DeployDir is the remote directory image archives are uploaded into.
	DeployDir string `default:"/opt/deployments" yaml:"deploy_dir"`

	// ContainerName is the fixed name of the container slot this target
	// repeatedly replaces.
	ContainerName string `yaml:"container_name"`

	// HostPort is the host port the container publishes.
	HostPort int `default:"8080" validate:"gte=1,lte=65535" yaml:"host_port"`

	// ContainerPort is the container port bound to the host port.
	ContainerPort int `default:"8080" validate:"gte=1,lte=65535" yaml:"container_port"`

	// ConnectTimeoutSeconds bounds the SSH connection establishment.
	ConnectTimeoutSeconds int `default:"15" validate:"gte=1" yaml:"connect_timeout_seconds"`

	// Lock configures the remote deployment lock serializing concurrent runs
	// against the same host.
	Lock TargetLock `yaml:"lock"`
}

// TargetLock configures the remote lock file guarding the container slot.
type TargetLock struct {
	// Enabled toggles lock acquisition before the remote apply stage.
	Enabled bool `default:"true" yaml:"enabled"`

	// StaleAfterSeconds is the age after which a leftover lock from an
	// aborted run may be broken.
	StaleAfterSeconds int `default:"600" validate:"gte=1" yaml:"stale_after_seconds"` // 10 minutes
}

// Target is one remote host deployments are applied to.
type Target struct {
	// Name uniquely identifies the target within the configuration.
	Name string `validate:"required" yaml:"name"`

	// Host is the address of the remote host.
	Host string `validate:"required" yaml:"host"`

	TargetParameters `yaml:",inline"`
}

// masked returns a copy of the parameters with credential material hidden,
// used when rendering the configuration back to YAML.
func (tp TargetParameters) masked() TargetParameters {
	if tp.Password != "" {
		tp.Password = "*******"
	}

	return tp
}
