package config

import (
	"fmt"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// validate is a global validator instance used to validate struct fields based on tags.
var validate *validator.Validate

// Config holds all the configuration parameters necessary for properly configuring the orchestrator.
type Config struct {
	Global         Global           `yaml:",omitempty"`      // Global contains shared runtime configuration settings.
	Log            Log              `yaml:"log"`             // Log holds configuration related to logging.
	OpenTelemetry  OpenTelemetry    `yaml:"opentelemetry"`   // OpenTelemetry contains configuration settings for OpenTelemetry integration.
	Server         Server           `yaml:"server"`          // Server holds configuration of the HTTP server used in serve mode.
	Git            Git              `yaml:"git"`             // Git configures how branch and revision are resolved from the working tree.
	Build          Build            `yaml:"build"`           // Build configures the artifact build stage.
	Image          Image            `yaml:"image"`           // Image configures the container image packaging stage.
	Redis          Redis            `yaml:"redis"`           // Redis holds configuration parameters for connecting to Redis.
	Deploy         Deploy           `yaml:"deploy"`          // Deploy configures queueing and throttling of deployment runs.
	TargetDefaults TargetParameters `yaml:"target_defaults"` // TargetDefaults defines default target parameters which can be overridden per target.

	// Targets is the list of remote hosts deployments can be applied to.
	// Validation: must be unique and at least one target must be provided.
	Targets []Target `validate:"unique,at-least-1-target,dive" yaml:"targets"`
}

// Log holds configuration settings related to runtime logging.
type Log struct {
	// Level sets the logging verbosity level.
	// Valid values: trace, debug, info, warning, error, fatal, panic.
	// Defaults to "info".
	Level string `default:"info" validate:"required,oneof=trace debug info warning error fatal panic"`

	// Format sets the output format of the logs.
	// Valid values: "text" or "json".
	// Defaults to "text".
	Format string `default:"text" validate:"oneof=text json"`
}

// OpenTelemetry holds configuration related to OpenTelemetry integration.
type OpenTelemetry struct {
	// GRPCEndpoint is the gRPC address of the OpenTelemetry collector to send traces to.
	GRPCEndpoint string `yaml:"grpc_endpoint"`
}

// Server holds the configuration for the HTTP server exposed in serve mode.
type Server struct {
	// ListenAddress specifies the address and port the server will bind to and listen on.
	// Default is ":8080" (all interfaces on port 8080).
	ListenAddress string        `default:":8080" yaml:"listen_address"`
	EnablePprof   bool          `default:"false" yaml:"enable_pprof"` // EnablePprof enables profiling endpoints for debugging performance issues.
	Metrics       ServerMetrics `yaml:"metrics"`                      // Metrics contains configuration related to exposing Prometheus metrics.
	Webhook       ServerWebhook `yaml:"webhook"`                      // Webhook holds configuration for the push-event trigger endpoint.
}

// ServerMetrics holds configuration for the metrics HTTP endpoint.
type ServerMetrics struct {
	// EnableOpenmetricsEncoding enables OpenMetrics content encoding in the Prometheus HTTP handler.
	EnableOpenmetricsEncoding bool `default:"false" yaml:"enable_openmetrics_encoding"`
	Enabled                   bool `default:"true" yaml:"enabled"` // Enabled controls whether the /metrics endpoint is exposed.
}

// ServerWebhook holds configuration for the webhook HTTP endpoint.
type ServerWebhook struct {
	// Enabled enables the /webhook endpoint to receive push event requests.
	Enabled bool `default:"false" yaml:"enabled"`

	// SecretToken is used to authenticate incoming webhook requests to ensure
	// they come from a legitimate source control server.
	// This token is required if the webhook endpoint is enabled.
	SecretToken string `validate:"required_if=Enabled true" yaml:"secret_token"`
}

// Git configures how the branch name and revision identifier are resolved
// from the local working tree when not provided explicitly.
type Git struct {
	// Binary is the git executable invoked for revision lookups.
	Binary string `default:"git" validate:"required" yaml:"binary"`

	// WorkDir is the directory of the checkout the deployment is built from.
	WorkDir string `default:"." validate:"required" yaml:"work_dir"`
}

// Build configures the artifact build stage.
type Build struct {
	// Binary is the build tool executable.
	Binary string `default:"mvn" validate:"required" yaml:"binary"`

	// ProjectFile is the project descriptor handed to the build tool.
	ProjectFile string `default:"pom.xml" validate:"required" yaml:"project_file"`

	// SkipTests disables test execution during the build.
	SkipTests bool `default:"true" yaml:"skip_tests"`

	// ArtifactGlob locates the executable artifact produced by the build.
	// The build fails unless exactly one file matches.
	ArtifactGlob string `default:"target/*.jar" validate:"required" yaml:"artifact_glob"`

	// TimeoutSeconds bounds the duration of one build tool invocation.
	TimeoutSeconds int `default:"1800" validate:"gte=1" yaml:"timeout_seconds"`
}

// Image configures the container image packaging stage.
type Image struct {
	// Binary is the container engine executable.
	Binary string `default:"docker" validate:"required" yaml:"binary"`

	// Dockerfile is the packaging descriptor used to build the image.
	Dockerfile string `default:"Dockerfile" validate:"required" yaml:"dockerfile"`

	// Name is the image repository name releases are tagged under.
	Name string `validate:"required" yaml:"name"`

	// ArchiveDir is the local directory the serialized image archives are written to.
	ArchiveDir string `default:"dist" validate:"required" yaml:"archive_dir"`

	// RetentionHours is how long image archives are kept on disk before the
	// garbage collector removes them.
	RetentionHours int `default:"24" validate:"gte=1" yaml:"retention_hours"`

	// AllowRootUser permits images whose runtime user is root. By default the
	// packaging stage refuses images which do not run as a dedicated
	// non-privileged user.
	AllowRootUser bool `default:"false" yaml:"allow_root_user"`
}

// Redis holds the configuration for connecting to a Redis instance.
type Redis struct {
	// URL is the connection string used to connect to the Redis server.
	// Format example: redis[s]://[:password@]host[:port][/db-number][?option=value]
	URL string `yaml:"url"`
}

// Deploy configures queueing and throttling of deployment runs.
type Deploy struct {
	// MaximumDeploymentsPerMinute throttles how frequently deployment runs may start.
	MaximumDeploymentsPerMinute int `default:"2" validate:"gte=1" yaml:"maximum_deployments_per_minute"`

	// BurstableDeployments allows short bursts above the configured deployment rate.
	BurstableDeployments int `default:"1" validate:"gte=1" yaml:"burstable_deployments"`

	// MaximumQueueSize limits the number of deployment runs queued internally
	// before dropping new triggers.
	MaximumQueueSize int `default:"64" validate:"gte=1" yaml:"maximum_queue_size"`

	// HealthCheckPath, when set, is probed over HTTP on the published port
	// after a successful apply. A failing probe is reported but does not fail
	// the run; the path is a collaborator convention, not a guarantee.
	HealthCheckPath string `yaml:"health_check_path"`

	// HealthCheckTimeoutSeconds bounds the post-apply HTTP probe.
	HealthCheckTimeoutSeconds int `default:"10" validate:"gte=1" yaml:"health_check_timeout_seconds"`

	// GarbageCollectArchives configures the periodic pruning of expired image archives.
	GarbageCollectArchives struct {
		OnInit          bool `default:"false" yaml:"on_init"`
		Scheduled       bool `default:"true" yaml:"scheduled"`
		IntervalSeconds int  `default:"3600" validate:"gte=1" yaml:"interval_seconds"` // 1 hour
	} `yaml:"garbage_collect_archives"`
}

// UnmarshalYAML implements custom YAML unmarshaling logic for the Config struct.
// It applies struct defaults before decoding and merges target defaults into
// each declared target afterwards.
func (c *Config) UnmarshalYAML(v *yaml.Node) (err error) {
	// Define a local struct that mirrors Config but treats Targets as raw YAML
	// nodes so each one can be decoded and merged with the defaults individually.
	type localConfig struct {
		Log            Log              `yaml:"log"`
		OpenTelemetry  OpenTelemetry    `yaml:"opentelemetry"`
		Server         Server           `yaml:"server"`
		Git            Git              `yaml:"git"`
		Build          Build            `yaml:"build"`
		Image          Image            `yaml:"image"`
		Redis          Redis            `yaml:"redis"`
		Deploy         Deploy           `yaml:"deploy"`
		TargetDefaults TargetParameters `yaml:"target_defaults"`

		Targets []yaml.Node `yaml:"targets"` // hold targets as raw YAML nodes
	}

	// Initialize the local config with default values
	_cfg := localConfig{}
	defaults.MustSet(&_cfg)

	// Decode the input YAML into the local config struct
	if err = v.Decode(&_cfg); err != nil {
		return
	}

	// Copy the simple fields from local config to the actual Config struct
	c.Log = _cfg.Log
	c.OpenTelemetry = _cfg.OpenTelemetry
	c.Server = _cfg.Server
	c.Git = _cfg.Git
	c.Build = _cfg.Build
	c.Image = _cfg.Image
	c.Redis = _cfg.Redis
	c.Deploy = _cfg.Deploy
	c.TargetDefaults = _cfg.TargetDefaults

	// Decode each target YAML node into a Target object pre-seeded with the
	// configured target defaults, so explicit target values win over them.
	for _, n := range _cfg.Targets {
		t := c.NewTarget()
		if err = n.Decode(&t); err != nil {
			return
		}

		c.Targets = append(c.Targets, t)
	}

	return
}

// ToYAML serializes the Config object into a YAML formatted string.
// Before serialization, it clears or masks sensitive data to avoid leaking secrets.
func (c Config) ToYAML() string {
	// Clear the Global config (not serialized)
	c.Global = Global{}

	// Mask sensitive values to avoid exposing them in the output YAML
	c.Server.Webhook.SecretToken = "*******"
	c.TargetDefaults = c.TargetDefaults.masked()

	targets := make([]Target, len(c.Targets))
	for i, t := range c.Targets {
		t.TargetParameters = t.TargetParameters.masked()
		targets[i] = t
	}
	c.Targets = targets

	// Marshal the config struct into YAML bytes
	b, err := yaml.Marshal(c)
	if err != nil {
		// Panic on error because this function assumes marshaling should never fail
		panic(err)
	}

	// Return the YAML as a string
	return string(b)
}

// Validate checks if the Config struct's fields are valid according to
// the validation rules defined via struct tags and custom validators.
// It returns an error if any validation rule fails.
func (c Config) Validate() error {
	// Initialize the validator instance if not already done
	if validate == nil {
		validate = validator.New()
		// Register a custom validation rule to ensure at least
		// one target is defined in the config
		_ = validate.RegisterValidation("at-least-1-target", ValidateAtLeastOneTarget)
	}

	// Perform the validation on the Config struct
	if err := c.validateTargetCredentials(); err != nil {
		return err
	}

	return validate.Struct(c)
}

// validateTargetCredentials ensures every target carries exactly the
// credential material the transfer stage needs: a user plus either a password
// or a private key.
func (c Config) validateTargetCredentials() error {
	for _, t := range c.Targets {
		if t.User == "" {
			return fmt.Errorf("target '%s': user is required", t.Name)
		}

		if t.Password == "" && t.PrivateKeyPath == "" {
			return fmt.Errorf("target '%s': either password or private_key_path is required", t.Name)
		}

		if t.ContainerName == "" {
			return fmt.Errorf("target '%s': container_name is required", t.Name)
		}
	}

	return nil
}

// SchedulerConfig defines common scheduling behavior for background tasks.
type SchedulerConfig struct {
	OnInit          bool // OnInit determines whether the task should run immediately at startup.
	Scheduled       bool // Scheduled determines whether the task should run on a recurring schedule.
	IntervalSeconds int  // IntervalSeconds specifies how often (in seconds) the task should run when scheduled.
}

// Log returns a structured representation of the scheduler configuration
// to help display it in logs for the end user.
func (sc SchedulerConfig) Log() log.Fields {
	onInit, scheduled := "no", "no"

	// Check if the job should run at startup
	if sc.OnInit {
		onInit = "yes"
	}

	// Check if the job is scheduled periodically and format the interval
	if sc.Scheduled {
		scheduled = fmt.Sprintf("every %vs", sc.IntervalSeconds)
	}

	// Return the log fields in a key-value format
	return log.Fields{
		"on-init":   onInit,
		"scheduled": scheduled,
	}
}

// ValidateAtLeastOneTarget is a custom validation function.
// It ensures that at least one target is configured.
func ValidateAtLeastOneTarget(v validator.FieldLevel) bool {
	return v.Parent().FieldByName("Targets").Len() > 0
}

// New returns a new Config instance with default parameters set.
func New() (c Config) {
	defaults.MustSet(&c) // Apply default values to the config fields
	return               // Return the initialized config
}

// NewTarget returns a new Target instance initialized with the default target
// parameters defined in the Config (under TargetDefaults).
func (c Config) NewTarget() (t Target) {
	t.TargetParameters = c.TargetDefaults // Inherit default parameters from the Config
	return                                // Return the initialized Target
}

// Target returns the target with the given name, or the first configured
// target when name is empty.
func (c Config) Target(name string) (Target, error) {
	if name == "" && len(c.Targets) > 0 {
		return c.Targets[0], nil
	}

	for _, t := range c.Targets {
		if t.Name == name {
			return t, nil
		}
	}

	return Target{}, fmt.Errorf("undefined target '%s'", name)
}
