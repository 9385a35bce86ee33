package cmd

import (
	stdlibLog "log"
	"net/url"
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/go-logr/stdr"
	log "github.com/sirupsen/logrus"
	"github.com/uptrace/opentelemetry-go-extra/otellogrus"
	"github.com/urfave/cli/v2"
	"github.com/vmihailenco/taskq/v4"

	logger "github.com/deckhand-sh/deckhand/internal/logging"
	"github.com/deckhand-sh/deckhand/pkg/config"
)

var start time.Time

// configure loads and validates configuration from the CLI context, sets up
// logging, and prints the effective stage and scheduler settings.
// It returns a populated config object or an error.
func configure(ctx *cli.Context) (cfg config.Config, err error) {
	// Retrieve and store application start time from CLI metadata
	start = ctx.App.Metadata["startTime"].(time.Time)

	// Ensure "config" CLI flag is defined
	assertStringVariableDefined(ctx, "config")

	// Parse the configuration file from the given path
	cfg, err = config.ParseFile(ctx.String("config"))
	if err != nil {
		return
	}

	// Parse global flags like internal monitoring listener address
	cfg.Global, err = parseGlobalFlags(ctx)
	if err != nil {
		return
	}

	// Override config parameters with any CLI-provided values
	if err = configCliOverrides(ctx, &cfg); err != nil {
		return
	}

	// Validate the final configuration structure
	if err = cfg.Validate(); err != nil {
		return
	}

	// Initialize logger with the config-defined level and format
	if err = logger.Configure(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	}); err != nil {
		return
	}

	// Add OpenTelemetry logging hook to integrate tracing into logs
	log.AddHook(otellogrus.NewHook(otellogrus.WithLevels(
		log.PanicLevel,
		log.FatalLevel,
		log.ErrorLevel,
		log.WarnLevel,
	)))

	// Redirect task queue logs to the main log system using standard library compatibility
	taskq.SetLogger(stdr.New(stdlibLog.New(log.StandardLogger().WriterLevel(log.WarnLevel), "taskq", 0)))

	// Log the effective build and packaging stage settings
	log.WithFields(
		log.Fields{
			"build-tool":      cfg.Build.Binary,
			"project-file":    cfg.Build.ProjectFile,
			"image-name":      cfg.Image.Name,
			"archive-dir":     cfg.Image.ArchiveDir,
			"retention-hours": cfg.Image.RetentionHours,
			"targets":         len(cfg.Targets),
		},
	).Info("configured")

	// Log garbage collection scheduling settings
	log.WithFields(config.SchedulerConfig(cfg.Deploy.GarbageCollectArchives).Log()).Info("garbage collect image archives")

	return
}

// parseGlobalFlags parses global CLI flags into the Global config struct.
func parseGlobalFlags(ctx *cli.Context) (cfg config.Global, err error) {
	// Parse internal monitoring address if provided
	if listenerAddr := ctx.String("internal-monitoring-listener-address"); listenerAddr != "" {
		cfg.InternalMonitoringListenerAddress, err = url.Parse(listenerAddr)
	}
	return
}

// exit logs the execution time and error (if any), then returns a CLI exit code.
func exit(exitCode int, err error) cli.ExitCoder {
	defer log.WithFields(
		log.Fields{
			"execution-time": time.Since(start), // nolint: govet
		},
	).Debug("exited..")

	if err != nil {
		log.WithError(err).Error()
	}

	return cli.Exit("", exitCode)
}

// ExecWrapper gracefully logs and exits our command functions.
// It wraps a function returning (int, error) into a `cli.ActionFunc` compatible with urfave/cli.
func ExecWrapper(f func(ctx *cli.Context) (int, error)) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		return exit(f(ctx))
	}
}

// configCliOverrides merges command-line provided values over the file
// configuration. Only flags which were actually set override their file
// counterpart.
func configCliOverrides(ctx *cli.Context, cfg *config.Config) error {
	overrides := config.Config{}
	overrides.Redis.URL = ctx.String("redis-url")
	overrides.Server.Webhook.SecretToken = ctx.String("webhook-secret-token")

	return mergo.Merge(cfg, overrides, mergo.WithOverride)
}

// assertStringVariableDefined ensures a required string flag is set.
// If not, it prints help and exits the program.
func assertStringVariableDefined(ctx *cli.Context, k string) {
	if len(ctx.String(k)) == 0 {
		_ = cli.ShowAppHelp(ctx)

		log.Errorf("'--%s' must be set!", k)
		os.Exit(2) // Exit with code 2 (convention for incorrect usage)
	}
}
