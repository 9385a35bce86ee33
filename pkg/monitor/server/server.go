package server

import (
	"context"       // Package for managing context and cancellation
	"encoding/json" // Package for JSON encoding
	"net"           // Package for network I/O
	"net/http"      // Package for HTTP server implementations
	"os"            // Package for OS operations
	"time"          // Package for time-related operations

	log "github.com/sirupsen/logrus" // Logging library

	"github.com/deckhand-sh/deckhand/pkg/config"  // Configuration package
	"github.com/deckhand-sh/deckhand/pkg/monitor" // Monitoring package
)

// TelemetrySource produces a point-in-time snapshot of the orchestrator
// internals. The controller implements it.
type TelemetrySource interface {
	Telemetry(ctx context.Context) (monitor.Telemetry, error)
}

// Server exposes the configuration and live telemetry of a running
// orchestrator over the internal monitoring listener.
type Server struct {
	cfg    config.Config   // Configuration for the server
	source TelemetrySource // Source of telemetry snapshots
}

// NewServer creates a new Server instance.
func NewServer(
	c config.Config, // Configuration instance
	source TelemetrySource, // Telemetry snapshot source
) (s *Server) {
	// Initialize and return a new Server instance
	s = &Server{
		cfg:    c,
		source: source,
	}

	return
}

// Serve starts the HTTP server to listen for incoming connections.
func (s *Server) Serve() {
	// Check if the internal monitoring listener address is set
	if s.cfg.Global.InternalMonitoringListenerAddress == nil {
		log.Info("internal monitoring listener address not set")
		return
	}

	// Log the internal monitoring listener address details
	log.WithFields(log.Fields{
		"scheme": s.cfg.Global.InternalMonitoringListenerAddress.Scheme,
		"host":   s.cfg.Global.InternalMonitoringListenerAddress.Host,
		"path":   s.cfg.Global.InternalMonitoringListenerAddress.Path,
	}).Info("internal monitoring listener set")

	mux := http.NewServeMux()
	mux.HandleFunc("/config", s.configHandler)
	mux.HandleFunc("/telemetry", s.telemetryHandler)

	var (
		l   net.Listener
		err error
	)

	// Handle different listener schemes
	switch s.cfg.Global.InternalMonitoringListenerAddress.Scheme {
	case "unix":
		// Resolve the Unix address
		unixAddr, err := net.ResolveUnixAddr("unix", s.cfg.Global.InternalMonitoringListenerAddress.Path)
		if err != nil {
			log.WithError(err).Fatal()
		}

		// Remove the socket file if it already exists
		if _, err := os.Stat(s.cfg.Global.InternalMonitoringListenerAddress.Path); err == nil {
			if err := os.Remove(s.cfg.Global.InternalMonitoringListenerAddress.Path); err != nil {
				log.WithError(err).Fatal()
			}
		}

		// Ensure the socket file is removed when the server exits
		defer func(path string) {
			if err := os.Remove(path); err != nil {
				log.WithError(err).Fatal()
			}
		}(s.cfg.Global.InternalMonitoringListenerAddress.Path)

		// Listen on the Unix socket
		if l, err = net.ListenUnix("unix", unixAddr); err != nil {
			log.WithError(err).Fatal()
		}

	default:
		// Listen on the network address
		if l, err = net.Listen(s.cfg.Global.InternalMonitoringListenerAddress.Scheme, s.cfg.Global.InternalMonitoringListenerAddress.Host); err != nil {
			log.WithError(err).Fatal()
		}
	}

	// Ensure the listener is closed when the server exits
	defer l.Close() // nolint: errcheck

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Start serving the HTTP server
	if err = srv.Serve(l); err != nil && err != http.ErrServerClosed {
		log.WithError(err).Fatal()
	}
}

// configHandler returns the loaded configuration with the secrets masked.
func (s *Server) configHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")

	if _, err := w.Write([]byte(s.cfg.ToYAML())); err != nil {
		log.WithError(err).Error("writing config response")
	}
}

// telemetryHandler returns a snapshot of the orchestrator internals.
func (s *Server) telemetryHandler(w http.ResponseWriter, r *http.Request) {
	telemetry, err := s.source.Telemetry(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")

	if err = json.NewEncoder(w).Encode(telemetry); err != nil {
		log.WithError(err).Error("writing telemetry response")
	}
}
