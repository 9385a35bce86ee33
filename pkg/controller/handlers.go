package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/deckhand-sh/deckhand/pkg/schemas"
)

// pushEvent is the payload of a push notification from the source control
// server. Only the fields driving a deployment are decoded.
type pushEvent struct {
	Ref    string `json:"ref"`    // Full ref name, e.g. refs/heads/main
	After  string `json:"after"`  // Revision the ref points at after the push
	Target string `json:"target"` // Optional target name, defaults to the first configured target
}

// zeroRevision is the revision a push event carries when the ref was deleted.
const zeroRevision = "0000000000000000000000000000000000000000"

// HealthCheckHandler creates and returns a health check handler for the controller.
// Readiness is the ability to reach the configured targets over their SSH port.
func (c *Controller) HealthCheckHandler(ctx context.Context) (h healthcheck.Handler) {
	// Initialize a new health check handler
	h = healthcheck.NewHandler()

	// Add a readiness check per target: an unreachable host would fail every
	// transfer stage anyway, surface it before a deployment is attempted
	for _, t := range c.Config.Targets {
		addr := net.JoinHostPort(t.Host, fmt.Sprintf("%d", t.Port))
		h.AddReadinessCheck(
			fmt.Sprintf("target-%s-reachable", t.Name),
			healthcheck.TCPDialCheck(addr, time.Duration(t.ConnectTimeoutSeconds)*time.Second),
		)
	}

	return
}

// MetricsHandler serves the /metrics HTTP endpoint to expose Prometheus metrics.
func (c *Controller) MetricsHandler(w http.ResponseWriter, r *http.Request) {
	// Extract the request's context and get the tracing span for observability
	ctx := r.Context()
	span := trace.SpanFromContext(ctx)

	// Ensure the span is ended when this handler returns
	defer span.End()

	// Create a new Prometheus metrics registry specific to this request/context
	registry := NewRegistry(ctx)

	// Retrieve all stored deployment records from the data store
	deployments, err := c.Store.Deployments(ctx)
	if err != nil {
		log.WithContext(ctx).
			WithError(err).
			Error("reading deployment records from the store")
	}

	// Export internal metrics such as queue and store-related metrics into the registry
	if err := registry.ExportInternalMetrics(ctx, c, c.Store); err != nil {
		log.WithContext(ctx).
			WithError(err).
			Warn("exporting internal metrics")
	}

	// Export the deployment records into the registry for exposure
	registry.ExportDeployments(deployments)

	// Wrap the Prometheus handler with OpenTelemetry instrumentation,
	// and serve the HTTP response with metrics data
	otelhttp.NewHandler(
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{
			Registry:          registry,
			EnableOpenMetrics: c.Config.Server.Metrics.EnableOpenmetricsEncoding,
		}),
		"/metrics",
	).ServeHTTP(w, r)
}

// WebhookHandler handles incoming push event webhook HTTP requests and turns
// them into deployment runs.
func (c *Controller) WebhookHandler(w http.ResponseWriter, r *http.Request) {
	// Get the tracing span from the request context for observability
	span := trace.SpanFromContext(r.Context())
	defer span.End()

	// Create a new background context with the span,
	// instead of using the request context which may have a short cancellation TTL
	ctx := trace.ContextWithSpan(context.Background(), span)

	// Prepare a logger with context and fields including the remote IP and user agent
	logger := log.
		WithContext(ctx).
		WithFields(log.Fields{
			"ip-address": r.RemoteAddr,
			"user-agent": r.UserAgent(),
		})

	logger.Debug("webhook request received")

	// Validate the webhook secret token from the request header
	if r.Header.Get("X-Deckhand-Token") != c.Config.Server.Webhook.SecretToken {
		logger.Debug("invalid token provided for webhook request")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, "{\"error\": \"invalid token\"}")
		return
	}

	// Check if the request body is empty (no content)
	if r.Body == http.NoBody {
		logger.
			WithError(fmt.Errorf("empty request body")).
			Warn("unable to read body of a received webhook")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Read the entire request body payload
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		logger.
			WithError(err).
			Warn("unable to read body of a received webhook")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	// Parse the push event from the payload
	var event pushEvent
	if err = json.Unmarshal(payload, &event); err != nil {
		logger.
			WithError(err).
			Warn("unable to parse webhook payload")
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	branch := strings.TrimPrefix(event.Ref, "refs/heads/")

	// Tag pushes and ref deletions do not drive deployments
	if strings.HasPrefix(event.Ref, "refs/tags/") || event.After == zeroRevision || event.After == "" {
		logger.
			WithField("ref", event.Ref).
			Debug("received webhook event not driving a deployment")
		w.WriteHeader(http.StatusNoContent)
		return
	}

	trigger := schemas.Trigger{
		Target:   event.Target,
		Branch:   branch,
		Revision: event.After,
		Source:   schemas.TriggerSourceWebhook,
	}

	// The run identifier is derived from the trigger so duplicate webhook
	// deliveries collapse onto a single queued run
	shortRevision := event.After
	if len(shortRevision) > 8 {
		shortRevision = shortRevision[:8]
	}
	id := fmt.Sprintf("%s-%s-%s", trigger.Target, branch, shortRevision)

	logger.WithFields(log.Fields{
		"branch":   branch,
		"revision": event.After,
		"target":   trigger.Target,
	}).Info("scheduling deployment from webhook")

	go c.ScheduleDeployment(ctx, id, trigger)

	w.WriteHeader(http.StatusAccepted)
}
