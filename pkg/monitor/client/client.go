package client

import (
	"context"       // Package for managing context and cancellation
	"encoding/json" // Package for JSON decoding
	"fmt"           // Package for formatted I/O
	"io"            // Package for I/O primitives
	"net"           // Package for network I/O
	"net/http"      // Package for HTTP client implementations
	"net/url"       // Package for URL parsing and manipulation
	"time"          // Package for time-related operations

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus" // Logging library

	"github.com/deckhand-sh/deckhand/pkg/monitor" // Monitoring package
)

// Client polls the internal monitoring listener of a running orchestrator.
type Client struct {
	httpClient *http.Client // HTTP client wired to the listener transport
	baseURL    string       // Base URL requests are issued against
}

// NewClient creates a new client for the monitoring server. The endpoint is
// either a tcp:// address or a unix:// socket path.
func NewClient(endpoint *url.URL) *Client {
	// Log the endpoint the client is wired to
	log.WithField("endpoint", endpoint.String()).Debug("connecting to the monitoring listener..")

	transport := &http.Transport{}

	baseURL := "http://" + endpoint.Host
	if endpoint.Scheme == "unix" {
		// The host part of the URL is irrelevant for unix sockets, the
		// transport dials the socket path directly
		socketPath := endpoint.Path
		transport.DialContext = func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", socketPath)
		}
		baseURL = "http://unix"
	}

	return &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   5 * time.Second,
		},
		baseURL: baseURL,
	}
}

// GetConfig retrieves the running configuration, secrets masked.
func (c *Client) GetConfig(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "/config")
	if err != nil {
		return "", err
	}

	return string(body), nil
}

// GetTelemetry retrieves a telemetry snapshot.
func (c *Client) GetTelemetry(ctx context.Context) (*monitor.Telemetry, error) {
	body, err := c.get(ctx, "/telemetry")
	if err != nil {
		return nil, err
	}

	telemetry := &monitor.Telemetry{}
	if err = json.Unmarshal(body, telemetry); err != nil {
		return nil, errors.Wrap(err, "decoding telemetry")
	}

	return telemetry, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, errors.Wrap(err, "assembling request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "querying the monitoring listener")
	}
	defer resp.Body.Close() // nolint: errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("monitoring listener replied with status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
