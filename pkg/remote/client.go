// Package remote drives the deployment target host over an authenticated,
// encrypted channel: uploading the serialized image archive and invoking the
// container engine remotely to swap the running container.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	scp "github.com/bramvdbogaerde/go-scp"
	"github.com/paulbellamy/ratecounter"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/deckhand-sh/deckhand/pkg/config"
)

// CommandRunner executes a command on the remote host and returns its
// combined output. The concrete implementation runs over SSH; tests
// substitute fakes.
type CommandRunner interface {
	Exec(ctx context.Context, command string) (string, error)
}

// Client is an SSH connection to one deployment target, adding request
// counting for telemetry on top of the raw transport.
type Client struct {
	*ssh.Client // Embedded SSH client

	Target config.Target // Target this client is connected to

	RateCounter     *ratecounter.RateCounter // RateCounter tracks the rate of executed remote commands.
	CommandsCounter atomic.Uint64            // CommandsCounter is an atomic counter of total remote commands executed.
}

// NewClient establishes an authenticated SSH connection to the target.
// The credential is either a shared secret or an asymmetric key; host key
// verification follows the known_hosts file unless explicitly disabled.
func NewClient(t config.Target) (*Client, error) {
	cfg, err := sshClientConfig(t)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(t.Host, fmt.Sprintf("%d", t.Port))

	log.WithFields(log.Fields{
		"target": t.Name,
		"host":   addr,
		"user":   t.User,
	}).Debug("establishing SSH connection")

	conn, err := ssh.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to '%s'", addr)
	}

	return &Client{
		Client:      conn,
		Target:      t,
		RateCounter: ratecounter.NewRateCounter(time.Second),
	}, nil
}

// sshClientConfig assembles the SSH client configuration from the target
// parameters: authentication methods and host key verification policy.
func sshClientConfig(t config.Target) (*ssh.ClientConfig, error) {
	var methods []ssh.AuthMethod

	if t.PrivateKeyPath != "" {
		keyBytes, err := os.ReadFile(filepath.Clean(expandHome(t.PrivateKeyPath)))
		if err != nil {
			return nil, errors.Wrap(err, "reading private key")
		}

		signer, err := ssh.ParsePrivateKey(keyBytes)
		if err != nil {
			return nil, errors.Wrap(err, "parsing private key")
		}

		methods = append(methods, ssh.PublicKeys(signer))
	}

	if t.Password != "" {
		methods = append(methods, ssh.Password(t.Password))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("target '%s' has no usable credential", t.Name)
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() // nolint: gosec
	if !t.InsecureSkipHostKeyVerify {
		cb, err := knownhosts.New(expandHome(t.KnownHostsPath))
		if err != nil {
			return nil, errors.Wrap(err, "loading known hosts")
		}

		hostKeyCallback = cb
	}

	return &ssh.ClientConfig{
		User:            t.User,
		Auth:            methods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         time.Duration(t.ConnectTimeoutSeconds) * time.Second,
	}, nil
}

// Exec runs one command on the remote host and returns its combined output.
// The command is aborted when the context is canceled.
func (c *Client) Exec(ctx context.Context, command string) (string, error) {
	session, err := c.NewSession()
	if err != nil {
		return "", errors.Wrap(err, "opening session")
	}
	defer session.Close() // nolint: errcheck

	c.RateCounter.Incr(1)
	c.CommandsCounter.Add(1)

	log.WithFields(log.Fields{
		"target":  c.Target.Name,
		"command": command,
	}).Debug("executing remote command")

	var out bytes.Buffer
	session.Stdout = &out
	session.Stderr = &out

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		// Closing the session tears down the remote command.
		_ = session.Close()
		return strings.TrimSpace(out.String()), ctx.Err()
	case err = <-done:
		if err != nil {
			return strings.TrimSpace(out.String()),
				errors.Wrapf(err, "remote command failed: %s", strings.TrimSpace(out.String()))
		}
	}

	return strings.TrimSpace(out.String()), nil
}

// Upload transfers a local file as a whole to the given remote path over the
// established channel. A failed or interrupted transfer surfaces as an error;
// the remote side never observes the file as complete before it is.
func (c *Client) Upload(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(filepath.Clean(localPath))
	if err != nil {
		return errors.Wrap(err, "opening archive")
	}
	defer f.Close() // nolint: errcheck

	scpClient, err := scp.NewClientBySSH(c.Client)
	if err != nil {
		return errors.Wrap(err, "creating transfer client")
	}
	defer scpClient.Close()

	log.WithFields(log.Fields{
		"target": c.Target.Name,
		"local":  localPath,
		"remote": remotePath,
	}).Info("transferring archive")

	if err = scpClient.CopyFromFile(ctx, *f, remotePath, "0644"); err != nil {
		return errors.Wrap(err, "transferring archive")
	}

	return nil
}

// expandHome resolves a leading "~" against the current user's home
// directory, matching how the paths appear in configuration files.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}

	return path
}
