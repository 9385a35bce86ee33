package remote

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	pkgerrors "github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// ErrLockHeld is returned when another deployment currently holds the remote
// lock and it is not stale.
var ErrLockHeld = errors.New("deployment lock held by another run")

// Lock is a mutual-exclusion file on the remote host guarding its container
// slot. Two concurrent deployments against the same target otherwise race:
// the last one to finish the apply stage would silently win.
type Lock struct {
	runner     CommandRunner
	path       string
	owner      string
	staleAfter time.Duration
}

// NewLock returns a lock rooted in the target's deployment directory, owned
// by the given process identifier.
func NewLock(r CommandRunner, deployDir, owner string, staleAfter time.Duration) *Lock {
	return &Lock{
		runner:     r,
		path:       deployDir + "/.deckhand.lock",
		owner:      owner,
		staleAfter: staleAfter,
	}
}

// Acquire atomically creates the lock file. When the file already exists and
// is older than the stale window, it is assumed to be a leftover from an
// aborted run, broken, and acquisition is retried once.
func (l *Lock) Acquire(ctx context.Context) error {
	if err := l.tryAcquire(ctx); err == nil {
		return nil
	}

	holder, acquiredAt, err := l.read(ctx)
	if err != nil {
		return pkgerrors.Wrap(err, "inspecting deployment lock")
	}

	if time.Since(acquiredAt) < l.staleAfter {
		return pkgerrors.Wrapf(ErrLockHeld, "held by '%s' since %s", holder, acquiredAt.Format(time.RFC3339))
	}

	log.WithFields(log.Fields{
		"holder":      holder,
		"acquired-at": acquiredAt,
	}).Warn("breaking stale deployment lock")

	if _, err = l.runner.Exec(ctx, fmt.Sprintf("rm -f %s", l.path)); err != nil {
		return pkgerrors.Wrap(err, "breaking stale deployment lock")
	}

	return l.tryAcquire(ctx)
}

// Release removes the lock file. Failing to release only warns: a leftover
// lock is broken by the next run once stale.
func (l *Lock) Release(ctx context.Context) {
	if _, err := l.runner.Exec(ctx, fmt.Sprintf("rm -f %s", l.path)); err != nil {
		log.WithError(err).
			WithField("path", l.path).
			Warn("releasing deployment lock")
	}
}

// tryAcquire creates the lock file with noclobber semantics so that creation
// fails atomically when the file already exists.
func (l *Lock) tryAcquire(ctx context.Context) error {
	cmd := fmt.Sprintf(
		"sh -c 'set -C; echo %s $(date +%%s) > %s'",
		l.owner,
		l.path,
	)

	if _, err := l.runner.Exec(ctx, cmd); err != nil {
		return err
	}

	return nil
}

// read returns the holder and acquisition time recorded in the lock file.
func (l *Lock) read(ctx context.Context) (holder string, acquiredAt time.Time, err error) {
	out, err := l.runner.Exec(ctx, fmt.Sprintf("cat %s", l.path))
	if err != nil {
		return "", time.Time{}, err
	}

	fields := strings.Fields(out)
	if len(fields) != 2 {
		return "", time.Time{}, fmt.Errorf("malformed lock file content '%s'", out)
	}

	ts, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("malformed lock timestamp '%s'", fields[1])
	}

	return fields[0], time.Unix(ts, 0), nil
}
