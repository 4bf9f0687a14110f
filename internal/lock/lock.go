// Package lock provides the persistent execution lock that serializes
// mutating jobs on one worker. The lock is a single file: its presence is
// the active flag, its contents the holding ticket. It survives process
// restarts on purpose; a crashed holder keeps the lock until an operator
// releases it.
package lock

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrBusy is returned by Acquire while another ticket holds the lock
	ErrBusy = errors.New("lock already active")

	// ErrNotActive is returned by Release and Holder when no lock is held
	ErrNotActive = errors.New("lock not active")
)

// Lock is a disk-durable mutual exclusion keyed by an opaque ticket
type Lock struct {
	path string
	log  *zap.Logger
}

// New returns a lock backed by the file at path
func New(path string, log *zap.Logger) *Lock {
	return &Lock{path: path, log: log}
}

// Acquire records ticket as the lock holder. It fails with ErrBusy if the
// lock is already active. The exclusive create makes concurrent acquires
// admit at most one winner.
func (l *Lock) Acquire(ticket string) error {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return ErrBusy
		}
		return fmt.Errorf("failed to create lock file: %w", err)
	}

	if _, err := f.WriteString(ticket); err != nil {
		f.Close()
		os.Remove(l.path)
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(l.path)
		return fmt.Errorf("failed to close lock file: %w", err)
	}

	l.log.Info("acquired execution lock", zap.String("ticket", ticket))
	return nil
}

// Release clears the lock. It fails with ErrNotActive if no lock is held.
func (l *Lock) Release() error {
	ticket, err := l.Holder()
	if err != nil {
		return err
	}

	if err := os.Remove(l.path); err != nil {
		if os.IsNotExist(err) {
			return ErrNotActive
		}
		return fmt.Errorf("failed to remove lock file: %w", err)
	}

	l.log.Info("released execution lock", zap.String("ticket", ticket))
	return nil
}

// Active reports whether the lock is held. It never mutates state.
func (l *Lock) Active() bool {
	_, err := os.Stat(l.path)
	return err == nil
}

// Holder returns the ticket of the current holder
func (l *Lock) Holder() (string, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotActive
		}
		return "", fmt.Errorf("failed to read lock file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
