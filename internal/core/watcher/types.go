// Package watcher bridges filesystem notifications into debounced
// reconciliation triggers, one stream per watched root.
package watcher

import (
	"errors"
	"time"
)

var (
	// ErrWatcherClosed is returned when watching through a closed bridge
	ErrWatcherClosed = errors.New("watcher closed")
	// ErrAlreadyWatching is returned when a root overlaps one already watched
	ErrAlreadyWatching = errors.New("path already watched")
	// ErrNotDirectory is returned when the watched root is not a directory
	ErrNotDirectory = errors.New("not a directory")
)

// Op is the kind of change observed for a path
type Op string

const (
	OpAdd       Op = "add"
	OpAddDir    Op = "addDir"
	OpChange    Op = "change"
	OpUnlink    Op = "unlink"
	OpUnlinkDir Op = "unlinkDir"
)

// Structural reports whether the op changes a directory listing
func (o Op) Structural() bool {
	return o != OpChange
}

// Event is one observed change
type Event struct {
	Path string `json:"path"`
	Op   Op     `json:"op"`
	// Git is set for changes inside the repository's git directory
	Git bool `json:"git,omitempty"`
}

// Trigger is a debounced batch of events under one watched root
type Trigger struct {
	Root   string  `json:"root"`
	Events []Event `json:"events"`
}

// HasGit reports whether any event came from the git directory
func (t Trigger) HasGit() bool {
	for _, e := range t.Events {
		if e.Git {
			return true
		}
	}
	return false
}

// Config controls a Bridge
type Config struct {
	// Debounce is the quiet period after the last event before a trigger fires
	Debounce time.Duration
	// Ignore holds filepath.Match patterns tested against each path element
	Ignore []string
	// Buffer is the capacity of the trigger channel
	Buffer int
}

// DefaultConfig returns the default bridge configuration
func DefaultConfig() Config {
	return Config{
		Debounce: 100 * time.Millisecond,
		Ignore:   []string{".git", "node_modules"},
		Buffer:   64,
	}
}
