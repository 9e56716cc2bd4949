// Package statestore persists and enumerates Container records and
// classifies orphans: one config.json per container directory, read
// back whole on every List/Load rather than cached in memory.
package statestore

import (
	"encoding/json"
	"os"

	"github.com/google/uuid"

	"github.com/tonidy/pak-rt/internal/cgroup"
	"github.com/tonidy/pak-rt/internal/container"
	"github.com/tonidy/pak-rt/internal/nsplan"
	"github.com/tonidy/pak-rt/internal/pathstore"
	"github.com/tonidy/pak-rt/internal/rterr"
	"github.com/tonidy/pak-rt/internal/rtlog"
	"github.com/tonidy/pak-rt/internal/validate"
)

var log = rtlog.For("statestore")

// Store persists Container records under a PathStore's layout.
type Store struct {
	paths *pathstore.Store
}

func New(paths *pathstore.Store) *Store {
	return &Store{paths: paths}
}

// Save writes c's config.json atomically.
func (s *Store) Save(c *container.Container) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return rterr.Of(rterr.SpawnFailed, "marshal config.json", err)
	}
	if err := pathstore.AtomicWriteFile(s.paths.ConfigPath(c.Name), data, 0644); err != nil {
		return rterr.Of(rterr.SpawnFailed, "write config.json", err)
	}
	return nil
}

// Load reads one container's config.json.
func (s *Store) Load(name string) (*container.Container, error) {
	data, err := os.ReadFile(s.paths.ConfigPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, rterr.New(rterr.NotFound, "no such container: "+name)
		}
		return nil, rterr.Of(rterr.SpawnFailed, "read config.json", err)
	}
	var c container.Container
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, rterr.Of(rterr.SpawnFailed, "unmarshal config.json", err)
	}
	return &c, nil
}

// Remove deletes a container's persisted record (the whole directory
// tree; config.json is only one part of it).
func (s *Store) Remove(name string) error {
	return s.paths.RemoveTree(name)
}

// List returns every persisted container record, in no particular
// order. Entries whose config.json is missing or unreadable are
// skipped rather than failing the whole scan, since a partially
// torn-down directory is itself a normal transient state.
func (s *Store) List() ([]*container.Container, error) {
	names, err := s.paths.List()
	if err != nil {
		return nil, rterr.Of(rterr.SpawnFailed, "enumerate state root", err)
	}
	var out []*container.Container
	for _, name := range names {
		c, err := s.Load(name)
		if err != nil {
			log.WithField("container", name).WithError(err).Debug("skipping unreadable record during list")
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// Live returns every record whose state is creating or running, the
// population AllocateIP and uniqueness invariant 2 scan over.
func (s *Store) Live() ([]*container.Container, error) {
	all, err := s.List()
	if err != nil {
		return nil, err
	}
	var live []*container.Container
	for _, c := range all {
		if c.Live() {
			live = append(live, c)
		}
	}
	return live, nil
}

// Classify reclassifies c as orphaned if any backing resource it
// depends on is missing while the record still claims to be live.
func (s *Store) Classify(c *container.Container) container.State {
	if !c.Live() {
		return c.State
	}
	if c.InitPID != nil && !validate.ProcessExists(*c.InitPID) {
		return container.StateOrphaned
	}
	if !nsplan.Exists(s.paths, c.Name) {
		return container.StateOrphaned
	}
	mgr := cgroup.New(c.Name)
	if _, err := os.Stat(mgr.MemoryPath()); err != nil {
		return container.StateOrphaned
	}
	if _, err := os.Stat(mgr.CPUPath()); err != nil {
		return container.StateOrphaned
	}
	if c.VethHost != "" {
		if _, err := os.Stat("/sys/class/net/" + c.VethHost); err != nil {
			return container.StateOrphaned
		}
	}
	return c.State
}

// NewCorrelationID mints an identifier used to tag one orchestrator
// operation across its log lines.
func NewCorrelationID() string {
	return uuid.NewString()
}
