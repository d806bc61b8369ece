// Package registry holds the engine's read-mostly configuration: the closed
// set of known route tags and the stations subscribed to them. Mutations
// come from admin configuration; resolutions read through immutable
// versioned snapshots so a single resolution never sees a torn view.
package registry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/GetwithitMan/gwi-pos-sub005/errors"
	"github.com/GetwithitMan/gwi-pos-sub005/routing"
)

// Tag describes one entry in the tag registry.
type Tag struct {
	Name        routing.RouteTag `json:"name"        yaml:"name"`
	Description string           `json:"description" yaml:"description,omitempty"`
}

// Registry is the mutable owner of tag and station configuration. All reads
// used for resolution go through Snapshot(); mutations rebuild the snapshot
// and bump the version, taking effect only for resolutions started after the
// mutation commits.
type Registry struct {
	mu       sync.Mutex
	version  uint64
	tags     []Tag
	stations []routing.Station

	current atomic.Pointer[Snapshot]
}

// New creates an empty registry at version 1.
func New() *Registry {
	r := &Registry{version: 1}
	r.current.Store(r.buildSnapshot())
	return r
}

// NewFromConfig creates a registry populated with the given tags and
// stations, validating each.
func NewFromConfig(tags []Tag, stations []routing.Station) (*Registry, error) {
	r := New()
	for _, t := range tags {
		if err := r.RegisterTag(t); err != nil {
			return nil, err
		}
	}
	for _, s := range stations {
		if err := r.UpsertStation(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// RegisterTag adds a tag to the closed set of known tags.
func (r *Registry) RegisterTag(t Tag) error {
	if err := t.Name.Validate(); err != nil {
		return errors.WrapInvalid(err, "Registry", "RegisterTag", string(t.Name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.tags {
		if existing.Name == t.Name {
			return errors.WrapInvalid(
				fmt.Errorf("tag %q already registered", t.Name),
				"Registry", "RegisterTag", "duplicate tag")
		}
	}
	r.tags = append(r.tags, t)
	r.commit()
	return nil
}

// RemoveTag removes a tag from the known set. Stations keep their
// subscriptions; the tag just becomes an unknown-tag diagnostic.
func (r *Registry) RemoveTag(name routing.RouteTag) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, t := range r.tags {
		if t.Name == name {
			r.tags = append(r.tags[:i], r.tags[i+1:]...)
			r.commit()
			return true
		}
	}
	return false
}

// UpsertStation adds or replaces a station. Registry order is preserved for
// existing stations; new stations append.
func (r *Registry) UpsertStation(s routing.Station) error {
	if s.ID == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "UpsertStation",
			"station id is empty")
	}
	if !s.Kind.Valid() {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "Registry", "UpsertStation",
			fmt.Sprintf("station %s: unknown kind %q", s.ID, s.Kind))
	}
	for _, tag := range s.Tags {
		if err := tag.Validate(); err != nil {
			return errors.WrapInvalid(err, "Registry", "UpsertStation",
				fmt.Sprintf("station %s", s.ID))
		}
	}
	s.Tags = s.Tags.Normalize()

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.stations {
		if r.stations[i].ID == s.ID {
			r.stations[i] = s
			r.commit()
			return nil
		}
	}
	r.stations = append(r.stations, s)
	r.commit()
	return nil
}

// RemoveStation deletes a station. Returns false if it was not present.
func (r *Registry) RemoveStation(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.stations {
		if s.ID == id {
			r.stations = append(r.stations[:i], r.stations[i+1:]...)
			r.commit()
			return true
		}
	}
	return false
}

// SetStationActive flips a station's active flag. Disabling a station
// removes it from resolution results on the next resolution call; in-flight
// resolutions keep their captured snapshot.
func (r *Registry) SetStationActive(id string, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.stations {
		if r.stations[i].ID == id {
			r.stations[i].Active = active
			r.commit()
			return nil
		}
	}
	return errors.WrapInvalid(errors.ErrStationNotFound, "Registry", "SetStationActive", id)
}

// Snapshot returns the current immutable view. Callers hold it for the
// duration of one resolution; it never changes under them.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// commit bumps the version and publishes a fresh snapshot. Caller holds r.mu.
func (r *Registry) commit() {
	r.version++
	r.current.Store(r.buildSnapshot())
}

// buildSnapshot copies registry state into an immutable view. Caller holds
// r.mu (or is the constructor).
func (r *Registry) buildSnapshot() *Snapshot {
	stations := make([]routing.Station, len(r.stations))
	for i, s := range r.stations {
		stations[i] = s
		stations[i].Tags = append(routing.TagSet(nil), s.Tags...)
	}
	known := make(map[routing.RouteTag]struct{}, len(r.tags))
	for _, t := range r.tags {
		known[t.Name] = struct{}{}
	}
	return &Snapshot{
		version:  r.version,
		stations: stations,
		known:    known,
	}
}

// Snapshot is an immutable, versioned view of the registry. It implements
// routing.RegistryView.
type Snapshot struct {
	version  uint64
	stations []routing.Station
	known    map[routing.RouteTag]struct{}
}

// Stations returns all stations in registry order, including inactive ones.
func (s *Snapshot) Stations() []routing.Station { return s.stations }

// KnownTag reports whether the tag registry knows the given tag.
func (s *Snapshot) KnownTag(tag routing.RouteTag) bool {
	_, ok := s.known[tag]
	return ok
}

// Version identifies this snapshot.
func (s *Snapshot) Version() uint64 { return s.version }

// StationsForTags returns the active stations whose subscriptions intersect
// the given tag set, in registry order.
func (s *Snapshot) StationsForTags(tags routing.TagSet) []routing.Station {
	var out []routing.Station
	for _, st := range s.stations {
		if st.Matches(tags) {
			out = append(out, st)
		}
	}
	return out
}

// Station looks a station up by identifier.
func (s *Snapshot) Station(id string) (routing.Station, bool) {
	for _, st := range s.stations {
		if st.ID == id {
			return st, true
		}
	}
	return routing.Station{}, false
}

// Warnings reports degenerate configuration: it is never an error to resolve
// against a broken registry (the system degrades to fully-unrouted), but
// operators need to hear about it.
func (s *Snapshot) Warnings() []string {
	var warnings []string
	active := 0
	for _, st := range s.stations {
		if st.Active {
			active++
		}
		if len(st.Tags) == 0 {
			warnings = append(warnings,
				fmt.Sprintf("station %s (%s) has no subscribed tags and will never receive items", st.ID, st.Name))
		}
		for _, tag := range st.Tags {
			if !s.KnownTag(tag) {
				warnings = append(warnings,
					fmt.Sprintf("station %s (%s) subscribes unknown tag %q", st.ID, st.Name, tag))
			}
		}
	}
	if active == 0 {
		warnings = append(warnings, "no active stations configured; all items will be unrouted")
	}
	return warnings
}
