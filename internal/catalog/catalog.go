// Package catalog defines the static task graphs for each lifecycle track.
//
// A Catalog is built and validated once at process start and is read-only
// afterwards, so it is safe for concurrent use without locking.
package catalog

import (
	"sort"

	"hr-lifecycle/backend/pkg/models"
)

type trackGraph struct {
	track    models.Track
	tasks    []TaskDefinition // declaration order
	index    map[string]int
	outgoing [][]int // dependents, ascending declaration index
	incoming [][]int // dependencies, ascending declaration index
	order    []int   // topological order
}

// Catalog is the immutable set of validated tracks.
type Catalog struct {
	tracks map[models.Track]*trackGraph
	defs   map[models.Track]TrackDefinition
}

// New validates every track definition and builds a Catalog.
// Any malformed track fails the whole catalog with ErrInvalidCatalog.
func New(tracks ...TrackDefinition) (*Catalog, error) {
	if len(tracks) == 0 {
		return nil, invalidf("", "no tracks defined")
	}
	c := &Catalog{
		tracks: make(map[models.Track]*trackGraph, len(tracks)),
		defs:   make(map[models.Track]TrackDefinition, len(tracks)),
	}
	for _, raw := range tracks {
		def := raw.normalized()
		if _, dup := c.tracks[def.Track]; dup {
			return nil, invalidf(def.Track, "duplicate track")
		}
		g, err := buildGraph(def)
		if err != nil {
			return nil, err
		}
		c.tracks[def.Track] = g
		c.defs[def.Track] = def
	}
	return c, nil
}

// ValidateTrack checks a single track definition without building a catalog.
func ValidateTrack(def TrackDefinition) error {
	_, err := buildGraph(def.normalized())
	return err
}

// ValidateTrack re-validates a loaded track. It returns ErrUnknownTrack when
// the track is not part of the catalog.
func (c *Catalog) ValidateTrack(track models.Track) error {
	def, ok := c.defs[track]
	if !ok {
		return unknownTrack(track)
	}
	return ValidateTrack(def)
}

// Tracks returns the track names in lexical order.
func (c *Catalog) Tracks() []models.Track {
	out := make([]models.Track, 0, len(c.tracks))
	for t := range c.tracks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// HasTrack reports whether the catalog defines track.
func (c *Catalog) HasTrack(track models.Track) bool {
	_, ok := c.tracks[track]
	return ok
}

// GetTrack returns the track's task definitions in declaration order.
func (c *Catalog) GetTrack(track models.Track) ([]TaskDefinition, error) {
	g, ok := c.tracks[track]
	if !ok {
		return nil, unknownTrack(track)
	}
	out := make([]TaskDefinition, len(g.tasks))
	for i, t := range g.tasks {
		out[i] = t.clone()
	}
	return out, nil
}

// Task returns a single task definition.
func (c *Catalog) Task(track models.Track, taskID string) (TaskDefinition, bool) {
	g, ok := c.tracks[track]
	if !ok {
		return TaskDefinition{}, false
	}
	i, ok := g.index[taskID]
	if !ok {
		return TaskDefinition{}, false
	}
	return g.tasks[i].clone(), true
}

// Dependents returns the ids of tasks that declare taskID as a dependency,
// in declaration order.
func (c *Catalog) Dependents(track models.Track, taskID string) []string {
	g, ok := c.tracks[track]
	if !ok {
		return nil
	}
	i, ok := g.index[taskID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(g.outgoing[i]))
	for _, d := range g.outgoing[i] {
		out = append(out, g.tasks[d].ID)
	}
	return out
}

// TopologicalOrder returns the task ids of a track in dependency order,
// breaking ties by declaration order.
func (c *Catalog) TopologicalOrder(track models.Track) ([]string, error) {
	g, ok := c.tracks[track]
	if !ok {
		return nil, unknownTrack(track)
	}
	out := make([]string, 0, len(g.order))
	for _, i := range g.order {
		out = append(out, g.tasks[i].ID)
	}
	return out, nil
}

// Definitions returns the normalized track definitions, sorted by track name.
func (c *Catalog) Definitions() []TrackDefinition {
	out := make([]TrackDefinition, 0, len(c.defs))
	for _, t := range c.Tracks() {
		tasks, _ := c.GetTrack(t)
		out = append(out, TrackDefinition{Track: t, Tasks: tasks})
	}
	return out
}
