package engine

import (
	"fmt"
	"sort"
)

// Resource is an immutable block of planar sample data shared by nodes.
// Channel c occupies data[c*NumFrames : (c+1)*NumFrames].
type Resource struct {
	Name        string
	NumChannels int
	NumFrames   int

	data []float64
}

// NewResource validates the shape and copies data into a new Resource.
func NewResource(name string, numChannels, numFrames int, data []float64) (*Resource, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty resource name", InvalidResourceShape)
	}

	if numChannels <= 0 || numFrames <= 0 {
		return nil, fmt.Errorf("%w: %q has %d channels and %d frames", InvalidResourceShape, name, numChannels, numFrames)
	}

	if len(data) != numChannels*numFrames {
		return nil, fmt.Errorf("%w: %q expects %d samples, got %d",
			InvalidResourceShape, name, numChannels*numFrames, len(data))
	}

	owned := make([]float64, len(data))
	copy(owned, data)

	return &Resource{
		Name:        name,
		NumChannels: numChannels,
		NumFrames:   numFrames,
		data:        owned,
	}, nil
}

// Channel returns a read-only view of channel c, or nil if c is out of range.
func (r *Resource) Channel(c int) []float64 {
	if r == nil || c < 0 || c >= r.NumChannels {
		return nil
	}

	return r.data[c*r.NumFrames : (c+1)*r.NumFrames]
}

// AddSharedResource registers data under name, replacing any previous
// resource with that name. Nodes whose last configuration looked up name are
// reconfigured and a new snapshot is published, so the change is audible
// from the next block. A shape mismatch returns InvalidResourceShape and
// leaves the table unchanged.
func (r *Runtime[C]) AddSharedResource(name string, numChannels, numFrames int, data []float64) error {
	res, err := NewResource(name, numChannels, numFrames, data)
	if err != nil {
		return fmt.Errorf("engine: add shared resource: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("engine: add shared resource %q: %w", name, Closed)
	}

	_, replaced := r.resources[name]
	r.resources[name] = res
	r.stats.resourcesRegistered.Add(1)

	r.log.Info("engine: shared resource registered",
		"name", name, "channels", numChannels, "frames", numFrames, "replaced", replaced)

	if r.reconfigureDependents(name) == 0 {
		return nil
	}

	return r.publish()
}

// SharedResourceNames returns the registered resource names in sorted order.
func (r *Runtime[C]) SharedResourceNames() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.resources))
	for name := range r.resources {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// reconfigureDependents re-runs Configure on every node that looked up name.
// A node whose reconfiguration fails keeps its previous settings and the
// failure is reported as an error event. It returns the number of nodes
// that picked up new settings.
func (r *Runtime[C]) reconfigureDependents(name string) int {
	updated := 0

	for _, id := range r.graph.sortedIDs() {
		e := r.graph.entries[id]
		if !e.dependsOn(name) {
			continue
		}

		settings, deps, err := r.configure(e.node, e.props)
		if err != nil {
			r.log.Warn("engine: reconfigure after resource change failed",
				"node", id, "kind", e.kind, "resource", name, "err", err)
			r.emitControl(EventError, map[string]any{
				"index":   -1,
				"op":      "reconfigure",
				"node":    id,
				"code":    int(CodeOf(err)),
				"message": err.Error(),
			})

			continue
		}

		e.settings = settings
		e.deps = deps
		updated++
	}

	return updated
}
