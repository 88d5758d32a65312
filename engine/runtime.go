// Package engine is a block-based audio graph runtime driven by instruction
// batches.
//
// The control side mutates a graph table through ApplyInstructions, registers
// shared sample data through AddSharedResource and collects diagnostics
// through DrainEvents. Those calls are serialized by a mutex. The audio side
// calls Process, which never takes that mutex: it loads an immutable
// compiled snapshot through an atomic pointer and hands events back through a
// wait-free ring.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/cwbudde/algo-elem/internal/ring"
)

// Runtime owns one audio graph. C is the type of the per-call context value
// passed to Process and forwarded to nodes implementing ContextNode[C].
type Runtime[C any] struct {
	sampleRate float64
	blockSize  int
	cfg        Config
	log        *slog.Logger

	mu        sync.Mutex
	closed    bool
	registry  *Registry
	graph     *graphTable
	resources map[string]*Resource
	events    []Event

	active         atomic.Pointer[snapshot[C]]
	audioEvents    *ring.SPSC[audioEvent]
	droppedPending atomic.Uint64
	seq            atomic.Uint64
	sampleTime     atomic.Int64
	stats          counters

	// Owned by the audio side.
	hostIn  [][]float64
	current int
}

// New creates a runtime for the given sample rate and maximum block size.
func New[C any](sampleRate float64, blockSize int, opts ...Option) (*Runtime[C], error) {
	if math.IsNaN(sampleRate) || math.IsInf(sampleRate, 0) || sampleRate <= 0 {
		return nil, fmt.Errorf("engine: invalid sample rate %v", sampleRate)
	}

	if blockSize <= 0 {
		return nil, fmt.Errorf("engine: invalid block size %d", blockSize)
	}

	cfg := ApplyOptions(opts...)

	r := &Runtime[C]{
		sampleRate:  sampleRate,
		blockSize:   blockSize,
		cfg:         cfg,
		log:         cfg.Logger,
		registry:    cfg.Registry.Clone(),
		graph:       newGraphTable(),
		resources:   make(map[string]*Resource),
		audioEvents: ring.New[audioEvent](cfg.EventQueueSize),
		hostIn:      make([][]float64, 0, cfg.MaxChannels),
		current:     -1,
	}

	r.log.Debug("engine: runtime created",
		"sampleRate", sampleRate, "blockSize", blockSize, "batchPolicy", cfg.BatchPolicy.String())

	return r, nil
}

// SampleRate returns the fixed sample rate.
func (r *Runtime[C]) SampleRate() float64 { return r.sampleRate }

// BlockSize returns the maximum number of frames evaluated per chunk.
func (r *Runtime[C]) BlockSize() int { return r.blockSize }

// BatchPolicy reports how partially rejected batches are handled.
func (r *Runtime[C]) BatchPolicy() BatchPolicy { return r.cfg.BatchPolicy }

// RegisterNodeType adds a node kind to this runtime's registry.
func (r *Runtime[C]) RegisterNodeType(kind string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("engine: register node type %q: %w", kind, Closed)
	}

	err := r.registry.Register(kind, factory)
	if err != nil {
		return fmt.Errorf("engine: register node type %q: %w", kind, err)
	}

	r.log.Info("engine: node type registered", "kind", kind)

	return nil
}

// NodeTypes returns the node kinds this runtime can create, sorted.
func (r *Runtime[C]) NodeTypes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.registry.Kinds()
}

// Close detaches the active snapshot and releases the graph and resource
// tables. Later Process calls produce silence and control calls return
// Closed. Close must not run concurrently with Process.
func (r *Runtime[C]) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}

	r.closed = true
	r.active.Store(nil)
	r.graph = newGraphTable()
	r.resources = make(map[string]*Resource)
	r.events = nil

	r.log.Debug("engine: runtime closed")
}

func (r *Runtime[C]) env() Env {
	return Env{
		SampleRate: r.sampleRate,
		BlockSize:  r.blockSize,
		lookup:     &resourceLookup{table: r.resources},
	}
}

// configure runs node.Configure and returns the settings together with the
// resource names the node looked up.
func (r *Runtime[C]) configure(node Node, props Props) (Settings, []string, error) {
	env := r.env()

	settings, err := node.Configure(env, props)
	if err != nil {
		return nil, nil, err
	}

	if settings == nil {
		settings = Mono{}
	}

	return settings, env.deps(), nil
}

// InstructionError reports one rejected instruction of a batch.
type InstructionError struct {
	Index int
	Op    Op
	Node  int32
	Err   error
}

func (e *InstructionError) Error() string {
	return fmt.Sprintf("engine: instruction %d (%s node %d): %v", e.Index, e.Op, e.Node, e.Err)
}

func (e *InstructionError) Unwrap() error { return e.Err }

// Rejected returns the batch index of every *InstructionError joined into
// err, in the order they were reported.
func Rejected(err error) []int {
	var out []int

	var walk func(error)
	walk = func(err error) {
		switch e := err.(type) {
		case nil:
		case *InstructionError:
			out = append(out, e.Index)
		case interface{ Unwrap() []error }:
			for _, inner := range e.Unwrap() {
				walk(inner)
			}
		}
	}

	walk(err)

	return out
}

// ApplyInstructions applies a batch to a staged copy of the graph, then
// compiles and publishes it with a single atomic store.
//
// Each instruction is validated before it changes the staged copy, so a
// rejected instruction leaves no partial effect. Under BatchAtomic any
// rejection discards the whole batch; under BatchPerInstruction the valid
// instructions are kept. Every rejection enqueues an error event. The
// returned error joins one *InstructionError per rejection, and CodeOf
// reports the first one's code.
func (r *Runtime[C]) ApplyInstructions(batch []Instruction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("engine: apply instructions: %w", Closed)
	}

	r.stats.batches.Add(1)

	tx := newTxn(r.graph)

	var errs []error

	for i, in := range batch {
		err := r.applyOne(tx, in)
		if err == nil {
			r.stats.instructionsApplied.Add(1)
			continue
		}

		r.stats.instructionsRejected.Add(1)

		ierr := &InstructionError{Index: i, Op: in.Op, Node: in.Node, Err: err}
		errs = append(errs, ierr)

		r.log.Debug("engine: instruction rejected", "index", i, "op", in.Op.String(), "node", in.Node, "err", err)
		r.emitControl(EventError, map[string]any{
			"index":   i,
			"op":      in.Op.String(),
			"node":    in.Node,
			"code":    int(CodeOf(err)),
			"message": err.Error(),
		})
	}

	if len(errs) > 0 && r.cfg.BatchPolicy == BatchAtomic {
		return errors.Join(errs...)
	}

	if tx.changed {
		r.graph = tx.table()

		if err := r.publish(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

//nolint:cyclop,funlen
func (r *Runtime[C]) applyOne(tx *txn, in Instruction) error {
	switch in.Op {
	case OpCreateNode:
		if tx.get(in.Node) != nil {
			return NodeAlreadyExists
		}

		factory := r.registry.Lookup(in.Kind)
		if factory == nil {
			return fmt.Errorf("%w: %q", UnknownNodeType, in.Kind)
		}

		node, err := factory(r.env())
		if err != nil {
			return fmt.Errorf("create %q: %w", in.Kind, withDefaultCode(err, InvalidPropertyValue))
		}

		props := Props{}

		settings, deps, err := r.configure(node, props)
		if err != nil {
			return fmt.Errorf("configure %q: %w", in.Kind, withDefaultCode(err, InvalidPropertyValue))
		}

		tx.put(&nodeEntry{id: in.Node, kind: in.Kind, node: node, props: props, settings: settings, deps: deps})

	case OpDeleteNode:
		if tx.get(in.Node) == nil {
			return NodeNotFound
		}

		if tx.graph.referenced(in.Node) {
			return fmt.Errorf("%w: node is still referenced", InvariantViolation)
		}

		tx.remove(in.Node)

	case OpAppendChild:
		if tx.get(in.Node) == nil {
			return fmt.Errorf("%w: parent", NodeNotFound)
		}

		if tx.get(in.Child) == nil {
			return fmt.Errorf("%w: child %d", NodeNotFound, in.Child)
		}

		if in.Outlet < 0 {
			return fmt.Errorf("%w: outlet %d", InvalidPropertyValue, in.Outlet)
		}

		if tx.graph.reaches(in.Child, in.Node) {
			return fmt.Errorf("%w: appending %d to %d creates a cycle", InvariantViolation, in.Child, in.Node)
		}

		e := tx.edit(in.Node)
		e.children = append(e.children, Edge{Child: in.Child, Outlet: in.Outlet})

	case OpSetProperty:
		cur := tx.get(in.Node)
		if cur == nil {
			return NodeNotFound
		}

		props := cur.props.Clone()
		props[in.Key] = in.Value

		settings, deps, err := r.configure(cur.node, props)
		if err != nil {
			return fmt.Errorf("set property %q: %w", in.Key, withDefaultCode(err, InvalidPropertyValue))
		}

		e := tx.edit(in.Node)
		e.props = props
		e.settings = settings
		e.deps = deps

	case OpActivateRoots:
		roots := make([]int32, 0, len(in.Roots))
		seen := make(map[int32]struct{}, len(in.Roots))

		for _, id := range in.Roots {
			e := tx.get(id)
			if e == nil {
				return fmt.Errorf("%w: root %d", NodeNotFound, id)
			}

			if e.kind != KindRoot {
				return fmt.Errorf("%w: node %d is %q, not a root", InvariantViolation, id, e.kind)
			}

			if _, dup := seen[id]; dup {
				continue
			}

			seen[id] = struct{}{}
			roots = append(roots, id)
		}

		tx.setRoots(roots)

	case OpCommitUpdates:
		// Publication happens once at the end of the batch.

	default:
		return fmt.Errorf("%w: opcode %d", InvalidInstructionFormat, int(in.Op))
	}

	return nil
}

// withDefaultCode wraps err with def unless it already carries a Code.
func withDefaultCode(err error, def Code) error {
	var c Code
	if errors.As(err, &c) {
		return err
	}

	return fmt.Errorf("%w: %w", def, err)
}
