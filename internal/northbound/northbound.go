// Package northbound defines the boundary between a protocol instance and
// the out-of-scope YANG-driven configuration/state layer (spec.md §1/§6).
// The real northbound — commit validation, state-tree generation from a
// schema, the gRPC/CLI surface — is an external collaborator; this package
// only fixes the shape of that boundary so internal/instance has something
// concrete to wire each protocol instance's Callbacks to.
package northbound

import "context"

// Diff is a single configuration mutation the northbound hands to an
// instance during a commit. Path uses a simple slash-separated scheme
// ("/ospf/area/0/interface/eth0/hello-interval"); the real YANG northbound
// would carry a typed schema path instead.
type Diff struct {
	Path  string
	Value any
	// Delete indicates the path is being removed rather than set.
	Delete bool
}

// StateTree is a materialized, read-only snapshot of an instance's state,
// keyed the same way as Diff.Path.
type StateTree map[string]any

// Callbacks is what an instance.Container forwards northbound read/write
// RPCs to, per spec.md §4.10 responsibility 5 ("forwards northbound
// read/write calls to the instance's callback set").
type Callbacks struct {
	// Prepare validates a batch of diffs without applying them. A
	// non-nil error rejects the whole commit (spec.md §7: "Configuration
	// error... reported to the northbound as a validation failure at
	// prepare time").
	Prepare func(ctx context.Context, diffs []Diff) error
	// Apply commits a batch of diffs already validated by Prepare.
	Apply func(ctx context.Context, diffs []Diff) error
	// Get returns a materialized state view rooted at path.
	Get func(ctx context.Context, path string) (StateTree, error)
}

// Collaborator is the minimal interface that connects each instance's
// Callbacks to an external transport. A real implementation would be backed by
// generated protobuf/gRPC service stubs (out of reach here without running
// protoc, see DESIGN.md); this interface is deliberately transport-agnostic
// so it can be satisfied by a plain in-process adapter for tests and by a
// future generated-code adapter without changing instance.Container.
type Collaborator interface {
	// Commit validates then applies diffs against the named instance.
	Commit(ctx context.Context, instance string, diffs []Diff) error
	// Get returns instance's materialized state at path.
	Get(ctx context.Context, instance, path string) (StateTree, error)
}

// Registry is a Collaborator backed by in-process Callbacks, one set per
// named instance. cmd/gobfd creates a Registry and hands it to
// internal/server as the Collaborator for the daemon's northbound-facing
// surface; protocol instances add their Callbacks with Register.
type Registry struct {
	instances map[string]Callbacks
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{instances: make(map[string]Callbacks)}
}

// Register associates name with cb, replacing any previous registration.
func (r *Registry) Register(name string, cb Callbacks) {
	r.instances[name] = cb
}

// Commit implements Collaborator.
func (r *Registry) Commit(ctx context.Context, instance string, diffs []Diff) error {
	cb, ok := r.instances[instance]
	if !ok {
		return errUnknownInstance(instance)
	}
	if cb.Prepare != nil {
		if err := cb.Prepare(ctx, diffs); err != nil {
			return err
		}
	}
	if cb.Apply != nil {
		return cb.Apply(ctx, diffs)
	}
	return nil
}

// Get implements Collaborator.
func (r *Registry) Get(ctx context.Context, instance, path string) (StateTree, error) {
	cb, ok := r.instances[instance]
	if !ok {
		return nil, errUnknownInstance(instance)
	}
	if cb.Get == nil {
		return StateTree{}, nil
	}
	return cb.Get(ctx, path)
}

type unknownInstanceError string

func (e unknownInstanceError) Error() string {
	return "northbound: unknown instance " + string(e)
}

func errUnknownInstance(name string) error {
	return unknownInstanceError(name)
}
