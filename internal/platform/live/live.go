// Package live keeps query and document results in sync with the document
// store for the lifetime of a client scope.
//
// A Scope belongs to one client connection. Subscriptions opened in a scope
// hold at most one store listener each; changing the descriptor or the
// scope's viewer replaces that listener, and closing the subscription or the
// scope removes it. Every state change is published to the subscriber as an
// Envelope. Failures are reported twice: in the envelope, and once on the
// scope's permission error emitter.
package live

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/woundcare/woundcare/internal/platform/apperr"
	"github.com/woundcare/woundcare/internal/platform/docstore"
)

// Viewer is the principal whose identity and role parameterise the
// subscriptions of a scope. An empty id means nobody is signed in; an empty
// role means the role has not been assigned yet.
type Viewer interface {
	ViewerID() string
	ViewerRole() string
}

// StaticViewer is a Viewer with fixed values.
type StaticViewer struct {
	UID  string
	Role string
}

func (v StaticViewer) ViewerID() string   { return v.UID }
func (v StaticViewer) ViewerRole() string { return v.Role }

// Descriptor identifies what a subscription reads. An empty Path disables
// the subscription. Two descriptors are the same subscription when their
// Key values are equal.
type Descriptor struct {
	Path        string                `json:"path"`
	Group       bool                  `json:"group,omitempty"`
	Constraints []docstore.Constraint `json:"constraints,omitempty"`
}

// Key returns the value identity of d.
func (d Descriptor) Key() string {
	b, err := json.Marshal(d)
	if err != nil {
		return d.Path
	}
	return string(b)
}

// Record is a decoded document together with its id.
type Record[T any] struct {
	ID   string `json:"id"`
	Path string `json:"path"`
	Data T      `json:"data"`
}

// Envelope is the published state of a subscription. While IsLoading is set
// Data and Error are both empty; afterwards at most one of them is set.
type Envelope[D any] struct {
	Data      D                       `json:"data"`
	IsLoading bool                    `json:"isLoading"`
	Error     *apperr.PermissionError `json:"error"`
}

// Decoder converts a stored document into a typed value.
type Decoder[T any] func(s *docstore.Snapshot) (T, error)

// Raw is a Decoder returning the document payload unchanged.
func Raw(s *docstore.Snapshot) (map[string]any, error) {
	return s.Data, nil
}

type member interface {
	reconcile()
	Close()
}

// Scope owns the subscriptions of one client connection.
type Scope struct {
	client *docstore.Client
	viewer Viewer
	errors *apperr.Emitter
	logger zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	members map[member]struct{}
	closed  bool
}

// NewScope creates a scope. Subscriptions read the store as viewer and
// report failures on errs.
func NewScope(ctx context.Context, client *docstore.Client, viewer Viewer, errs *apperr.Emitter, logger zerolog.Logger) *Scope {
	if errs == nil {
		errs = apperr.NewEmitter()
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Scope{
		client:  client,
		viewer:  viewer,
		errors:  errs,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		members: make(map[member]struct{}),
	}
}

// Errors returns the scope's permission error emitter.
func (s *Scope) Errors() *apperr.Emitter { return s.errors }

// Refresh re-evaluates every subscription against the current viewer. Call
// it after the viewer signs in, signs out or changes role.
func (s *Scope) Refresh() {
	for _, m := range s.snapshot() {
		m.reconcile()
	}
}

// Close tears down every subscription of the scope.
func (s *Scope) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	for _, m := range s.snapshot() {
		m.Close()
	}
	s.cancel()
}

// Len returns the number of open subscriptions.
func (s *Scope) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members)
}

func (s *Scope) snapshot() []member {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]member, 0, len(s.members))
	for m := range s.members {
		out = append(out, m)
	}
	return out
}

func (s *Scope) add(m member) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.members[m] = struct{}{}
	return true
}

func (s *Scope) remove(m member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.members, m)
}

func (s *Scope) viewerState() (uid, role string) {
	if s.viewer == nil {
		return "", ""
	}
	return s.viewer.ViewerID(), s.viewer.ViewerRole()
}

// listenFunc opens a store listener. It returns the listener's stop function.
type listenFunc[D any] func(ctx context.Context, conn *docstore.Conn, next func(D), fail func(error)) func()

// planFunc maps a descriptor and viewer to a listener key. A nil listen
// means the subscription stays idle with empty data.
type planFunc[D any] func(desc Descriptor, uid, role string) (key string, listen listenFunc[D])

// subscription is the shared state machine behind collection and document
// subscriptions.
type subscription[D any] struct {
	scope    *Scope
	op       apperr.Operation
	plan     planFunc[D]
	onChange func(Envelope[D])

	mu     sync.Mutex
	desc   Descriptor
	key    string
	gen    uint64
	seq    uint64
	stop   func()
	env    Envelope[D]
	closed bool

	notifyMu  sync.Mutex
	published uint64
}

func newSubscription[D any](scope *Scope, op apperr.Operation, desc Descriptor, plan planFunc[D], onChange func(Envelope[D])) *subscription[D] {
	return &subscription[D]{scope: scope, op: op, plan: plan, onChange: onChange, desc: desc}
}

func (s *subscription[D]) start() {
	if !s.scope.add(s) {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		return
	}
	s.reconcile()
}

func (s *subscription[D]) update(desc Descriptor) {
	s.mu.Lock()
	s.desc = desc
	s.mu.Unlock()
	s.reconcile()
}

// reconcile opens a new listener when the effective key changed and stops
// the previous one.
func (s *subscription[D]) reconcile() {
	uid, role := s.scope.viewerState()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	key, listen := s.plan(s.desc, uid, role)
	if key == s.key {
		s.mu.Unlock()
		return
	}
	s.key = key
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	s.gen++
	gen := s.gen

	var zero D
	if listen == nil {
		s.env = Envelope[D]{Data: zero}
	} else {
		s.env = Envelope[D]{Data: zero, IsLoading: true}
		conn := s.scope.client.As(docstore.Actor{UID: uid})
		s.stop = listen(s.scope.ctx, conn,
			func(d D) { s.next(gen, d) },
			func(err error) { s.fail(gen, err) },
		)
	}
	s.seq++
	seq, env := s.seq, s.env
	s.mu.Unlock()

	s.publish(seq, env)
}

func (s *subscription[D]) next(gen uint64, d D) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.env = Envelope[D]{Data: d}
	s.seq++
	seq, env := s.seq, s.env
	s.mu.Unlock()

	s.publish(seq, env)
}

func (s *subscription[D]) fail(gen uint64, err error) {
	s.mu.Lock()
	if s.closed || gen != s.gen {
		s.mu.Unlock()
		return
	}
	pe := apperr.NewPermissionError(s.op, s.desc.Path, nil)
	var zero D
	s.env = Envelope[D]{Data: zero, Error: pe}
	s.seq++
	seq, env := s.seq, s.env
	s.mu.Unlock()

	s.scope.logger.Debug().Err(err).Str("operation", string(s.op)).Str("path", pe.Path).Msg("subscription failed")
	s.scope.errors.Emit(apperr.EventPermissionError, pe)
	s.publish(seq, env)
}

// publish delivers env unless a newer envelope was already delivered.
func (s *subscription[D]) publish(seq uint64, env Envelope[D]) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if seq <= s.published {
		return
	}
	s.published = seq
	if s.onChange != nil {
		s.onChange(env)
	}
}

func (s *subscription[D]) current() Envelope[D] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.env
}

func (s *subscription[D]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.stop != nil {
		s.stop()
		s.stop = nil
	}
	s.gen++
	s.mu.Unlock()
	s.scope.remove(s)
}
