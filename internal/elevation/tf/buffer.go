package tf

import (
	"fmt"
	"sync"
	"time"
)

// Buffer holds the most recent stamped transform per parent/child frame
// pair. Broadcast records an edge and wakes any pending lookups; Lookup
// blocks, with a bound, until a transform at or after the requested stamp is
// available.
type Buffer struct {
	mu     sync.Mutex
	edges  map[edgeKey]stampedTransform
	notify chan struct{} // closed and replaced on every Broadcast
}

type edgeKey struct {
	parent string
	child  string
}

type stampedTransform struct {
	tr    RigidTransform
	stamp time.Time
}

// NewBuffer creates an empty transform buffer.
func NewBuffer() *Buffer {
	return &Buffer{
		edges:  make(map[edgeKey]stampedTransform),
		notify: make(chan struct{}),
	}
}

// Broadcast records the transform taking points in the child frame to the
// parent frame, stamped with the given time. An older stamp than the stored
// edge is ignored.
func (b *Buffer) Broadcast(tr RigidTransform, stamp time.Time, parent, child string) error {
	if parent == "" || child == "" {
		return fmt.Errorf("broadcast transform: empty frame id (parent=%q child=%q)", parent, child)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	key := edgeKey{parent: parent, child: child}
	if have, ok := b.edges[key]; ok && stamp.Before(have.stamp) {
		return nil
	}
	b.edges[key] = stampedTransform{tr: tr, stamp: stamp}

	close(b.notify)
	b.notify = make(chan struct{})
	return nil
}

// Lookup returns the transform taking points in the source frame to the
// target frame, waiting up to timeout for a transform stamped at or after
// the requested time. The transform is resolved from a direct edge, its
// inverse, or a composition through a shared parent frame. Each lookup gets
// exactly one bounded wait; callers treat failure as "skip this step", never
// as fatal.
func (b *Buffer) Lookup(target, source string, stamp time.Time, timeout time.Duration) (RigidTransform, error) {
	if target == source {
		return Identity(), nil
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		b.mu.Lock()
		tr, ok := b.resolveLocked(target, source, stamp)
		notify := b.notify
		b.mu.Unlock()

		if ok {
			return tr, nil
		}

		select {
		case <-notify:
			// A new broadcast arrived; retry.
		case <-deadline.C:
			return RigidTransform{}, fmt.Errorf("lookup transform %s <- %s at %s: timed out after %s",
				target, source, stamp.Format(time.RFC3339Nano), timeout)
		}
	}
}

// resolveLocked attempts to resolve target <- source from the stored edges.
// Caller holds b.mu.
func (b *Buffer) resolveLocked(target, source string, stamp time.Time) (RigidTransform, bool) {
	// Direct edge: target is the parent of source.
	if e, ok := b.edges[edgeKey{parent: target, child: source}]; ok && !e.stamp.Before(stamp) {
		return e.tr, true
	}

	// Inverse edge: source is the parent of target.
	if e, ok := b.edges[edgeKey{parent: source, child: target}]; ok && !e.stamp.Before(stamp) {
		return e.tr.Inverse(), true
	}

	// One-level composition through a shared parent:
	// T(target <- source) = T(parent -> target)^-1 * T(parent -> source).
	for key, toTarget := range b.edges {
		if key.child != target || toTarget.stamp.Before(stamp) {
			continue
		}
		if toSource, ok := b.edges[edgeKey{parent: key.parent, child: source}]; ok && !toSource.stamp.Before(stamp) {
			return toTarget.tr.Inverse().Mul(toSource.tr), true
		}
	}

	return RigidTransform{}, false
}

// Latest returns the most recent transform for a parent/child pair without
// waiting, for diagnostics.
func (b *Buffer) Latest(parent, child string) (RigidTransform, time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.edges[edgeKey{parent: parent, child: child}]
	return e.tr, e.stamp, ok
}
