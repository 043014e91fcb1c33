package response

import (
	"context"
	"fmt"
	"maps"
	"slices"
)

// Excluder removes a member's stored response from an event.
type Excluder interface {
	ExcludeMember(ctx context.Context, eventID, member string) error
}

// Exclusions tracks which members are left out of the aggregate view.
//
// Temporary exclusion is a local view filter: Toggle never performs I/O and
// the set is lost with the session. Permanent exclusion goes through an
// Excluder and cannot be undone here.
type Exclusions struct {
	temporary map[string]struct{}
	permanent map[string]struct{}
}

// NewExclusions returns an empty exclusion set.
func NewExclusions() *Exclusions {
	return &Exclusions{
		temporary: make(map[string]struct{}),
		permanent: make(map[string]struct{}),
	}
}

// Toggle flips the member's temporary exclusion and reports the new state.
func (e *Exclusions) Toggle(member string) bool {
	if _, ok := e.temporary[member]; ok {
		delete(e.temporary, member)
		return false
	}
	e.temporary[member] = struct{}{}
	return true
}

// IsTemporarilyExcluded reports whether member is hidden from the local view.
func (e *Exclusions) IsTemporarilyExcluded(member string) bool {
	_, ok := e.temporary[member]
	return ok
}

// IsPermanentlyExcluded reports whether member was removed from the event.
func (e *Exclusions) IsPermanentlyExcluded(member string) bool {
	_, ok := e.permanent[member]
	return ok
}

// Permanent lists the removed members in sorted order.
func (e *Exclusions) Permanent() []string {
	return slices.Sorted(maps.Keys(e.permanent))
}

// Excluded returns temporary ∪ permanent, the set the aggregate drops.
func (e *Exclusions) Excluded() map[string]struct{} {
	out := make(map[string]struct{}, len(e.temporary)+len(e.permanent))
	for m := range e.temporary {
		out[m] = struct{}{}
	}
	for m := range e.permanent {
		out[m] = struct{}{}
	}
	return out
}

// ExcludePermanently asks the excluder to delete member's response and, once
// confirmed, removes it from coll. On failure nothing local changes so the
// caller may retry.
func (e *Exclusions) ExcludePermanently(ctx context.Context, excluder Excluder, coll *Collection, eventID, member string) error {
	if err := excluder.ExcludeMember(ctx, eventID, member); err != nil {
		return fmt.Errorf("exclude member %s: %w", member, err)
	}
	coll.Remove(member)
	delete(e.temporary, member)
	e.permanent[member] = struct{}{}
	return nil
}
