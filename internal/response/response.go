package response

import (
	"sort"
	"time"

	"github.com/ryanbastic/go-slotgrid/internal/grid"
)

// MemberResponse is one member's submitted availability for an event.
type MemberResponse struct {
	Member       string     `json:"member"`
	Availability grid.Draft `json:"availability"`
	Note         string     `json:"note,omitempty"`
	SubmittedAt  time.Time  `json:"submitted_at"`
}

// Collection holds the responses for one event, at most one per member.
// It is not safe for concurrent use.
type Collection struct {
	byMember map[string]MemberResponse
}

// NewCollection builds a collection from responses. Later entries for the
// same member replace earlier ones.
func NewCollection(responses ...MemberResponse) *Collection {
	c := &Collection{byMember: make(map[string]MemberResponse, len(responses))}
	for _, r := range responses {
		c.Upsert(r)
	}
	return c
}

// Upsert stores r, replacing any previous response from the same member.
func (c *Collection) Upsert(r MemberResponse) {
	c.byMember[r.Member] = r
}

// Remove drops the member's response and reports whether one existed.
func (c *Collection) Remove(member string) bool {
	if _, ok := c.byMember[member]; !ok {
		return false
	}
	delete(c.byMember, member)
	return true
}

// Get returns the member's response.
func (c *Collection) Get(member string) (MemberResponse, bool) {
	r, ok := c.byMember[member]
	return r, ok
}

// Len returns the number of responding members.
func (c *Collection) Len() int { return len(c.byMember) }

// Members returns the responding members in List order.
func (c *Collection) Members() []string {
	list := c.List()
	out := make([]string, len(list))
	for i, r := range list {
		out[i] = r.Member
	}
	return out
}

// List returns responses ordered by submission time, then member.
func (c *Collection) List() []MemberResponse {
	out := make([]MemberResponse, 0, len(c.byMember))
	for _, r := range c.byMember {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.Before(out[j].SubmittedAt)
		}
		return out[i].Member < out[j].Member
	})
	return out
}
