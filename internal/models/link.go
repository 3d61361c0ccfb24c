package models

import "time"

// LinkType is the traceability kind of a RequirementLink.
type LinkType string

// Link types.
const (
	LinkSatisfies LinkType = "satisfies"
	LinkVerifies  LinkType = "verifies"
	LinkDerives   LinkType = "derives"
	LinkRefines   LinkType = "refines"
	LinkConflicts LinkType = "conflicts"
)

// Valid reports whether t is a known link type.
func (t LinkType) Valid() bool {
	switch t {
	case LinkSatisfies, LinkVerifies, LinkDerives, LinkRefines, LinkConflicts:
		return true
	}
	return false
}

// Directed reports whether links of this type form a dependency edge
// source→target. Conflicts is symmetric.
func (t LinkType) Directed() bool {
	return t.Valid() && t != LinkConflicts
}

// LinkStatus is the lifecycle state of a link.
type LinkStatus string

// Link statuses. StatusBroken is never stored: it is an overlay computed
// from stale pins when links are read.
const (
	StatusProposed    LinkStatus = "proposed"
	StatusAgreed      LinkStatus = "agreed"
	StatusImplemented LinkStatus = "implemented"
	StatusVerified    LinkStatus = "verified"
	StatusBroken      LinkStatus = "broken"
)

// Rank returns the position of s in the forward lifecycle, or -1 for
// statuses outside it (including broken).
func (s LinkStatus) Rank() int {
	switch s {
	case StatusProposed:
		return 0
	case StatusAgreed:
		return 1
	case StatusImplemented:
		return 2
	case StatusVerified:
		return 3
	}
	return -1
}

// Endpoint names one side of a link.
type Endpoint string

// Endpoint positions.
const (
	EndpointSource Endpoint = "source"
	EndpointTarget Endpoint = "target"
)

// LinkEndpoint references an item, optionally pinned at a version. A nil
// PinnedVersion means the endpoint floats with the item's current version.
type LinkEndpoint struct {
	ItemID        string  `json:"itemId"`
	PinnedVersion *string `json:"pinnedVersion"`
}

// RequirementLink is an engine-owned traceability relationship.
type RequirementLink struct {
	ID        string       `json:"id"`
	Type      LinkType     `json:"type"`
	Source    LinkEndpoint `json:"source"`
	Target    LinkEndpoint `json:"target"`
	Status    LinkStatus   `json:"status"`
	Notes     string       `json:"notes,omitempty"`
	Author    string       `json:"author"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Pinned reports whether both endpoints carry a pinned version.
func (l RequirementLink) Pinned() bool {
	return l.Source.PinnedVersion != nil && l.Target.PinnedVersion != nil
}

// Endpoint returns the endpoint at the given position.
func (l RequirementLink) Endpoint(e Endpoint) LinkEndpoint {
	if e == EndpointTarget {
		return l.Target
	}
	return l.Source
}

// Touches reports whether itemID is either endpoint of the link.
func (l RequirementLink) Touches(itemID string) bool {
	return l.Source.ItemID == itemID || l.Target.ItemID == itemID
}

// Clone returns a deep copy; pinned versions are not shared.
func (l RequirementLink) Clone() RequirementLink {
	out := l
	out.Source.PinnedVersion = cloneString(l.Source.PinnedVersion)
	out.Target.PinnedVersion = cloneString(l.Target.PinnedVersion)
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
