// Package linkstore owns the set of requirement links and their lifecycle:
// creation, edits, status transitions, pinning and baselines.
//
// Concurrency model: the store assumes a single logical writer, but guards
// its state with an RWMutex so that readers on other goroutines (HTTP
// handlers, the MCP server) observe each mutation, including a whole
// baseline batch, atomically.
package linkstore

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/starford/tracelight/internal/apperr"
	"github.com/starford/tracelight/internal/models"
)

// ItemLookup resolves item ids to the live items supplied by the canvas.
type ItemLookup interface {
	Item(id string) (models.Item, bool)
}

// ChangeKind classifies a store mutation.
type ChangeKind string

// Change kinds reported to hooks.
const (
	ChangeCreated  ChangeKind = "created"
	ChangeUpdated  ChangeKind = "updated"
	ChangeDeleted  ChangeKind = "deleted"
	ChangePinned   ChangeKind = "pinned"
	ChangeUnpinned ChangeKind = "unpinned"
)

// ChangeEvent describes a successful mutation. Link is a copy of the link
// after the mutation (before it, for deletions).
type ChangeEvent struct {
	Kind ChangeKind
	Link models.RequirementLink
}

// AddRequest carries the caller-supplied fields of a new link.
type AddRequest struct {
	SourceItemID string
	TargetItemID string
	Type         models.LinkType
	Notes        string
	Author       string
}

// UpdateRequest lists the editable fields of a link. Nil fields are left
// unchanged.
type UpdateRequest struct {
	Notes *string
	Type  *models.LinkType
}

// PinOutcome reports the result of pinning one link during a baseline.
type PinOutcome struct {
	LinkID string `json:"linkId"`
	Pinned bool   `json:"pinned"`
	Err    error  `json:"-"`
}

// Store holds requirement links in insertion order.
type Store struct {
	mu    sync.RWMutex
	links []*models.RequirementLink

	now   func() time.Time
	newID func() string
	hooks []func(ChangeEvent)
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator overrides link id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		now:   func() time.Time { return time.Now().UTC() },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn to be called after every successful mutation.
// Hooks run outside the store lock, in registration order.
func (s *Store) OnChange(fn func(ChangeEvent)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, fn)
}

func (s *Store) emit(events ...ChangeEvent) {
	s.mu.RLock()
	hooks := slices.Clone(s.hooks)
	s.mu.RUnlock()
	for _, ev := range events {
		for _, fn := range hooks {
			fn(ev)
		}
	}
}

// Add creates a floating, proposed link. Item existence is not checked here
// because items may be loaded after links; dangling endpoints are reported
// by the health checks instead.
func (s *Store) Add(req AddRequest) (models.RequirementLink, error) {
	src := strings.TrimSpace(req.SourceItemID)
	dst := strings.TrimSpace(req.TargetItemID)
	switch {
	case src == "" || dst == "":
		return models.RequirementLink{}, fmt.Errorf("%w: source and target item ids are required", apperr.ErrInvalidLink)
	case src == dst:
		return models.RequirementLink{}, fmt.Errorf("%w: item %s cannot link to itself", apperr.ErrInvalidLink, src)
	case !req.Type.Valid():
		return models.RequirementLink{}, fmt.Errorf("%w: unknown link type %q", apperr.ErrInvalidLink, req.Type)
	}

	s.mu.Lock()
	if dup := s.findDuplicate(req.Type, src, dst, ""); dup != nil {
		s.mu.Unlock()
		return models.RequirementLink{}, fmt.Errorf("%w: %w: %s %s %s already exists as %s",
			apperr.ErrInvalidLink, apperr.ErrDuplicateLink, src, req.Type, dst, dup.ID)
	}
	now := s.now()
	link := &models.RequirementLink{
		ID:        s.newID(),
		Type:      req.Type,
		Source:    models.LinkEndpoint{ItemID: src},
		Target:    models.LinkEndpoint{ItemID: dst},
		Status:    models.StatusProposed,
		Notes:     req.Notes,
		Author:    req.Author,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.links = append(s.links, link)
	out := link.Clone()
	s.mu.Unlock()

	s.emit(ChangeEvent{Kind: ChangeCreated, Link: out})
	return out, nil
}

// Remove deletes a link. Removing an unknown id is not an error.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	i := s.indexOf(id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	removed := s.links[i].Clone()
	s.links = append(s.links[:i], s.links[i+1:]...)
	s.mu.Unlock()

	s.emit(ChangeEvent{Kind: ChangeDeleted, Link: removed})
}

// Update edits the notes and/or type of a link. Changing the type
// re-checks the duplicate rule against the new type. Endpoints are never
// repointed.
func (s *Store) Update(id string, req UpdateRequest) (models.RequirementLink, error) {
	if req.Type != nil && !req.Type.Valid() {
		return models.RequirementLink{}, fmt.Errorf("%w: unknown link type %q", apperr.ErrInvalidLink, *req.Type)
	}

	s.mu.Lock()
	link := s.lookup(id)
	if link == nil {
		s.mu.Unlock()
		return models.RequirementLink{}, fmt.Errorf("%w: %s", apperr.ErrLinkNotFound, id)
	}
	if req.Type != nil && *req.Type != link.Type {
		if dup := s.findDuplicate(*req.Type, link.Source.ItemID, link.Target.ItemID, link.ID); dup != nil {
			s.mu.Unlock()
			return models.RequirementLink{}, fmt.Errorf("%w: %w: %s %s %s already exists as %s",
				apperr.ErrInvalidLink, apperr.ErrDuplicateLink, link.Source.ItemID, *req.Type, link.Target.ItemID, dup.ID)
		}
		link.Type = *req.Type
	}
	if req.Notes != nil {
		link.Notes = *req.Notes
	}
	link.UpdatedAt = s.now()
	out := link.Clone()
	s.mu.Unlock()

	s.emit(ChangeEvent{Kind: ChangeUpdated, Link: out})
	return out, nil
}

// UpdateStatus moves a link through proposed → agreed → implemented →
// verified one step at a time. Any status may be reset to proposed.
// Broken is derived from stale pins and can never be set here.
func (s *Store) UpdateStatus(id string, status models.LinkStatus) (models.RequirementLink, error) {
	s.mu.Lock()
	link := s.lookup(id)
	if link == nil {
		s.mu.Unlock()
		return models.RequirementLink{}, fmt.Errorf("%w: %s", apperr.ErrLinkNotFound, id)
	}
	if err := CheckTransition(link.Status, status); err != nil {
		s.mu.Unlock()
		return models.RequirementLink{}, err
	}
	changed := link.Status != status
	if changed {
		link.Status = status
		link.UpdatedAt = s.now()
	}
	out := link.Clone()
	s.mu.Unlock()

	if changed {
		s.emit(ChangeEvent{Kind: ChangeUpdated, Link: out})
	}
	return out, nil
}

// CheckTransition reports whether a link may move from one stored status
// to another.
func CheckTransition(from, to models.LinkStatus) error {
	if to.Rank() < 0 {
		return fmt.Errorf("%w: status %q cannot be set", apperr.ErrInvalidTransition, to)
	}
	if to == models.StatusProposed || to == from {
		return nil
	}
	if from.Rank() < 0 || to.Rank() != from.Rank()+1 {
		return fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidTransition, from, to)
	}
	return nil
}

// Pin records the current version of both endpoint items on the link.
func (s *Store) Pin(id string, items ItemLookup) (models.RequirementLink, error) {
	s.mu.Lock()
	link := s.lookup(id)
	if link == nil {
		s.mu.Unlock()
		return models.RequirementLink{}, fmt.Errorf("%w: %s", apperr.ErrLinkNotFound, id)
	}
	if err := s.pinLocked(link, items); err != nil {
		s.mu.Unlock()
		return models.RequirementLink{}, err
	}
	out := link.Clone()
	s.mu.Unlock()

	s.emit(ChangeEvent{Kind: ChangePinned, Link: out})
	return out, nil
}

func (s *Store) pinLocked(link *models.RequirementLink, items ItemLookup) error {
	src, ok := items.Item(link.Source.ItemID)
	if !ok {
		return fmt.Errorf("%w: %s (source of link %s)", apperr.ErrItemNotFound, link.Source.ItemID, link.ID)
	}
	dst, ok := items.Item(link.Target.ItemID)
	if !ok {
		return fmt.Errorf("%w: %s (target of link %s)", apperr.ErrItemNotFound, link.Target.ItemID, link.ID)
	}
	srcVersion, dstVersion := src.Version, dst.Version
	link.Source.PinnedVersion = &srcVersion
	link.Target.PinnedVersion = &dstVersion
	link.UpdatedAt = s.now()
	return nil
}

// Unpin returns both endpoints of a link to floating.
func (s *Store) Unpin(id string) (models.RequirementLink, error) {
	s.mu.Lock()
	link := s.lookup(id)
	if link == nil {
		s.mu.Unlock()
		return models.RequirementLink{}, fmt.Errorf("%w: %s", apperr.ErrLinkNotFound, id)
	}
	wasPinned := link.Pinned()
	link.Source.PinnedVersion = nil
	link.Target.PinnedVersion = nil
	if wasPinned {
		link.UpdatedAt = s.now()
	}
	out := link.Clone()
	s.mu.Unlock()

	if wasPinned {
		s.emit(ChangeEvent{Kind: ChangeUnpinned, Link: out})
	}
	return out, nil
}

// Baseline pins every currently unpinned link. The whole batch runs under
// one write lock; a failure on one link does not stop the others.
func (s *Store) Baseline(items ItemLookup) []PinOutcome {
	s.mu.Lock()
	outcomes := make([]PinOutcome, 0, len(s.links))
	var events []ChangeEvent
	for _, link := range s.links {
		if link.Pinned() {
			continue
		}
		if err := s.pinLocked(link, items); err != nil {
			outcomes = append(outcomes, PinOutcome{LinkID: link.ID, Err: err})
			continue
		}
		outcomes = append(outcomes, PinOutcome{LinkID: link.ID, Pinned: true})
		events = append(events, ChangeEvent{Kind: ChangePinned, Link: link.Clone()})
	}
	s.mu.Unlock()

	s.emit(events...)
	return outcomes
}

// Get returns a copy of the link with the given id.
func (s *Store) Get(id string) (models.RequirementLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	link := s.lookup(id)
	if link == nil {
		return models.RequirementLink{}, fmt.Errorf("%w: %s", apperr.ErrLinkNotFound, id)
	}
	return link.Clone(), nil
}

// List returns a copy of every link in insertion order.
func (s *Store) List() []models.RequirementLink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.RequirementLink, len(s.links))
	for i, l := range s.links {
		out[i] = l.Clone()
	}
	return out
}

// Len returns the number of links.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.links)
}

// Restore replaces the link set with a previously persisted list. Records
// are accepted as they are: links are not re-validated against current
// items. Only shapes that must never be observable are repaired: a
// half-pinned link is made floating, a stored broken status is reset to
// proposed, and repeated ids keep their first occurrence.
func (s *Store) Restore(links []models.RequirementLink) {
	restored := make([]*models.RequirementLink, 0, len(links))
	seen := make(map[string]struct{}, len(links))
	for _, l := range links {
		l = l.Clone()
		if l.ID == "" {
			l.ID = s.newID()
		}
		if _, dup := seen[l.ID]; dup {
			continue
		}
		seen[l.ID] = struct{}{}
		if (l.Source.PinnedVersion == nil) != (l.Target.PinnedVersion == nil) {
			l.Source.PinnedVersion = nil
			l.Target.PinnedVersion = nil
		}
		if l.Status.Rank() < 0 {
			l.Status = models.StatusProposed
		}
		restored = append(restored, &l)
	}

	s.mu.Lock()
	s.links = restored
	s.mu.Unlock()
}

func (s *Store) indexOf(id string) int {
	for i, l := range s.links {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) lookup(id string) *models.RequirementLink {
	if i := s.indexOf(id); i >= 0 {
		return s.links[i]
	}
	return nil
}

func (s *Store) findDuplicate(t models.LinkType, src, dst, exceptID string) *models.RequirementLink {
	for _, l := range s.links {
		if l.ID != exceptID && l.Type == t && l.Source.ItemID == src && l.Target.ItemID == dst {
			return l
		}
	}
	return nil
}
