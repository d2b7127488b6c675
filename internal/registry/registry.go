package registry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"
)

const persistTimeout = 3 * time.Second

// RegionSet answers whether a region id exists in the configured table. The
// geofence index satisfies it.
type RegionSet interface {
	Has(id string) bool
}

// Persister saves and loads the full subscriber set. Saves run after every
// mutation, same policy as the sighting store: failures are logged, never
// propagated.
type Persister interface {
	Save(ctx context.Context, subscribers []Subscriber) error
	Load(ctx context.Context) ([]Subscriber, error)
}

// Registry is the in-memory subscriber table. One mutex serializes all
// mutations against concurrent ingestion fan-out reads and UI-driven updates.
type Registry struct {
	mu         sync.Mutex
	superAdmin int64
	regions    RegionSet
	subs       map[int64]*Subscriber
	persister  Persister
	logger     *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithPersister attaches a persister invoked after each mutation.
func WithPersister(p Persister) Option {
	return func(r *Registry) { r.persister = p }
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// New creates an empty registry. superAdmin is the transport id configured at
// startup; its role can never change at runtime.
func New(superAdmin int64, regions RegionSet, opts ...Option) *Registry {
	r := &Registry{
		superAdmin: superAdmin,
		regions:    regions,
		subs:       make(map[int64]*Subscriber),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register creates the subscriber with the given regions, or replaces the
// region set of an existing one. Role and notification preference survive
// re-registration; notify applies only to first registration.
func (r *Registry) Register(ctx context.Context, id int64, regionIDs []string, notify bool) error {
	cleaned, err := r.validateRegions(regionIDs)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, exists := r.subs[id]
	if !exists {
		sub = &Subscriber{ID: id, Notify: notify, Role: r.roleFor(id)}
		r.subs[id] = sub
	}
	sub.Regions = cleaned
	r.persistLocked(ctx)
	return nil
}

// UpdateRegions replaces the region set of an already-registered subscriber.
func (r *Registry) UpdateRegions(ctx context.Context, id int64, regionIDs []string) error {
	cleaned, err := r.validateRegions(regionIDs)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, exists := r.subs[id]
	if !exists {
		return ErrNotFound
	}
	sub.Regions = cleaned
	r.persistLocked(ctx)
	return nil
}

// ToggleNotifications flips the subscriber's notification preference and
// returns the new value.
func (r *Registry) ToggleNotifications(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sub, exists := r.subs[id]
	if !exists {
		return false, ErrNotFound
	}
	sub.Notify = !sub.Notify
	r.persistLocked(ctx)
	return sub.Notify, nil
}

// GrantAdmin promotes target to admin. Only the super-admin may call it. A
// target not yet registered gets a bare record so the grant sticks.
func (r *Registry) GrantAdmin(ctx context.Context, actorID, targetID int64) error {
	if actorID != r.superAdmin {
		return ErrPermissionDenied
	}
	if targetID == r.superAdmin {
		return ErrAlreadyPrivileged
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, exists := r.subs[targetID]
	if !exists {
		sub = &Subscriber{ID: targetID, Role: RoleRegular}
		r.subs[targetID] = sub
	}
	if sub.Role == RoleAdmin {
		return ErrAlreadyPrivileged
	}
	sub.Role = RoleAdmin
	r.persistLocked(ctx)
	return nil
}

// RevokeAdmin demotes target back to regular. Only the super-admin may call
// it, and the super-admin itself cannot be demoted.
func (r *Registry) RevokeAdmin(ctx context.Context, actorID, targetID int64) error {
	if actorID != r.superAdmin {
		return ErrPermissionDenied
	}
	if targetID == r.superAdmin {
		return ErrPermissionDenied
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sub, exists := r.subs[targetID]
	if !exists || sub.Role != RoleAdmin {
		return ErrNotFound
	}
	sub.Role = RoleRegular
	r.persistLocked(ctx)
	return nil
}

// IsAdmin reports whether the id may run administrative commands. The
// super-admin qualifies even before its first interaction.
func (r *Registry) IsAdmin(id int64) bool {
	if id == r.superAdmin {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, exists := r.subs[id]
	return exists && (sub.Role == RoleAdmin || sub.Role == RoleSuperAdmin)
}

// Get returns a copy of the subscriber record.
func (r *Registry) Get(id int64) (Subscriber, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sub, exists := r.subs[id]
	if !exists {
		return Subscriber{}, ErrNotFound
	}
	return copySubscriber(sub), nil
}

// Recipients returns every subscriber with notifications enabled that is
// subscribed to the region, in stable id order. Unregistered ids simply are
// not here, so fan-out skips them by construction.
func (r *Registry) Recipients(regionID string) []Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Subscriber
	for _, sub := range r.subs {
		if sub.Notify && slices.Contains(sub.Regions, regionID) {
			out = append(out, copySubscriber(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns every subscriber in id order.
func (r *Registry) All() []Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		out = append(out, copySubscriber(sub))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Rehydrate replaces the subscriber table with the persisted one. Region ids
// that no longer exist in the configured table are dropped, and the
// configured super-admin's role is reasserted regardless of what was stored.
func (r *Registry) Rehydrate(ctx context.Context) error {
	if r.persister == nil {
		return nil
	}
	loaded, err := r.persister.Load(ctx)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs = make(map[int64]*Subscriber, len(loaded))
	for _, sub := range loaded {
		sub := sub
		kept := sub.Regions[:0:0]
		for _, id := range sub.Regions {
			if r.regions.Has(id) {
				kept = append(kept, id)
			}
		}
		sub.Regions = kept
		sub.Role = r.normalizeRole(sub.ID, sub.Role)
		r.subs[sub.ID] = &sub
	}
	return nil
}

func (r *Registry) validateRegions(regionIDs []string) ([]string, error) {
	cleaned := make([]string, 0, len(regionIDs))
	for _, id := range regionIDs {
		if !r.regions.Has(id) {
			return nil, fmt.Errorf("%w: %q", ErrUnknownRegion, id)
		}
		if !slices.Contains(cleaned, id) {
			cleaned = append(cleaned, id)
		}
	}
	return cleaned, nil
}

func (r *Registry) roleFor(id int64) Role {
	if id == r.superAdmin {
		return RoleSuperAdmin
	}
	return RoleRegular
}

// normalizeRole pins the super-admin role to the configured id and strips it
// from anyone else, whatever a stale snapshot says.
func (r *Registry) normalizeRole(id int64, stored Role) Role {
	if id == r.superAdmin {
		return RoleSuperAdmin
	}
	if stored == RoleSuperAdmin {
		return RoleRegular
	}
	return stored
}

// persistLocked saves the table. Must be called holding r.mu.
func (r *Registry) persistLocked(ctx context.Context) {
	if r.persister == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()

	snap := make([]Subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		snap = append(snap, copySubscriber(sub))
	}
	sort.Slice(snap, func(i, j int) bool { return snap[i].ID < snap[j].ID })
	if err := r.persister.Save(ctx, snap); err != nil {
		r.logger.Warn("subscriber snapshot persist failed", "count", len(snap), "error", err)
	}
}

func copySubscriber(sub *Subscriber) Subscriber {
	out := *sub
	out.Regions = append([]string(nil), sub.Regions...)
	return out
}
