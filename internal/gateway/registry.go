package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/subkey"
)

// realtimeRegistrar is the slice of the realtime store the registry needs.
type realtimeRegistrar interface {
	Register(ctx context.Context, key, dataType, subscriber string) error
	Unregister(ctx context.Context, key, subscriber string) error
	Clean(ctx context.Context, subscriber string) (int, error)
}

// Registry is the gateway's in-memory interest index: subscription key ->
// set of session ids, plus the set of keys currently materialised in the
// realtime store.
//
// The realtime row is reference-counted through the registry: the first
// session subscribing a key registers the gateway as a subscriber, the
// last one leaving unregisters it. Keys in the SIGNAL: class stay in
// memory only.
type Registry struct {
	gatewayID string
	store     realtimeRegistrar
	logger    *slog.Logger

	mu           sync.Mutex
	interest     map[string]map[string]struct{} // key -> session ids
	materialised map[string]struct{}            // keys upserted into the realtime store
}

// NewRegistry creates a Registry. gatewayID is the subscriber identifier
// written into realtime_data.subscribers.
func NewRegistry(gatewayID string, store realtimeRegistrar, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		gatewayID:    gatewayID,
		store:        store,
		logger:       logger.With("component", "registry"),
		interest:     make(map[string]map[string]struct{}),
		materialised: make(map[string]struct{}),
	}
}

// CleanStart removes every realtime row held over from a previous run of
// this gateway. Subscriptions are not rebuilt; clients reconnect and
// resubscribe.
func (r *Registry) CleanStart(ctx context.Context) error {
	removed, err := r.store.Clean(ctx, r.gatewayID)
	if err != nil {
		return fmt.Errorf("clean stale subscriptions: %w", err)
	}
	r.logger.Info("cleaned stale realtime rows", "removed", removed)
	return nil
}

// Subscribe adds the session to the interest set for key and, on the
// first subscriber of a non-SIGNAL key, upserts the realtime row.
// Repeat subscribes are idempotent.
func (r *Registry) Subscribe(ctx context.Context, sessionID, key string) error {
	r.mu.Lock()
	set, ok := r.interest[key]
	if !ok {
		set = make(map[string]struct{})
		r.interest[key] = set
	}
	set[sessionID] = struct{}{}

	needUpsert := false
	if !subkey.IsSignal(key) && !hasWildcard(key) {
		if _, done := r.materialised[key]; !done {
			r.materialised[key] = struct{}{}
			needUpsert = true
		}
	}
	r.mu.Unlock()

	if !needUpsert {
		return nil
	}

	k, err := subkey.Parse(key)
	if err != nil {
		// Roll back: an unparseable key cannot be materialised.
		r.mu.Lock()
		delete(r.materialised, key)
		r.mu.Unlock()
		return err
	}

	if err := r.store.Register(ctx, key, string(k.Kind), r.gatewayID); err != nil {
		r.mu.Lock()
		delete(r.materialised, key)
		r.mu.Unlock()
		return err
	}
	return nil
}

// Unsubscribe removes the session from the interest set for key. When the
// set becomes empty the gateway unregisters from the realtime row, which
// deletes it if no other service holds it.
func (r *Registry) Unsubscribe(ctx context.Context, sessionID, key string) error {
	r.mu.Lock()
	set, ok := r.interest[key]
	if ok {
		delete(set, sessionID)
		if len(set) > 0 {
			r.mu.Unlock()
			return nil
		}
		delete(r.interest, key)
	}
	_, wasMaterialised := r.materialised[key]
	delete(r.materialised, key)
	r.mu.Unlock()

	if !ok || !wasMaterialised {
		return nil
	}
	return r.store.Unregister(ctx, key, r.gatewayID)
}

// DropSession unsubscribes every key held by a disconnecting session.
func (r *Registry) DropSession(ctx context.Context, sessionID string) {
	r.mu.Lock()
	var keys []string
	for key, set := range r.interest {
		if _, ok := set[sessionID]; ok {
			keys = append(keys, key)
		}
	}
	r.mu.Unlock()

	for _, key := range keys {
		if err := r.Unsubscribe(ctx, sessionID, key); err != nil {
			r.logger.Warn("unsubscribe on disconnect failed",
				"session", sessionID,
				"key", key,
				"error", err,
			)
		}
	}
}

// Keys returns every subscription held by one session.
func (r *Registry) Keys(sessionID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var keys []string
	for key, set := range r.interest {
		if _, ok := set[sessionID]; ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// Snapshot copies the interest index for the broadcast matcher.
func (r *Registry) Snapshot() map[string][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string][]string, len(r.interest))
	for key, set := range r.interest {
		ids := make([]string, 0, len(set))
		for id := range set {
			ids = append(ids, id)
		}
		out[key] = ids
	}
	return out
}

// Size returns the number of distinct subscription keys.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.interest)
}

func hasWildcard(key string) bool {
	for i := 0; i < len(key); i++ {
		if key[i] == '*' {
			return true
		}
	}
	return false
}
