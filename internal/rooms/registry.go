package rooms

import (
	"context"
	"sort"
	"sync"
	"time"
)

type Status string

const (
	// StatusProvisioned: this gateway asked the backend to create the room
	// but has not seen a lifecycle event for it yet.
	StatusProvisioned Status = "provisioned"
	StatusLive        Status = "live"
	StatusFinished    Status = "finished"
)

// Room is the gateway's local view of one session room. It is purely
// observational: token issuance never consults it, so losing an entry (or
// the whole process) costs nothing but visibility.
type Room struct {
	Name         string    `json:"name"`
	CreatedBy    string    `json:"created_by"`
	Status       Status    `json:"status"`
	Participants int       `json:"participants"`
	FirstSeenAt  time.Time `json:"first_seen_at"`
	LastEventAt  time.Time `json:"last_event_at"`
}

// Registry tracks rooms this instance has provisioned or heard about via
// webhooks. Entries idle longer than the room's empty timeout are pruned by
// the janitor, mirroring the backend's own reclamation policy.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]*Room
	idleTimeout time.Duration
	onEvict     func(*Room)
}

func NewRegistry(idleTimeout time.Duration) *Registry {
	if idleTimeout <= 0 {
		idleTimeout = 10 * time.Minute
	}
	return &Registry{
		rooms:       make(map[string]*Room),
		idleTimeout: idleTimeout,
	}
}

func (r *Registry) SetEvictHook(hook func(*Room)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEvict = hook
}

// Track records that a token was issued for name, creating the entry on
// first use. Repeat calls for the same room only refresh the activity time.
func (r *Registry) Track(name, createdBy string) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	if room, ok := r.rooms[name]; ok {
		room.LastEventAt = now
		return
	}
	r.rooms[name] = &Room{
		Name:        name,
		CreatedBy:   createdBy,
		Status:      StatusProvisioned,
		FirstSeenAt: now,
		LastEventAt: now,
	}
}

func (r *Registry) MarkStarted(name string) {
	r.update(name, func(room *Room) { room.Status = StatusLive })
}

func (r *Registry) MarkFinished(name string) {
	r.update(name, func(room *Room) {
		room.Status = StatusFinished
		room.Participants = 0
	})
}

func (r *Registry) ParticipantJoined(name string) {
	r.update(name, func(room *Room) {
		room.Status = StatusLive
		room.Participants++
	})
}

func (r *Registry) ParticipantLeft(name string) {
	r.update(name, func(room *Room) {
		if room.Participants > 0 {
			room.Participants--
		}
	})
}

// update applies fn to the named room, creating a bare entry first when the
// event arrived before (or without) a local provisioning call.
func (r *Registry) update(name string, fn func(*Room)) {
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()
	room, ok := r.rooms[name]
	if !ok {
		room = &Room{Name: name, Status: StatusProvisioned, FirstSeenAt: now}
		r.rooms[name] = room
	}
	fn(room)
	room.LastEventAt = now
}

func (r *Registry) Snapshot() []Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Room, 0, len(r.rooms))
	for _, room := range r.rooms {
		out = append(out, *room)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) LiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, room := range r.rooms {
		if room.Status == StatusLive {
			count++
		}
	}
	return count
}

func (r *Registry) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.evictIdle()
			}
		}
	}()
}

func (r *Registry) evictIdle() {
	now := time.Now().UTC()
	var evicted []*Room

	r.mu.Lock()
	for name, room := range r.rooms {
		if now.Sub(room.LastEventAt) < r.idleTimeout {
			continue
		}
		delete(r.rooms, name)
		copied := *room
		evicted = append(evicted, &copied)
	}
	hook := r.onEvict
	r.mu.Unlock()

	if hook != nil {
		for _, room := range evicted {
			hook(room)
		}
	}
}
