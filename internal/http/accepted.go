package http

import (
	"sync"
	"time"

	"fish-assistant/internal/service/push"
)

// replayWindow is how long the play route remembers a corr_id it accepted.
// It comfortably covers a server's full retry schedule.
const replayWindow = 10 * time.Minute

// accepted remembers the corr_ids of pushed clips, so a delivery retried after
// a lost acknowledgement is answered again instead of played again.
type accepted struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]acceptedEntry
}

type acceptedEntry struct {
	ack     push.Ack
	expires time.Time
}

func newAccepted(ttl time.Duration) *accepted {
	return &accepted{ttl: ttl, now: time.Now, entries: make(map[string]acceptedEntry)}
}

// claim reserves corrID. When it was already taken it returns the earlier
// acknowledgement and false.
func (a *accepted) claim(corrID string) (push.Ack, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	now := a.now()
	for id, e := range a.entries {
		if now.After(e.expires) {
			delete(a.entries, id)
		}
	}
	if e, ok := a.entries[corrID]; ok {
		return e.ack, false
	}
	a.entries[corrID] = acceptedEntry{
		ack:     push.Ack{Status: "ok", Message: "playing"},
		expires: now.Add(a.ttl),
	}
	return push.Ack{}, true
}

// settle records the acknowledgement repeats of corrID receive.
func (a *accepted) settle(corrID string, ack push.Ack) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if e, ok := a.entries[corrID]; ok {
		e.ack = ack
		a.entries[corrID] = e
	}
}

// release forgets corrID after a failed play so the sender may retry it.
func (a *accepted) release(corrID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, corrID)
}
