package skills

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"fish-assistant/internal/models"
)

var jokes = []string{
	"Why don't fish play basketball? They're afraid of the net.",
	"What do you call a fish wearing a bowtie? Sofishticated.",
	"Why are fish so smart? They live in schools.",
	"What did the fish say when it swam into a wall? Dam.",
}

// Echo repeats the request text.
func Echo() Skill {
	return NewFunc("echo", func(_ context.Context, req models.SkillRequest) (string, error) {
		return "You said: " + strings.TrimSpace(req.Text), nil
	})
}

// Time tells the time read from now.
func Time(now func() time.Time) Skill {
	if now == nil {
		now = time.Now
	}
	return NewFunc("time", func(context.Context, models.SkillRequest) (string, error) {
		return "It's " + now().Format("3:04 PM") + ".", nil
	})
}

// Joke tells the jokes in turn.
func Joke() Skill {
	var n atomic.Uint64
	return NewFunc("joke", func(context.Context, models.SkillRequest) (string, error) {
		return jokes[(n.Add(1)-1)%uint64(len(jokes))], nil
	})
}

// Smalltalk answers greetings, thanks, and goodbyes.
func Smalltalk() Skill {
	return NewFunc("smalltalk", func(_ context.Context, req models.SkillRequest) (string, error) {
		t := strings.ToLower(req.Text)
		switch {
		case strings.Contains(t, "thank"):
			return "You're welcome, it's my porpoise.", nil
		case strings.Contains(t, "bye"):
			return "Goodbye! Keep swimming.", nil
		default:
			return "Hello there! What can this fish do for you?", nil
		}
	})
}

// Weather has no forecast source and says so.
func Weather() Skill {
	return NewFunc("weather", func(context.Context, models.SkillRequest) (string, error) {
		return "I can't see the sky from this tank, but it's always wet down here.", nil
	})
}

// Music has no player and says so.
func Music() Skill {
	return NewFunc("music", func(context.Context, models.SkillRequest) (string, error) {
		return "I only know how to hum, and you're hearing it right now.", nil
	})
}

// Unknown is the fallback.
func Unknown() Skill {
	return NewFunc(FallbackSkill, func(context.Context, models.SkillRequest) (string, error) {
		return "Sorry, I didn't catch that.", nil
	})
}

// Timer starts countdowns. When one expires, onFire is called with the
// announcement to speak; it runs on its own goroutine.
type Timer struct {
	onFire func(say string)

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
}

// NewTimer creates a Timer skill.
func NewTimer(onFire func(say string)) *Timer {
	return &Timer{onFire: onFire, timers: make(map[*time.Timer]struct{})}
}

// Name implements Skill.
func (t *Timer) Name() string { return "timer" }

// Handle implements Skill.
func (t *Timer) Handle(_ context.Context, req models.SkillRequest) (models.SkillResponse, error) {
	secs := durationEntity(req.Entities)
	if secs <= 0 {
		return models.SkillResponse{Skill: t.Name(), Utterance: "How long should the timer be?"}, nil
	}
	label := humanize(time.Duration(secs) * time.Second)

	t.mu.Lock()
	var tm *time.Timer
	tm = time.AfterFunc(time.Duration(secs)*time.Second, func() {
		t.mu.Lock()
		delete(t.timers, tm)
		t.mu.Unlock()
		if t.onFire != nil {
			t.onFire("Your " + label + " timer is done.")
		}
	})
	t.timers[tm] = struct{}{}
	t.mu.Unlock()

	return models.SkillResponse{
		Skill:     t.Name(),
		Utterance: "Timer set for " + label + ".",
		Data:      map[string]any{"seconds": secs},
	}, nil
}

// Pending returns the number of timers that have not fired.
func (t *Timer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.timers)
}

// Stop cancels every pending timer.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for tm := range t.timers {
		tm.Stop()
		delete(t.timers, tm)
	}
}

// durationEntity reads {"duration":{"seconds":N}}, with N decoded either as
// an int or, after a JSON hop, as a float64.
func durationEntity(entities map[string]any) int {
	d, ok := entities["duration"].(map[string]any)
	if !ok {
		return 0
	}
	switch v := d["seconds"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func humanize(d time.Duration) string {
	var parts []string
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	for _, p := range []struct {
		n    int
		unit string
	}{{h, "hour"}, {m, "minute"}, {s, "second"}} {
		switch {
		case p.n == 1:
			parts = append(parts, "1 "+p.unit)
		case p.n > 1:
			parts = append(parts, fmt.Sprintf("%d %ss", p.n, p.unit))
		}
	}
	return strings.Join(parts, " ")
}
