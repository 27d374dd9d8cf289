// Package nlu classifies transcripts into intents.
package nlu

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"fish-assistant/internal/models"
)

// Intent names produced by Rules.
const (
	IntentJoke      = "joke"
	IntentTimer     = "timer"
	IntentTime      = "time"
	IntentWeather   = "weather"
	IntentMusic     = "music"
	IntentSmalltalk = "smalltalk"
	IntentUnknown   = "unknown"
)

// Classifier maps text to an intent.
type Classifier interface {
	Classify(ctx context.Context, text string) (models.Intent, error)
}

var (
	reJoke    = regexp.MustCompile(`(?i)\b(joke|funny|make me laugh)\b`)
	reTimer   = regexp.MustCompile(`(?i)\b(set|start).*\b(timer|alarm)\b|\b(timer|alarm).*\bfor\b|\bin\s+\d+\s*(s|sec|second|min|m|h)\b`)
	reTime    = regexp.MustCompile(`(?i)\b(time|what(?:'s| is) the time|time in)\b`)
	reWeather = regexp.MustCompile(`(?i)\b(weather|temperature|forecast)\b`)
	reMusic   = regexp.MustCompile(`(?i)\b(play|music|song|songs|playlist)\b`)
	reHello   = regexp.MustCompile(`(?i)\b(hi|hello|hey|thanks|bye)\b`)

	reDuration = regexp.MustCompile(`(\d+)\s*(h|hr|hour|m|min|minute|s|sec|second)s?\b`)
)

// Rules is a keyword classifier. Patterns are tried in a fixed order and the
// first match wins, so "a joke about the weather" is a joke.
type Rules struct{}

// NewRules creates a Rules classifier.
func NewRules() *Rules { return &Rules{} }

// Classify implements Classifier. It never fails.
func (Rules) Classify(_ context.Context, text string) (models.Intent, error) {
	t := strings.TrimSpace(text)
	intent := func(name string, confidence float64) models.Intent {
		return models.Intent{Name: name, Entities: map[string]any{}, Confidence: confidence, Text: t}
	}

	switch {
	case reJoke.MatchString(t):
		return intent(IntentJoke, 0.9), nil
	case reTimer.MatchString(t):
		secs := DurationSeconds(t)
		if secs == 0 {
			return intent(IntentTimer, 0.6), nil
		}
		out := intent(IntentTimer, 0.85)
		out.Entities["duration"] = map[string]any{"seconds": secs}
		return out, nil
	case reTime.MatchString(t):
		return intent(IntentTime, 0.8), nil
	case reWeather.MatchString(t):
		return intent(IntentWeather, 0.8), nil
	case reMusic.MatchString(t):
		return intent(IntentMusic, 0.7), nil
	case reHello.MatchString(t):
		return intent(IntentSmalltalk, 0.5), nil
	}
	return intent(IntentUnknown, 0.1), nil
}

// DurationSeconds sums every "<n> <unit>" phrase in text, e.g. "1 hour 30
// minutes" is 5400. It returns 0 when there is none.
func DurationSeconds(text string) int {
	total := 0
	for _, m := range reDuration.FindAllStringSubmatch(strings.ToLower(text), -1) {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		switch m[2][0] {
		case 'h':
			total += n * 3600
		case 'm':
			total += n * 60
		default:
			total += n
		}
	}
	return total
}
