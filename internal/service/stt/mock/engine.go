// Package mock provides a scripted transcription engine for development and
// tests without cloud credentials.
package mock

import (
	"context"
	"sync"

	"fish-assistant/internal/models"
	"fish-assistant/internal/service/stt"
)

// SimulatedUtterance is one scripted recognition result.
type SimulatedUtterance struct {
	Text       string
	Confidence float64
}

// DefaultUtterances exercises the built-in skills in turn.
var DefaultUtterances = []SimulatedUtterance{
	{Text: "tell me a joke", Confidence: 0.94},
	{Text: "what time is it", Confidence: 0.97},
	{Text: "set a timer for 5 minutes", Confidence: 0.91},
	{Text: "hello there", Confidence: 0.98},
	{Text: "what's the weather like", Confidence: 0.89},
}

// Engine returns scripted utterances in order, cycling when exhausted.
type Engine struct {
	mu         sync.Mutex
	utterances []SimulatedUtterance
	next       int
	calls      int
}

// New creates an engine. With no utterances it uses DefaultUtterances.
func New(utterances ...SimulatedUtterance) *Engine {
	if len(utterances) == 0 {
		utterances = DefaultUtterances
	}
	return &Engine{utterances: utterances}
}

// Name implements stt.Engine.
func (e *Engine) Name() string { return "mock" }

// Recognize implements stt.Engine.
func (e *Engine) Recognize(ctx context.Context, req stt.Request) (models.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return models.Transcript{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	u := e.utterances[e.next%len(e.utterances)]
	e.next++
	e.calls++

	conf := u.Confidence
	return models.Transcript{Text: u.Text, Confidence: &conf}, nil
}

// Calls returns how many times Recognize ran.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
