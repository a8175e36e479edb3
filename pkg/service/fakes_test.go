package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// fakeGenerator replays canned replies. Replies are consumed in order and the
// last one repeats, so single-reply tests stay short. GenerateStructured
// mirrors the real contract: trim to JSON, unmarshal, ErrSchemaMismatch on
// anything else.
type fakeGenerator struct {
	mu      sync.Mutex
	replies []string
	err     error
	block   chan struct{} // when set, calls wait until it is closed
	prompts []string
}

func (f *fakeGenerator) take(prompt string) (string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	reply := f.replies[0]
	if len(f.replies) > 1 {
		f.replies = f.replies[1:]
	}
	return reply, nil
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	return f.take(prompt)
}

func (f *fakeGenerator) GenerateStructured(_ context.Context, prompt string, out any) error {
	reply, err := f.take(prompt)
	if err != nil {
		return err
	}
	trimmed := trimToJSON(reply)
	if trimmed == "" {
		return fmt.Errorf("%w: no JSON value in reply", ErrSchemaMismatch)
	}
	if err := json.Unmarshal([]byte(trimmed), out); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return nil
}

func (f *fakeGenerator) promptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeGenerator) lastPrompt() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.prompts) == 0 {
		return ""
	}
	return f.prompts[len(f.prompts)-1]
}

// fakeEmbedder returns a fixed vector, per-text vectors, or failures.
type fakeEmbedder struct {
	mu     sync.Mutex
	vec    []float64
	byText map[string][]float64
	failOn map[string]bool
	err    error
	calls  int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.failOn[text] {
		return nil, errors.New("embedding failed")
	}
	if v, ok := f.byText[text]; ok {
		return append([]float64(nil), v...), nil
	}
	if f.vec != nil {
		return append([]float64(nil), f.vec...), nil
	}
	return []float64{1, 0, 0}, nil
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}
