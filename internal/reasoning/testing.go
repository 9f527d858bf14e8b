package reasoning

import (
	"context"
	"fmt"
	"sync"
)

// Fake is a scripted Client for tests. Responses are served either from a
// FIFO queue or, when Handler is set, by inspecting the prompt. The zero
// value fails every call.
type Fake struct {
	mu      sync.Mutex
	queue   []scripted
	prompts []string

	// Handler, when non-nil, answers every call instead of the queue.
	Handler func(prompt string) (string, error)
}

type scripted struct {
	text string
	err  error
}

// NewFake creates a fake serving the given responses in order.
func NewFake(responses ...string) *Fake {
	f := &Fake{}
	for _, r := range responses {
		f.Queue(r)
	}
	return f
}

// Queue appends a successful response.
func (f *Fake) Queue(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, scripted{text: text})
}

// QueueError appends a failing response.
func (f *Fake) QueueError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queue = append(f.queue, scripted{err: err})
}

// Prompts returns every prompt seen, in call order.
func (f *Fake) Prompts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.prompts))
	copy(out, f.prompts)
	return out
}

func (f *Fake) next(prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)

	if f.Handler != nil {
		return f.Handler(prompt)
	}
	if len(f.queue) == 0 {
		return "", fmt.Errorf("fake reasoning client: no scripted response for prompt %q", truncate(prompt))
	}
	s := f.queue[0]
	f.queue = f.queue[1:]
	return s.text, s.err
}

// Generate implements Client.
func (f *Fake) Generate(ctx context.Context, prompt string) (string, error) {
	return f.next(prompt)
}

// GenerateJSON implements Client.
func (f *Fake) GenerateJSON(ctx context.Context, prompt string, out any) error {
	text, err := f.next(prompt)
	if err != nil {
		return err
	}
	return DecodeJSON(text, out)
}

func truncate(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
