package webhook

import (
	"context"
	"sync"
)

type Fake struct {
	mu       sync.Mutex
	err      error
	delay    chan struct{}
	payloads []any
}

// NewFake records payloads and answers with err.
func NewFake(err error) *Fake {
	return &Fake{err: err}
}

// Block makes every Post wait until Release is called or its context ends.
func (svc *Fake) Block() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.delay = make(chan struct{})
}

func (svc *Fake) Release() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.delay != nil {
		close(svc.delay)
		svc.delay = nil
	}
}

func (svc *Fake) Post(ctx context.Context, payload any) error {
	svc.mu.Lock()
	delay := svc.delay
	svc.mu.Unlock()

	if delay != nil {
		select {
		case <-delay:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.payloads = append(svc.payloads, payload)
	return svc.err
}

func (svc *Fake) Payloads() []any {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]any{}, svc.payloads...)
}
