package storage

import (
	"sync"
	"time"

	"gocv.io/x/gocv"
)

type Fake struct {
	mu     sync.Mutex
	err    error
	stored []string
}

func NewFake(err error) *Fake {
	return &Fake{err: err}
}

func (svc *Fake) StoreFrame(stage string, _ gocv.Mat, capturedAt time.Time) (string, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	if svc.err != nil {
		return "", svc.err
	}
	name := FrameName(stage, capturedAt)
	svc.stored = append(svc.stored, name)
	return name, nil
}

func (svc *Fake) Stored() []string {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]string{}, svc.stored...)
}
