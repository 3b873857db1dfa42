package inference

import (
	"context"
	"sync"
)

// FakeResponse scripts one answer of the fake service.
type FakeResponse struct {
	Result Result
	Err    error
}

type Fake struct {
	mu        sync.Mutex
	responses map[string][]FakeResponse
	calls     map[string]int
	uploads   []string
	uploadErr error
}

// NewFake returns a service answering from per-endpoint scripts. The last
// scripted response of an endpoint repeats once the script is exhausted.
// Endpoints without a script classify everything as "low" at 0%.
func NewFake(responses map[string][]FakeResponse) *Fake {
	if responses == nil {
		responses = map[string][]FakeResponse{}
	}
	return &Fake{
		responses: responses,
		calls:     map[string]int{},
	}
}

func (svc *Fake) Classify(_ context.Context, endpoint string, _ []byte) (Result, error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	n := svc.calls[endpoint]
	svc.calls[endpoint]++

	script := svc.responses[endpoint]
	if len(script) == 0 {
		return Result{Label: "low", Confidence: 0}, nil
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	return script[n].Result, script[n].Err
}

func (svc *Fake) UploadModel(_ context.Context, endpoint string, _ string) error {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.uploads = append(svc.uploads, endpoint)
	return svc.uploadErr
}

// FailUploads makes every later UploadModel call return err.
func (svc *Fake) FailUploads(err error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.uploadErr = err
}

func (svc *Fake) Calls(endpoint string) int {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.calls[endpoint]
}

func (svc *Fake) Uploads() []string {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]string{}, svc.uploads...)
}
