package webhook

import (
	"context"
	"errors"
)

// ErrPublish is returned when the downstream endpoint rejects or never receives a payload.
var ErrPublish = errors.New("webhook: publish failed")

type IService interface {
	// Post sends payload as JSON. The response body is not consumed.
	Post(ctx context.Context, payload any) error
}
