package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"golang.org/x/xerrors"
)

type httpService struct {
	url    string
	client *http.Client
}

// NewHTTP posts to a fixed URL. Every call is bounded by timeout.
func NewHTTP(url string, timeout time.Duration) IService {
	return &httpService{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (svc *httpService) Post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return xerrors.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, svc.url, bytes.NewReader(body))
	if err != nil {
		return xerrors.Errorf("%s: %w", svc.url, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := svc.client.Do(req)
	if err != nil {
		return xerrors.Errorf("%s: %v: %w", svc.url, err, ErrPublish)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return xerrors.Errorf("%s: status %d: %s: %w", svc.url, resp.StatusCode, bytes.TrimSpace(msg), ErrPublish)
	}

	// Drain so the connection can be reused.
	io.Copy(io.Discard, resp.Body)
	return nil
}
