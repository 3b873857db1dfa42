package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/xerrors"
)

const maxErrorBody = 512

type httpService struct {
	client *http.Client
}

// NewHTTP returns a classification client whose requests are bounded by timeout.
func NewHTTP(timeout time.Duration) IService {
	return &httpService{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (svc *httpService) Classify(ctx context.Context, endpoint string, image []byte) (Result, error) {
	url := strings.TrimRight(endpoint, "/") + InferencePath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(image))
	if err != nil {
		return Result{}, xerrors.Errorf("%s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := svc.client.Do(req)
	if err != nil {
		return Result{}, xerrors.Errorf("%s: %v: %w", url, err, ErrRemoteClassificationFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, statusError(ErrRemoteClassificationFailed, url, resp)
	}

	return decodeResult(url, resp.Body)
}

func (svc *httpService) UploadModel(ctx context.Context, endpoint string, path string) error {
	url := strings.TrimRight(endpoint, "/") + UploadModelPath

	file, err := os.Open(path)
	if err != nil {
		return xerrors.Errorf("open model archive: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return xerrors.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return xerrors.Errorf("copy model archive: %w", err)
	}
	if err := writer.Close(); err != nil {
		return xerrors.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return xerrors.Errorf("%s: %w", url, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := svc.client.Do(req)
	if err != nil {
		return xerrors.Errorf("%s: %v: %w", url, err, ErrModelUpload)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError(ErrModelUpload, url, resp)
	}
	return nil
}

func decodeResult(url string, body io.Reader) (Result, error) {
	var raw struct {
		Label      *string  `json:"classification"`
		Confidence *float64 `json:"confidence-score"`
	}
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return Result{}, xerrors.Errorf("%s: %v: %w", url, err, ErrResponseDecode)
	}
	if raw.Label == nil || raw.Confidence == nil {
		return Result{}, xerrors.Errorf("%s: classification or confidence-score missing: %w", url, ErrResponseDecode)
	}
	if *raw.Confidence < 0 || *raw.Confidence > 100 {
		return Result{}, xerrors.Errorf("%s: confidence-score %v outside [0,100]: %w", url, *raw.Confidence, ErrResponseDecode)
	}

	return Result{Label: *raw.Label, Confidence: *raw.Confidence}, nil
}

type wrappedStatusError struct {
	kind   error
	status *StatusError
}

func (e *wrappedStatusError) Error() string {
	return e.kind.Error() + ": " + e.status.Error()
}

func (e *wrappedStatusError) Unwrap() []error {
	return []error{e.kind, e.status}
}

func statusError(kind error, url string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &wrappedStatusError{
		kind: kind,
		status: &StatusError{
			Endpoint:   url,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(b)),
		},
	}
}
