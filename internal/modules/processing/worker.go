package processing

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"notestream/internal/domain"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"
)

const (
	defaultSubmitTimeout = 30 * time.Second
	defaultMaxAttempts   = 3
	retryBaseDelay       = 500 * time.Millisecond
)

// WorkerClient submits processing jobs to the external worker. Submission is
// retried with jittered fibonacci backoff up to maxAttempts; 4xx responses
// are permanent, network errors and 5xx are retryable. A token bucket keeps
// a burst of finalizes from flooding the worker.
type WorkerClient struct {
	url         string
	callbackURL string
	maxAttempts int
	limiter     *rate.Limiter
	httpClient  *http.Client
}

func NewWorkerClient(url, callbackURL string, maxAttempts int, rps float64) *WorkerClient {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if rps <= 0 {
		rps = 10
	}
	return &WorkerClient{
		url:         url,
		callbackURL: callbackURL,
		maxAttempts: maxAttempts,
		limiter:     rate.NewLimiter(rate.Limit(rps), int(rps)*2),
		httpClient:  &http.Client{Timeout: defaultSubmitTimeout},
	}
}

type jobPayload struct {
	FileID       string `json:"fileId"`
	FileName     string `json:"fileName"`
	OriginalName string `json:"originalName"`
	MimeType     string `json:"mimeType"`
	SizeBytes    int64  `json:"sizeBytes"`
	CallbackURL  string `json:"callbackUrl"`
}

// Submit posts the job and returns once the worker has accepted it. The
// worker reports the actual outcome later through the callback endpoint.
func (c *WorkerClient) Submit(ctx context.Context, file *domain.File) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrExternalDispatch, err)
	}

	payload, err := json.Marshal(jobPayload{
		FileID:       file.ID,
		FileName:     file.Filename,
		OriginalName: file.OriginalName,
		MimeType:     file.MimeType,
		SizeBytes:    file.SizeBytes,
		CallbackURL:  c.callbackURL,
	})
	if err != nil {
		return fmt.Errorf("%w: encode job: %v", ErrExternalDispatch, err)
	}

	backoff := retry.WithJitter(100*time.Millisecond, retry.NewFibonacci(retryBaseDelay))
	backoff = retry.WithMaxRetries(uint64(c.maxAttempts-1), backoff)

	attempt := 0
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			log.Printf("worker_submit file_id=%s attempt=%d error=%q", file.ID, attempt, err)
			return retry.RetryableError(err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode < http.StatusMultipleChoices:
			return nil
		case resp.StatusCode >= http.StatusInternalServerError:
			log.Printf("worker_submit file_id=%s attempt=%d status=%d", file.ID, attempt, resp.StatusCode)
			return retry.RetryableError(fmt.Errorf("worker returned status %d", resp.StatusCode))
		default:
			return fmt.Errorf("worker rejected job with status %d", resp.StatusCode)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrExternalDispatch, err)
	}
	return nil
}
