// Package workerrpc implements the scheduler-to-worker RPC client described
// in SPEC_FULL.md §4.4/§6: POST {worker.base_url}/worker/run_job.
package workerrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/job-scheduler/internal/domain"
)

// Client issues worker RPCs over HTTP. A single instance is shared by every
// in-flight dispatch task.
type Client struct {
	hc             *http.Client
	workerTimeout  time.Duration
	maxRPCRetries  uint64
	retryInitialMS int
}

// NewClient constructs a worker RPC Client. workerTimeout should be
// WORKER_TIMEOUT_SECONDS + DISPATCH_GRACE_SECONDS per SPEC_FULL.md §6.
func NewClient(workerTimeout time.Duration) *Client {
	transport := otelhttp.NewTransport(http.DefaultTransport,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return fmt.Sprintf("worker_rpc %s %s", r.Method, r.URL.Host)
		}),
	)
	return &Client{
		hc:            &http.Client{Timeout: workerTimeout, Transport: transport},
		workerTimeout: workerTimeout,
		maxRPCRetries: 2,
	}
}

type runJobRequest struct {
	JobID          string          `json:"job_id"`
	Params         json.RawMessage `json:"params"`
	TimeoutSeconds int             `json:"timeout_seconds"`
}

type runJobArtifact struct {
	Type     string          `json:"type"`
	Path     string          `json:"path"`
	URL      string          `json:"url"`
	Metadata json.RawMessage `json:"metadata"`
}

type runJobResponse struct {
	Status               string          `json:"status"`
	JobID                string          `json:"job_id"`
	ExecutionTimeSeconds float64         `json:"execution_time_seconds"`
	Artifacts            []runJobArtifact `json:"artifacts"`
	Error                *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// RunJob issues the worker RPC for job on worker w. Transport errors and 5xx
// responses are retried up to maxRPCRetries times with exponential backoff;
// 4xx responses are not retried. Each attempt is bounded by workerTimeout.
func (c *Client) RunJob(ctx domain.Context, w domain.Worker, job domain.Job) (domain.WorkerRunResult, error) {
	payload := runJobRequest{
		JobID:          job.ID,
		Params:         job.Params,
		TimeoutSeconds: int(c.workerTimeout.Seconds()),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return domain.WorkerRunResult{}, fmt.Errorf("op=workerrpc.marshal: %w", err)
	}

	var resp runJobResponse
	op := func() error {
		r, rpcErr := c.post(ctx, w.BaseURL+"/worker/run_job", body, &resp)
		if rpcErr != nil {
			return rpcErr
		}
		if r >= 500 {
			return fmt.Errorf("worker returned status %d", r)
		}
		if r >= 400 {
			return backoff.Permanent(fmt.Errorf("worker returned status %d", r))
		}
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRPCRetries)
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return domain.WorkerRunResult{}, fmt.Errorf("op=workerrpc.run_job: %w", err)
	}

	result := domain.WorkerRunResult{
		Status:               resp.Status,
		ExecutionTimeSeconds: resp.ExecutionTimeSeconds,
	}
	if resp.Error != nil {
		result.ErrorCode = resp.Error.Code
		result.ErrorMessage = resp.Error.Message
	}
	for _, a := range resp.Artifacts {
		result.Artifacts = append(result.Artifacts, domain.WorkerRunArtifact{
			Type:     a.Type,
			Path:     a.Path,
			URL:      a.URL,
			Metadata: a.Metadata,
		})
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, url string, body []byte, out *runJobResponse) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("op=workerrpc.new_request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, fmt.Errorf("op=workerrpc.do: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("op=workerrpc.read_body: %w", err)
	}
	if resp.StatusCode < 300 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("op=workerrpc.decode_body: %w", err)
		}
	}
	return resp.StatusCode, nil
}
