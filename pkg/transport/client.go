package transport

import (
	"bytes"
	"context"
	"net/http"

	"apiorch/pkg/models"

	"github.com/hashicorp/go-retryablehttp"
)

// NewClient creates the outbound client shared by dispatch and health probes.
// It performs exactly one attempt per call: picking another endpoint is the caller's job.
func NewClient() *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = 0
	client.Logger = nil
	client.CheckRetry = singleAttemptPolicy
	client.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return client
}

// singleAttemptPolicy never retries and hands every response back, including 4xx and 5xx.
func singleAttemptPolicy(ctx context.Context, _ *http.Response, _ error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	return false, nil
}

// NewRequest builds a request against ep with its auth headers applied.
func NewRequest(ctx context.Context, ep models.Endpoint, method, url string, headers http.Header, body []byte) (*retryablehttp.Request, error) {
	var payload any
	if len(body) > 0 {
		payload = bytes.NewReader(body)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, url, payload)
	if err != nil {
		return nil, err
	}

	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	ApplyAuth(req.Header, ep)
	return req, nil
}
