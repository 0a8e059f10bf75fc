package libhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	stdurl "net/url"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("failed to get successful response: status_code: %d, res_body: %s", e.StatusCode, e.Body)
}

func Call[T any](
	ctx context.Context,
	method, url string,
	headers map[string]string,
	body any,
	query map[string]string,
) (T, error) {
	var reqBodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return *new(T), fmt.Errorf("failed to marshal request json: %w", err)
		}
		reqBodyBytes = b
	}

	var q string
	if query != nil {
		qurl := stdurl.Values{}
		for k, v := range query {
			qurl.Set(k, v)
		}
		q = "?" + qurl.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, url+q, bytes.NewReader(reqBodyBytes))
	if err != nil {
		return *new(T), fmt.Errorf("failed to build http request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := &http.Client{}
	res, err := client.Do(req)
	if err != nil {
		return *new(T), fmt.Errorf("failed to make http call: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(res.Body)
	if err != nil {
		return *new(T), fmt.Errorf("failed to read response body: %w", err)
	}
	// Treat any 2xx as success
	if res.StatusCode < http.StatusOK || res.StatusCode >= 300 {
		return *new(T), &StatusError{StatusCode: res.StatusCode, Body: string(bodyBytes)}
	}
	// Handle responses with no content gracefully
	if len(bodyBytes) == 0 {
		var zero T
		return zero, nil
	}

	// when no-JSON response is expected
	var zero T
	switch any(zero).(type) {
	case string:
		return any(string(bodyBytes)).(T), nil
	case nil:
		return zero, nil
	}

	var r T
	err = json.Unmarshal(bodyBytes, &r)
	if err != nil {
		return *new(T), fmt.Errorf("failed to unmarshal response json: %w", err)
	}

	return r, nil
}

type RetryPolicy struct {
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxTries:        3,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
	}
}

// CallWithRetry is Call with exponential backoff. 4xx responses are not retried.
func CallWithRetry[T any](
	ctx context.Context,
	policy RetryPolicy,
	method, url string,
	headers map[string]string,
	body any,
	query map[string]string,
) (T, error) {
	b := backoff.NewExponentialBackOff()
	if policy.InitialInterval > 0 {
		b.InitialInterval = policy.InitialInterval
	}
	if policy.MaxInterval > 0 {
		b.MaxInterval = policy.MaxInterval
	}
	maxTries := policy.MaxTries
	if maxTries == 0 {
		maxTries = 1
	}

	return backoff.Retry(ctx, func() (T, error) {
		r, err := Call[T](ctx, method, url, headers, body, query)
		if err != nil {
			var statusErr *StatusError
			if errors.As(err, &statusErr) && statusErr.StatusCode >= 400 && statusErr.StatusCode < 500 {
				return r, backoff.Permanent(err)
			}
			return r, err
		}
		return r, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(maxTries))
}
