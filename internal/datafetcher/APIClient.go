/*
This file contains the shared HTTP client used by every retriever in this package.

Requests are retried with a linear backoff. Client errors (4xx other than 429) are not retried,
since repeating them cannot succeed.
*/

package datafetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

var ErrAPIResponseInvalid = errors.New("API response validation failed")

const (
	MAX_RETRIES         = 3
	TIMEOUT_SECONDS     = 30
	DEFAULT_RETRY_DELAY = time.Second
)

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

type apiClient struct {
	http       *http.Client
	retryDelay time.Duration
	log        zerolog.Logger
}

func newAPIClient(httpClient *http.Client, retryDelay time.Duration, log zerolog.Logger) *apiClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: TIMEOUT_SECONDS * time.Second}
	}
	if retryDelay <= 0 {
		retryDelay = DEFAULT_RETRY_DELAY
	}
	return &apiClient{http: httpClient, retryDelay: retryDelay, log: log}
}

// getJSON fetches url and decodes the body into out, retrying transient failures.
func (c *apiClient) getJSON(ctx context.Context, url string, out any) error {
	var lastErr error
	for attempt := 1; attempt <= MAX_RETRIES; attempt++ {
		c.log.Debug().
			Str("url", url).
			Int("attempt", attempt).
			Int("maxRetries", MAX_RETRIES).
			Msg("Making API request")

		lastErr = c.fetchOnce(ctx, url, out)
		if lastErr == nil {
			return nil
		}

		var permanent *permanentError
		if errors.As(lastErr, &permanent) || ctx.Err() != nil {
			break
		}

		if attempt < MAX_RETRIES {
			c.log.Warn().
				Err(lastErr).
				Str("url", url).
				Int("attempt", attempt).
				Msg("API request failed, will retry")

			select {
			case <-time.After(time.Duration(attempt) * c.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	c.log.Error().
		Err(lastErr).
		Str("url", url).
		Msg("All retry attempts failed")
	return fmt.Errorf("GET %s failed: %w", url, lastErr)
}

func (c *apiClient) fetchOnce(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &permanentError{fmt.Errorf("failed to build request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: status %d", ErrAPIResponseInvalid, resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return &permanentError{err}
		}
		return err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) == 0 {
		return fmt.Errorf("%w: empty response body", ErrAPIResponseInvalid)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &permanentError{fmt.Errorf("%w: failed to parse JSON: %v", ErrAPIResponseInvalid, err)}
	}
	return nil
}
