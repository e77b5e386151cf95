package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// RequestConfig holds configuration for HTTP requests
type RequestConfig struct {
	Logger          *zap.Logger
	Client          *http.Client
	Headers         map[string][]string
	ResponseHandler func(*http.Response) error
	Method          string
	URL             string
	Timeout         time.Duration
	MaxRetries      int
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
	RetryEnabled    bool
}

// DefaultRequestConfig returns a RequestConfig with sensible defaults
func DefaultRequestConfig(method, url string) RequestConfig {
	return RequestConfig{
		Method:         method,
		URL:            url,
		Timeout:        5 * time.Second,
		RetryEnabled:   true,
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Logger:         zap.NewNop(),
	}
}

// Response represents an HTTP response with additional metadata
type Response struct {
	Headers    http.Header
	Request    *http.Request
	Body       []byte
	StatusCode int
}

// Request performs an HTTP request with configurable retry logic
func Request(ctx context.Context, config RequestConfig, payload any) (*Response, error) {
	var payloadBytes []byte
	if payload != nil {
		var err error
		switch v := payload.(type) {
		case []byte:
			payloadBytes = v
		case string:
			payloadBytes = []byte(v)
		default:
			payloadBytes, err = json.Marshal(payload)
			if err != nil {
				return nil, fmt.Errorf("failed to marshal payload: %w", err)
			}
		}
	}

	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	client := config.Client
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	var response *Response
	attempt := 0

	operation := func() error {
		attempt++
		if attempt > 1 {
			logger.Debug("retrying request", zap.String("url", config.URL), zap.Int("attempt", attempt))
		}

		// the body reader is consumed by each attempt
		var reqBody io.Reader
		if payloadBytes != nil {
			reqBody = bytes.NewReader(payloadBytes)
		}
		req, err := http.NewRequestWithContext(ctx, config.Method, config.URL, reqBody)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}

		for key, values := range config.Headers {
			for _, value := range values {
				req.Header.Add(key, value)
			}
		}

		// Set default content-type for methods with body
		if reqBody != nil && (config.Method == http.MethodPost || config.Method == http.MethodPut || config.Method == http.MethodPatch) {
			if req.Header.Get("Content-Type") == "" {
				req.Header.Set("Content-Type", "application/json")
			}
		}

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		response = &Response{
			StatusCode: resp.StatusCode,
			Body:       body,
			Headers:    resp.Header,
			Request:    req,
		}

		if config.ResponseHandler != nil {
			if err := config.ResponseHandler(resp); err != nil {
				return err
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, body)
			// client errors will not succeed on retry
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	var err error
	if config.RetryEnabled {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = config.InitialBackoff
		b.MaxInterval = config.MaxBackoff
		err = backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(b, uint64(config.MaxRetries)), ctx))
	} else {
		err = operation()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			err = perm.Err
		}
	}

	if err != nil {
		logger.Warn("request failed", zap.String("url", config.URL), zap.Int("attempts", attempt), zap.Error(err))
		return response, err // Return response even on error for inspection
	}

	return response, nil
}
