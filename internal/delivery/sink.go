package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single sink request.
const DefaultTimeout = 10 * time.Second

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 512

// Sink accepts deliveries.
type Sink interface {
	Send(ctx context.Context, d Delivery) error
}

// HTTPError is a non-2xx sink response.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

// IsHTTPStatus reports whether err is an HTTPError with the given status.
func IsHTTPStatus(err error, status int) bool {
	var he *HTTPError
	return errors.As(err, &he) && he.StatusCode == status
}

// HTTPSink POSTs payloads as JSON to a single endpoint.
type HTTPSink struct {
	url        string
	httpClient *http.Client
	headers    map[string]string
	validator  *Validator
}

// HTTPSinkOption configures an HTTPSink.
type HTTPSinkOption func(*HTTPSink)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPSinkOption {
	return func(s *HTTPSink) {
		s.httpClient = c
	}
}

// WithHeader adds a static request header.
func WithHeader(key, value string) HTTPSinkOption {
	return func(s *HTTPSink) {
		s.headers[key] = value
	}
}

// WithValidator sets the payload validator. A nil validator disables validation.
func WithValidator(v *Validator) HTTPSinkOption {
	return func(s *HTTPSink) {
		s.validator = v
	}
}

// NewHTTPSink creates a sink for url with a DefaultTimeout client and the
// embedded payload schema.
func NewHTTPSink(url string, opts ...HTTPSinkOption) (*HTTPSink, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, errors.New("sink url is required")
	}
	v, err := defaultValidator()
	if err != nil {
		return nil, err
	}
	s := &HTTPSink{
		url:        url,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		headers:    map[string]string{},
		validator:  v,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Send implements Sink. It does not retry.
func (s *HTTPSink) Send(ctx context.Context, d Delivery) error {
	body, err := json.Marshal(d.Payload)
	if err != nil {
		return err
	}
	if s.validator != nil {
		if err := s.validator.ValidateJSON(body); err != nil {
			return err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", d.IdempotencyKey)
	req.Header.Set("X-Delivery-Id", d.ID)
	for key, value := range s.headers {
		req.Header.Set(key, value)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
}
