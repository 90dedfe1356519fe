package generator

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

	"picturebook/internal/domain/story"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// HTTPClient talks JSON to the story backend.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
}

// HTTPOptions configures an HTTPClient.
type HTTPOptions struct {
	BaseURL string
	Timeout time.Duration
	// BreakerFailures is the number of consecutive transport failures that opens the breaker.
	BreakerFailures uint32
	// BreakerCooldown is how long the breaker stays open before probing again.
	BreakerCooldown time.Duration
}

type storyBody struct {
	Image     string `json:"image"`
	Category  string `json:"category"`
	WordLimit int    `json:"wordLimit"`
}

type captionBody struct {
	Image string `json:"image"`
}

type translateBody struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// response covers every endpoint's result shape.
type response struct {
	Story          *string `json:"story"`
	Caption        *string `json:"caption"`
	TranslatedText *string `json:"translatedText"`
	Error          string  `json:"error"`
}

// NewHTTPClient creates a backend client
func NewHTTPClient(opts HTTPOptions) *HTTPClient {
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = 30 * time.Second
	}

	failures := opts.BreakerFailures
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "backend",
		Timeout: opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		// An explicit service error means the backend is reachable, and a
		// call the caller abandoned says nothing about its health.
		IsSuccessful: func(err error) bool {
			var svcErr *story.ServiceError
			return err == nil || errors.As(err, &svcErr) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Backend circuit breaker changed state")
		},
	})

	return &HTTPClient{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
		breaker: breaker,
	}
}

// SupportedLanguages fetches the ordered language list; the first entry is the default.
func (c *HTTPClient) SupportedLanguages(ctx context.Context) ([]story.LanguageCode, error) {
	var names []string
	if err := c.call(ctx, http.MethodGet, "supported-languages", nil, &names); err != nil {
		return nil, err
	}

	languages := make([]story.LanguageCode, 0, len(names))
	for _, n := range names {
		languages = append(languages, story.LanguageCode(n))
	}
	return languages, nil
}

func (c *HTTPClient) GenerateStory(ctx context.Context, req StoryRequest) (string, error) {
	body := storyBody{
		Image:     req.Image.DataURL(),
		Category:  strings.ToLower(req.Category),
		WordLimit: req.WordLimit,
	}
	var resp response
	if err := c.call(ctx, http.MethodPost, "generate-story", body, &resp); err != nil {
		return "", err
	}
	if err := resp.err(); err != nil {
		return "", err
	}
	return deref(resp.Story), nil
}

func (c *HTTPClient) GenerateCaption(ctx context.Context, req CaptionRequest) (string, error) {
	var resp response
	if err := c.call(ctx, http.MethodPost, "generate-caption", captionBody{Image: req.Image.DataURL()}, &resp); err != nil {
		return "", err
	}
	if err := resp.err(); err != nil {
		return "", err
	}
	return deref(resp.Caption), nil
}

func (c *HTTPClient) Translate(ctx context.Context, req TranslateRequest) (string, error) {
	body := translateBody{Text: req.Text, Language: req.Language.String()}
	var resp response
	if err := c.call(ctx, http.MethodPost, "translate", body, &resp); err != nil {
		return "", err
	}
	if err := resp.err(); err != nil {
		return "", err
	}
	return deref(resp.TranslatedText), nil
}

// call performs one request through the circuit breaker. The breaker never retries.
func (c *HTTPClient) call(ctx context.Context, method, endpoint string, in, out any) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.do(ctx, method, endpoint, in, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: backend unavailable: %v", story.ErrTransportFailure, err)
	}
	return err
}

func (c *HTTPClient) do(ctx context.Context, method, endpoint string, in, out any) error {
	url := c.baseURL + "/" + endpoint

	var reqBody io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	if err != nil {
		return fmt.Errorf("%w: failed to build request: %v", story.ErrTransportFailure, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	logrus.WithFields(logrus.Fields{"method": method, "url": url}).Debug("Calling backend")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to reach %s: %w", story.ErrTransportFailure, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %v", story.ErrTransportFailure, err)
	}

	// An error field wins over the transport status.
	var probe struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(body, &probe) == nil && probe.Error != "" {
		return &story.ServiceError{Message: probe.Error}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: HTTP %d from %s", story.ErrTransportFailure, resp.StatusCode, endpoint)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: failed to parse JSON response: %v", story.ErrTransportFailure, err)
	}
	return nil
}

func (r response) err() error {
	if r.Error != "" {
		return &story.ServiceError{Message: r.Error}
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
