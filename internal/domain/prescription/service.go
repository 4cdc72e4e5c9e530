package prescription

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/televita/rxprice/internal/platform/fhir"
	"github.com/televita/rxprice/pkg/fhirmodels"
)

var (
	// ErrNotFound is returned when the eRx service has no prescription for
	// the SCID.
	ErrNotFound = errors.New("prescription not found")

	// ErrNotConfigured is returned when no FHIR base URL is set.
	ErrNotConfigured = errors.New("prescription lookups are not configured")
)

// UpstreamError is a non-2xx response from the eRx FHIR API.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("eRx FHIR API returned %d: %s", e.StatusCode, e.Body)
}

// TokenSource supplies bearer tokens. *auth.TokenExchanger satisfies it.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

type Option func(*Service)

func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) { s.httpClient = c }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

type Service struct {
	baseURL         string
	subscriptionKey string
	tokens          TokenSource
	httpClient      *http.Client
	logger          zerolog.Logger
}

func NewService(baseURL, subscriptionKey string, tokens TokenSource, opts ...Option) *Service {
	s := &Service{
		baseURL:         strings.TrimRight(baseURL, "/"),
		subscriptionKey: subscriptionKey,
		tokens:          tokens,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
		logger:          zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// FetchBundle searches MedicationRequest by SCID identifier.
func (s *Service) FetchBundle(ctx context.Context, scid, token string) (*fhir.Bundle, error) {
	if s.baseURL == "" {
		return nil, ErrNotConfigured
	}
	q := url.Values{}
	q.Set("identifier", fhirmodels.SCIDIdentifier(scid))
	q.Set("_format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/MedicationRequest?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Ocp-Apim-Subscription-Key", s.subscriptionKey)
	req.Header.Set("Accept", "application/fhir+json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching SCID %s: %w", scid, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return fhir.DecodeBundle(resp.Body)
}

// Summarize fetches and flattens the prescription for scid.
func (s *Service) Summarize(ctx context.Context, scid string) (*Summary, error) {
	if s.baseURL == "" {
		return nil, ErrNotConfigured
	}
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.summarize(ctx, scid, token)
}

func (s *Service) summarize(ctx context.Context, scid, token string) (*Summary, error) {
	s.logger.Info().Str("scid", scid).Msg("summarizing prescription")

	bundle, err := s.FetchBundle(ctx, scid, token)
	if err != nil {
		return nil, err
	}
	var mr fhir.MedicationRequest
	if err := bundle.FirstResource(&mr); err != nil {
		if errors.Is(err, fhir.ErrEmptyBundle) {
			return nil, fmt.Errorf("%w: no data for SCID %s", ErrNotFound, scid)
		}
		return nil, err
	}
	return Summarize(&mr)
}

// SummarizeBatch summarizes each SCID in order with one access token.
// SCIDs that fail are logged and left out.
func (s *Service) SummarizeBatch(ctx context.Context, scids []string) ([]*Summary, error) {
	out := make([]*Summary, 0, len(scids))
	if len(scids) == 0 {
		return out, nil
	}
	if s.baseURL == "" {
		return nil, ErrNotConfigured
	}
	token, err := s.tokens.AccessToken(ctx)
	if err != nil {
		return nil, err
	}
	for _, scid := range scids {
		sum, err := s.summarize(ctx, scid, token)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn().Err(err).Str("scid", scid).Msg("skipping prescription in batch")
			continue
		}
		out = append(out, sum)
	}
	return out, nil
}
