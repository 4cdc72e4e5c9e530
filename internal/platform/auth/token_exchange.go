package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/televita/rxprice/internal/platform/resilience"
)

// RFC 8693 token exchange parameters.
const (
	GrantTypeTokenExchange = "urn:ietf:params:oauth:grant-type:token-exchange"
	TokenTypeJWT           = "urn:ietf:params:oauth:token-type:jwt"
)

// DefaultTokenURL is the integration identity server.
const DefaultTokenURL = "https://auth-int.medicationknowledge.com.au/connect/token"

// StatusTemporaryFailure is the non-standard "web server returned an unknown
// error" status the identity server's edge returns for transient failures.
const StatusTemporaryFailure = 520

// ErrTokenAcquisition is returned once the retry budget is spent without
// obtaining a token.
var ErrTokenAcquisition = errors.New("token acquisition failed")

// TokenError is a definitive rejection from the token endpoint. It is never
// retried.
type TokenError struct {
	StatusCode int
	Body       string
}

func (e *TokenError) Error() string {
	return fmt.Sprintf("token request failed: %d - %s", e.StatusCode, e.Body)
}

// transientError marks a failure worth another attempt: a 520 or a
// transport-level error.
type transientError struct {
	status int
	cause  error
}

func (e *transientError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("token request error: %v", e.cause)
	}
	return fmt.Sprintf("token endpoint returned %d", e.status)
}

func (e *transientError) Unwrap() error { return e.cause }

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

// TokenExchangeConfig carries the externally supplied client credentials.
type TokenExchangeConfig struct {
	TokenURL        string
	ClientID        string
	ClientSecret    string
	Scope           string
	SubscriptionKey string
}

// TokenExchangerOption configures a TokenExchanger.
type TokenExchangerOption func(*TokenExchanger)

// WithTokenHTTPClient overrides the default HTTP client.
func WithTokenHTTPClient(c *http.Client) TokenExchangerOption {
	return func(t *TokenExchanger) { t.httpClient = c }
}

// WithTokenRetry overrides the attempt budget and the fixed delay between
// attempts.
func WithTokenRetry(maxAttempts int, delay time.Duration) TokenExchangerOption {
	return func(t *TokenExchanger) {
		t.policy.MaxAttempts = maxAttempts
		t.policy.Delay = delay
	}
}

// WithTokenLogger sets the logger used for retry events.
func WithTokenLogger(l zerolog.Logger) TokenExchangerOption {
	return func(t *TokenExchanger) { t.logger = l }
}

// TokenExchanger trades a signed subject assertion for a bearer access token.
// Tokens are not cached; every call performs a fresh exchange.
type TokenExchanger struct {
	cfg        TokenExchangeConfig
	signer     *AssertionSigner
	httpClient *http.Client
	policy     resilience.Policy
	logger     zerolog.Logger
}

// NewTokenExchanger creates a TokenExchanger. By default it makes 3 attempts
// 5 seconds apart.
func NewTokenExchanger(cfg TokenExchangeConfig, signer *AssertionSigner, opts ...TokenExchangerOption) *TokenExchanger {
	if cfg.TokenURL == "" {
		cfg.TokenURL = DefaultTokenURL
	}
	t := &TokenExchanger{
		cfg:        cfg,
		signer:     signer,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		policy:     resilience.FixedPolicy(3, 5*time.Second, isTransient),
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(t)
	}
	t.policy.OnRetry = func(attempt int, delay time.Duration, err error) {
		t.logger.Warn().
			Int("attempt", attempt).
			Dur("delay", delay).
			Err(err).
			Msg("token exchange failed, retrying")
	}
	return t
}

// AccessToken performs the token exchange and returns the access token.
func (t *TokenExchanger) AccessToken(ctx context.Context) (string, error) {
	assertion, err := t.signer.Sign()
	if err != nil {
		return "", fmt.Errorf("building subject assertion: %w", err)
	}

	form := url.Values{
		"grant_type":         {GrantTypeTokenExchange},
		"client_id":          {t.cfg.ClientID},
		"client_secret":      {t.cfg.ClientSecret},
		"scope":              {t.cfg.Scope},
		"subject_token":      {assertion},
		"subject_token_type": {TokenTypeJWT},
	}

	var token string
	err = t.policy.Do(ctx, func(ctx context.Context) error {
		tok, err := t.exchange(ctx, form)
		if err != nil {
			return err
		}
		token = tok
		return nil
	})
	if err != nil {
		if isTransient(err) {
			t.logger.Error().Err(err).Int("attempts", t.policy.MaxAttempts).Msg("token exchange exhausted")
			return "", fmt.Errorf("%w after %d attempts: %v", ErrTokenAcquisition, t.policy.MaxAttempts, err)
		}
		return "", err
	}
	return token, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

func (t *TokenExchanger) exchange(ctx context.Context, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("building token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	if t.cfg.SubscriptionKey != "" {
		req.Header.Set("Ocp-Apim-Subscription-Key", t.cfg.SubscriptionKey)
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", &transientError{cause: err}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var tr tokenResponse
		if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
			return "", &TokenError{StatusCode: resp.StatusCode, Body: "undecodable token response: " + err.Error()}
		}
		if tr.AccessToken == "" {
			return "", &TokenError{StatusCode: resp.StatusCode, Body: "response has no access_token"}
		}
		return tr.AccessToken, nil
	case StatusTemporaryFailure:
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return "", &transientError{status: resp.StatusCode}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &TokenError{StatusCode: resp.StatusCode, Body: string(body)}
	}
}
