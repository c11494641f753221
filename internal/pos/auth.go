package pos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"restaurantintel/backend/internal/logging"
)

const (
	loginPath        = "/authentication/v1/authentication/login"
	machineClient    = "TOAST_MACHINE_CLIENT"
	defaultExpiresIn = 3600
	expiryBuffer     = 5 * time.Minute
)

// Credentials are loaded once at process start and never change.
type Credentials struct {
	ClientID      string
	ClientSecrets []string
	TenantGUID    string
	BaseURL       string
	AuthURL       string
}

func (c Credentials) Validate() error {
	var missing []string
	if strings.TrimSpace(c.ClientID) == "" {
		missing = append(missing, "client id")
	}
	hasSecret := false
	for _, s := range c.ClientSecrets {
		if strings.TrimSpace(s) != "" {
			hasSecret = true
			break
		}
	}
	if !hasSecret {
		missing = append(missing, "client secret")
	}
	if strings.TrimSpace(c.TenantGUID) == "" {
		missing = append(missing, "restaurant guid")
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		missing = append(missing, "base url")
	}
	if len(missing) > 0 {
		return &ConfigurationError{Missing: missing}
	}
	return nil
}

func (c Credentials) authURL() string {
	if c.AuthURL != "" {
		return strings.TrimRight(c.AuthURL, "/")
	}
	return strings.TrimRight(c.BaseURL, "/")
}

// AccessToken is replaced as a whole on every login and never mutated.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

type TokenStatus struct {
	ClientID          string     `json:"clientId"`
	RestaurantGUID    string     `json:"restaurantGuid"`
	BaseURL           string     `json:"baseUrl"`
	AuthURL           string     `json:"authUrl"`
	SecretsConfigured int        `json:"secretsConfigured"`
	HasToken          bool       `json:"hasToken"`
	TokenValid        bool       `json:"tokenValid"`
	ExpiresAt         *time.Time `json:"expiresAt,omitempty"`
	TokenPreview      string     `json:"tokenPreview,omitempty"`
}

type loginRequest struct {
	ClientID       string `json:"clientId"`
	ClientSecret   string `json:"clientSecret"`
	UserAccessType string `json:"userAccessType"`
}

type loginResponse struct {
	Token struct {
		AccessToken string `json:"accessToken"`
		ExpiresIn   int64  `json:"expiresIn"`
		TokenType   string `json:"tokenType"`
	} `json:"token"`
	Status string `json:"status"`
}

// TokenManager owns the vendor access token. Concurrent callers that find the
// token stale share a single login.
type TokenManager struct {
	creds      Credentials
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu    sync.RWMutex
	token *AccessToken
	group singleflight.Group
}

func NewTokenManager(creds Credentials, httpClient *http.Client, logger *slog.Logger) (*TokenManager, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &TokenManager{
		creds:      creds,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}, nil
}

func (m *TokenManager) setClock(now func() time.Time) {
	if now != nil {
		m.now = now
	}
}

func (m *TokenManager) IsValid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token != nil && m.token.Value != "" && m.now().Before(m.token.ExpiresAt)
}

// Token returns the cached token, authenticating first when it is stale.
func (m *TokenManager) Token(ctx context.Context) (AccessToken, error) {
	m.mu.RLock()
	if m.token != nil && m.token.Value != "" && m.now().Before(m.token.ExpiresAt) {
		tok := *m.token
		m.mu.RUnlock()
		return tok, nil
	}
	m.mu.RUnlock()
	return m.Authenticate(ctx)
}

func (m *TokenManager) EnsureAuthenticated(ctx context.Context) error {
	_, err := m.Token(ctx)
	return err
}

// Invalidate drops the cached token so the next call logs in again.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	m.token = nil
	m.mu.Unlock()
}

// Authenticate logs in unconditionally, trying each configured secret in
// order until one is accepted. Concurrent callers share one login; it is
// detached from the caller that started it and bounded by the HTTP client
// timeout, so one cancelled request cannot fail the others.
func (m *TokenManager) Authenticate(ctx context.Context) (AccessToken, error) {
	ch := m.group.DoChan("login", func() (any, error) {
		return m.loginWithFallback(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return AccessToken{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return AccessToken{}, res.Err
		}
		return res.Val.(AccessToken), nil
	}
}

func (m *TokenManager) loginWithFallback(ctx context.Context) (AccessToken, error) {
	var attempts []string
	for i, secret := range m.creds.ClientSecrets {
		secret = strings.TrimSpace(secret)
		if secret == "" {
			continue
		}
		tok, err := m.login(ctx, secret)
		if err == nil {
			authAttemptsTotal.WithLabelValues("success").Inc()
			m.mu.Lock()
			m.token = &tok
			m.mu.Unlock()
			m.logger.InfoContext(ctx, "pos authentication succeeded",
				slog.Int("secret_index", i),
				slog.Time("expires_at", tok.ExpiresAt),
			)
			return tok, nil
		}
		authAttemptsTotal.WithLabelValues("failure").Inc()
		m.logger.WarnContext(ctx, "pos authentication attempt failed",
			slog.Int("secret_index", i),
			slog.String("error", err.Error()),
		)
		attempts = append(attempts, fmt.Sprintf("secret %d: %s", i+1, err.Error()))
		if ctx.Err() != nil {
			break
		}
	}
	return AccessToken{}, &AuthenticationError{Attempts: attempts}
}

func (m *TokenManager) login(ctx context.Context, secret string) (AccessToken, error) {
	payload, err := json.Marshal(loginRequest{
		ClientID:       m.creds.ClientID,
		ClientSecret:   secret,
		UserAccessType: machineClient,
	})
	if err != nil {
		return AccessToken{}, fmt.Errorf("encode login request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.creds.authURL()+loginPath, bytes.NewReader(payload))
	if err != nil {
		return AccessToken{}, fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return AccessToken{}, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return AccessToken{}, fmt.Errorf("read login response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return AccessToken{}, fmt.Errorf("%s", vendorMessage(resp.StatusCode, body))
	}

	var parsed loginResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return AccessToken{}, fmt.Errorf("decode login response: %w", err)
	}
	if parsed.Token.AccessToken == "" {
		return AccessToken{}, fmt.Errorf("login response missing access token")
	}

	expiresIn := parsed.Token.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultExpiresIn
	}
	return AccessToken{
		Value:     parsed.Token.AccessToken,
		ExpiresAt: m.now().Add(time.Duration(expiresIn)*time.Second - expiryBuffer),
	}, nil
}

func (m *TokenManager) Status() TokenStatus {
	secrets := 0
	for _, s := range m.creds.ClientSecrets {
		if strings.TrimSpace(s) != "" {
			secrets++
		}
	}
	status := TokenStatus{
		ClientID:          logging.Mask(m.creds.ClientID),
		RestaurantGUID:    m.creds.TenantGUID,
		BaseURL:           m.creds.BaseURL,
		AuthURL:           m.creds.authURL(),
		SecretsConfigured: secrets,
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token != nil {
		expiresAt := m.token.ExpiresAt
		status.HasToken = true
		status.TokenValid = m.now().Before(expiresAt)
		status.ExpiresAt = &expiresAt
		status.TokenPreview = logging.Mask(m.token.Value)
	}
	return status
}
