package codex

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/Yoo1tic/gcli-nexus/internal/db/models"
)

// Codex credentials are issued by OpenAI, not Google: they refresh against
// the OpenAI token endpoint and carry ChatGPT account claims. The codex
// pool must never be fed Google credentials.
const (
	// TokenURL is the OpenAI OAuth token refresh endpoint.
	TokenURL = "https://auth.openai.com/oauth/token"
	// ClientID is the Codex CLI client ID.
	ClientID = "app_EMoamEEZ73f0CkXaXp7hrann"

	refreshScope = "openid profile email"
)

// Refresher exchanges a Codex refresh token for a fresh access token. It
// satisfies the pool's TokenRefresher contract.
type Refresher struct {
	httpClient *http.Client
	tokenURL   string // override for tests
}

// NewRefresher builds a refresher against the production token endpoint.
func NewRefresher() *Refresher {
	return &Refresher{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tokenURL:   TokenURL,
	}
}

// Refresh calls the OpenAI token endpoint once for the given refresh token.
func (r *Refresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	form := url.Values{
		"client_id":     {ClientID},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"scope":         {refreshScope},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.tokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("codex refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("codex refresh failed (%d): %s", resp.StatusCode, body)
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, fmt.Errorf("parse codex refresh response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("codex refresh response missing access_token")
	}

	expiry := time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	if tokenResp.ExpiresIn == 0 {
		if claims, err := parseJWT(tokenResp.AccessToken); err == nil && claims.Exp > 0 {
			expiry = time.Unix(claims.Exp, 0)
		}
	}

	return &oauth2.Token{
		AccessToken:  tokenResp.AccessToken,
		RefreshToken: tokenResp.RefreshToken,
		Expiry:       expiry,
	}, nil
}

// DefaultAuthPath is where the Codex CLI keeps its tokens.
func DefaultAuthPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".codex", "auth.json")
}

// authJSON is the Codex CLI's ~/.codex/auth.json layout.
type authJSON struct {
	Tokens      *tokenData `json:"tokens"`
	LastRefresh string     `json:"last_refresh"`
}

type tokenData struct {
	IDToken      string `json:"id_token"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	AccountID    string `json:"account_id"`
}

// LoadAuthJSON imports a Codex CLI auth.json as a pool credential. The
// ChatGPT account id fills the vendor-unique ProjectID slot.
func LoadAuthJSON(path string) (*models.Credential, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var auth authJSON
	if err := json.Unmarshal(data, &auth); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if auth.Tokens == nil || auth.Tokens.RefreshToken == "" {
		return nil, fmt.Errorf("no usable tokens in %s", path)
	}

	cred := &models.Credential{
		Provider:     models.ProviderCodex,
		ProjectID:    auth.Tokens.AccountID,
		RefreshToken: auth.Tokens.RefreshToken,
		AccessToken:  auth.Tokens.AccessToken,
		Status:       true,
	}

	if claims, err := parseJWT(auth.Tokens.IDToken); err == nil {
		cred.Email = claims.Email
		if cred.ProjectID == "" {
			cred.ProjectID = claims.AuthInfo.ChatgptAccountID
		}
		log.Infof("[codex] auth loaded: email=%s, plan=%s", claims.Email, claims.AuthInfo.ChatgptPlanType)
	}
	if claims, err := parseJWT(auth.Tokens.AccessToken); err == nil && claims.Exp > 0 {
		cred.Expiry = time.Unix(claims.Exp, 0)
		if cred.ProjectID == "" {
			cred.ProjectID = claims.AuthInfo.ChatgptAccountID
		}
	}

	if cred.ProjectID == "" {
		return nil, fmt.Errorf("no ChatGPT account id in %s", path)
	}
	return cred, nil
}
