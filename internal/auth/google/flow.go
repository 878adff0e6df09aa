package google

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/securecookie"
	log "github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/Yoo1tic/gcli-nexus/internal/db"
	"github.com/Yoo1tic/gcli-nexus/internal/db/models"
	"github.com/Yoo1tic/gcli-nexus/internal/nexuserr"
	"github.com/Yoo1tic/gcli-nexus/internal/pool"
)

const (
	csrfCookie = "oauth_csrf_token"
	pkceCookie = "oauth_pkce_verifier"

	cookieMaxAge = 15 * time.Minute
)

// Flow serves the login entry and callback routes and feeds successful
// logins into the credential store and every Google-backed pool actor.
type Flow struct {
	nexusKey    string
	secure      *securecookie.SecureCookie
	store       *db.CredentialStore
	actors      []*pool.Actor
	httpClient  *http.Client
	projectBase string // loadCodeAssist base override for tests
}

// NewFlow builds the flow. hashKey/blockKey encrypt the session cookies;
// empty keys get random per-process values.
func NewFlow(nexusKey, hashKey, blockKey string, store *db.CredentialStore, actors ...*pool.Actor) *Flow {
	hk := []byte(hashKey)
	if len(hk) == 0 {
		hk = securecookie.GenerateRandomKey(32)
	}
	bk := []byte(blockKey)
	if len(bk) == 0 {
		bk = securecookie.GenerateRandomKey(32)
	}
	sc := securecookie.New(deriveKey(hk), deriveKey(bk))
	sc.MaxAge(int(cookieMaxAge.Seconds()))

	return &Flow{
		nexusKey:   nexusKey,
		secure:     sc,
		store:      store,
		actors:     actors,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// deriveKey stretches an operator-supplied key to the 32 bytes securecookie
// wants.
func deriveKey(key []byte) []byte {
	sum := sha256.Sum256(key)
	return sum[:]
}

// HandleEntry serves GET /auth/{secret}: constant-time secret check, then a
// redirect to the Google consent page with PKCE + CSRF state in encrypted
// cookies.
func (f *Flow) HandleEntry(w http.ResponseWriter, r *http.Request) {
	secret := chi.URLParam(r, "secret")
	if !constantTimeEqual(secret, f.nexusKey) {
		http.NotFound(w, r)
		return
	}

	verifier := oauth2.GenerateVerifier()
	state := randomToken()

	f.setCookie(w, csrfCookie, state)
	f.setCookie(w, pkceCookie, verifier)

	cfg := OAuthConfig(callbackURL(r))
	authURL := cfg.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.ApprovalForce,
		oauth2.S256ChallengeOption(verifier),
	)

	log.Infof("[oauth] dispatching consent redirect")
	http.Redirect(w, r, authURL, http.StatusTemporaryRedirect)
}

// HandleCallback serves GET /auth/callback: CSRF check, code exchange,
// project resolution, credential upsert, pool submission.
func (f *Flow) HandleCallback(w http.ResponseWriter, r *http.Request) {
	cred, err := f.processCallback(r)

	// Session cookies are single-use on every outcome.
	f.clearCookie(w, csrfCookie)
	f.clearCookie(w, pkceCookie)

	if err != nil {
		log.Errorf("[oauth] callback failed: %v", err)
		nexuserr.WriteHTTP(w, err)
		return
	}

	log.Infof("[oauth] stored credential %d for project %s", cred.ID, cred.ProjectID)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":         cred.ID,
		"email":      cred.Email,
		"project_id": cred.ProjectID,
		"expiry":     cred.Expiry,
	})
}

func (f *Flow) processCallback(r *http.Request) (*models.Credential, error) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")

	csrf, okCSRF := f.readCookie(r, csrfCookie)
	verifier, okPKCE := f.readCookie(r, pkceCookie)
	if !okCSRF || !okPKCE {
		return nil, &nexuserr.OauthFlow{
			Code:    nexuserr.OauthSessionMissing,
			Message: "missing OAuth session cookies",
		}
	}
	if !constantTimeEqual(state, csrf) {
		return nil, &nexuserr.OauthFlow{
			Code:    nexuserr.OauthCSRFMismatch,
			Message: "CSRF token mismatch",
		}
	}

	cfg := OAuthConfig(callbackURL(r))
	token, err := cfg.Exchange(r.Context(), code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, &nexuserr.OauthFlow{
			Code:    nexuserr.OauthTokenExchangeFailed,
			Message: "token exchange failed",
			Details: err.Error(),
		}
	}
	if token.RefreshToken == "" {
		return nil, &nexuserr.OauthFlow{
			Code:    nexuserr.OauthMissingRefreshToken,
			Message: "missing refresh_token (check access_type=offline)",
		}
	}

	projectID, err := FetchProjectID(r.Context(), f.httpClient, token.AccessToken, f.projectBase)
	if err != nil {
		return nil, err
	}

	cred := &models.Credential{
		Email:        emailFromIDToken(token),
		Provider:     models.ProviderGoogle,
		ProjectID:    projectID,
		RefreshToken: token.RefreshToken,
		AccessToken:  token.AccessToken,
		Expiry:       token.Expiry,
		Status:       true,
	}
	if _, err := f.store.Upsert(cred); err != nil {
		return nil, err
	}

	for _, actor := range f.actors {
		actor.SubmitCredentials([]models.Credential{*cred})
	}
	return cred, nil
}

func (f *Flow) setCookie(w http.ResponseWriter, name, value string) {
	encoded, err := f.secure.Encode(name, value)
	if err != nil {
		log.Errorf("[oauth] encode %s cookie: %v", name, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    encoded,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (f *Flow) readCookie(r *http.Request, name string) (string, bool) {
	cookie, err := r.Cookie(name)
	if err != nil {
		return "", false
	}
	var value string
	if err := f.secure.Decode(name, cookie.Value, &value); err != nil {
		return "", false
	}
	return value, true
}

func (f *Flow) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func randomToken() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func callbackURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host + "/auth/callback"
}

// emailFromIDToken pulls the email claim out of the id_token, if present.
func emailFromIDToken(token *oauth2.Token) string {
	idToken, _ := token.Extra("id_token").(string)
	parts := strings.Split(idToken, ".")
	if len(parts) != 3 {
		return ""
	}
	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return ""
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return ""
	}
	return claims.Email
}
