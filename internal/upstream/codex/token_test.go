package codex

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Yoo1tic/gcli-nexus/internal/db/models"
)

// fakeJWT builds an unsigned JWT carrying the given claims payload.
func fakeJWT(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatal(err)
	}
	encode := base64.RawURLEncoding.EncodeToString
	return encode([]byte(`{"alg":"none"}`)) + "." + encode(payload) + "." + encode([]byte("sig"))
}

func TestParseJWT_OpenAIAuthClaimNamespace(t *testing.T) {
	token := fakeJWT(t, map[string]any{
		"email": "dev@example.com",
		"exp":   1900000000,
		"https://api.openai.com/auth": map[string]any{
			"chatgpt_account_id": "acct-123",
			"chatgpt_plan_type":  "pro",
		},
	})

	claims, err := parseJWT(token)
	if err != nil {
		t.Fatalf("parseJWT: %v", err)
	}
	if claims.Email != "dev@example.com" {
		t.Errorf("email: %q", claims.Email)
	}
	if claims.AuthInfo.ChatgptAccountID != "acct-123" {
		t.Errorf("account id not read from the auth namespace: %q", claims.AuthInfo.ChatgptAccountID)
	}
	if claims.AuthInfo.ChatgptPlanType != "pro" {
		t.Errorf("plan type: %q", claims.AuthInfo.ChatgptPlanType)
	}
}

func TestParseJWT_RejectsMalformedToken(t *testing.T) {
	if _, err := parseJWT("not-a-jwt"); err == nil {
		t.Error("expected an error for a malformed token")
	}
}

func TestRefresher_PostsCodexClientIDAndParsesToken(t *testing.T) {
	var form map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		form = r.PostForm
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "codex-access",
			"refresh_token": "codex-refresh-rotated",
			"expires_in":    3600,
		})
	}))
	defer server.Close()

	refresher := NewRefresher()
	refresher.tokenURL = server.URL

	token, err := refresher.Refresh(context.Background(), "codex-refresh")
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}

	if form["client_id"][0] != ClientID {
		t.Errorf("client_id: %v", form["client_id"])
	}
	if form["grant_type"][0] != "refresh_token" || form["refresh_token"][0] != "codex-refresh" {
		t.Errorf("grant form: %v", form)
	}
	if token.AccessToken != "codex-access" || token.RefreshToken != "codex-refresh-rotated" {
		t.Errorf("token not parsed: %+v", token)
	}
	if until := time.Until(token.Expiry); until < 50*time.Minute || until > 70*time.Minute {
		t.Errorf("expiry not derived from expires_in: %v", token.Expiry)
	}
}

func TestRefresher_ErrorStatusFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer server.Close()

	refresher := NewRefresher()
	refresher.tokenURL = server.URL

	if _, err := refresher.Refresh(context.Background(), "dead"); err == nil {
		t.Error("expected an error on refresh failure")
	}
}

func TestLoadAuthJSON_BuildsCodexCredential(t *testing.T) {
	exp := time.Now().Add(2 * time.Hour).Unix()
	idToken := fakeJWT(t, map[string]any{
		"email": "dev@example.com",
		"https://api.openai.com/auth": map[string]any{
			"chatgpt_account_id": "acct-123",
			"chatgpt_plan_type":  "plus",
		},
	})
	accessToken := fakeJWT(t, map[string]any{
		"exp": exp,
		"https://api.openai.com/auth": map[string]any{
			"chatgpt_account_id": "acct-123",
		},
	})

	path := filepath.Join(t.TempDir(), "auth.json")
	content, _ := json.Marshal(map[string]any{
		"tokens": map[string]string{
			"id_token":      idToken,
			"access_token":  accessToken,
			"refresh_token": "refresh-1",
			"account_id":    "acct-123",
		},
	})
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}

	cred, err := LoadAuthJSON(path)
	if err != nil {
		t.Fatalf("LoadAuthJSON: %v", err)
	}
	if cred.Provider != models.ProviderCodex {
		t.Errorf("provider: %q", cred.Provider)
	}
	if cred.ProjectID != "acct-123" {
		t.Errorf("project id should carry the ChatGPT account id, got %q", cred.ProjectID)
	}
	if cred.Email != "dev@example.com" || cred.RefreshToken != "refresh-1" {
		t.Errorf("credential fields: %+v", cred)
	}
	if cred.Expiry.Unix() != exp {
		t.Errorf("expiry should come from the access token exp claim: %v", cred.Expiry)
	}
}

func TestLoadAuthJSON_MissingFileOrTokens(t *testing.T) {
	if _, err := LoadAuthJSON(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected an error for a missing file")
	}

	path := filepath.Join(t.TempDir(), "auth.json")
	os.WriteFile(path, []byte(`{"tokens":{"access_token":"a"}}`), 0o600)
	if _, err := LoadAuthJSON(path); err == nil {
		t.Error("expected an error when the refresh token is absent")
	}
}
