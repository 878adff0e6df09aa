package codex

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// jwtClaims is the payload of a Codex JWT. ChatGPT account details live
// under the OpenAI auth claim namespace.
type jwtClaims struct {
	Email    string        `json:"email"`
	Exp      int64         `json:"exp"`
	AuthInfo codexAuthInfo `json:"https://api.openai.com/auth"`
}

type codexAuthInfo struct {
	ChatgptAccountID string `json:"chatgpt_account_id"`
	ChatgptPlanType  string `json:"chatgpt_plan_type"` // plus, pro, team
	ChatgptUserID    string `json:"chatgpt_user_id"`
}

// parseJWT extracts the claims of a JWT without verifying its signature;
// the tokens come straight from the OpenAI token endpoint.
func parseJWT(token string) (*jwtClaims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid JWT format: expected 3 parts, got %d", len(parts))
	}

	payload := parts[1]
	switch len(payload) % 4 {
	case 2:
		payload += "=="
	case 3:
		payload += "="
	}

	data, err := base64.URLEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode JWT payload: %w", err)
	}

	var claims jwtClaims
	if err := json.Unmarshal(data, &claims); err != nil {
		return nil, fmt.Errorf("parse JWT claims: %w", err)
	}
	return &claims, nil
}
