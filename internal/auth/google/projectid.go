package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/Yoo1tic/gcli-nexus/internal/nexuserr"
)

const defaultCodeAssistBaseURL = "https://cloudcode-pa.googleapis.com"

type loadCodeAssistResponse struct {
	CloudAICompanionProject string `json:"cloudaicompanionProject"`
	CurrentTier             *struct {
		ID string `json:"id"`
	} `json:"currentTier"`
	IneligibleTiers []struct {
		ReasonCode    string `json:"reasonCode"`
		ReasonMessage string `json:"reasonMessage"`
	} `json:"ineligibleTiers"`
}

// FetchProjectID resolves the companion Cloud project for a freshly issued
// access token via loadCodeAssist. baseURL overrides production for tests.
func FetchProjectID(ctx context.Context, client *http.Client, accessToken, baseURL string) (string, error) {
	if baseURL == "" {
		baseURL = defaultCodeAssistBaseURL
	}

	payload, _ := json.Marshal(map[string]any{
		"metadata": map[string]string{"ideType": "ANTIGRAVITY"},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1internal:loadCodeAssist", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("loadCodeAssist: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("loadCodeAssist read: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("loadCodeAssist status %d: %s", resp.StatusCode, body)
	}

	var parsed loadCodeAssistResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("loadCodeAssist decode: %w", err)
	}

	if parsed.CloudAICompanionProject != "" {
		return parsed.CloudAICompanionProject, nil
	}
	if len(parsed.IneligibleTiers) > 0 {
		reason := parsed.IneligibleTiers[0]
		code := reason.ReasonCode
		if code == "" {
			code = nexuserr.OauthAccountIneligible
		}
		return "", &nexuserr.OauthFlow{
			Code:    code,
			Message: "account not eligible for code assist",
			Details: reason.ReasonMessage,
		}
	}
	return "", &nexuserr.OauthFlow{
		Code:    nexuserr.OauthMissingProject,
		Message: "loadCodeAssist returned no companion project",
	}
}
