package pool

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/oauth2"
)

var errNoRefresher = errors.New("no token refresher configured")

// TokenRefresher exchanges a refresh token for a fresh access token.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// OAuthRefresher refreshes through an oauth2.Config token source.
type OAuthRefresher struct {
	Config *oauth2.Config
}

// Refresh calls the token endpoint once for the given refresh token.
func (r *OAuthRefresher) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	source := r.Config.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	return source.Token()
}

// isPermanentRefreshError reports whether the failure means the refresh
// token is dead and the account needs a re-login, as opposed to a transient
// endpoint problem.
func isPermanentRefreshError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"invalid_grant",
		"invalid_client",
		"unauthorized_client",
		"token has been expired or revoked",
		"revoked",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
