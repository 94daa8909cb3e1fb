package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"golang.org/x/oauth2"
)

const bearerPrefix = "Bearer "

var (
	ErrMissingAuthorization   = errors.New("missing Authorization header")
	ErrMalformedAuthorization = errors.New("invalid Authorization header")
)

// ParseBearer extracts the token from an "Authorization: Bearer <token>" header value.
// The scheme is matched case-sensitively and the token is the first word after it.
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingAuthorization
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrMalformedAuthorization
	}
	fields := strings.Fields(header[len(bearerPrefix):])
	if len(fields) == 0 {
		return "", ErrMalformedAuthorization
	}
	return fields[0], nil
}

// TokenSource returns an oauth2.TokenSource that always yields the caller's access token.
// The relay never refreshes tokens.
func TokenSource(accessToken string) oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	})
}

// StaticCredential adapts a caller supplied access token to azcore.TokenCredential
// for the Microsoft Graph SDK.
type StaticCredential struct {
	token string
	ttl   time.Duration
}

// NewStaticCredential creates a credential that hands out token unchanged
func NewStaticCredential(token string) *StaticCredential {
	return &StaticCredential{token: token, ttl: time.Hour}
}

func (c *StaticCredential) GetToken(ctx context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	if c.token == "" {
		return azcore.AccessToken{}, ErrMissingAuthorization
	}
	return azcore.AccessToken{
		Token:     c.token,
		ExpiresOn: time.Now().Add(c.ttl),
	}, nil
}
