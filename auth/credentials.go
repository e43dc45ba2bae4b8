package auth

import (
	"context"
)

// BearerCredentials attaches a freshly signed cluster token to every outgoing call.
// It implements credentials.PerRPCCredentials.
type BearerCredentials struct {
	tokens  *TokenManager
	subject string
	role    Role
}

func NewBearerCredentials(tokens *TokenManager, subject string, role Role) *BearerCredentials {
	return &BearerCredentials{tokens: tokens, subject: subject, role: role}
}

func (c *BearerCredentials) GetRequestMetadata(_ context.Context, _ ...string) (map[string]string, error) {
	token, err := c.tokens.Generate(c.subject, c.role)
	if err != nil {
		return nil, err
	}
	return map[string]string{"authorization": "Bearer " + token}, nil
}

// RequireTransportSecurity is false: cluster traffic runs on a private network without TLS.
func (c *BearerCredentials) RequireTransportSecurity() bool {
	return false
}
