package bus

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/acgs/agentbus/pkg/identity"
)

// AgentClaims is the bus's registration token shape: a standard JWT
// envelope plus the agent_id/tenant_id/capabilities the bus checks
// against the registration request.
type AgentClaims struct {
	jwt.RegisteredClaims
	AgentID      string   `json:"agent_id"`
	TenantID     string   `json:"tenant_id"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// TokenVerifier validates a Register call's SVID/JWT against a
// configured key set, reusing the teacher's rotating-Ed25519 KeySet
// rather than a single static public key.
type TokenVerifier struct {
	keySet identity.KeySet
}

func NewTokenVerifier(keySet identity.KeySet) *TokenVerifier {
	return &TokenVerifier{keySet: keySet}
}

// Verify parses and validates tokenString, then rejects it unless its
// agent_id and tenant_id claims match the request's.
func (v *TokenVerifier) Verify(tokenString, wantAgentID, wantTenantID string) (*AgentClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AgentClaims{}, v.keySet.KeyFunc())
	if err != nil {
		return nil, fmt.Errorf("bus: token verification failed: %w", err)
	}
	claims, ok := token.Claims.(*AgentClaims)
	if !ok || !token.Valid {
		return nil, jwt.ErrTokenSignatureInvalid
	}
	if claims.AgentID != wantAgentID {
		return nil, fmt.Errorf("bus: token agent_id %q does not match request agent_id %q", claims.AgentID, wantAgentID)
	}
	if claims.TenantID != wantTenantID {
		return nil, fmt.Errorf("bus: token tenant_id %q does not match request tenant_id %q", claims.TenantID, wantTenantID)
	}
	return claims, nil
}
