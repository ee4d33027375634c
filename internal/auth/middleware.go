package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/terratile/support-service/pkg/util"
)

const agentLocalKey = "auth.agent_id"

// AgentAuth guards agent-only routes.
type AgentAuth struct {
	tokens *TokenManager
}

// NewAgentAuth constructs the middleware.
func NewAgentAuth(tokens *TokenManager) *AgentAuth {
	return &AgentAuth{tokens: tokens}
}

// Handle validates the bearer token and stores the agent id on the
// request context.
func (a *AgentAuth) Handle(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	tokenString, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || tokenString == "" {
		return apperrors.NewUnauthorized("agent token required")
	}
	claims, err := a.tokens.Verify(tokenString)
	if err != nil {
		return apperrors.NewUnauthorized("invalid agent token")
	}
	c.Locals(agentLocalKey, claims.AgentID)
	return c.Next()
}

// AgentFromContext returns the authenticated agent id, if any.
func AgentFromContext(c *fiber.Ctx) (string, bool) {
	agentID, ok := c.Locals(agentLocalKey).(string)
	return agentID, ok && agentID != ""
}
