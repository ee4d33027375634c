// Package classify assigns ticket priority from the issue text. The
// classifier's output is authoritative: caller-supplied priority values
// are discarded upstream to prevent client-side priority manipulation.
package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"github.com/terratile/support-service/internal/config"
	"github.com/terratile/support-service/internal/domain"
)

// PriorityClassifier returns a priority for an issue description. It never
// fails; classification errors degrade to the default priority.
type PriorityClassifier interface {
	Classify(ctx context.Context, issue string, customer domain.CustomerSnapshot) domain.TicketPriority
}

// NewPriorityClassifier builds the classifier. Without an API key every
// ticket gets the default priority.
func NewPriorityClassifier(cfg config.ClassifierConfig, logger *zap.Logger) PriorityClassifier {
	if cfg.APIKey == "" {
		logger.Warn("no classifier API key configured, all tickets get default priority")
		return staticClassifier{}
	}
	return &modelClassifier{
		client: anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
		logger: logger,
	}
}

type staticClassifier struct{}

func (staticClassifier) Classify(context.Context, string, domain.CustomerSnapshot) domain.TicketPriority {
	return domain.TicketPriorityMedium
}

type modelClassifier struct {
	client anthropic.Client
	model  string
	logger *zap.Logger
}

func (c *modelClassifier) Classify(ctx context.Context, issue string, customer domain.CustomerSnapshot) domain.TicketPriority {
	prompt := buildPrompt(issue, customer)
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 16,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		c.logger.Warn("priority classification failed, using default", zap.Error(err))
		return domain.TicketPriorityMedium
	}
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return parsePriority(text)
}

func buildPrompt(issue string, customer domain.CustomerSnapshot) string {
	return fmt.Sprintf(`You triage support tickets for a tile and stone retailer.
Classify the urgency of the following customer issue.

Customer: %s <%s>
Issue: %s

Answer with exactly one word: LOW, MEDIUM, or HIGH.`, customer.Name, customer.Email, issue)
}

// parsePriority is lenient about surrounding text; anything unrecognized
// maps to MEDIUM.
func parsePriority(text string) domain.TicketPriority {
	upper := strings.ToUpper(text)
	switch {
	case strings.Contains(upper, "HIGH"):
		return domain.TicketPriorityHigh
	case strings.Contains(upper, "LOW"):
		return domain.TicketPriorityLow
	default:
		return domain.TicketPriorityMedium
	}
}
