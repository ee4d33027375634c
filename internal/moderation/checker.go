// Package moderation classifies support messages as acceptable or rejected.
// A static phrase blocklist runs first as a cheap backstop; a remote
// classifier handles the rest when configured.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/terratile/support-service/internal/config"
)

// Verdict is the outcome of a moderation check.
type Verdict struct {
	OK     bool
	Reason string
}

// blocklist holds phrases rejected without consulting the remote
// classifier. Matching is lowercase containment.
var blocklist = []string{
	"kill yourself",
	"go to hell",
	"fuck",
	"shit",
	"bitch",
	"asshole",
	"piece of crap",
}

var blocklistPatterns = compileBlocklist()

func compileBlocklist() []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(blocklist))
	for _, phrase := range blocklist {
		patterns = append(patterns, regexp.MustCompile(`(?i)`+regexp.QuoteMeta(phrase)))
	}
	return patterns
}

// Checker moderates message text with a configurable fail mode.
type Checker struct {
	cfg    config.ModerationConfig
	client *http.Client
	logger *zap.Logger
}

// NewChecker constructs a Checker.
func NewChecker(cfg config.ModerationConfig, logger *zap.Logger) *Checker {
	return &Checker{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Check classifies message. The blocklist rejects immediately; otherwise
// the remote classifier decides. When the remote path is unconfigured or
// errors, the configured fail mode applies: fail-open keeps legitimate
// support traffic flowing during outages, fail-closed blocks everything.
func (c *Checker) Check(ctx context.Context, message string) Verdict {
	lower := strings.ToLower(message)
	for _, phrase := range blocklist {
		if strings.Contains(lower, phrase) {
			return Verdict{OK: false, Reason: "banned-phrase"}
		}
	}

	if c.cfg.APIKey == "" {
		return c.failVerdict()
	}

	flagged, err := c.remoteCheck(ctx, message)
	if err != nil {
		c.logger.Warn("remote moderation failed", zap.Error(err),
			zap.Bool("fail_open", c.cfg.FailOpen()))
		return c.failVerdict()
	}
	if flagged {
		return Verdict{OK: false, Reason: "flagged"}
	}
	return Verdict{OK: true}
}

// Mask replaces blocklisted phrases in message with asterisks. Used on
// ticket replies, where profanity is cleaned rather than blocking.
func (c *Checker) Mask(message string) string {
	for i, pattern := range blocklistPatterns {
		message = pattern.ReplaceAllString(message, strings.Repeat("*", len(blocklist[i])))
	}
	return message
}

func (c *Checker) failVerdict() Verdict {
	if c.cfg.FailOpen() {
		return Verdict{OK: true}
	}
	return Verdict{OK: false, Reason: "moderation-unavailable"}
}

func (c *Checker) remoteCheck(ctx context.Context, message string) (bool, error) {
	payload, err := json.Marshal(map[string]any{"input": message})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/moderations", bytes.NewReader(payload))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return false, err
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("moderation api status %d", resp.StatusCode)
	}

	var parsed struct {
		Results []struct {
			Flagged    bool `json:"flagged"`
			Categories struct {
				Harassment bool `json:"harassment"`
			} `json:"categories"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return false, fmt.Errorf("decode moderation response: %w", err)
	}
	if len(parsed.Results) == 0 {
		return false, fmt.Errorf("moderation response contained no results")
	}
	result := parsed.Results[0]
	return result.Flagged || result.Categories.Harassment, nil
}
