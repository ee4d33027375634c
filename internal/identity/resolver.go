// Package identity resolves customer-supplied identifiers to canonical
// identity records via the storefront's identity provider. The intake
// pipeline never stores a raw client identifier: an unresolvable one is a
// hard input-validation error.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/terratile/support-service/internal/config"
	"github.com/terratile/support-service/internal/domain"
)

// ErrNotFound indicates the identifier does not map to a known customer.
var ErrNotFound = errors.New("customer not found")

// Resolver maps an email or opaque UID to a canonical identity record.
type Resolver interface {
	Resolve(ctx context.Context, identifier string) (*domain.Customer, error)
}

type httpResolver struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewResolver builds an HTTP-backed Resolver.
func NewResolver(cfg config.IdentityConfig) Resolver {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &httpResolver{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Resolve treats identifiers containing "@" as emails, anything else as
// an opaque provider UID.
func (r *httpResolver) Resolve(ctx context.Context, identifier string) (*domain.Customer, error) {
	var endpoint string
	if strings.Contains(identifier, "@") {
		endpoint = r.baseURL + "/v1/accounts?email=" + url.QueryEscape(identifier)
	} else {
		endpoint = r.baseURL + "/v1/accounts/" + url.PathEscape(identifier)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if r.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.apiKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("identity provider status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	var parsed struct {
		UID   string `json:"uid"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode identity response: %w", err)
	}
	if parsed.UID == "" {
		return nil, ErrNotFound
	}
	return &domain.Customer{
		UID:   parsed.UID,
		Name:  parsed.Name,
		Email: parsed.Email,
		Phone: parsed.Phone,
	}, nil
}
