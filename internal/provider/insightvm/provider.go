// Package insightvm manages the included targets of InsightVM sites.
// Collections are site IDs.
package insightvm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/bcnelson/ipsync/internal/provider"
	"github.com/bcnelson/ipsync/internal/transport"
)

// Config holds the console connection settings.
type Config struct {
	BaseURL  string
	Username string
	Password string
	// Insecure skips TLS verification for self-signed consoles.
	Insecure bool
}

// Provider talks to the InsightVM v3 API.
type Provider struct {
	name   string
	client *transport.Client
}

var (
	_ provider.Lister  = (*Provider)(nil)
	_ provider.Mutator = (*Provider)(nil)
)

// New creates an InsightVM provider.
func New(name string, cfg Config, opts ...transport.Option) *Provider {
	opts = append([]transport.Option{transport.WithInsecureTLS(cfg.Insecure)}, opts...)
	return &Provider{
		name:   name,
		client: transport.New(cfg.BaseURL, transport.BasicAuth{Username: cfg.Username, Password: cfg.Password}, opts...),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// StartCursor returns the single page cursor; the endpoint is not paginated.
func (p *Provider) StartCursor(string) string { return "" }

type includedTargets struct {
	Addresses []string `json:"addresses"`
}

// FetchPage lists the site's included targets. Entries may be literals, CIDR
// blocks, ranges or integer-encoded addresses.
func (p *Provider) FetchPage(ctx context.Context, collection, _ string) (domain.Page, *domain.Response, error) {
	var body includedTargets
	resp, err := p.client.Do(ctx, http.MethodGet, targetsPath(collection), nil, nil, &body)
	if err != nil {
		return domain.Page{}, resp, err
	}
	return domain.Page{Specs: body.Addresses}, resp, nil
}

// Mutate adds or removes a single included target.
func (p *Provider) Mutate(ctx context.Context, collection string, addr domain.Address, op domain.Operation) (*domain.Response, error) {
	var method string
	switch op {
	case domain.OpAdd:
		method = http.MethodPost
	case domain.OpRemove:
		method = http.MethodDelete
	default:
		return nil, fmt.Errorf("operation %q: %w", op, domain.ErrUnsupported)
	}
	return p.client.Do(ctx, method, targetsPath(collection), nil, []string{string(addr)}, nil)
}

func targetsPath(site string) string {
	return "/api/3/sites/" + url.PathEscape(site) + "/included_targets"
}
