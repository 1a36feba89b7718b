// Package shodan manages the IP filters of Shodan network alerts. Collections
// are alert names; a whole alert filter is replaced at once.
package shodan

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/bcnelson/ipsync/internal/provider"
	"github.com/bcnelson/ipsync/internal/transport"
)

// DefaultBaseURL is the public Shodan API.
const DefaultBaseURL = "https://api.shodan.io"

// Config holds the API settings.
type Config struct {
	BaseURL string
	APIKey  string
}

// Provider reads and replaces alert IP filters.
type Provider struct {
	name   string
	client *transport.Client
}

var (
	_ provider.Lister   = (*Provider)(nil)
	_ provider.Replacer = (*Provider)(nil)
)

// New creates a Shodan provider.
func New(name string, cfg Config, opts ...transport.Option) *Provider {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Provider{
		name:   name,
		client: transport.New(base, transport.QueryAuth{Param: "key", Value: cfg.APIKey}, opts...),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// StartCursor returns the single page cursor.
func (p *Provider) StartCursor(string) string { return "" }

type alert struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Filters struct {
		IP []string `json:"ip"`
	} `json:"filters"`
}

// FetchPage returns the IP filter of the named alert.
func (p *Provider) FetchPage(ctx context.Context, collection, _ string) (domain.Page, *domain.Response, error) {
	a, resp, err := p.findAlert(ctx, collection)
	if err != nil || resp.Status != domain.ResponseSuccess {
		return domain.Page{}, resp, err
	}
	return domain.Page{Specs: a.Filters.IP}, resp, nil
}

// ReplaceAll resolves the alert ID by name and overwrites its IP filter.
func (p *Provider) ReplaceAll(ctx context.Context, collection string, addrs []domain.Address) (*domain.Response, error) {
	a, resp, err := p.findAlert(ctx, collection)
	if err != nil || resp.Status != domain.ResponseSuccess {
		return resp, err
	}

	ips := make([]string, len(addrs))
	for i, addr := range addrs {
		ips[i] = string(addr)
	}
	body := map[string]any{"filters": map[string]any{"ip": ips}}
	return p.client.Do(ctx, http.MethodPost, "/shodan/alert/"+url.PathEscape(a.ID), nil, body, nil)
}

// findAlert lists all alerts and picks the one named name. A missing alert is
// reported as a 404 error response.
func (p *Provider) findAlert(ctx context.Context, name string) (*alert, *domain.Response, error) {
	var alerts []alert
	resp, err := p.client.Do(ctx, http.MethodGet, "/shodan/alert/info", nil, nil, &alerts)
	if err != nil || resp.Status != domain.ResponseSuccess {
		return nil, resp, err
	}
	for i := range alerts {
		if alerts[i].Name == name {
			return &alerts[i], resp, nil
		}
	}
	return nil, &domain.Response{
		Status:     domain.ResponseError,
		HTTPStatus: http.StatusNotFound,
		Message:    fmt.Sprintf("no alert named %q", name),
	}, nil
}
