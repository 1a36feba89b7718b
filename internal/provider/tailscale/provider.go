// Package tailscale lists the addresses of the devices in a tailnet.
// A collection of "" or "*" selects all devices; otherwise it names an ACL tag
// (e.g. "tag:server") devices must carry.
package tailscale

import (
	"context"
	"net/http"
	"net/url"

	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/bcnelson/ipsync/internal/provider"
	"github.com/bcnelson/ipsync/internal/transport"
	tsclient "github.com/tailscale/tailscale-client-go/v2"
	"golang.org/x/oauth2/clientcredentials"
)

// DefaultTokenURL is the OAuth token endpoint of the public control plane.
const DefaultTokenURL = "https://api.tailscale.com/api/v2/oauth/token"

// Config holds the tailnet credentials. Either APIKey or the OAuth client
// credentials must be set.
type Config struct {
	Tailnet           string
	APIKey            string
	OAuthClientID     string
	OAuthClientSecret string
	// BaseURL overrides the control plane URL.
	BaseURL string
}

// Provider lists tailnet devices.
type Provider struct {
	name   string
	client *tsclient.Client
}

var _ provider.Lister = (*Provider)(nil)

// New creates a Tailscale provider.
func New(name string, cfg Config) (*Provider, error) {
	tailnet := cfg.Tailnet
	if tailnet == "" {
		tailnet = "-"
	}

	client := &tsclient.Client{Tailnet: tailnet}

	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, err
		}
		client.BaseURL = u
	}

	var hc *http.Client
	if cfg.OAuthClientID != "" {
		tokenURL := DefaultTokenURL
		if client.BaseURL != nil {
			tokenURL = client.BaseURL.JoinPath("/api/v2/oauth/token").String()
		}
		cc := clientcredentials.Config{
			ClientID:     cfg.OAuthClientID,
			ClientSecret: cfg.OAuthClientSecret,
			TokenURL:     tokenURL,
		}
		hc = cc.Client(context.Background())
	} else {
		client.APIKey = cfg.APIKey
		hc = &http.Client{Transport: http.DefaultTransport}
	}
	hc.Timeout = transport.DefaultTimeout
	hc.Transport = statusRecorder{base: hc.Transport}
	client.HTTP = hc

	return &Provider{name: name, client: client}, nil
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// StartCursor returns the single page cursor; the device list is not paginated.
func (p *Provider) StartCursor(string) string { return "" }

// FetchPage lists the addresses of matching devices.
func (p *Provider) FetchPage(ctx context.Context, collection, _ string) (domain.Page, *domain.Response, error) {
	status := &lastStatus{}
	devices, err := p.client.Devices().List(context.WithValue(ctx, statusKey{}, status))
	if err != nil {
		if status.code == 0 {
			// The request never produced a response.
			return domain.Page{}, nil, err
		}
		resp := transport.Classify(&http.Response{StatusCode: status.code, Header: status.header}, nil)
		if resp.Status == domain.ResponseSuccess {
			// Decoding failed on a 2xx body.
			return domain.Page{}, resp, err
		}
		resp.Message = err.Error()
		return domain.Page{}, resp, nil
	}

	var page domain.Page
	for _, d := range devices {
		if !matches(collection, d.Tags) {
			continue
		}
		page.Specs = append(page.Specs, d.Addresses...)
	}
	return page, domain.OK(status.code), nil
}

func matches(tag string, tags []string) bool {
	if tag == "" || tag == "*" {
		return true
	}
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}

type statusKey struct{}

// lastStatus receives the status of the response to a request made with it in
// the request context.
type lastStatus struct {
	code   int
	header http.Header
}

// statusRecorder exposes response statuses the SDK folds into plain errors.
type statusRecorder struct {
	base http.RoundTripper
}

func (s statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	base := s.base
	if base == nil {
		base = http.DefaultTransport
	}
	resp, err := base.RoundTrip(req)
	if err == nil {
		if ls, ok := req.Context().Value(statusKey{}).(*lastStatus); ok {
			ls.code = resp.StatusCode
			ls.header = resp.Header.Clone()
		}
	}
	return resp, err
}
