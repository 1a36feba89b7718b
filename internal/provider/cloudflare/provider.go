// Package cloudflare lists the A and AAAA record contents of every zone the
// token can read. The collection optionally restricts the walk to one zone name.
package cloudflare

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/bcnelson/ipsync/internal/provider"
	"github.com/bcnelson/ipsync/internal/transport"
)

// DefaultBaseURL is the public v4 API.
const DefaultBaseURL = "https://api.cloudflare.com/client/v4"

const (
	zonesPerPage   = 50
	recordsPerPage = 100
)

// Config holds the API settings.
type Config struct {
	BaseURL  string
	APIToken string
}

// Provider walks zones and their DNS records.
type Provider struct {
	name   string
	client *transport.Client
}

var _ provider.Lister = (*Provider)(nil)

// New creates a Cloudflare provider.
func New(name string, cfg Config, opts ...transport.Option) *Provider {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	return &Provider{
		name:   name,
		client: transport.New(base, transport.BearerAuth{Token: cfg.APIToken}, opts...),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// walk is the position in the nested zones -> records listing. Each page of
// the outer listing contributes no addresses; it only queues zone IDs.
type walk struct {
	ZonePage   int      `json:"zp,omitempty"` // next zone page to list; 0 when exhausted
	Zones      []string `json:"z,omitempty"`  // zone IDs still to read
	RecordPage int      `json:"rp,omitempty"` // page within Zones[0]
}

func (w walk) encode() string {
	data, _ := json.Marshal(w)
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeWalk(cursor string) (walk, error) {
	if cursor == "" {
		return walk{ZonePage: 1}, nil
	}
	data, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return walk{}, fmt.Errorf("decoding cursor: %w", err)
	}
	var w walk
	if err := json.Unmarshal(data, &w); err != nil {
		return walk{}, fmt.Errorf("decoding cursor: %w", err)
	}
	return w, nil
}

// StartCursor returns the cursor of the first zones page.
func (p *Provider) StartCursor(string) string { return "" }

type resultInfo struct {
	Page       int `json:"page"`
	TotalPages int `json:"total_pages"`
}

type zonesResponse struct {
	Result []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"result"`
	ResultInfo resultInfo `json:"result_info"`
}

type recordsResponse struct {
	Result []struct {
		Type    string `json:"type"`
		Name    string `json:"name"`
		Content string `json:"content"`
	} `json:"result"`
	ResultInfo resultInfo `json:"result_info"`
}

// FetchPage issues exactly one API request: a zones page while no zone IDs are
// queued, otherwise a records page of the first queued zone.
func (p *Provider) FetchPage(ctx context.Context, collection, cursor string) (domain.Page, *domain.Response, error) {
	w, err := decodeWalk(cursor)
	if err != nil {
		return domain.Page{}, nil, err
	}

	if len(w.Zones) == 0 {
		return p.fetchZones(ctx, collection, w)
	}
	return p.fetchRecords(ctx, w)
}

func (p *Provider) fetchZones(ctx context.Context, zoneName string, w walk) (domain.Page, *domain.Response, error) {
	query := url.Values{
		"page":     {strconv.Itoa(w.ZonePage)},
		"per_page": {strconv.Itoa(zonesPerPage)},
	}
	if zoneName != "" {
		query.Set("name", zoneName)
	}

	var body zonesResponse
	resp, err := p.client.Do(ctx, http.MethodGet, "/zones", query, nil, &body)
	if err != nil || resp.Status != domain.ResponseSuccess {
		return domain.Page{}, resp, err
	}

	next := walk{RecordPage: 1}
	for _, z := range body.Result {
		next.Zones = append(next.Zones, z.ID)
	}
	if w.ZonePage < body.ResultInfo.TotalPages {
		next.ZonePage = w.ZonePage + 1
	}
	return domain.Page{Next: next.cursor()}, resp, nil
}

func (p *Provider) fetchRecords(ctx context.Context, w walk) (domain.Page, *domain.Response, error) {
	if w.RecordPage < 1 {
		w.RecordPage = 1
	}
	query := url.Values{
		"page":     {strconv.Itoa(w.RecordPage)},
		"per_page": {strconv.Itoa(recordsPerPage)},
	}

	var body recordsResponse
	resp, err := p.client.Do(ctx, http.MethodGet, "/zones/"+url.PathEscape(w.Zones[0])+"/dns_records", query, nil, &body)
	if err != nil || resp.Status != domain.ResponseSuccess {
		return domain.Page{}, resp, err
	}

	var page domain.Page
	for _, r := range body.Result {
		if r.Type == "A" || r.Type == "AAAA" {
			page.Specs = append(page.Specs, r.Content)
		}
	}

	next := walk{ZonePage: w.ZonePage, Zones: w.Zones, RecordPage: w.RecordPage + 1}
	if w.RecordPage >= body.ResultInfo.TotalPages {
		next.Zones = w.Zones[1:]
		next.RecordPage = 1
	}
	page.Next = next.cursor()
	return page, resp, nil
}

// cursor encodes w, or returns "" once nothing is left to read.
func (w walk) cursor() string {
	if len(w.Zones) == 0 && w.ZonePage == 0 {
		return ""
	}
	if len(w.Zones) == 0 {
		w.RecordPage = 0
	}
	return w.encode()
}
