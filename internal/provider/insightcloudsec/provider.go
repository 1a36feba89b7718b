// Package insightcloudsec lists cloud resources from InsightCloudSec. The
// collection is the resource type to query; public IPs by default.
package insightcloudsec

import (
	"context"
	"net/http"
	"strconv"

	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/bcnelson/ipsync/internal/provider"
	"github.com/bcnelson/ipsync/internal/transport"
)

const (
	// DefaultResourceType is queried when the collection is empty.
	DefaultResourceType = "publicip"
	// DefaultPageSize is the query limit.
	DefaultPageSize = 1000
)

// Config holds the API settings.
type Config struct {
	BaseURL  string
	APIKey   string
	PageSize int
}

// Provider queries the v3 resource API.
type Provider struct {
	name     string
	client   *transport.Client
	pageSize int
}

var _ provider.Lister = (*Provider)(nil)

// New creates an InsightCloudSec provider.
func New(name string, cfg Config, opts ...transport.Option) *Provider {
	size := cfg.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	return &Provider{
		name:     name,
		client:   transport.New(cfg.BaseURL, transport.HeaderAuth{Header: "Api-Key", Value: cfg.APIKey}, opts...),
		pageSize: size,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// StartCursor returns offset zero.
func (p *Provider) StartCursor(string) string { return "0" }

type queryRequest struct {
	SelectedResourceType string `json:"selected_resource_type"`
	Limit                int    `json:"limit"`
	Offset               int    `json:"offset"`
}

type resourceCommon struct {
	Common struct {
		ResourceName string `json:"resource_name"`
	} `json:"common"`
}

type queryResponse struct {
	Resources []map[string]resourceCommon `json:"resources"`
}

// FetchPage queries one offset window. A full window means more may follow.
func (p *Provider) FetchPage(ctx context.Context, collection, cursor string) (domain.Page, *domain.Response, error) {
	resourceType := collection
	if resourceType == "" {
		resourceType = DefaultResourceType
	}
	offset, err := strconv.Atoi(cursor)
	if err != nil || offset < 0 {
		offset = 0
	}

	var body queryResponse
	req := queryRequest{SelectedResourceType: resourceType, Limit: p.pageSize, Offset: offset}
	resp, err := p.client.Do(ctx, http.MethodPost, "/v3/public/resource/query", nil, req, &body)
	if err != nil || resp.Status != domain.ResponseSuccess {
		return domain.Page{}, resp, err
	}

	var page domain.Page
	for _, resource := range body.Resources {
		if r, ok := resource[resourceType]; ok && r.Common.ResourceName != "" {
			page.Specs = append(page.Specs, r.Common.ResourceName)
		}
	}
	if len(body.Resources) >= p.pageSize {
		page.Next = strconv.Itoa(offset + len(body.Resources))
	}
	return page, resp, nil
}
