// Package file keeps address collections in a local JSON document of the form
// {"collection": ["addr", ...]}. It is meant for dry environments where the
// real target is not reachable.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/bcnelson/ipsync/internal/provider"
	"github.com/rs/zerolog"
)

// Provider reads and rewrites one JSON file.
type Provider struct {
	name     string
	filePath string
	logger   zerolog.Logger
	mu       sync.Mutex
}

var (
	_ provider.Lister   = (*Provider)(nil)
	_ provider.Replacer = (*Provider)(nil)
)

// New creates a file-backed provider.
func New(name, filePath string, logger zerolog.Logger) *Provider {
	return &Provider{name: name, filePath: filePath, logger: logger}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.name }

// StartCursor returns the single page cursor.
func (p *Provider) StartCursor(string) string { return "" }

// FetchPage returns the whole collection. A missing file or collection is empty.
func (p *Provider) FetchPage(_ context.Context, collection, _ string) (domain.Page, *domain.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	doc, err := p.read()
	if err != nil {
		return domain.Page{}, nil, err
	}
	return domain.Page{Specs: doc[collection]}, domain.OK(http.StatusOK), nil
}

// ReplaceAll rewrites collection, leaving the others untouched.
func (p *Provider) ReplaceAll(_ context.Context, collection string, addrs []domain.Address) (*domain.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	doc, err := p.read()
	if err != nil {
		return nil, err
	}
	specs := make([]string, len(addrs))
	for i, a := range addrs {
		specs[i] = string(a)
	}
	doc[collection] = specs

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling address file: %w", err)
	}

	// Write to a sibling temp file and rename so readers never see a partial document.
	tmp, err := os.CreateTemp(filepath.Dir(p.filePath), filepath.Base(p.filePath)+".*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return nil, fmt.Errorf("writing address file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("writing address file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.filePath); err != nil {
		return nil, fmt.Errorf("replacing address file: %w", err)
	}

	p.logger.Debug().
		Str("file", p.filePath).
		Str("collection", collection).
		Int("addresses", len(specs)).
		Msg("Address file written")

	return domain.OK(http.StatusOK), nil
}

func (p *Provider) read() (map[string][]string, error) {
	doc := map[string][]string{}
	data, err := os.ReadFile(p.filePath)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading address file: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing address file: %w", err)
	}
	return doc, nil
}
