package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/bcnelson/ipsync/internal/validation"
	"gopkg.in/yaml.v3"
)

// Provider kinds.
const (
	KindInsightVM       = "insightvm"
	KindInsightCloudSec = "insightcloudsec"
	KindCloudflare      = "cloudflare"
	KindShodan          = "shodan"
	KindTailscale       = "tailscale"
	KindSQLStore        = "sqlstore"
	KindFile            = "file"
	KindStatic          = "static"
)

// kindCapabilities lists what each kind can do: list is implied, the flags
// say whether it can be a target.
var kindCapabilities = map[string]struct{ mutate, replace bool }{
	KindInsightVM:       {mutate: true},
	KindInsightCloudSec: {},
	KindCloudflare:      {},
	KindShodan:          {replace: true},
	KindTailscale:       {},
	KindSQLStore:        {mutate: true, replace: true},
	KindFile:            {replace: true},
	KindStatic:          {},
}

// PairingsFile is the root of the pairings YAML document.
type PairingsFile struct {
	Pairings []Pairing `yaml:"pairings"`
}

// Pairing binds one or more sources to a target collection.
type Pairing struct {
	Name    string     `yaml:"name"`
	Sources []Endpoint `yaml:"sources"`
	Target  Endpoint   `yaml:"target"`
	// Mode is auto, incremental or replace. Empty means auto.
	Mode string `yaml:"mode,omitempty"`
}

// Endpoint names a provider kind and one of its collections.
type Endpoint struct {
	Provider   string `yaml:"provider"`
	Collection string `yaml:"collection,omitempty"`
	// Addresses are inline specs for the static provider.
	Addresses []string `yaml:"addresses,omitempty"`
}

func (e Endpoint) String() string {
	if e.Collection == "" {
		return e.Provider
	}
	return e.Provider + ":" + e.Collection
}

// ParsePairings decodes a pairings document. Unknown fields are rejected.
func ParsePairings(data []byte) (*PairingsFile, error) {
	var file PairingsFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &file, nil
}

// LegacyPairings derives pairings from the single-site variables: the
// InsightCloudSec inventory feeds the InsightVM site and, when set, the Shodan
// network alert.
func (c *Config) LegacyPairings() []Pairing {
	source := []Endpoint{{Provider: KindInsightCloudSec}}

	var pairings []Pairing
	site := firstNonEmpty(c.InsightVM.SiteID, c.InsightVM.LegacySiteID)
	if site != "" {
		pairings = append(pairings, Pairing{
			Name:    "insightvm-site-" + site,
			Sources: source,
			Target:  Endpoint{Provider: KindInsightVM, Collection: site},
		})
	}
	if net := firstNonEmpty(c.Shodan.Net, c.Shodan.LegacyNet); net != "" {
		pairings = append(pairings, Pairing{
			Name:    "shodan-net",
			Sources: source,
			Target:  Endpoint{Provider: KindShodan, Collection: net},
		})
	}
	return pairings
}

// Validate checks if the configuration is valid. All problems are reported
// together as validation.ValidationErrors.
func (c *Config) Validate() error {
	var errs validation.ValidationErrors

	if c.Sync.Concurrency < 1 {
		errs.Add("SYNC_CONCURRENCY", fmt.Sprint(c.Sync.Concurrency), "must be at least 1")
	}
	if c.Sync.PairingConcurrency < 1 {
		errs.Add("SYNC_PAIRING_CONCURRENCY", fmt.Sprint(c.Sync.PairingConcurrency), "must be at least 1")
	}
	if c.Sync.MaxAddresses < 0 {
		errs.Add("SYNC_MAX_ADDRESSES", fmt.Sprint(c.Sync.MaxAddresses), "must not be negative")
	}
	if c.Retry.MaxRetries < 0 {
		errs.Add("RETRY_MAX", fmt.Sprint(c.Retry.MaxRetries), "must not be negative")
	}
	if c.Retry.Base <= 0 || c.Retry.Cap < c.Retry.Base {
		errs.Add("RETRY_CAP", c.Retry.Cap.String(), "must be at least RETRY_BASE, which must be positive")
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		errs.Add("LOG_FORMAT", c.Log.Format, "must be json or console")
	}

	if len(c.Pairings) == 0 {
		errs.Add("pairings", "", fmt.Sprintf("no pairings configured (create %s or set INSIGHTVM_SITE_ID)", c.Sync.ConfigPath))
	}

	seen := map[string]bool{}
	used := map[string]bool{}
	for i, p := range c.Pairings {
		field := fmt.Sprintf("pairings[%d]", i)
		errs.AddErr(field+".name", p.Name, validation.ValidatePairingName(p.Name))
		if seen[p.Name] {
			errs.Add(field+".name", p.Name, "duplicate pairing name")
		}
		seen[p.Name] = true

		if len(p.Sources) == 0 {
			errs.Add(field+".sources", "", "at least one source is required")
		}
		for j, src := range p.Sources {
			c.validateEndpoint(&errs, fmt.Sprintf("%s.sources[%d]", field, j), src)
			used[src.Provider] = true
		}

		target := field + ".target"
		c.validateEndpoint(&errs, target, p.Target)
		used[p.Target.Provider] = true

		caps, known := kindCapabilities[p.Target.Provider]
		switch {
		case !known:
		case p.Target.Provider == KindStatic:
			errs.Add(target+".provider", p.Target.Provider, "static addresses cannot be a target")
		case !caps.mutate && !caps.replace:
			errs.Add(target+".provider", p.Target.Provider, "provider is read-only")
		}

		switch p.Mode {
		case "", "auto":
		case "incremental":
			if known && !caps.mutate {
				errs.Add(field+".mode", p.Mode, "target does not support incremental mutation")
			}
		case "replace":
			if known && !caps.replace {
				errs.Add(field+".mode", p.Mode, "target does not support replace")
			}
		default:
			errs.Add(field+".mode", p.Mode, "must be auto, incremental or replace")
		}
	}

	c.validateCredentials(&errs, used)

	return errs.Err()
}

func (c *Config) validateEndpoint(errs *validation.ValidationErrors, field string, e Endpoint) {
	if _, ok := kindCapabilities[e.Provider]; !ok {
		errs.Add(field+".provider", e.Provider, "unknown provider")
		return
	}

	switch e.Provider {
	case KindInsightVM:
		errs.AddErr(field+".collection", e.Collection, validation.ValidateSiteID(e.Collection))
	case KindShodan, KindSQLStore, KindFile:
		errs.AddErr(field+".collection", e.Collection, validation.ValidateCollectionName(e.Collection))
	case KindTailscale:
		errs.AddErr(field+".collection", e.Collection, validation.ValidateDeviceFilter(e.Collection))
	case KindStatic:
		if len(e.Addresses) == 0 {
			errs.Add(field+".addresses", "", "static source needs at least one address")
		}
		for k, spec := range e.Addresses {
			errs.AddErr(fmt.Sprintf("%s.addresses[%d]", field, k), spec, validation.ValidateAddressSpec(spec))
		}
	}
	if e.Provider != KindStatic && len(e.Addresses) > 0 {
		errs.Add(field+".addresses", "", "inline addresses are only allowed for the static provider")
	}
}

// validateCredentials requires settings only for the provider kinds in use.
func (c *Config) validateCredentials(errs *validation.ValidationErrors, used map[string]bool) {
	if used[KindInsightVM] {
		if c.InsightVM.BaseURL == "" {
			errs.Add("INSIGHTVM_BASE_URL", "", "is required when an insightvm pairing is configured")
		}
		if c.InsightVM.Username == "" || c.InsightVM.Password == "" {
			errs.Add("INSIGHTVM_USERNAME", c.InsightVM.Username, "INSIGHTVM_USERNAME and INSIGHTVM_PASSWORD are required")
		}
	}
	if used[KindInsightCloudSec] {
		if c.InsightCloudSec.BaseURL == "" {
			errs.Add("INSIGHTCLOUDSEC_BASE_URL", "", "is required when an insightcloudsec pairing is configured")
		}
		if c.InsightCloudSec.APIKey == "" {
			errs.Add("INSIGHTCLOUDSEC_API_KEY", "", "is required when an insightcloudsec pairing is configured")
		}
	}
	if used[KindCloudflare] && c.Cloudflare.APIKey == "" {
		errs.Add("CLOUDFLARE_API_KEY", "", "is required when a cloudflare pairing is configured")
	}
	if used[KindShodan] && c.Shodan.APIKey == "" {
		errs.Add("SHODAN_API_KEY", "", "is required when a shodan pairing is configured")
	}
	if used[KindTailscale] && c.Tailscale.APIKey == "" && c.Tailscale.OAuthClientID == "" {
		errs.Add("TAILSCALE_API_KEY", "", "TAILSCALE_API_KEY or TAILSCALE_OAUTH_CLIENT_ID is required when a tailscale pairing is configured")
	}
	if used[KindTailscale] && c.Tailscale.OAuthClientID != "" && c.Tailscale.OAuthClientSecret == "" {
		errs.Add("TAILSCALE_OAUTH_CLIENT_SECRET", "", "is required with TAILSCALE_OAUTH_CLIENT_ID")
	}
	if used[KindSQLStore] && !c.Database.Enabled() {
		errs.Add("DB_DSN", "", "is required when a sqlstore pairing is configured")
	}
	if used[KindSQLStore] && c.Database.Driver != "sqlite3" && c.Database.Driver != "postgres" {
		errs.Add("DB_DRIVER", c.Database.Driver, "must be sqlite3 or postgres")
	}
}

// Pairing returns the pairing named name.
func (c *Config) Pairing(name string) (Pairing, bool) {
	for _, p := range c.Pairings {
		if p.Name == name {
			return p, true
		}
	}
	return Pairing{}, false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
