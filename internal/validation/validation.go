// Package validation provides validation functions for pairing configuration:
// names, provider collections and inline address lists.
package validation

import (
	"fmt"
	"strings"

	"github.com/bcnelson/ipsync/internal/address"
)

// isAlpha returns true if the byte is an ASCII letter.
func isAlpha(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// isNum returns true if the byte is an ASCII digit.
func isNum(b byte) bool {
	return b >= '0' && b <= '9'
}

// ValidatePairingName validates a pairing name.
// Names start with a letter or digit and contain only letters, numbers,
// hyphens, underscores or dots. They appear in URLs and metric labels.
func ValidatePairingName(name string) error {
	if name == "" {
		return fmt.Errorf("pairing name must not be empty")
	}
	if !isAlpha(name[0]) && !isNum(name[0]) {
		return fmt.Errorf("pairing name must start with a letter or number")
	}
	for _, b := range []byte(name) {
		if !isAlpha(b) && !isNum(b) && b != '-' && b != '_' && b != '.' {
			return fmt.Errorf("pairing names can only contain letters, numbers, hyphens, underscores, or dots")
		}
	}
	return nil
}

// ValidateTagName validates a tag name per Tailscale rules.
// Tags must be in the format: tag:<identifier>
// where identifier starts with a letter and contains only letters, numbers, or hyphens.
func ValidateTagName(tag string) error {
	identifier, ok := strings.CutPrefix(tag, "tag:")
	if !ok {
		return fmt.Errorf("tag must start with 'tag:'")
	}
	if identifier == "" {
		return fmt.Errorf("tag name must not be empty after 'tag:'")
	}
	if !isAlpha(identifier[0]) {
		return fmt.Errorf("tag name must start with a letter after 'tag:'")
	}
	for _, b := range []byte(identifier) {
		if !isAlpha(b) && !isNum(b) && b != '-' {
			return fmt.Errorf("tag names can only contain letters, numbers, or hyphens")
		}
	}
	return nil
}

// ValidateDeviceFilter validates a Tailscale collection: empty or "*" for all
// devices, otherwise a tag.
func ValidateDeviceFilter(filter string) error {
	if filter == "" || filter == "*" {
		return nil
	}
	return ValidateTagName(filter)
}

// ValidateSiteID validates an InsightVM site identifier (a positive integer).
func ValidateSiteID(id string) error {
	if id == "" {
		return fmt.Errorf("site id must not be empty")
	}
	for _, b := range []byte(id) {
		if !isNum(b) {
			return fmt.Errorf("site id must be numeric")
		}
	}
	if strings.TrimLeft(id, "0") == "" {
		return fmt.Errorf("site id must be positive")
	}
	return nil
}

// ValidateCollectionName validates a free-form collection name such as a
// Shodan alert name or an address set name.
func ValidateCollectionName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("collection must not be empty")
	}
	if strings.ContainsAny(name, "\r\n\t") {
		return fmt.Errorf("collection must not contain control whitespace")
	}
	return nil
}

// ValidateAddressSpec validates an inline address spec: a literal, a CIDR
// block or an address range.
func ValidateAddressSpec(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return fmt.Errorf("address must not be empty")
	}
	if _, err := address.Expand(spec); err != nil {
		return err
	}
	return nil
}
