package domain

import (
	"net/netip"
	"sort"
)

// Address is the canonical textual form of a single IPv4 or IPv6 host address.
// Set membership is decided on this string.
type Address string

// String returns the address text.
func (a Address) String() string {
	return string(a)
}

// Inventory is the set of addresses attributed to one provider collection.
type Inventory map[Address]struct{}

// NewInventory creates an inventory holding addrs.
func NewInventory(addrs ...Address) Inventory {
	inv := make(Inventory, len(addrs))
	for _, a := range addrs {
		inv[a] = struct{}{}
	}
	return inv
}

// Add inserts an address.
func (inv Inventory) Add(a Address) {
	inv[a] = struct{}{}
}

// Has reports whether a is a member.
func (inv Inventory) Has(a Address) bool {
	_, ok := inv[a]
	return ok
}

// Len returns the number of members.
func (inv Inventory) Len() int {
	return len(inv)
}

// Union adds every member of other.
func (inv Inventory) Union(other Inventory) {
	for a := range other {
		inv[a] = struct{}{}
	}
}

// Minus returns the members of inv that are not in other.
func (inv Inventory) Minus(other Inventory) Inventory {
	out := make(Inventory)
	for a := range inv {
		if !other.Has(a) {
			out[a] = struct{}{}
		}
	}
	return out
}

// Sorted returns the members in a stable order: parseable addresses numerically
// (IPv4 before IPv6), anything else lexically after them.
func (inv Inventory) Sorted() []Address {
	out := make([]Address, 0, len(inv))
	for a := range inv {
		out = append(out, a)
	}
	SortAddresses(out)
	return out
}

// SortAddresses sorts addrs in place using the Sorted ordering.
func SortAddresses(addrs []Address) {
	sort.Slice(addrs, func(i, j int) bool {
		ai, erri := netip.ParseAddr(string(addrs[i]))
		aj, errj := netip.ParseAddr(string(addrs[j]))
		switch {
		case erri == nil && errj == nil:
			return ai.Less(aj)
		case erri == nil:
			return true
		case errj == nil:
			return false
		default:
			return addrs[i] < addrs[j]
		}
	})
}

// ChangeSet holds the mutations needed to converge a target onto a source.
type ChangeSet struct {
	Additions Inventory `json:"-"`
	Removals  Inventory `json:"-"`
}

// IsEmpty reports whether no action is needed.
func (c ChangeSet) IsEmpty() bool {
	return c.Additions.Len() == 0 && c.Removals.Len() == 0
}

// Page is one listing page reduced to address specs.
// Next is the cursor of the following page, empty on the last page.
type Page struct {
	Specs []string
	Next  string
}
