// Package reconcile computes the change set that converges a target inventory
// onto a source inventory.
package reconcile

import "github.com/bcnelson/ipsync/internal/domain"

// Diff returns additions (source minus target) and removals (target minus source).
// It performs no I/O and depends only on membership.
func Diff(source, target domain.Inventory) domain.ChangeSet {
	return domain.ChangeSet{
		Additions: source.Minus(target),
		Removals:  target.Minus(source),
	}
}

// Union merges several inventories into one, as when a pairing has more than one source.
func Union(invs ...domain.Inventory) domain.Inventory {
	out := make(domain.Inventory)
	for _, inv := range invs {
		out.Union(inv)
	}
	return out
}
