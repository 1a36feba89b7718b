package reconcile_test

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/bcnelson/ipsync/internal/reconcile"
	"github.com/stretchr/testify/assert"
)

func TestDiff_Example(t *testing.T) {
	source := domain.NewInventory("1.1.1.1", "2.2.2.2")
	target := domain.NewInventory("2.2.2.2", "3.3.3.3")

	cs := reconcile.Diff(source, target)

	assert.Equal(t, []domain.Address{"1.1.1.1"}, cs.Additions.Sorted())
	assert.Equal(t, []domain.Address{"3.3.3.3"}, cs.Removals.Sorted())
}

func TestDiff_SameInventoryIsEmpty(t *testing.T) {
	inv := domain.NewInventory("10.0.0.1", "10.0.0.2", "2001:db8::1")

	cs := reconcile.Diff(inv, inv)

	assert.True(t, cs.IsEmpty())
	assert.Equal(t, 0, cs.Additions.Len())
	assert.Equal(t, 0, cs.Removals.Len())
}

func TestDiff_BothEmpty(t *testing.T) {
	cs := reconcile.Diff(domain.NewInventory(), domain.NewInventory())
	assert.True(t, cs.IsEmpty())
}

func TestDiff_DoesNotMutateInputs(t *testing.T) {
	source := domain.NewInventory("1.1.1.1")
	target := domain.NewInventory("2.2.2.2")

	_ = reconcile.Diff(source, target)

	assert.Equal(t, []domain.Address{"1.1.1.1"}, source.Sorted())
	assert.Equal(t, []domain.Address{"2.2.2.2"}, target.Sorted())
}

func TestDiff_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	randomInventory := func() domain.Inventory {
		inv := domain.NewInventory()
		n := rng.Intn(40)
		for i := 0; i < n; i++ {
			inv.Add(domain.Address(fmt.Sprintf("10.0.0.%d", rng.Intn(50))))
		}
		return inv
	}

	for i := 0; i < 200; i++ {
		a, b := randomInventory(), randomInventory()
		cs := reconcile.Diff(a, b)

		for addr := range cs.Additions {
			assert.True(t, a.Has(addr), "addition %s must come from the source", addr)
			assert.False(t, b.Has(addr), "addition %s must not already be in the target", addr)
			assert.False(t, cs.Removals.Has(addr), "%s is both added and removed", addr)
		}
		for addr := range cs.Removals {
			assert.True(t, b.Has(addr), "removal %s must come from the target", addr)
			assert.False(t, a.Has(addr), "removal %s must not be in the source", addr)
		}
		for addr := range a {
			if !b.Has(addr) {
				assert.True(t, cs.Additions.Has(addr))
			}
		}
		for addr := range b {
			if !a.Has(addr) {
				assert.True(t, cs.Removals.Has(addr))
			}
		}

		again := reconcile.Diff(a, b)
		assert.Equal(t, cs.Additions, again.Additions)
		assert.Equal(t, cs.Removals, again.Removals)
	}
}

func TestUnion(t *testing.T) {
	got := reconcile.Union(
		domain.NewInventory("1.1.1.1", "2.2.2.2"),
		domain.NewInventory("2.2.2.2", "3.3.3.3"),
		nil,
	)
	assert.Equal(t, []domain.Address{"1.1.1.1", "2.2.2.2", "3.3.3.3"}, got.Sorted())
}
