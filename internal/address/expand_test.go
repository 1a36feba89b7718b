package address_test

import (
	"errors"
	"testing"

	"github.com/bcnelson/ipsync/internal/address"
	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	tests := []struct {
		name string
		spec string
		want []domain.Address
	}{
		{"single address", "10.0.0.1", []domain.Address{"10.0.0.1"}},
		{"surrounding whitespace", "  10.0.0.1 ", []domain.Address{"10.0.0.1"}},
		{"ipv6 literal is canonicalized", "2001:DB8:0:0::1", []domain.Address{"2001:db8::1"}},
		{"integer ipv4", "167772161", []domain.Address{"10.0.0.1"}},
		{"integer zero", "0", []domain.Address{"0.0.0.0"}},
		{"integer ipv6", "4294967296", []domain.Address{"::1:0:0"}},
		{"slash 30 drops network and broadcast", "10.0.0.0/30", []domain.Address{"10.0.0.1", "10.0.0.2"}},
		{"slash 32", "10.0.0.5/32", []domain.Address{"10.0.0.5"}},
		{"slash 31 keeps both", "10.0.0.4/31", []domain.Address{"10.0.0.4", "10.0.0.5"}},
		{"host bits are masked", "10.0.0.3/30", []domain.Address{"10.0.0.1", "10.0.0.2"}},
		{"slash 128", "2001:db8::7/128", []domain.Address{"2001:db8::7"}},
		{"ipv6 slash 126", "2001:db8::/126", []domain.Address{"2001:db8::1", "2001:db8::2", "2001:db8::3"}},
		{"ipv6 slash 127", "2001:db8::/127", []domain.Address{"2001:db8::", "2001:db8::1"}},
		{"range", "10.0.0.1-10.0.0.3", []domain.Address{"10.0.0.1", "10.0.0.2", "10.0.0.3"}},
		{"range with spaces", "10.0.0.1 - 10.0.0.2", []domain.Address{"10.0.0.1", "10.0.0.2"}},
		{"single element range", "10.0.0.9-10.0.0.9", []domain.Address{"10.0.0.9"}},
		{"range across octet", "10.0.0.255-10.0.1.1", []domain.Address{"10.0.0.255", "10.0.1.0", "10.0.1.1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := address.Expand(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Sorted())
		})
	}
}

func TestExpand_PassThroughLiteral(t *testing.T) {
	got, err := address.Expand("bogus.token")
	require.NoError(t, err)
	assert.Equal(t, []domain.Address{"bogus.token"}, got.Sorted())
}

func TestExpand_Idempotent(t *testing.T) {
	for _, addr := range []string{"10.0.0.1", "192.168.1.254", "2001:db8::1", "::1"} {
		got, err := address.Expand(addr)
		require.NoError(t, err)
		assert.Equal(t, []domain.Address{domain.Address(addr)}, got.Sorted(), addr)

		again, err := address.Expand(string(got.Sorted()[0]))
		require.NoError(t, err)
		assert.Equal(t, got, again)
	}
}

func TestExpand_Invalid(t *testing.T) {
	tests := []struct {
		name string
		spec string
	}{
		{"bad prefix length", "10.0.0.0/33"},
		{"garbage cidr", "nope/24"},
		{"reversed range", "10.0.0.3-10.0.0.1"},
		{"mixed family range", "10.0.0.1-2001:db8::1"},
		{"bad range start", "x-10.0.0.1"},
		{"bad range end", "10.0.0.1-"},
		{"dashed hostname", "not-an-ip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := address.Expand(tt.spec)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrInvalidAddressSpec))

			var specErr *domain.InvalidAddressSpecError
			require.True(t, errors.As(err, &specErr))
			assert.Equal(t, tt.spec, specErr.Spec)
		})
	}
}

func TestEach_Order(t *testing.T) {
	var got []domain.Address
	err := address.Each("192.168.0.0/29", func(a domain.Address) { got = append(got, a) })
	require.NoError(t, err)
	assert.Equal(t, []domain.Address{
		"192.168.0.1", "192.168.0.2", "192.168.0.3", "192.168.0.4", "192.168.0.5", "192.168.0.6",
	}, got)
}

func TestLiteral_IntegerAndDottedCollapse(t *testing.T) {
	inv := domain.NewInventory(address.Literal("167772161"), address.Literal("10.0.0.1"))
	assert.Equal(t, 1, inv.Len())
}

func TestEach_LargeBlockIsNotCapped(t *testing.T) {
	n := 0
	err := address.Each("10.0.0.0/11", func(domain.Address) { n++ })
	require.NoError(t, err)
	assert.Equal(t, 1<<21-2, n)
}

func TestCount(t *testing.T) {
	tests := []struct {
		spec string
		want string
	}{
		{"10.0.0.1", "1"},
		{"10.0.0.0/29", "6"},
		{"10.0.0.1-10.0.0.4", "4"},
		{"2001:db8::/64", "18446744073709551615"},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			n, err := address.Count(tt.spec)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n.String())
		})
	}

	_, err := address.Count("10.0.0.0/33")
	assert.True(t, errors.Is(err, domain.ErrInvalidAddressSpec))
}
