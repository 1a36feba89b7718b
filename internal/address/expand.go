// Package address normalizes address specs (single addresses, CIDR blocks and
// inclusive ranges) into canonical host addresses.
package address

import (
	"math/big"
	"net/netip"
	"strings"

	"github.com/bcnelson/ipsync/internal/domain"
	"go4.org/netipx"
)

var maxIPv6 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Expand returns the set of addresses denoted by spec.
func Expand(spec string) (domain.Inventory, error) {
	inv := make(domain.Inventory)
	if err := Each(spec, inv.Add); err != nil {
		return nil, err
	}
	return inv, nil
}

// Each calls fn for every address denoted by spec, in ascending order.
// Nothing is emitted when spec is invalid.
func Each(spec string, fn func(domain.Address)) error {
	spec = strings.TrimSpace(spec)
	switch {
	case strings.Contains(spec, "/"):
		r, err := hostRange(spec)
		if err != nil {
			return err
		}
		walk(r, fn)
	case strings.Contains(spec, "-"):
		r, err := parseRange(spec)
		if err != nil {
			return err
		}
		walk(r, fn)
	default:
		fn(Literal(spec))
	}
	return nil
}

// Literal canonicalizes a single address token. Integer encodings are rendered
// in dotted or colon form; tokens that do not parse are returned unchanged.
func Literal(token string) domain.Address {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Address(token)
	}
	if isDigits(token) {
		if addr, ok := fromInteger(token); ok {
			return domain.Address(addr.String())
		}
		return domain.Address(token)
	}
	if addr, err := netip.ParseAddr(token); err == nil {
		return domain.Address(addr.String())
	}
	return domain.Address(token)
}

// hostRange returns the usable host addresses of a CIDR block.
func hostRange(spec string) (netipx.IPRange, error) {
	prefix, err := netip.ParsePrefix(spec)
	if err != nil {
		return netipx.IPRange{}, &domain.InvalidAddressSpecError{Spec: spec, Reason: "unparsable CIDR block", Err: err}
	}
	prefix = prefix.Masked()
	r := netipx.RangeOfPrefix(prefix)

	bits, width := prefix.Bits(), prefix.Addr().BitLen()
	switch {
	case bits == width:
		return r, nil
	case prefix.Addr().Is4() && bits < 31:
		// drop network and broadcast
		return netipx.IPRangeFrom(r.From().Next(), r.To().Prev()), nil
	case prefix.Addr().Is6() && bits < 127:
		// drop the subnet-router anycast address
		return netipx.IPRangeFrom(r.From().Next(), r.To()), nil
	default:
		return r, nil
	}
}

func parseRange(spec string) (netipx.IPRange, error) {
	parts := strings.SplitN(spec, "-", 2)
	start, err := netip.ParseAddr(strings.TrimSpace(parts[0]))
	if err != nil {
		return netipx.IPRange{}, &domain.InvalidAddressSpecError{Spec: spec, Reason: "unparsable range start", Err: err}
	}
	end, err := netip.ParseAddr(strings.TrimSpace(parts[1]))
	if err != nil {
		return netipx.IPRange{}, &domain.InvalidAddressSpecError{Spec: spec, Reason: "unparsable range end", Err: err}
	}
	if start.BitLen() != end.BitLen() {
		return netipx.IPRange{}, &domain.InvalidAddressSpecError{Spec: spec, Reason: "range endpoints belong to different address families"}
	}
	r := netipx.IPRangeFrom(start, end)
	if !r.IsValid() {
		return netipx.IPRange{}, &domain.InvalidAddressSpecError{Spec: spec, Reason: "range start is after range end"}
	}
	return r, nil
}

// Count returns the number of addresses spec denotes without enumerating them.
func Count(spec string) (*big.Int, error) {
	spec = strings.TrimSpace(spec)
	var (
		r   netipx.IPRange
		err error
	)
	switch {
	case strings.Contains(spec, "/"):
		r, err = hostRange(spec)
	case strings.Contains(spec, "-"):
		r, err = parseRange(spec)
	default:
		return big.NewInt(1), nil
	}
	if err != nil {
		return nil, err
	}
	from := new(big.Int).SetBytes(r.From().AsSlice())
	to := new(big.Int).SetBytes(r.To().AsSlice())
	return to.Sub(to, from).Add(to, big.NewInt(1)), nil
}

func walk(r netipx.IPRange, fn func(domain.Address)) {
	last := r.To()
	for a := r.From(); a.IsValid(); a = a.Next() {
		fn(domain.Address(a.String()))
		if a == last {
			return
		}
	}
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func fromInteger(s string) (netip.Addr, bool) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok || n.Cmp(maxIPv6) > 0 {
		return netip.Addr{}, false
	}
	if n.IsUint64() && n.Uint64() <= 0xFFFFFFFF {
		v := uint32(n.Uint64())
		return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)}), true
	}
	var b [16]byte
	n.FillBytes(b[:])
	return netip.AddrFrom16(b), true
}
