// Package trie adapts github.com/gaissmai/bart's balanced-routing-table
// into the black-box collaborator the simulation's IGP needs:
// insert(prefix, value) and longest_match(addr) -> value?, plus Delete of
// an exact prefix. The BGP module uses only its Prefix type.
package trie

import (
	"fmt"
	"net/netip"

	"github.com/gaissmai/bart"
)

// Prefix is an IPv4 prefix, semantically "a.b.c.d/len".
type Prefix struct {
	Addr netip.Addr
	Bits int
}

// MustPrefix builds a Prefix from a dotted-quad and length, panicking on
// malformed input (construction sites in this module only ever pass
// literals or already-validated loopbacks).
func MustPrefix(addr string, bits int) Prefix {
	a, err := netip.ParseAddr(addr)
	if err != nil {
		panic(fmt.Sprintf("trie: invalid address %q: %v", addr, err))
	}
	return Prefix{Addr: a, Bits: bits}
}

// String renders the prefix in CIDR notation.
func (p Prefix) String() string {
	return fmt.Sprintf("%s/%d", p.Addr, p.Bits)
}

func (p Prefix) netip() netip.Prefix {
	pfx, err := p.Addr.Prefix(p.Bits)
	if err != nil {
		panic(fmt.Sprintf("trie: invalid prefix %s: %v", p, err))
	}
	return pfx
}

// Trie is a longest-prefix-match table keyed by IPv4 prefix, holding a
// value of type V per prefix. The zero value is ready to use, matching
// bart.Table's own zero-value contract.
type Trie[V any] struct {
	table bart.Table[V]
}

// New returns a ready-to-use Trie backed by bart.Table[V].
func New[V any]() *Trie[V] {
	return &Trie[V]{}
}

// Insert records val under prefix, overwriting any previous value for
// that exact prefix.
func (t *Trie[V]) Insert(prefix Prefix, val V) {
	t.table.Insert(prefix.netip(), val)
}

// LongestMatch returns the value of the most specific prefix covering
// addr, or false if no inserted prefix covers it.
func (t *Trie[V]) LongestMatch(addr netip.Addr) (V, bool) {
	return t.table.Lookup(addr)
}

// Delete removes prefix's exact entry, if any.
func (t *Trie[V]) Delete(prefix Prefix) {
	t.table.Delete(prefix.netip())
}
