package chainregistry

import "testing"

func testRegistry() *Registry {
	return New([]ChainInfo{
		{ID: 1, Shortname: "mainnet"},
		{ID: 223, Shortname: "bsquared"},
		{ID: 6001, Shortname: "bouncebit"},
	})
}

func TestResolveByName(t *testing.T) {
	r := testRegistry()
	c, ok := r.Resolve("mainnet")
	if !ok || c.ID != 1 {
		t.Fatalf("expected mainnet to resolve to id 1, got %+v ok=%v", c, ok)
	}
}

func TestResolveIsCaseInsensitive(t *testing.T) {
	r := testRegistry()
	c, ok := r.Resolve("MainNet")
	if !ok || c.Shortname != "mainnet" {
		t.Fatalf("expected case-insensitive match, got %+v ok=%v", c, ok)
	}
}

func TestResolveByAlias(t *testing.T) {
	r := testRegistry()
	c, ok := r.Resolve("b2")
	if !ok || c.Shortname != "bsquared" {
		t.Fatalf("expected alias b2 -> bsquared, got %+v ok=%v", c, ok)
	}
}

func TestResolveByNumericID(t *testing.T) {
	r := testRegistry()
	c, ok := r.Resolve("6001")
	if !ok || c.Shortname != "bouncebit" {
		t.Fatalf("expected numeric id 6001 -> bouncebit, got %+v ok=%v", c, ok)
	}
}

func TestResolveNameTakesPrecedenceOverID(t *testing.T) {
	// A chain shortname that happens to parse as a different chain's id
	// must still resolve by name first.
	r := New([]ChainInfo{
		{ID: 1, Shortname: "mainnet"},
		{ID: 999, Shortname: "1"},
	})
	c, ok := r.Resolve("1")
	if !ok || c.Shortname != "1" {
		t.Fatalf("name lookup must win over id lookup, got %+v ok=%v", c, ok)
	}
}

func TestResolveUnknownTokenFails(t *testing.T) {
	r := testRegistry()
	if _, ok := r.Resolve("nonexistent"); ok {
		t.Fatalf("expected unknown chain token to fail resolution")
	}
}

func TestResolveTrimsWhitespace(t *testing.T) {
	r := testRegistry()
	c, ok := r.Resolve("  mainnet  ")
	if !ok || c.ID != 1 {
		t.Fatalf("expected whitespace-padded token to resolve, got %+v ok=%v", c, ok)
	}
}

func TestByIDAndByName(t *testing.T) {
	r := testRegistry()
	if c, ok := r.ByID(223); !ok || c.Shortname != "bsquared" {
		t.Fatalf("ByID(223) = %+v, %v", c, ok)
	}
	if c, ok := r.ByName("BSQUARED"); !ok || c.ID != 223 {
		t.Fatalf("ByName(BSQUARED) = %+v, %v", c, ok)
	}
	if _, ok := r.ByID(404); ok {
		t.Fatalf("expected ByID(404) to miss")
	}
}

func TestAllReturnsEveryChain(t *testing.T) {
	r := testRegistry()
	all := r.All()
	if len(all) != 3 {
		t.Fatalf("expected 3 chains, got %d", len(all))
	}
}

func TestDefaultChainsShareMulticall3Address(t *testing.T) {
	chains := DefaultChains()
	if len(chains) == 0 {
		t.Fatalf("expected a non-empty default chain table")
	}
	for _, c := range chains {
		if c.Multicall3Address != multicall3Address {
			t.Fatalf("chain %s: expected canonical multicall3 address, got %q", c.Shortname, c.Multicall3Address)
		}
	}
}

func TestDefaultChainsResolveByID(t *testing.T) {
	r := New(DefaultChains())
	for _, tc := range []struct {
		name string
		id   uint64
	}{
		{"mainnet", 1}, {"bsquared", 223}, {"bouncebit", 6001},
		{"polygon", 137}, {"polygonzkevm", 1101}, {"linea", 59144},
		{"rootstock", 30}, {"merlin", 4200},
	} {
		c, ok := r.Resolve(tc.name)
		if !ok || c.ID != tc.id {
			t.Fatalf("chain %s: got %+v ok=%v, want id %d", tc.name, c, ok, tc.id)
		}
	}
}
