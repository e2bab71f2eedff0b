package nodeconfig

import "testing"

func TestRotationMonotonicity(t *testing.T) {
	// After K forced rotations on a pool of N nodes, the head is
	// (initial_head + K) mod N, and no node is ever dropped.
	names := []string{"a", "b", "c", "d"}
	configs := make([]NodeConfig, len(names))
	for i, n := range names {
		configs[i] = NodeConfig{ChainName: "mainnet", NodeName: n}
	}
	pool := NewChainPool(configs)

	for k := 0; k < 11; k++ {
		if pool.Len() != len(names) {
			t.Fatalf("rotation %d: pool lost a node, len=%d", k, pool.Len())
		}
		head, ok := pool.Head()
		if !ok {
			t.Fatalf("rotation %d: empty pool", k)
		}
		want := names[k%len(names)]
		if head.NodeName != want {
			t.Fatalf("rotation %d: head=%s want=%s", k, head.NodeName, want)
		}
		pool.Rotate()
	}
}

func TestRotateSingleNodeIsNoop(t *testing.T) {
	pool := NewChainPool([]NodeConfig{{ChainName: "mainnet", NodeName: "solo"}})
	pool.Rotate()
	head, ok := pool.Head()
	if !ok || head.NodeName != "solo" {
		t.Fatalf("single-node pool must stay put across rotation")
	}
}

func TestRotateEmptyPoolDoesNotPanic(t *testing.T) {
	pool := NewChainPool(nil)
	pool.Rotate()
	if _, ok := pool.Head(); ok {
		t.Fatalf("empty pool must report no head")
	}
}

func TestGetURLExpandsTemplate(t *testing.T) {
	n := NodeConfig{URLTemplate: "https://{subdomain}.quiknode.pro/{token}/"}
	secrets := Secrets{"subdomain": "my-sub", "token": "abc123"}

	url, err := n.GetURL(secrets)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "https://my-sub.quiknode.pro/abc123/"
	if url != want {
		t.Fatalf("got %q, want %q", url, want)
	}
}

func TestGetURLMissingSecretErrors(t *testing.T) {
	n := NodeConfig{URLTemplate: "https://{subdomain}.quiknode.pro/"}
	_, err := n.GetURL(Secrets{})
	if err == nil {
		t.Fatalf("expected an error for missing secret")
	}
}

func TestValidateTemplateAcceptsDeclaredNames(t *testing.T) {
	n := NodeConfig{URLTemplate: "https://{host}/rpc/{token}"}
	if err := n.ValidateTemplate([]string{"host", "token"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateTemplateRejectsUndeclaredName(t *testing.T) {
	n := NodeConfig{URLTemplate: "https://{host}/rpc/{token}"}
	if err := n.ValidateTemplate([]string{"host"}); err == nil {
		t.Fatalf("expected an error: template references undeclared secret %q", "token")
	}
}

func TestEffectiveMaxBlocksDistanceDefault(t *testing.T) {
	n := NodeConfig{}
	if got := n.EffectiveMaxBlocksDistance(); got != DefaultMaxBlocksDistance {
		t.Fatalf("got %d, want default %d", got, DefaultMaxBlocksDistance)
	}
	explicit := 500
	n.MaxBlocksDistance = &explicit
	if got := n.EffectiveMaxBlocksDistance(); got != explicit {
		t.Fatalf("got %d, want explicit %d", got, explicit)
	}
}

func TestCombineConfigWithPublicKeepsViablePrivateNodes(t *testing.T) {
	private := map[string]map[string]NodeConfig{
		"mainnet": {
			"quiknode": {ChainName: "mainnet", NodeName: "quiknode", URLTemplate: "https://{sub}.quiknode.pro/"},
		},
	}
	public := map[string]map[string]NodeConfig{
		"mainnet": {"ankr_public": {ChainName: "mainnet", NodeName: "ankr_public", URLTemplate: "https://rpc.ankr.com/eth"}},
	}
	secrets := Secrets{"sub": "my-sub"}

	out := CombineConfigWithPublic(private, public, secrets, true)
	nodes, ok := out["mainnet"]
	if !ok {
		t.Fatalf("expected mainnet chain in output")
	}
	if _, ok := nodes["quiknode"]; !ok {
		t.Fatalf("viable private node must be kept")
	}
	if _, ok := nodes["ankr_public"]; ok {
		t.Fatalf("public pool must not be mixed in when a private node is viable")
	}
}

func TestCombineConfigWithPublicFallsBackWhenNoSecret(t *testing.T) {
	private := map[string]map[string]NodeConfig{
		"mainnet": {
			"quiknode": {ChainName: "mainnet", NodeName: "quiknode", URLTemplate: "https://{sub}.quiknode.pro/"},
		},
	}
	public := map[string]map[string]NodeConfig{
		"mainnet": {"ankr_public": {ChainName: "mainnet", NodeName: "ankr_public", URLTemplate: "https://rpc.ankr.com/eth"}},
	}

	out := CombineConfigWithPublic(private, public, Secrets{}, true)
	nodes := out["mainnet"]
	if _, ok := nodes["ankr_public"]; !ok {
		t.Fatalf("must fall back to public pool when every private node is unresolved")
	}
	if len(nodes) != 1 {
		t.Fatalf("expected exactly the public pool, got %v", nodes)
	}
}

func TestCombineConfigWithPublicNoFallbackYieldsEmptyChain(t *testing.T) {
	private := map[string]map[string]NodeConfig{
		"mainnet": {
			"quiknode": {ChainName: "mainnet", NodeName: "quiknode", URLTemplate: "https://{sub}.quiknode.pro/"},
		},
	}
	public := map[string]map[string]NodeConfig{
		"mainnet": {"ankr_public": {ChainName: "mainnet", NodeName: "ankr_public", URLTemplate: "https://rpc.ankr.com/eth"}},
	}

	out := CombineConfigWithPublic(private, public, Secrets{}, false)
	nodes, ok := out["mainnet"]
	if !ok {
		t.Fatalf("chain must still be present, just empty")
	}
	if len(nodes) != 0 {
		t.Fatalf("expected zero nodes without fallback, got %v", nodes)
	}
}

func TestCombineConfigWithPublicNeverIntroducesPublicOnlyChains(t *testing.T) {
	private := map[string]map[string]NodeConfig{
		"mainnet": {"quiknode": {ChainName: "mainnet", NodeName: "quiknode", URLTemplate: "https://rpc.example.com/"}},
	}
	public := map[string]map[string]NodeConfig{
		"linea": {"linea_public": {ChainName: "linea", NodeName: "linea_public", URLTemplate: "https://rpc.linea.build"}},
	}
	out := CombineConfigWithPublic(private, public, Secrets{}, true)
	if _, ok := out["linea"]; ok {
		t.Fatalf("a chain present only in the public config must not be introduced, got %v", out["linea"])
	}
	if _, ok := out["mainnet"]; !ok {
		t.Fatalf("expected the private chain to survive the merge")
	}
}

func TestBuildRegistryPreservesOrder(t *testing.T) {
	resolved := map[string]map[string]NodeConfig{
		"mainnet": {
			"quiknode": {ChainName: "mainnet", NodeName: "quiknode"},
			"infura":   {ChainName: "mainnet", NodeName: "infura"},
		},
	}
	order := map[string][]string{"mainnet": {"infura", "quiknode"}}

	reg := BuildRegistry(resolved, order)
	pool, ok := reg.Pool("mainnet")
	if !ok {
		t.Fatalf("expected mainnet pool")
	}
	head, _ := pool.Head()
	if head.NodeName != "infura" {
		t.Fatalf("got head %q, want order-preserving head %q", head.NodeName, "infura")
	}
}

func TestChainNamesSorted(t *testing.T) {
	reg := NewRegistry()
	reg.SetPool("polygon", NewChainPool(nil))
	reg.SetPool("mainnet", NewChainPool(nil))
	reg.SetPool("bsquared", NewChainPool(nil))

	got := reg.ChainNames()
	want := []string{"bsquared", "mainnet", "polygon"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
