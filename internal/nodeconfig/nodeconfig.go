// Package nodeconfig models per-chain node pools, URL-template secret
// substitution, and the rotation cursor the failover engine advances.
package nodeconfig

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// placeholderSentinel fills secret placeholders during load-time template
// validation; if it survives substitution the secret was never supplied.
const placeholderSentinel = "__ERP_SECRET_PLACEHOLDER__"

// HeaderPair is one ordered (name, value) header entry.
type HeaderPair struct {
	Name  string
	Value string
}

// NodeConfig is one upstream node entry. MaxBlocksDistance is a
// pointer so "unset" (EffectiveMaxBlocksDistance then returns
// DefaultMaxBlocksDistance) is distinguishable from an explicit zero.
type NodeConfig struct {
	ChainName         string
	NodeName          string
	URLTemplate       string
	MaxBlocksDistance *int
	Headers           []HeaderPair
	SupportsBatch     bool
	SupportsBlockbook bool
}

// DefaultMaxBlocksDistance is applied when a node entry omits the field.
const DefaultMaxBlocksDistance = 3000

// EffectiveMaxBlocksDistance returns the node's configured max-blocks-distance
// or DefaultMaxBlocksDistance when unset.
func (n NodeConfig) EffectiveMaxBlocksDistance() int {
	if n.MaxBlocksDistance == nil {
		return DefaultMaxBlocksDistance
	}
	return *n.MaxBlocksDistance
}

// GetURL expands n.URLTemplate against secrets, substituting "{name}" tokens.
func (n NodeConfig) GetURL(secrets Secrets) (string, error) {
	return expandTemplate(n.URLTemplate, secrets)
}

// Secrets is a flat map from placeholder name to secret string.
type Secrets map[string]string

func expandTemplate(tmpl string, secrets map[string]string) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(tmpl) {
		if tmpl[i] == '{' {
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				return "", fmt.Errorf("unterminated placeholder in url template %q", tmpl)
			}
			name := tmpl[i+1 : i+end]
			val, ok := secrets[name]
			if !ok {
				return "", fmt.Errorf("missing secret %q for url template %q", name, tmpl)
			}
			b.WriteString(val)
			i += end + 1
			continue
		}
		b.WriteByte(tmpl[i])
		i++
	}
	return b.String(), nil
}

// ValidateTemplate expands n.URLTemplate against a sentinel-filled copy of
// declaredSecretNames, catching undefined placeholders at load time instead
// of at request time.
func (n NodeConfig) ValidateTemplate(declaredSecretNames []string) error {
	sentinel := make(map[string]string, len(declaredSecretNames))
	for _, name := range declaredSecretNames {
		sentinel[name] = placeholderSentinel
	}
	_, err := expandTemplate(n.URLTemplate, sentinel)
	return err
}

// hasUnresolvedPlaceholder reports whether expanding tmpl against a
// sentinel-filled version of secrets would still contain the sentinel,
// i.e. the real secret set is missing a value this template needs.
func hasUnresolvedPlaceholder(tmpl string, secrets Secrets) bool {
	merged := make(map[string]string, len(secrets))
	for k, v := range secrets {
		merged[k] = v
	}
	expanded, err := expandTemplate(tmpl, withSentinelFallback(merged, tmpl))
	if err != nil {
		return true
	}
	return strings.Contains(expanded, placeholderSentinel)
}

// withSentinelFallback fills any placeholder referenced by tmpl that isn't
// already present in secrets with the sentinel value, so expansion never
// fails outright and instead reports the sentinel leaking through.
func withSentinelFallback(secrets map[string]string, tmpl string) map[string]string {
	out := make(map[string]string, len(secrets))
	for k, v := range secrets {
		out[k] = v
	}
	i := 0
	for i < len(tmpl) {
		if tmpl[i] == '{' {
			end := strings.IndexByte(tmpl[i:], '}')
			if end < 0 {
				break
			}
			name := tmpl[i+1 : i+end]
			if _, ok := out[name]; !ok {
				out[name] = placeholderSentinel
			}
			i += end + 1
			continue
		}
		i++
	}
	return out
}

// ChainPool holds the ordered node pool for one chain plus its mutable
// rotation cursor. Rotation moves the head to the tail in place; the pool
// is shared across concurrent requests on the same chain.
type ChainPool struct {
	mu    sync.Mutex
	names []string // node names in rotation order; names[0] is the head
	nodes map[string]NodeConfig
}

// NewChainPool builds a pool from an ordered slice of node configs.
func NewChainPool(configs []NodeConfig) *ChainPool {
	p := &ChainPool{
		names: make([]string, 0, len(configs)),
		nodes: make(map[string]NodeConfig, len(configs)),
	}
	for _, c := range configs {
		p.names = append(p.names, c.NodeName)
		p.nodes[c.NodeName] = c
	}
	return p
}

// Len returns the number of nodes in the pool.
func (p *ChainPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.names)
}

// Head returns the current head node config. ok is false if the pool is empty.
func (p *ChainPool) Head() (NodeConfig, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.names) == 0 {
		return NodeConfig{}, false
	}
	return p.nodes[p.names[0]], true
}

// All returns every node config in current rotation order.
func (p *ChainPool) All() []NodeConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]NodeConfig, 0, len(p.names))
	for _, name := range p.names {
		out = append(out, p.nodes[name])
	}
	return out
}

// Get returns the named node config, regardless of rotation order.
func (p *ChainPool) Get(name string) (NodeConfig, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.nodes[name]
	return c, ok
}

// Rotate moves the current head to the tail in place. It never drops a
// node, only reorders.
func (p *ChainPool) Rotate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.names) < 2 {
		return
	}
	head := p.names[0]
	p.names = append(p.names[1:], head)
}

// Registry holds one ChainPool per chain name.
type Registry struct {
	mu    sync.RWMutex
	pools map[string]*ChainPool
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[string]*ChainPool)}
}

// SetPool installs (or replaces) the pool for chainName.
func (r *Registry) SetPool(chainName string, pool *ChainPool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools[chainName] = pool
}

// Pool returns the pool for chainName, if configured.
func (r *Registry) Pool(chainName string) (*ChainPool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[chainName]
	return p, ok
}

// ChainNames returns every configured chain name, sorted.
func (r *Registry) ChainNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.pools))
	for name := range r.pools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
