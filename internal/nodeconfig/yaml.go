package nodeconfig

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// rawNodeEntry is the object form of a node entry. A bare string value is
// shorthand for {url: <string>}.
type rawNodeEntry struct {
	URL               string            `yaml:"url"`
	MaxBlocksDistance *int              `yaml:"max_blocks_distance"`
	Headers           map[string]string `yaml:"headers"`
	SupportsBatch     *bool             `yaml:"supports_batch"`
	SupportsBlockbook bool              `yaml:"supports_blockbook"`
}

// isExtraKey reports whether key is metadata (x_-prefixed) to be skipped
// during node enumeration.
func isExtraKey(key string) bool {
	return strings.HasPrefix(key, "x_")
}

// LoadChainsYAML parses the two-level chain -> node_name -> (string|object)
// document, skipping x_-prefixed keys at either level.
func LoadChainsYAML(data []byte) (map[string]map[string]NodeConfig, error) {
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse chains yaml: %w", err)
	}

	out := make(map[string]map[string]NodeConfig, len(doc))
	for chainName, chainNode := range doc {
		if isExtraKey(chainName) {
			continue
		}
		var nodesRaw map[string]yaml.Node
		if err := chainNode.Decode(&nodesRaw); err != nil {
			return nil, fmt.Errorf("chain %s: %w", chainName, err)
		}
		nodes := make(map[string]NodeConfig, len(nodesRaw))
		for nodeName, nodeNode := range nodesRaw {
			if isExtraKey(nodeName) {
				continue
			}
			cfg, err := decodeNodeEntry(chainName, nodeName, nodeNode)
			if err != nil {
				return nil, err
			}
			nodes[nodeName] = cfg
		}
		out[chainName] = nodes
	}
	return out, nil
}

func decodeNodeEntry(chainName, nodeName string, node yaml.Node) (NodeConfig, error) {
	cfg := NodeConfig{
		ChainName:     chainName,
		NodeName:      nodeName,
		SupportsBatch: true,
	}

	if node.Kind == yaml.ScalarNode {
		var url string
		if err := node.Decode(&url); err != nil {
			return cfg, fmt.Errorf("%s/%s: %w", chainName, nodeName, err)
		}
		cfg.URLTemplate = url
		return cfg, nil
	}

	var raw rawNodeEntry
	if err := node.Decode(&raw); err != nil {
		return cfg, fmt.Errorf("%s/%s: %w", chainName, nodeName, err)
	}
	cfg.URLTemplate = raw.URL
	cfg.MaxBlocksDistance = raw.MaxBlocksDistance
	cfg.SupportsBlockbook = raw.SupportsBlockbook
	if raw.SupportsBatch != nil {
		cfg.SupportsBatch = *raw.SupportsBatch
	}
	if len(raw.Headers) > 0 {
		headers := make([]HeaderPair, 0, len(raw.Headers))
		for k, v := range raw.Headers {
			headers = append(headers, HeaderPair{Name: k, Value: v})
		}
		cfg.Headers = headers
	}
	return cfg, nil
}

// CombineConfigWithPublic merges the public-nodes config into the private
// one: for each private chain, keep only nodes whose URL doesn't leak an
// unresolved placeholder against secrets; if none remain, substitute the
// public pool's node list for that chain; if there's no public pool either,
// the chain ends up with zero nodes (tolerated, but NoNodesAvailable at
// request time). Chains that appear only in the public config are never
// introduced — the private config alone decides which chains exist.
func CombineConfigWithPublic(private, public map[string]map[string]NodeConfig, secrets Secrets, fallbackToPublic bool) map[string]map[string]NodeConfig {
	out := make(map[string]map[string]NodeConfig, len(private))

	for chainName, privNodes := range private {
		viable := make(map[string]NodeConfig)
		for name, cfg := range privNodes {
			if !hasUnresolvedPlaceholder(cfg.URLTemplate, secrets) {
				viable[name] = cfg
			}
		}
		if len(viable) > 0 {
			out[chainName] = viable
			continue
		}
		if fallbackToPublic {
			if pubNodes, ok := public[chainName]; ok {
				out[chainName] = pubNodes
				continue
			}
		}
		out[chainName] = map[string]NodeConfig{}
	}
	return out
}

// BuildRegistry turns a resolved chain->node_name->NodeConfig map into a
// Registry of ChainPools. order[chainName], when given, sets the initial
// rotation order (names absent from the chain's nodes are skipped);
// otherwise the order is Go map iteration order over the chain's nodes,
// which is not deterministic.
func BuildRegistry(resolved map[string]map[string]NodeConfig, order map[string][]string) *Registry {
	reg := NewRegistry()
	for chainName, nodes := range resolved {
		names := order[chainName]
		if len(names) == 0 {
			for name := range nodes {
				names = append(names, name)
			}
		}
		configs := make([]NodeConfig, 0, len(names))
		for _, name := range names {
			if cfg, ok := nodes[name]; ok {
				configs = append(configs, cfg)
			}
		}
		reg.SetPool(chainName, NewChainPool(configs))
	}
	return reg
}
