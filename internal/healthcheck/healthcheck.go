// Package healthcheck implements the background probe subsystem:
// per-(chain,node) chain-id/block-number/Multicall3 checks, parallel or
// sequential, with cross-node block-lag correlation.
package healthcheck

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/R3E-Network/evmrpcproxy/internal/chainregistry"
	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcclient"
	"github.com/R3E-Network/evmrpcproxy/internal/evmrpcmodel"
	"github.com/R3E-Network/evmrpcproxy/internal/hex"
	"github.com/R3E-Network/evmrpcproxy/internal/logging"
)

// checkReqMulticallCalldata is the aggregate3([]) selector + empty-array
// encoding used to probe Multicall3 liveness. Hard-coded against the
// current Multicall3 ABI; revise if the ABI ever changes.
const checkReqMulticallCalldata = "0x82ad56cb00000000000000000000000000000000000000000000000000000000000000200000000000000000000000000000000000000000000000000000000000000000"

// checkResMulticallData is the expected fixed return blob for an empty
// aggregate3 call: an offset word followed by a zero-length array.
const checkResMulticallData = "0x00000000000000000000000000000000000000000000000000000000000000200000000000000000000000000000000000000000000000000000000000000000"

const defaultMaxBlockNumberLag = 10

// Result is one (chain,node) probe outcome.
type Result struct {
	Chain          string
	Node           string
	Success        bool
	Err            string
	BlockNumber    uint64
	BlockNumberLag int64
}

// Options configures one evmrpc_check run.
type Options struct {
	ChainNames        []string // nil = all chains with known EVM metadata
	Sequential        bool
	MaxBlockNumberLag int // 0 means use defaultMaxBlockNumberLag; negative disables the check
	PerChainPauseSec  float64
}

// Checker runs health probes over a client's configured node pools.
type Checker struct {
	Client   *evmrpcclient.Client
	Registry *chainregistry.Registry
	Logger   *logging.Logger
}

// New builds a Checker.
func New(client *evmrpcclient.Client, registry *chainregistry.Registry, logger *logging.Logger) *Checker {
	return &Checker{Client: client, Registry: registry, Logger: logger}
}

type nodeTarget struct {
	chainName string
	nodeName  string
	info      chainregistry.ChainInfo
}

// Run executes the probes described by opts and returns one Result per
// (chain,node) pair, annotated with block-number-lag-based downgrades.
func (c *Checker) Run(ctx context.Context, opts Options) []Result {
	targets := c.targets(opts.ChainNames)

	var results []Result
	if opts.Sequential {
		results = c.runSequential(ctx, targets, opts.PerChainPauseSec)
	} else {
		results = c.runParallel(ctx, targets)
	}

	maxLag := opts.MaxBlockNumberLag
	if maxLag == 0 {
		maxLag = defaultMaxBlockNumberLag
	}
	if maxLag > 0 {
		applyBlockLag(results, maxLag)
	}
	return results
}

func (c *Checker) targets(chainNames []string) []nodeTarget {
	filter := map[string]struct{}{}
	for _, name := range chainNames {
		filter[name] = struct{}{}
	}

	var out []nodeTarget
	for _, chainName := range c.Client.Chains.ChainNames() {
		if len(filter) > 0 {
			if _, ok := filter[chainName]; !ok {
				continue
			}
		}
		info, ok := c.Registry.ByName(chainName)
		if !ok || info.NonEVM {
			continue
		}
		for _, nc := range c.Client.GetAllNodeConfigs(chainName) {
			out = append(out, nodeTarget{chainName: chainName, nodeName: nc.NodeName, info: info})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].chainName != out[j].chainName {
			return out[i].chainName < out[j].chainName
		}
		return out[i].nodeName < out[j].nodeName
	})
	return out
}

func (c *Checker) runParallel(ctx context.Context, targets []nodeTarget) []Result {
	results := make([]Result, len(targets))
	var wg sync.WaitGroup
	for i, t := range targets {
		wg.Add(1)
		go func(i int, t nodeTarget) {
			defer wg.Done()
			results[i] = c.probeOne(ctx, t)
		}(i, t)
	}
	wg.Wait()
	return results
}

// runSequential probes one target at a time, throttling the inter-chain
// pause with a rate.Limiter rather than a bare time.Sleep so the pause
// honors ctx cancellation. The pause throttles multi-node probing of the
// same provider.
func (c *Checker) runSequential(ctx context.Context, targets []nodeTarget, perChainPauseSec float64) []Result {
	results := make([]Result, 0, len(targets))

	var limiter *rate.Limiter
	if perChainPauseSec > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Duration(perChainPauseSec*float64(time.Second))), 1)
		// Drain the initial burst token so the first pause is actually observed
		// between chains rather than consumed immediately.
		limiter.Allow()
	}

	prevChain := ""
	for _, t := range targets {
		if limiter != nil && prevChain != "" && t.chainName != prevChain {
			if err := limiter.Wait(ctx); err != nil {
				break
			}
		}
		prevChain = t.chainName
		results = append(results, c.probeOne(ctx, t))
	}
	return results
}

func (c *Checker) probeOne(ctx context.Context, t nodeTarget) Result {
	result := Result{Chain: t.chainName, Node: t.nodeName}

	batch := []interface{}{
		evmrpcmodel.JSONObject{"jsonrpc": "2.0", "id": float64(1), "method": "eth_chainId", "params": []interface{}{}},
		evmrpcmodel.JSONObject{"jsonrpc": "2.0", "id": float64(2), "method": "eth_blockNumber", "params": []interface{}{}},
	}
	if t.info.Multicall3Address != "" {
		batch = append(batch, evmrpcmodel.JSONObject{
			"jsonrpc": "2.0",
			"id":      float64(3),
			"method":  "eth_call",
			"params": []interface{}{
				evmrpcmodel.JSONObject{"to": t.info.Multicall3Address, "data": checkReqMulticallCalldata},
				"latest",
			},
		})
	}

	res, err := c.Client.Request(ctx, t.chainName, batch, t.nodeName, evmrpcmodel.RequestParams{})
	if err != nil {
		result.Err = err.Error()
		return result
	}

	byID, ok := indexByID(res.Response.Data)
	if !ok {
		result.Err = "evmrpc_check: response shape was not a batch"
		return result
	}

	chainIDHex, ok := resultField(byID, 1)
	if !ok {
		result.Err = "evmrpc_check: missing eth_chainId result"
		return result
	}
	chainID, err := parseHexUint64(chainIDHex)
	if err != nil {
		result.Err = fmt.Sprintf("evmrpc_check: unparsable chain id %q: %v", chainIDHex, err)
		return result
	}
	if chainID != t.info.ID {
		result.Err = fmt.Sprintf("evmrpc_check: chain id mismatch: got %d, want %d", chainID, t.info.ID)
		return result
	}

	blockHex, ok := resultField(byID, 2)
	if !ok {
		result.Err = "evmrpc_check: missing eth_blockNumber result"
		return result
	}
	blockNumber, err := parseHexUint64(blockHex)
	if err != nil {
		result.Err = fmt.Sprintf("evmrpc_check: unparsable block number %q: %v", blockHex, err)
		return result
	}
	result.BlockNumber = blockNumber

	if t.info.Multicall3Address != "" {
		mcResult, ok := resultField(byID, 3)
		if !ok {
			result.Err = "evmrpc_check: missing multicall3 result"
			return result
		}
		if mcResult != checkResMulticallData {
			result.Err = "evmrpc_check: unexpected multicall3 aggregate3([]) result"
			return result
		}
	}

	result.Success = true
	return result
}

func applyBlockLag(results []Result, maxLag int) {
	maxByChain := map[string]uint64{}
	for _, r := range results {
		if !r.Success {
			continue
		}
		if r.BlockNumber > maxByChain[r.Chain] {
			maxByChain[r.Chain] = r.BlockNumber
		}
	}
	for i := range results {
		r := &results[i]
		maxBn := maxByChain[r.Chain]
		lag := int64(maxBn) - int64(r.BlockNumber)
		r.BlockNumberLag = lag
		if r.Success && lag > int64(maxLag) {
			r.Success = false
			r.Err = fmt.Sprintf("evmrpc_check: block number lag %d exceeds max %d", lag, maxLag)
		}
	}
}

func indexByID(data interface{}) (map[float64]evmrpcmodel.JSONObject, bool) {
	list, ok := data.([]interface{})
	if !ok {
		return nil, false
	}
	out := make(map[float64]evmrpcmodel.JSONObject, len(list))
	for _, item := range list {
		obj, ok := item.(evmrpcmodel.JSONObject)
		if !ok {
			continue
		}
		id, ok := obj["id"].(float64)
		if !ok {
			continue
		}
		out[id] = obj
	}
	return out, true
}

func resultField(byID map[float64]evmrpcmodel.JSONObject, id float64) (string, bool) {
	obj, ok := byID[id]
	if !ok {
		return "", false
	}
	s, ok := obj["result"].(string)
	return s, ok
}

func parseHexUint64(s string) (uint64, error) {
	return hex.ParseQuantity(s)
}
