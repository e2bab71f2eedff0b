package gas

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/R3E-Network/evmrpcproxy/internal/hex"
	"github.com/R3E-Network/evmrpcproxy/internal/logging"
)

// preEIP1559ChainIDs are the pre-EIP1559 chains: rootstock, polygonZkEvm,
// merlin. Rootstock and merlin are priced with eth_gasPrice only;
// polygonZkEvm (1101) is priced by its gas-station branch, which is
// checked before this set.
var preEIP1559ChainIDs = map[uint64]struct{}{30: {}, 1101: {}, 4200: {}}

const (
	polygonGasStationURL      = "https://gasstation.polygon.technology/v2"
	polygonZkEVMGasStationURL = "https://gasstation.polygon.technology/zkevm"
	polygonChainID            = 137
	polygonZkEVMChainID       = 1101
	lineaChainID              = 59144
	defaultGasStationCacheTTL = 2 * time.Second
)

// gasStationCache is the process-wide map<url, (timestamp, value)> behind
// the gas-station fetch. A stampede is tolerated: concurrent fetches may
// race before the first result lands, last writer wins.
type gasStationCache struct {
	mu      sync.Mutex
	entries map[string]gasStationEntry
}

type gasStationEntry struct {
	fetchedAt time.Time
	data      map[string]interface{}
}

var sharedGasStationCache = &gasStationCache{entries: make(map[string]gasStationEntry)}

func (c *gasStationCache) get(url string, ttl time.Duration) (map[string]interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[url]
	if !ok || time.Since(e.fetchedAt) > ttl {
		return nil, false
	}
	return e.data, true
}

func (c *gasStationCache) set(url string, data map[string]interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = gasStationEntry{fetchedAt: time.Now(), data: data}
}

// Helper computes a chain's gas params for ext_estimateGas, a per-request
// instance wrapping the shared gas-station cache and a ReqNodeFunc bound to
// the caller's chosen node.
type Helper struct {
	ChainID  uint64
	ReqNode  ReqNodeFunc
	Logger   *logging.Logger
	HTTPCli  *http.Client
	CacheTTL time.Duration

	GasStationKey          string
	GasPriceExtraPct       float64
	GasPriorityFeeExtraPct float64
	GasUnitsExtraPct       float64
}

// NewHelper builds a Helper with the default surcharge percentages and
// gas-station key.
func NewHelper(chainID uint64, reqNode ReqNodeFunc, logger *logging.Logger) *Helper {
	return &Helper{
		ChainID:                chainID,
		ReqNode:                reqNode,
		Logger:                 logger,
		HTTPCli:                &http.Client{Timeout: 5 * time.Second},
		CacheTTL:               defaultGasStationCacheTTL,
		GasStationKey:          "fast",
		GasPriceExtraPct:       20,
		GasPriorityFeeExtraPct: 10,
		GasUnitsExtraPct:       100,
	}
}

// BuildGasParams computes the full ext_estimateGas result object: base gas
// price/units plus surcharges.
func (h *Helper) BuildGasParams(ctx context.Context, txParams TxParamsSimple) (map[string]interface{}, error) {
	pre, err := h.buildGasParamsPre(ctx, txParams)
	if err != nil {
		return nil, err
	}
	return h.addExtraGasPriceAndUnits(pre)
}

func (h *Helper) buildGasParamsPre(ctx context.Context, txParams TxParamsSimple) (map[string]interface{}, error) {
	if (h.ChainID == 4200 || h.ChainID == lineaChainID) && txParams["from"] == nil {
		return nil, NewError("transaction requires \"from\" for this chain", map[string]interface{}{"chain_id": h.ChainID})
	}
	if h.ChainID == lineaChainID {
		return h.buildGasParamsLinea(ctx, txParams)
	}

	priceParams, err := h.buildGasPriceBase(ctx)
	if err != nil {
		return nil, err
	}
	merged := make(TxParamsSimple, len(txParams)+len(priceParams))
	for k, v := range txParams {
		merged[k] = v
	}
	for k, v := range priceParams {
		merged[k] = v
	}
	unitsResult, err := h.buildGasUnits(ctx, merged)
	if err != nil {
		return nil, err
	}
	result := make(map[string]interface{}, len(priceParams)+1)
	for k, v := range priceParams {
		result[k] = v
	}
	if gas, ok := unitsResult["gas"]; ok {
		result["gas"] = gas
	} else {
		result["gas"] = "0x0"
	}
	return result, nil
}

func (h *Helper) buildGasPriceBase(ctx context.Context) (map[string]interface{}, error) {
	switch h.ChainID {
	case polygonChainID:
		return h.buildGasPricePolygon(ctx)
	case polygonZkEVMChainID:
		return h.buildGasPricePolygonZkEVM(ctx)
	}
	if _, ok := preEIP1559ChainIDs[h.ChainID]; ok {
		return h.buildGasPriceLegacy(ctx)
	}
	result, err := h.buildGasPriceDynamic(ctx)
	if err != nil {
		var unavailable *MethodUnavailable
		if asMethodUnavailable(err, &unavailable) {
			h.Logger.WithError(err).Error("dynamic gas price method unavailable, falling back to legacy")
			return h.buildGasPriceLegacy(ctx)
		}
		return nil, err
	}
	return result, nil
}

func asMethodUnavailable(err error, target **MethodUnavailable) bool {
	mu, ok := err.(*MethodUnavailable)
	if ok {
		*target = mu
	}
	return ok
}

func (h *Helper) buildGasPriceDynamic(ctx context.Context) (map[string]interface{}, error) {
	results, err := h.ReqNode(ctx, []Call{
		{Method: "eth_maxPriorityFeePerGas", Params: []interface{}{}},
		{Method: "eth_getBlockByNumber", Params: []interface{}{"latest", false}},
	})
	if err != nil {
		return nil, err
	}
	if len(results) != 2 {
		return nil, fmt.Errorf("gas: dynamic price probe returned %d results, want 2", len(results))
	}
	priorityFeeHex, ok := results[0].(string)
	if !ok {
		return nil, fmt.Errorf("gas: unexpected eth_maxPriorityFeePerGas result %v", results[0])
	}
	block, ok := results[1].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("gas: unexpected eth_getBlockByNumber result %v", results[1])
	}
	baseFeeHex, ok := block["baseFeePerGas"].(string)
	if !ok {
		return nil, fmt.Errorf("gas: block missing baseFeePerGas")
	}

	priorityFee, err := hex.ParseSignedQuantity(priorityFeeHex)
	if err != nil {
		return nil, err
	}
	baseFee, err := hex.ParseSignedQuantity(baseFeeHex)
	if err != nil {
		return nil, err
	}
	maxFee := priorityFee + 2*baseFee
	return map[string]interface{}{
		"maxPriorityFeePerGas": hex.FormatSignedQuantity(priorityFee),
		"maxFeePerGas":         hex.FormatSignedQuantity(maxFee),
	}, nil
}

func (h *Helper) buildGasPriceLegacy(ctx context.Context) (map[string]interface{}, error) {
	results, err := h.ReqNode(ctx, []Call{{Method: "eth_gasPrice", Params: []interface{}{}}})
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("gas: legacy price probe returned %d results, want 1", len(results))
	}
	price, ok := results[0].(string)
	if !ok {
		return nil, fmt.Errorf("gas: unexpected eth_gasPrice result %v", results[0])
	}
	return map[string]interface{}{"gasPrice": price}, nil
}

func (h *Helper) buildGasParamsLinea(ctx context.Context, txParams TxParamsSimple) (map[string]interface{}, error) {
	if txParams["from"] == nil {
		return nil, NewError("transaction requires \"from\" for linea_estimateGas", nil)
	}
	results, err := h.ReqNode(ctx, []Call{{Method: "linea_estimateGas", Params: []interface{}{txParams}}})
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("gas: linea_estimateGas returned %d results, want 1", len(results))
	}
	obj, ok := results[0].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("gas: unexpected linea_estimateGas result %v", results[0])
	}
	gasLimit, _ := obj["gasLimit"].(string)
	baseFeeHex, _ := obj["baseFeePerGas"].(string)
	priorityFeeHex, _ := obj["priorityFeePerGas"].(string)

	baseFee, err := hex.ParseSignedQuantity(baseFeeHex)
	if err != nil {
		return nil, err
	}
	priorityFee, err := hex.ParseSignedQuantity(priorityFeeHex)
	if err != nil {
		return nil, err
	}
	maxFee := priorityFee + 2*baseFee
	return map[string]interface{}{
		"maxPriorityFeePerGas": priorityFeeHex,
		"maxFeePerGas":         hex.FormatSignedQuantity(maxFee),
		"gas":                  gasLimit,
	}, nil
}

func (h *Helper) buildGasUnits(ctx context.Context, txParams TxParamsSimple) (map[string]interface{}, error) {
	results, err := h.ReqNode(ctx, []Call{{Method: "eth_estimateGas", Params: []interface{}{txParams, "latest"}}})
	if err != nil {
		return nil, err
	}
	if len(results) != 1 {
		return nil, fmt.Errorf("gas: eth_estimateGas returned %d results, want 1", len(results))
	}
	gasHex, ok := results[0].(string)
	if !ok {
		return nil, fmt.Errorf("gas: unexpected eth_estimateGas result %v", results[0])
	}
	return map[string]interface{}{"gas": gasHex}, nil
}

func (h *Helper) addExtraGasPriceAndUnits(params map[string]interface{}) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = v
	}
	for _, key := range []string{"gasPrice", "maxFeePerGas"} {
		if v, ok := out[key].(string); ok && h.GasPriceExtraPct != 0 {
			scaled, err := AddPctHex(v, h.GasPriceExtraPct, 10_000)
			if err != nil {
				return nil, err
			}
			out[key] = scaled
		}
	}
	if v, ok := out["maxPriorityFeePerGas"].(string); ok && h.GasPriorityFeeExtraPct != 0 {
		scaled, err := AddPctHex(v, h.GasPriorityFeeExtraPct, 10_000)
		if err != nil {
			return nil, err
		}
		out["maxPriorityFeePerGas"] = scaled
	}
	if v, ok := out["gas"].(string); ok && h.GasUnitsExtraPct != 0 {
		scaled, err := AddPctHex(v, h.GasUnitsExtraPct, 10_000)
		if err != nil {
			return nil, err
		}
		out["gas"] = scaled
	}
	return out, nil
}

func (h *Helper) buildGasPricePolygon(ctx context.Context) (map[string]interface{}, error) {
	data, err := h.fetchGasStation(ctx, polygonGasStationURL)
	if err != nil {
		return nil, err
	}
	maxFee, ok := numericField(data, h.GasStationKey, "maxFee")
	if !ok {
		return nil, fmt.Errorf("gas: polygon gasstation missing maxFee for key %q", h.GasStationKey)
	}
	maxPriority, ok := numericField(data, h.GasStationKey, "maxPriorityFee")
	if !ok {
		return nil, fmt.Errorf("gas: polygon gasstation missing maxPriorityFee for key %q", h.GasStationKey)
	}
	return map[string]interface{}{
		"maxFeePerGas":         hex.FormatSignedQuantity(GweiToWei(maxFee)),
		"maxPriorityFeePerGas": hex.FormatSignedQuantity(GweiToWei(maxPriority)),
	}, nil
}

func (h *Helper) buildGasPricePolygonZkEVM(ctx context.Context) (map[string]interface{}, error) {
	data, err := h.fetchGasStation(ctx, polygonZkEVMGasStationURL)
	if err != nil {
		return nil, err
	}
	value, ok := data[h.GasStationKey].(float64)
	if !ok {
		return nil, fmt.Errorf("gas: polygonzkevm gasstation missing key %q", h.GasStationKey)
	}
	return map[string]interface{}{"gasPrice": hex.FormatSignedQuantity(GweiToWei(value))}, nil
}

// numericField reads data[gasStationKey][subKey] as a float64, tolerating
// the polygon gasstation's nested {fast: {maxFee, maxPriorityFee}} shape.
func numericField(data map[string]interface{}, gasStationKey, subKey string) (float64, bool) {
	bucket, ok := data[gasStationKey].(map[string]interface{})
	if !ok {
		return 0, false
	}
	v, ok := bucket[subKey].(float64)
	return v, ok
}

func (h *Helper) fetchGasStation(ctx context.Context, url string) (map[string]interface{}, error) {
	ttl := h.CacheTTL
	if ttl <= 0 {
		ttl = defaultGasStationCacheTTL
	}
	if cached, ok := sharedGasStationCache.get(url, ttl); ok {
		return cached, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := h.HTTPCli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, err
	}
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("gas: gasstation response not a JSON object: %w", err)
	}
	sharedGasStationCache.set(url, data)
	return data, nil
}
