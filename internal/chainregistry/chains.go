package chainregistry

// multicall3Address is the canonical Multicall3 deployment address, the
// same across almost every EVM chain it has been deployed to.
const multicall3Address = "0xcA11bde05977b3631167028862bE2a173976CA11"

// DefaultChains is the static chain metadata table loaded at process
// start, covering the chains served by the sample node pools and by the
// gas-pricing paths in internal/gas/helper.go (rootstock/polygon-zkevm/
// merlin are the pre-EIP1559 set; polygon and linea have their own
// gas-pricing branches).
func DefaultChains() []ChainInfo {
	return []ChainInfo{
		{ID: 1, Shortname: "mainnet", Multicall3Address: multicall3Address},
		{ID: 223, Shortname: "bsquared", Multicall3Address: multicall3Address},
		{ID: 6001, Shortname: "bouncebit", Multicall3Address: multicall3Address},
		{ID: 137, Shortname: "polygon", Multicall3Address: multicall3Address},
		{ID: 1101, Shortname: "polygonzkevm", Multicall3Address: multicall3Address},
		{ID: 59144, Shortname: "linea", Multicall3Address: multicall3Address},
		{ID: 30, Shortname: "rootstock", Multicall3Address: multicall3Address},
		{ID: 4200, Shortname: "merlin", Multicall3Address: multicall3Address},
	}
}
