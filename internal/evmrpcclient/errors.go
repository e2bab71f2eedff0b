package evmrpcclient

import "github.com/R3E-Network/evmrpcproxy/internal/config"

// newNoNodesAvailable builds the configuration-level error for a chain
// whose pool is empty or missing.
func newNoNodesAvailable(chainName string) error {
	return config.NoNodesAvailable(chainName)
}
