// Package classify implements the pure retriable/terminal error predicate
// over JSON-RPC (code, message) pairs.
package classify

import "strings"

// Note 32601 (without the leading minus) is intentional: it is the
// "method does not exist" code as seen from some upstreams, while -32601
// is deliberately left retriable (chain-specific methods like
// linea_estimateGas legitimately fail on most nodes and should rotate).
var nonRetriableCodes = map[int]struct{}{
	3:      {},
	-32015: {},
	-32010: {},
	32601:  {},
}

var nonRetriableMessages = map[string]struct{}{
	": tx already in mempool":                                              {},
	"RPC error response: RPC error response: INTERNAL_ERROR: nonce too low": {},
}

var nonRetriableMessagePrefixes = []string{
	"nonce too low: ",
	"rpc error: code = Unknown desc = execution reverted",
}

// IsRetriable reports whether another node may succeed for this error:
// retriable unless (code, message) matches one of the fixed non-retriable
// sets. Depends only on its arguments.
func IsRetriable(code int, message string) bool {
	if _, ok := nonRetriableCodes[code]; ok {
		return false
	}
	if _, ok := nonRetriableMessages[message]; ok {
		return false
	}
	for _, prefix := range nonRetriableMessagePrefixes {
		if strings.HasPrefix(message, prefix) {
			return false
		}
	}
	return true
}
