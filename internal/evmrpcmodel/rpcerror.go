package evmrpcmodel

import "fmt"

// RPCError is one parsed JSON-RPC error{code,message} object.
type RPCError struct {
	Code    int
	Message string
}

// ParseOne extracts an RPCError from a single response item, defaulting
// code/message when the item or its error field is malformed. Upstreams
// disagree on error shapes, so partial payloads are tolerated.
func ParseOne(item interface{}) (RPCError, bool) {
	obj, ok := item.(JSONObject)
	if !ok {
		return RPCError{}, false
	}
	rawErr, ok := obj["error"]
	if !ok {
		return RPCError{}, false
	}
	errObj, ok := rawErr.(JSONObject)
	if !ok {
		return RPCError{Code: 0, Message: fmt.Sprintf("%v", rawErr)}, true
	}
	code := 0
	if c, ok := errObj["code"]; ok {
		switch v := c.(type) {
		case int:
			code = v
		case int64:
			code = int(v)
		case float64:
			code = int(v)
		}
	}
	message := ""
	if m, ok := errObj["message"].(string); ok {
		message = m
	}
	return RPCError{Code: code, Message: message}, true
}

// ParseErrors extracts every RPCError present in data, single object or
// list.
func ParseErrors(data interface{}) []RPCError {
	switch v := data.(type) {
	case JSONObject:
		if e, ok := ParseOne(v); ok {
			return []RPCError{e}
		}
	case []interface{}:
		var out []RPCError
		for _, item := range v {
			if e, ok := ParseOne(item); ok {
				out = append(out, e)
			}
		}
		return out
	}
	return nil
}
