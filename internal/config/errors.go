// Package config provides process settings and the typed error taxonomy
// shared by the proxy engine.
package config

import (
	"fmt"
	"net/http"
)

// ErrorCode identifies one of the taxonomy members below.
type ErrorCode string

const (
	// ErrCodeNoNodesAvailable marks a configuration-level failure: the chain
	// exists but its pool is empty.
	ErrCodeNoNodesAvailable ErrorCode = "EVMRPC_NO_NODES"
	// ErrCodeRetriableErrorResponse marks an RPC-level error classified retriable.
	ErrCodeRetriableErrorResponse ErrorCode = "EVMRPC_RETRIABLE_RESPONSE"
	// ErrCodeTerminalUpstreamError marks a transport-level or non-retriable failure.
	ErrCodeTerminalUpstreamError ErrorCode = "EVMRPC_TERMINAL_UPSTREAM"
	// ErrCodeGasError marks a structured error from the ExtGas pipeline.
	ErrCodeGasError ErrorCode = "EVMRPC_GAS_ERROR"
	// ErrCodeChainNotFound marks an unresolved chain token.
	ErrCodeChainNotFound ErrorCode = "EVMRPC_CHAIN_NOT_FOUND"
	// ErrCodeUnauthorized marks an invalid or missing bearer token.
	ErrCodeUnauthorized ErrorCode = "EVMRPC_UNAUTHORIZED"
)

// ServiceError is a structured error with a code, message, and HTTP status.
type ServiceError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Details    map[string]interface{}
	Err        error
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the wrapped error for errors.Is/errors.As.
func (e *ServiceError) Unwrap() error {
	return e.Err
}

// WithDetails attaches a diagnostic key/value pair and returns the receiver.
func (e *ServiceError) WithDetails(key string, value interface{}) *ServiceError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewServiceError builds a bare ServiceError.
func NewServiceError(code ErrorCode, message string, httpStatus int) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// WrapServiceError builds a ServiceError around an underlying cause.
func WrapServiceError(code ErrorCode, message string, httpStatus int, err error) *ServiceError {
	return &ServiceError{Code: code, Message: message, HTTPStatus: httpStatus, Err: err}
}

// NoNodesAvailable reports that chainName's pool has no usable nodes.
func NoNodesAvailable(chainName string) *ServiceError {
	return NewServiceError(ErrCodeNoNodesAvailable, "no nodes available for chain", http.StatusInternalServerError).
		WithDetails("chain", chainName)
}

// ChainNotFound reports an unresolved chain token.
func ChainNotFound(token string) *ServiceError {
	return NewServiceError(ErrCodeChainNotFound, "chain not found: "+token, http.StatusNotFound).
		WithDetails("chain", token)
}

// Unauthorized reports an invalid bearer token.
func Unauthorized(message string) *ServiceError {
	return NewServiceError(ErrCodeUnauthorized, message, http.StatusForbidden)
}
