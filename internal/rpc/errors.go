package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	gethrpc "github.com/ethereum/go-ethereum/rpc"

	"github.com/yourorg/router-providers/internal/provider"
)

// JSON-RPC error code used by several providers for "limit exceeded"
const codeLimitExceeded = -32005

// messages that indicate the node ran out of a resource rather than the call being invalid
var resourceExhaustion = []string{
	"out of gas",
	"gas required exceeds",
	"gas limit reached",
	"execution timeout",
	"request timed out",
}

// messages that indicate a transport or node hiccup
var transportHiccups = []string{
	"connection reset",
	"connection refused",
	"eof",
	"too many requests",
	"rate limit",
	"header not found",
	"giving up after",
	"service unavailable",
	"bad gateway",
}

// Classify marks err as provider.ErrTransient when retrying could help and
// additionally as provider.ErrTimeout when a deadline elapsed. Other errors are returned unchanged.
func Classify(err error) error {
	if err == nil || provider.IsTransient(err) {
		return err
	}
	if errors.Is(err, provider.ErrUnavailable) || errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return provider.Transient(fmt.Errorf("%w: %w", provider.ErrTimeout, err))
	}
	if isResourceExhaustion(err) || IsTransportFailure(err) {
		return provider.Transient(err)
	}
	return err
}

// IsTransportFailure reports whether err came from the connection to the node
// rather than from executing the request. These count against the circuit breaker.
func IsTransportFailure(err error) bool {
	if err == nil {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var httpErr gethrpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode >= 500
	}
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeLimitExceeded {
		return true
	}
	return containsAny(err.Error(), transportHiccups)
}

func isResourceExhaustion(err error) bool {
	return containsAny(err.Error(), resourceExhaustion)
}

func containsAny(msg string, needles []string) bool {
	msg = strings.ToLower(msg)
	for _, n := range needles {
		if strings.Contains(msg, n) {
			return true
		}
	}
	return false
}
