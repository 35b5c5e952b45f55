package connectors

import (
	"encoding/json"
	"fmt"
)

// APIError is a structured exchange rejection. Execution failures carry the
// label so callers can distinguish margin problems from bad parameters.
type APIError struct {
	HTTPStatus int    `json:"-"`
	Label      string `json:"label"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = GateErrorLabels[e.Label]
	}
	return fmt.Sprintf("exchange error %s (HTTP %d): %s", e.Label, e.HTTPStatus, msg)
}

// GateErrorLabels maps Gate futures error labels to human-readable messages.
var GateErrorLabels = map[string]string{
	"INVALID_PARAM_VALUE":    "invalid parameter value",
	"INVALID_PROTOCOL":       "invalid request protocol",
	"INVALID_ARGUMENT":       "invalid argument",
	"INVALID_SIGNATURE":      "request signature mismatch",
	"INVALID_KEY":            "API key invalid or revoked",
	"MISSING_REQUIRED_PARAM": "missing required parameter",
	"BAD_REQUEST":            "malformed request",
	"FORBIDDEN":              "operation not permitted for this key",
	"CONTRACT_NOT_FOUND":     "contract does not exist",
	"ORDER_NOT_FOUND":        "order does not exist",
	"POSITION_NOT_FOUND":     "position does not exist",
	"BALANCE_NOT_ENOUGH":     "insufficient margin balance",
	"LIQUIDATE_IMMEDIATELY":  "order would trigger immediate liquidation",
	"ORDER_POC_IMMEDIATE":    "post-only order would execute immediately",
	"INCREASE_POSITION":      "reduce-only order would increase position",
	"POSITION_EMPTY":         "no position to reduce",
	"REDUCE_EXCEEDED":        "reduce-only size exceeds open position",
	"ORDER_SIZE_TOO_SMALL":   "order size below contract minimum",
	"ORDER_SIZE_TOO_LARGE":   "order size above contract maximum",
	"TOO_MANY_REQUESTS":      "rate limit exceeded",
	"SERVER_ERROR":           "internal exchange error",
}

// IsExecutionRejection reports whether the error is a structured order
// rejection (as opposed to transport failure). Rejections must surface to the
// caller and are never retried.
func IsExecutionRejection(err error) bool {
	apiErr, ok := err.(*APIError)
	if !ok {
		return false
	}
	return apiErr.HTTPStatus >= 400 && apiErr.HTTPStatus < 500
}

func parseAPIError(status int, raw []byte) error {
	apiErr := &APIError{HTTPStatus: status}
	if err := json.Unmarshal(raw, apiErr); err != nil || apiErr.Label == "" {
		return fmt.Errorf("HTTP %d: %s", status, string(raw))
	}
	return apiErr
}
