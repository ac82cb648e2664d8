package results

import (
	"fmt"
	"strings"
)

// FailureReason classifies why a node produced no usable output.
type FailureReason string

const (
	ReasonMalformedOutput     FailureReason = "malformed_output"
	ReasonTokenLimit          FailureReason = "token_limit"
	ReasonRateLimit           FailureReason = "rate_limit"
	ReasonBillingLimit        FailureReason = "billing_limit"
	ReasonConstraintViolation FailureReason = "constraint_violation"
	ReasonUnknown             FailureReason = "unknown"
)

// FailureRecord captures one per-node (or per-entry) failure. Records are
// ephemeral: they feed the end-of-run summary and the next retry cycle.
type FailureRecord struct {
	NodeID   int64         `json:"node_id"`
	CustomID string        `json:"custom_id,omitempty"`
	Reason   FailureReason `json:"reason"`
	Detail   string        `json:"detail,omitempty"`
}

func (f FailureRecord) String() string {
	return fmt.Sprintf("node %d: %s (%s)", f.NodeID, f.Reason, f.Detail)
}

// classifyServiceError maps a service-level error code/message to a reason.
func classifyServiceError(code, message string) FailureReason {
	lowered := strings.ToLower(code + " " + message)
	switch {
	case strings.Contains(lowered, "billing") || strings.Contains(lowered, "quota"):
		return ReasonBillingLimit
	case strings.Contains(lowered, "rate_limit") || strings.Contains(lowered, "rate limit"):
		return ReasonRateLimit
	default:
		return ReasonUnknown
	}
}
