package extraction

import "fmt"

// FailureKind classifies why a single extraction attempt failed.
type FailureKind string

const (
	FailureUnavailable    FailureKind = "unavailable"
	FailureTimeout        FailureKind = "timeout"
	FailureQuotaExhausted FailureKind = "quota_exhausted"
	FailureParse          FailureKind = "parse_failure"
	FailureSchema         FailureKind = "schema_failure"
	FailureUnknown        FailureKind = "unknown"
)

// Error wraps a classified extraction failure.
type Error struct {
	Kind    FailureKind
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("extraction failed (%s): %s", e.Kind, e.Message)
}

// UserMessage returns the sentence surfaced to the caller for this failure
// kind, per the spec's failure-kind-to-user-facing-message mapping.
func (k FailureKind) UserMessage() string {
	switch k {
	case FailureUnavailable:
		return "The extraction service is temporarily unavailable. Please try again shortly."
	case FailureTimeout:
		return "The extraction request timed out. Please try again."
	case FailureQuotaExhausted:
		return "You have reached your extraction quota for today. Please try again tomorrow."
	case FailureParse:
		return "We couldn't interpret the extraction result. Please try again."
	case FailureSchema:
		return "The extraction result didn't match the expected format. Please try again."
	default:
		return "Interrupted; please retry."
	}
}
