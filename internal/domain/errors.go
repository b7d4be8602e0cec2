package domain

import "fmt"

// EngineError is the unified error type for the orchestrator.
// Each error has a numeric code and human-readable message.
type EngineError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	return fmt.Sprintf("spine error %d: %s", e.Code, e.Message)
}

// Is matches any EngineError carrying the same code, so errors built with
// NewEngineError or WrapEngineError still satisfy errors.Is against the sentinels.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewEngineError creates a new EngineError.
func NewEngineError(code int, msg string) *EngineError {
	return &EngineError{Code: code, Message: msg}
}

// WrapEngineError creates an EngineError that includes a cause.
func WrapEngineError(code int, msg string, cause error) *EngineError {
	return &EngineError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause)}
}

// ---- Classification / extraction (-32200 to -32219) ----

var (
	ErrClassificationMiss   = &EngineError{Code: -32200, Message: "no intent matched the input"}
	ErrValidationIncomplete = &EngineError{Code: -32201, Message: "required fields are missing"}
	ErrInvalidActor         = &EngineError{Code: -32203, Message: "invalid actor context"}
	ErrDuplicateDomain      = &EngineError{Code: -32204, Message: "domain already registered"}
)

// ---- Policy / confirmation (-32220 to -32239) ----

var (
	ErrPolicyDenied         = &EngineError{Code: -32220, Message: "policy denied the action"}
	ErrConfirmationRequired = &EngineError{Code: -32221, Message: "action requires confirmation"}
	ErrConfirmationInvalid  = &EngineError{Code: -32222, Message: "confirmation token is invalid"}
	ErrConfirmationExpired  = &EngineError{Code: -32223, Message: "confirmation token has expired"}
	ErrPolicyRuleInvalid    = &EngineError{Code: -32224, Message: "policy rule failed to compile"}
	ErrRateLimited          = &EngineError{Code: -32225, Message: "rate limit exceeded"}
)

// ---- Flow / tools (-32240 to -32259) ----

var (
	ErrInvalidTransition = &EngineError{Code: -32240, Message: "invalid flow state transition"}
	ErrEmptyFlow         = &EngineError{Code: -32241, Message: "compiled flow has no steps"}
	ErrToolFailure       = &EngineError{Code: -32242, Message: "tool reported failure"}
	ErrToolNotFound      = &EngineError{Code: -32243, Message: "tool not registered"}
	ErrToolInvalid       = &EngineError{Code: -32244, Message: "tool registration rejected"}
	ErrMalformedStep     = &EngineError{Code: -32245, Message: "flow step does not match its kind"}
)

// ---- Audit chain (-32260 to -32279) ----

var (
	ErrChainIntegrity = &EngineError{Code: -32260, Message: "audit chain integrity failure"}
	ErrChainBroken    = &EngineError{Code: -32261, Message: "audit chain verification failed"}
)

// ---- Store / config (-32130 to -32159) ----

var (
	ErrStoreInit       = &EngineError{Code: -32130, Message: "failed to initialize store"}
	ErrStoreQuery      = &EngineError{Code: -32131, Message: "store query failed"}
	ErrStoreWrite      = &EngineError{Code: -32132, Message: "store write failed"}
	ErrSchemaMigration = &EngineError{Code: -32133, Message: "schema migration failed"}
	ErrConfigInvalid   = &EngineError{Code: -32136, Message: "invalid configuration"}
	ErrNotFound        = &EngineError{Code: -32137, Message: "record not found"}
)
