package domain

import (
	"errors"
	"fmt"
)

// Category sentinels — use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrLimitReached     = fmt.Errorf("limit reached")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrDisabled         = fmt.Errorf("disabled")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrProviderError    = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrProviderNotFound = fmt.Errorf("llm provider not found")
	ErrToolNotFound     = fmt.Errorf("tool not found")
	ErrMaxIterations    = fmt.Errorf("agent reached max tool iterations")
	ErrSessionNotFound  = fmt.Errorf("session not found")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrEncryption       = fmt.Errorf("encryption operation failed")
	ErrDecryption       = fmt.Errorf("decryption failed")
	ErrToolFailure      = fmt.Errorf("tool execution failed")
	ErrRateLimit        = fmt.Errorf("rate limit exceeded")
	ErrAuthInvalid      = fmt.Errorf("authentication failed")

	// Record store errors.
	ErrRecordNotFound  = fmt.Errorf("record not found")
	ErrPersistence     = fmt.Errorf("persistence failed, prior state intact")
	ErrInvariant       = fmt.Errorf("record invariant violated")
	ErrWriteNotAllowed = fmt.Errorf("agent is not authorized to write this record kind")

	// Routing errors.
	ErrRoutingAmbiguous = fmt.Errorf("intent is ambiguous")
	ErrAgentNotFound    = fmt.Errorf("agent not found")
	ErrAgentInactive    = fmt.Errorf("agent not active in this session")
	ErrAgentFailed      = fmt.Errorf("agent execution failed")

	// Archive errors.
	ErrArchiveStore  = fmt.Errorf("archive store failed")
	ErrArchiveSearch = fmt.Errorf("archive search failed")

	// Gateway / RPC errors.
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Store.ApplyPlan")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "records", "router"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
// Use this with category sentinels (ErrNotFound, ErrTimeout, etc.) so that ErrorCodeOf
// can map the combination of sentinel + subsystem to a specific ErrorCode.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout)
}

// ErrorCode is a machine-parseable error category for channel and gateway surfaces.
type ErrorCode string

// Error codes. Every sentinel error maps to exactly one code.
const (
	CodeUnknown          ErrorCode = "UNKNOWN"
	CodeProviderNotFound ErrorCode = "PROVIDER_NOT_FOUND"
	CodeToolNotFound     ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure      ErrorCode = "TOOL_FAILURE"
	CodeMaxIterations    ErrorCode = "MAX_ITERATIONS"
	CodeSessionNotFound  ErrorCode = "SESSION_NOT_FOUND"
	CodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	CodeEncryption       ErrorCode = "ENCRYPTION"
	CodeDecryption       ErrorCode = "DECRYPTION"
	CodeRateLimit        ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid      ErrorCode = "AUTH_INVALID"

	CodeRecordNotFound  ErrorCode = "RECORD_NOT_FOUND"
	CodePersistence     ErrorCode = "PERSISTENCE_FAILED"
	CodeInvariant       ErrorCode = "INVARIANT_VIOLATED"
	CodeWriteNotAllowed ErrorCode = "WRITE_NOT_ALLOWED"

	CodeRoutingAmbiguous ErrorCode = "ROUTING_AMBIGUOUS"
	CodeAgentNotFound    ErrorCode = "AGENT_NOT_FOUND"
	CodeAgentInactive    ErrorCode = "AGENT_INACTIVE"
	CodeAgentFailed      ErrorCode = "AGENT_FAILED"

	CodeArchiveStore  ErrorCode = "ARCHIVE_STORE"
	CodeArchiveSearch ErrorCode = "ARCHIVE_SEARCH"

	CodeGatewayAuth       ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload ErrorCode = "RPC_INVALID_PAYLOAD"

	// Subsystem-specific codes used by subSystemCodeMap for category sentinels.
	CodePluginNotFound ErrorCode = "PLUGIN_NOT_FOUND"
	CodePluginLoad     ErrorCode = "PLUGIN_LOAD"
	CodeWASMExec       ErrorCode = "WASM_EXEC"
	CodeWASMTimeout    ErrorCode = "WASM_TIMEOUT"
	CodeBrowserTimeout ErrorCode = "BROWSER_TIMEOUT"

	// Category error codes — fallback codes when no subsystem-specific code matches.
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodeLimitReached     ErrorCode = "LIMIT_REACHED"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeDisabled         ErrorCode = "DISABLED"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeProviderError    ErrorCode = "PROVIDER_ERROR"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	// Category sentinels (fallback codes).
	ErrNotFound:         CodeNotFound,
	ErrDuplicate:        CodeDuplicate,
	ErrTimeout:          CodeTimeout,
	ErrLimitReached:     CodeLimitReached,
	ErrPermissionDenied: CodePermissionDenied,
	ErrDisabled:         CodeDisabled,
	ErrInvalidInput:     CodeInvalidInput,
	ErrProviderError:    CodeProviderError,

	// Active sentinels.
	ErrProviderNotFound:  CodeProviderNotFound,
	ErrToolNotFound:      CodeToolNotFound,
	ErrToolFailure:       CodeToolFailure,
	ErrMaxIterations:     CodeMaxIterations,
	ErrSessionNotFound:   CodeSessionNotFound,
	ErrConfigLoad:        CodeConfigLoad,
	ErrEncryption:        CodeEncryption,
	ErrDecryption:        CodeDecryption,
	ErrRateLimit:         CodeRateLimit,
	ErrAuthInvalid:       CodeAuthInvalid,
	ErrRecordNotFound:    CodeRecordNotFound,
	ErrPersistence:       CodePersistence,
	ErrInvariant:         CodeInvariant,
	ErrWriteNotAllowed:   CodeWriteNotAllowed,
	ErrRoutingAmbiguous:  CodeRoutingAmbiguous,
	ErrAgentNotFound:     CodeAgentNotFound,
	ErrAgentInactive:     CodeAgentInactive,
	ErrAgentFailed:       CodeAgentFailed,
	ErrArchiveStore:      CodeArchiveStore,
	ErrArchiveSearch:     CodeArchiveSearch,
	ErrGatewayAuthFailed: CodeGatewayAuth,
	ErrRPCMethodNotFound: CodeRPCMethodNotFound,
	ErrRPCInvalidPayload: CodeRPCInvalidPayload,
}

// subSystemCodeMap maps (subsystem, category sentinel) pairs to specific codes.
// Checked before errorCodeMap so subsystems can specialize category sentinels.
var subSystemCodeMap = map[string]map[error]ErrorCode{
	"plugin": {
		ErrNotFound:     CodePluginNotFound,
		ErrInvalidInput: CodePluginLoad,
		ErrToolFailure:  CodeWASMExec,
		ErrTimeout:      CodeWASMTimeout,
	},
	"browser": {
		ErrTimeout: CodeBrowserTimeout,
	},
}

// ErrorCodeOf extracts the machine-parseable code from an error chain.
// DomainError subsystems are consulted first, then sentinel identity.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	var de *DomainError
	if errors.As(err, &de) && de.SubSystem != "" {
		if m, ok := subSystemCodeMap[de.SubSystem]; ok {
			for sentinel, code := range m {
				if errors.Is(err, sentinel) {
					return code
				}
			}
		}
	}

	for sentinel, code := range errorCodeMap {
		if errors.Is(err, sentinel) {
			return code
		}
	}
	return CodeUnknown
}
