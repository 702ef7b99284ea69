// Package sdkerr implements the typed error and context framework shared
// across the runtime. Every fallible operation returns either success data
// or an *Error; errors are never used as a substitute for normal control
// flow.
//
// Style follows the plain error-wrapping convention used elsewhere in the
// runtime: sentinel errors for programmatic checks, %w wrapping for
// human-readable chains.
package sdkerr

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

// Category groups error Codes for coarse-grained handling and metrics
// cardinality.
type Category string

const (
	CategoryInitialization Category = "initialization"
	CategoryModel          Category = "model"
	CategoryGeneration     Category = "generation"
	CategoryNetwork        Category = "network"
	CategoryStorage        Category = "storage"
	CategoryMemory         Category = "memory"
	CategoryHardware       Category = "hardware"
	CategoryValidation     Category = "validation"
	CategoryAuthentication Category = "authentication"
	CategoryComponent      Category = "component"
	CategoryFramework      Category = "framework"
	CategoryUnknown        Category = "unknown"
)

// Code is a stable, machine-readable error identifier.
type Code string

const (
	CodeNotInitialized       Code = "not_initialized"
	CodeAlreadyInitialized   Code = "already_initialized"
	CodeInvalidConfig        Code = "invalid_config"
	CodeComponentInitFailed  Code = "component_init_failed"
	CodeModelNotFound        Code = "model_not_found"
	CodeUnsupportedFormat    Code = "unsupported_format"
	CodeChecksumMismatch     Code = "checksum_mismatch"
	CodeIncompatibleFramework Code = "incompatible_framework"
	CodeUnsupportedModality  Code = "unsupported_modality"
	CodeGenerationFailed     Code = "generation_failed"
	CodeGenerationTimeout    Code = "generation_timeout"
	CodeStreamingNotSupported Code = "streaming_not_supported"
	CodeContextLengthExceeded Code = "context_length_exceeded"
	CodeNetworkUnavailable   Code = "network_unavailable"
	CodeNetworkTimeout       Code = "network_timeout"
	CodeUnauthorized         Code = "unauthorized"
	CodeForbidden            Code = "forbidden"
	CodeHTTPError            Code = "http_error"
	CodeValidationFailed     Code = "validation_failed"
	CodeDiskFull             Code = "disk_full"
	CodeIOError              Code = "io_error"
	CodeCorruptDatabase      Code = "corrupt_database"
	CodeOutOfMemory          Code = "out_of_memory"
	CodeModelTooLarge        Code = "model_too_large"
	CodeAcceleratorUnavailable Code = "accelerator_unavailable"
	CodeThermalThrottled     Code = "thermal_throttled"
	CodeInvalidAPIKey        Code = "invalid_api_key"
	CodeExpiredToken         Code = "expired_token"
	CodeComponentNotReady    Code = "component_not_ready"
	CodeInvalidState         Code = "invalid_state"
	CodeFrameworkNotAvailable Code = "framework_not_available"
	CodeLoadFailed           Code = "load_failed"
	CodeCancelled            Code = "cancelled"
	CodeAuthenticationFailed Code = "authentication_failed"
	CodeAdapterNotFound      Code = "adapter_not_found"
	CodeDownloadFailed       Code = "download_failed"
	CodeExtractionFailed     Code = "extraction_failed"
	CodeServiceInitFailed    Code = "service_init_failed"
)

// Context captures where and when an error occurred, for diagnostics only.
// It must never be surfaced through PublicError: public descriptions do not
// leak internal file paths or stack traces.
type Context struct {
	File      string
	Line      int
	Function  string
	Thread    string
	Timestamp time.Time
	Stack     string
}

// CaptureContext records the caller's location. skip is the number of stack
// frames to skip (0 = the function calling CaptureContext).
func CaptureContext(skip int) Context {
	ctx := Context{Timestamp: time.Now()}
	pc, file, line, ok := runtime.Caller(skip + 1)
	if ok {
		ctx.File = file
		ctx.Line = line
		if fn := runtime.FuncForPC(pc); fn != nil {
			ctx.Function = fn.Name()
		}
	}
	return ctx
}

// Error is the runtime's internal error type. It always carries a stable
// Code and Category; Underlying and Ctx are optional.
type Error struct {
	Code       Code
	Category   Category
	Message    string
	Underlying error
	Ctx        Context
}

// New constructs an *Error with a captured context.
func New(code Code, category Category, message string) *Error {
	return &Error{Code: code, Category: category, Message: message, Ctx: CaptureContext(1)}
}

// Wrap constructs an *Error around an underlying cause.
func Wrap(code Code, category Category, message string, underlying error) *Error {
	return &Error{Code: code, Category: category, Message: message, Underlying: underlying, Ctx: CaptureContext(1)}
}

func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap exposes Underlying for errors.Is/errors.As chains.
func (e *Error) Unwrap() error { return e.Underlying }

// Is reports whether target is an *Error with the same Code, so that
// sentinel-style checks (errors.Is(err, sdkerr.New(CodeModelNotFound, ...)))
// work without requiring the exact same instance.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

// PublicCode is the small, stable enum exposed across the SDK's public
// boundary. Richer diagnostics remain available internally via Context.
type PublicCode string

const (
	PublicNotInitialized     PublicCode = "notInitialized"
	PublicModelNotFound      PublicCode = "modelNotFound"
	PublicLoadingFailed      PublicCode = "loadingFailed"
	PublicGenerationFailed   PublicCode = "generationFailed"
	PublicNetworkUnavailable PublicCode = "networkUnavailable"
	PublicTimeout            PublicCode = "timeout"
	PublicStorageFull        PublicCode = "storageFull"
	PublicValidationFailed   PublicCode = "validationFailed"
	PublicRequestFailed      PublicCode = "requestFailed"
)

// PublicError is the small, stable surface handed to host applications. It
// never carries file paths, stack traces, or internal codes.
type PublicError struct {
	PublicCode PublicCode
	Reason     string
}

func (p *PublicError) Error() string {
	if p.Reason == "" {
		return string(p.PublicCode)
	}
	return fmt.Sprintf("%s: %s", p.PublicCode, p.Reason)
}

// codeToPublic maps internal Codes to the public surface. Codes with no
// explicit mapping fall through to PublicRequestFailed.
var codeToPublic = map[Code]PublicCode{
	CodeNotInitialized:       PublicNotInitialized,
	CodeComponentNotReady:    PublicNotInitialized,
	CodeModelNotFound:        PublicModelNotFound,
	CodeDownloadFailed:       PublicLoadingFailed,
	CodeExtractionFailed:     PublicLoadingFailed,
	CodeChecksumMismatch:     PublicLoadingFailed,
	CodeServiceInitFailed:    PublicLoadingFailed,
	CodeAdapterNotFound:      PublicLoadingFailed,
	CodeGenerationFailed:     PublicGenerationFailed,
	CodeGenerationTimeout:    PublicTimeout,
	CodeContextLengthExceeded: PublicGenerationFailed,
	CodeNetworkUnavailable:   PublicNetworkUnavailable,
	CodeNetworkTimeout:       PublicTimeout,
	CodeDiskFull:             PublicStorageFull,
	CodeValidationFailed:     PublicValidationFailed,
}

// ToPublic converts an internal *Error to the stable public surface,
// stripping file paths and stack traces.
func ToPublic(err error) *PublicError {
	var e *Error
	if !errors.As(err, &e) {
		return &PublicError{PublicCode: PublicRequestFailed, Reason: err.Error()}
	}
	pc, ok := codeToPublic[e.Code]
	if !ok {
		pc = PublicRequestFailed
	}
	return &PublicError{PublicCode: pc, Reason: e.Message}
}
