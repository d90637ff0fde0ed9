package errors

import "fmt"

// Kind classifies an AppError for the pipeline's error-handling driver:
// whether it should be retried, swallowed, logged-and-skipped, or treated
// as fatal.
type Kind string

const (
	KindTransientStorage  Kind = "transient_storage"
	KindInvalidGeometry   Kind = "invalid_geometry"
	KindLoader            Kind = "loader"
	KindPipelineInvariant Kind = "pipeline_invariant"
	KindExternalService   Kind = "external_service"
	KindUnknown           Kind = "unknown"
)

type AppError struct {
	Kind    Kind                   `json:"kind"`
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(kind Kind, code, message string) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

func (e *AppError) WithDetails(details map[string]interface{}) *AppError {
	e.Details = details
	return e
}

// TransientStorage wraps a retryable storage failure (connection reset,
// serialization failure, deadlock). The retry package retries these with
// jittered backoff before giving up.
func TransientStorage(message string, cause error) *AppError {
	return New(KindTransientStorage, "TRANSIENT_STORAGE_ERROR", message).WithCause(cause)
}

// InvalidGeometry wraps a malformed or degenerate geometry encountered
// during a spatial query or computation. Callers in the object store
// swallow these and log rather than propagate.
func InvalidGeometry(message string, cause error) *AppError {
	return New(KindInvalidGeometry, "INVALID_GEOMETRY_ERROR", message).WithCause(cause)
}

// Loader wraps a single malformed input feature. The loader logs and skips
// the feature rather than aborting the whole load.
func Loader(message string, cause error) *AppError {
	return New(KindLoader, "LOADER_ERROR", message).WithCause(cause)
}

// PipelineInvariant wraps a violation of a pipeline invariant. Always
// fatal: the pipeline run aborts.
func PipelineInvariant(message string) *AppError {
	return New(KindPipelineInvariant, "PIPELINE_INVARIANT_ERROR", message)
}

// ExternalService wraps a failure from the geocoder or snow-cover archive.
// Logged and treated as non-fatal; the record is augmented without that
// field.
func ExternalService(message string, cause error) *AppError {
	return New(KindExternalService, "EXTERNAL_SERVICE_ERROR", message).WithCause(cause)
}

// Classify recovers the Kind of an error produced anywhere in this module,
// defaulting to KindUnknown for errors that didn't originate from the
// helpers above (those are always treated as fatal by the pipeline driver).
func Classify(err error) Kind {
	for err != nil {
		if ae, ok := err.(*AppError); ok {
			return ae.Kind
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return KindUnknown
}
