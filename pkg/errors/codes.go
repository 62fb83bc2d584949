package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
// Codes are namespaced by module prefix: COMMON, MOL, GEN, ENR.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeTooManyRequests    ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeExternalService    ErrorCode = "COMMON_014"
)

// Sentinel-like codes used by the chain helpers.
const (
	CodeOK      ErrorCode = "OK"
	CodeUnknown ErrorCode = "UNKNOWN"
)

// Molecule Error Codes
const (
	ErrCodeMoleculeInvalidSMILES      ErrorCode = "MOL_001"
	ErrCodeMoleculeNotFound           ErrorCode = "MOL_004"
	ErrCodeSimilarityThresholdInvalid ErrorCode = "MOL_010"
	ErrCodeDiseaseUnsupported         ErrorCode = "MOL_016"
)

// Generation Error Codes
const (
	// ErrCodeGenerationFailed marks a failed remote generation call.
	ErrCodeGenerationFailed ErrorCode = "GEN_001"
	// ErrCodeOracleFailed marks a failure of the fallback synthesis oracle.
	ErrCodeOracleFailed ErrorCode = "GEN_002"
	// ErrCodeGenerationSuperseded is returned to a cycle replaced by a newer submission.
	ErrCodeGenerationSuperseded ErrorCode = "GEN_003"
	// ErrCodeGenerationClosed is returned when the coordinator was torn down mid-cycle.
	ErrCodeGenerationClosed ErrorCode = "GEN_004"
)

// Enrichment Error Codes
const (
	ErrCodeEnrichmentFailed ErrorCode = "ENR_001"
	ErrCodeStaleResult      ErrorCode = "ENR_002"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeTooManyRequests:    http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeExternalService:    http.StatusBadGateway,

	ErrCodeMoleculeInvalidSMILES:      http.StatusBadRequest,
	ErrCodeMoleculeNotFound:           http.StatusNotFound,
	ErrCodeSimilarityThresholdInvalid: http.StatusBadRequest,
	ErrCodeDiseaseUnsupported:         http.StatusBadRequest,

	ErrCodeGenerationFailed:     http.StatusBadGateway,
	ErrCodeOracleFailed:         http.StatusInternalServerError,
	ErrCodeGenerationSuperseded: http.StatusConflict,
	ErrCodeGenerationClosed:     http.StatusConflict,

	ErrCodeEnrichmentFailed: http.StatusBadGateway,
	ErrCodeStaleResult:      http.StatusConflict,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeTooManyRequests:    "too many requests",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeExternalService:    "external service error",

	ErrCodeMoleculeInvalidSMILES:      "invalid SMILES",
	ErrCodeMoleculeNotFound:           "molecule not found",
	ErrCodeSimilarityThresholdInvalid: "invalid similarity threshold",
	ErrCodeDiseaseUnsupported:         "unsupported target disease",

	ErrCodeGenerationFailed:     "molecule generation failed",
	ErrCodeOracleFailed:         "fallback generator failed",
	ErrCodeGenerationSuperseded: "generation superseded by a newer request",
	ErrCodeGenerationClosed:     "generation cancelled",

	ErrCodeEnrichmentFailed: "molecule lookup failed",
	ErrCodeStaleResult:      "result superseded by a newer request",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 1 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}
