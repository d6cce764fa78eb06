package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges:
// 10000-10999: System & common errors
// 12000-12999: Test case upload errors
// 13000-13999: Test result errors
// 14000-14999: CI integration errors
const (
	Success ErrorCode = 10000

	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002

	// Storage (10100-10199)
	StorageError       ErrorCode = 10100
	StorageReadFailed  ErrorCode = 10101
	StorageWriteFailed ErrorCode = 10102

	// Cache (10200-10299)
	CacheError ErrorCode = 10200

	// Validation (10300-10399)
	InvalidFormat ErrorCode = 10301

	TestCaseUploadFailed ErrorCode = 12101
	TestCaseTooLarge     ErrorCode = 12103

	InvalidVerdict ErrorCode = 13000

	CIRequestFailed   ErrorCode = 14000
	CINotConfigured   ErrorCode = 14001
	CIUnexpectedReply ErrorCode = 14002
)

var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",

	StorageError:       "Storage operation failed",
	StorageReadFailed:  "Failed to read from storage",
	StorageWriteFailed: "Failed to write to storage",
	CacheError:         "Cache operation failed",

	InvalidFormat: "Invalid format",

	TestCaseUploadFailed: "Failed to upload test cases",
	TestCaseTooLarge:     "Test case file is too large",

	InvalidVerdict: "Invalid test result value. Use 'Pass' or 'Fail'",

	CIRequestFailed:   "CI request failed",
	CINotConfigured:   "CI job runner is not configured",
	CIUnexpectedReply: "CI job runner returned an unexpected response",
}

// Message returns the default message for the code.
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus maps the code to the status the dashboard answers with.
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == TestCaseTooLarge:
		return 413
	case c == InvalidParams, c == InvalidFormat, c == InvalidVerdict:
		return 400
	case c >= 14000 && c < 15000:
		return 502
	default:
		return 500
	}
}
