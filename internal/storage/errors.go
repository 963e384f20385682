package storage

import (
	"errors"
	"fmt"
	"strings"
)

const (
	CodeEndpointUnreachable = "E_ENDPOINT_UNREACHABLE"
	CodeAuthInvalid         = "E_AUTH_INVALID"
	CodeBucketNotFound      = "E_BUCKET_NOT_FOUND"
	CodePermissionDenied    = "E_PERMISSION_DENIED"
	CodeTimeout             = "E_TIMEOUT"
	CodeLocalFile           = "E_LOCAL_FILE"
	CodeInvalidConfig       = "E_INVALID_CONFIG"
	CodeWriteFailed         = "E_WRITE_FAILED"
)

// Error is a classified storage failure.
type Error struct {
	Code      string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error { return e.Err }

func wrapError(code string, retryable bool, err error) *Error {
	return &Error{Code: code, Retryable: retryable, Err: err}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

// classifyByCode maps provider error codes shared by S3 and MinIO.
func classifyByCode(code string, err error) (*Error, bool) {
	switch code {
	case "NoSuchBucket":
		return wrapError(CodeBucketNotFound, false, err), true
	case "AccessDenied", "Forbidden":
		return wrapError(CodePermissionDenied, false, err), true
	case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "NoCredentialProviders":
		return wrapError(CodeAuthInvalid, false, err), true
	case "RequestTimeout", "RequestTimeTooSkewed":
		return wrapError(CodeTimeout, true, err), true
	}
	return nil, false
}

// classifyMessage is the fallback when the SDK error carries no usable code.
func classifyMessage(err error) *Error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such bucket"):
		return wrapError(CodeBucketNotFound, false, err)
	case strings.Contains(msg, "access denied") || strings.Contains(msg, "permission"):
		return wrapError(CodePermissionDenied, false, err)
	case strings.Contains(msg, "invalid access key") || strings.Contains(msg, "signature"):
		return wrapError(CodeAuthInvalid, false, err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "deadline"):
		return wrapError(CodeTimeout, true, err)
	case strings.Contains(msg, "connection refused") || strings.Contains(msg, "no such host") || strings.Contains(msg, "unreachable"):
		return wrapError(CodeEndpointUnreachable, true, err)
	}
	return wrapError(CodeWriteFailed, true, err)
}
