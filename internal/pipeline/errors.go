package pipeline

import "errors"

// Stage failures. Each is fatal to its partition only; test with errors.Is.
var (
	ErrRetrieval  = errors.New("retrieval failed")
	ErrExtraction = errors.New("extraction failed")
	ErrParse      = errors.New("parse failed")
	ErrUpload     = errors.New("upload failed")
	ErrPersist    = errors.New("persist failed")
)

// Classify names the stage sentinel wrapped by err, or "unknown".
func Classify(err error) string {
	for _, s := range []error{ErrRetrieval, ErrExtraction, ErrParse, ErrUpload, ErrPersist} {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "unknown"
}
