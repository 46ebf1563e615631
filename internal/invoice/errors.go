package invoice

import (
	"errors"
	"net/http"

	"github.com/zombor/invoice-ocr/internal/acquisition"
	"github.com/zombor/invoice-ocr/internal/scanning"
	"github.com/zombor/invoice-ocr/internal/schema"
)

// ErrorPrefix marks a message as an error state in the UI and CLI.
const ErrorPrefix = "❌ "

// Error kinds reported to clients.
const (
	KindInvalidInput      = "invalid_input"
	KindFetchError        = "fetch_error"
	KindDisplayError      = "display_error"
	KindMalformedResponse = "malformed_response"
	KindSchemaViolation   = "schema_violation"
	KindUnknown           = "unknown"
)

// Failure is an error converted to a single human-readable message.
type Failure struct {
	Kind    string `json:"kind"`
	Message string `json:"error"`
	Status  int    `json:"-"`
}

// DescribeError converts any pipeline error to a Failure.
func DescribeError(err error) Failure {
	var violation *schema.ViolationError
	switch {
	case errors.Is(err, ErrNoImage):
		return Failure{KindInvalidInput, "No image provided. Upload a .png, .jpg or .jpeg file or enter an image URL.", http.StatusBadRequest}
	case errors.Is(err, acquisition.ErrFetch):
		return Failure{KindFetchError, "Error loading image from URL: " + err.Error(), http.StatusBadGateway}
	case errors.Is(err, acquisition.ErrDisplay):
		return Failure{KindDisplayError, "Error displaying image: the file is not a readable image.", http.StatusUnprocessableEntity}
	case errors.Is(err, scanning.ErrMalformedResponse):
		return Failure{KindMalformedResponse, "Failed to parse invoice: the model did not return valid JSON.", http.StatusBadGateway}
	case errors.As(err, &violation):
		return Failure{KindSchemaViolation, "Failed to parse invoice: " + violation.Error(), http.StatusUnprocessableEntity}
	default:
		return Failure{KindUnknown, "Failed to parse invoice: " + err.Error(), http.StatusInternalServerError}
	}
}

// Display returns the message with the error-state prefix.
func (f Failure) Display() string {
	return ErrorPrefix + f.Message
}
