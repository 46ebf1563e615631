package scanning

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedResponse is matched by every MalformedResponseError.
var ErrMalformedResponse = errors.New("malformed model response")

// MalformedResponseError means the model reply was not a JSON object.
// Content holds the raw reply for diagnostics; it is not shown to users.
type MalformedResponseError struct {
	Content string
	Err     error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("model response is not a JSON object: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }

// parseJSONObject parses text as a single JSON object. No repair is
// attempted: code fences, prose around the object or trailing data all fail.
func parseJSONObject(text string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &out); err != nil {
		return nil, &MalformedResponseError{Content: text, Err: err}
	}
	if out == nil {
		return nil, &MalformedResponseError{Content: text, Err: errors.New("null document")}
	}
	return out, nil
}
