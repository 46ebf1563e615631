package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
)

// Invocation policy shared by every provider.
const (
	Temperature     = 0.4
	MaxOutputTokens = 1024
)

// Image is the image reference sent to the model: inline bytes, a remote
// URL, or both. Providers that accept URLs prefer URL when it is set.
type Image struct {
	Data     []byte
	MIMEType string
	URL      string
}

// DataURI returns the image inlined as a base64 data URI.
func (i Image) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", i.MIMEType, base64.StdEncoding.EncodeToString(i.Data))
}

// Scanner performs one extraction call against a multimodal model
type Scanner interface {
	// Scan sends the prompt followed by the image in a single user turn and
	// returns the model's reply parsed as a JSON object. It makes exactly one
	// network round trip and never retries.
	Scan(ctx context.Context, prompt string, img Image) (map[string]any, error)
	// Close closes the scanner and releases resources
	Close() error
}
