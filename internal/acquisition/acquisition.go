package acquisition

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

// ErrFetch is matched by every FetchError.
var ErrFetch = errors.New("fetch error")

// DefaultURLMIMEType is used for fetched images whose type is not trusted or not known.
const DefaultURLMIMEType = "image/jpeg"

// Image is raw image bytes plus the MIME type used to transmit them.
// URL is set when the image was fetched from a remote address.
type Image struct {
	Data     []byte
	MIMEType string
	URL      string
	Filename string
}

// FetchError reports an image URL that could not be loaded.
type FetchError struct {
	URL        string
	StatusCode int // 0 when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetching %s: status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fetching %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// MIMEFromFilename maps an upload's extension to a MIME type.
// jpg and jpeg map to image/jpeg; everything else, including a missing
// extension, maps to image/png. File content is not inspected.
func MIMEFromFilename(filename string) string {
	switch strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), ".")) {
	case "jpg", "jpeg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}

// FromUpload reads all bytes from r, consuming it once.
func FromUpload(r io.Reader, filename string) (*Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	return &Image{
		Data:     data,
		MIMEType: MIMEFromFilename(filename),
		Filename: filename,
	}, nil
}

// MIMEPolicy decides the MIME type recorded for fetched images.
type MIMEPolicy string

const (
	// TrustHeader uses the served Content-Type when it is an image type.
	TrustHeader MIMEPolicy = "header"
	// Fixed always uses DefaultURLMIMEType.
	Fixed MIMEPolicy = "fixed"
)

// ParseMIMEPolicy parses a policy name, case-insensitively.
func ParseMIMEPolicy(s string) (MIMEPolicy, error) {
	switch MIMEPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case TrustHeader, "":
		return TrustHeader, nil
	case Fixed:
		return Fixed, nil
	default:
		return "", fmt.Errorf("unknown url mime policy %q (valid: header, fixed)", s)
	}
}

// Fetcher loads images from URLs with a plain GET.
type Fetcher struct {
	client *http.Client
	policy MIMEPolicy
}

// NewFetcher creates a Fetcher. A nil client means http.DefaultClient.
func NewFetcher(client *http.Client, policy MIMEPolicy) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if policy == "" {
		policy = TrustHeader
	}
	return &Fetcher{client: client, policy: policy}
}

// Fetch downloads the image at url. Non-2xx responses and transport
// failures are returned as *FetchError and no bytes are returned.
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("reading body: %w", err)}
	}

	return &Image{
		Data:     data,
		MIMEType: f.mimeType(resp.Header.Get("Content-Type")),
		URL:      url,
	}, nil
}

func (f *Fetcher) mimeType(contentType string) string {
	if f.policy == Fixed {
		return DefaultURLMIMEType
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return DefaultURLMIMEType
	}
	return mediaType
}
