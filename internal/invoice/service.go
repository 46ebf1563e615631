package invoice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/zombor/invoice-ocr/internal/acquisition"
	"github.com/zombor/invoice-ocr/internal/scanning"
	"github.com/zombor/invoice-ocr/internal/schema"
)

// ErrNoImage means the request carried neither an upload nor a URL.
var ErrNoImage = errors.New("no image provided")

// IDGenerator generates request IDs for log correlation
type IDGenerator interface {
	Generate() string
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// Fetcher loads an image from a URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*acquisition.Image, error)
}

// Input is one of the two image sources. File takes precedence over URL.
type Input struct {
	File     io.Reader
	Filename string
	URL      string
}

// DroppedLineItem describes a line item removed under the tolerant policy.
type DroppedLineItem struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Result is the outcome of a successful extraction.
type Result struct {
	Invoice          *schema.InvoiceData `json:"invoice"`
	MIMEType         string              `json:"mime_type"`
	DroppedLineItems []DroppedLineItem   `json:"dropped_line_items,omitempty"`
}

// Service runs the acquire, check, prompt, scan and validate pipeline.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	scanner     scanning.Scanner
	fetcher     Fetcher
	validator   *schema.Validator
	idGenerator IDGenerator
}

// NewService creates a new Service with the default ID generator
func NewService(scanner scanning.Scanner, fetcher Fetcher, validator *schema.Validator) *Service {
	return NewServiceWithDeps(scanner, fetcher, validator, &defaultIDGenerator{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(scanner scanning.Scanner, fetcher Fetcher, validator *schema.Validator, idGen IDGenerator) *Service {
	return &Service{
		scanner:     scanner,
		fetcher:     fetcher,
		validator:   validator,
		idGenerator: idGen,
	}
}

// Acquire reads the image bytes and MIME type from the input
func (s *Service) Acquire(ctx context.Context, in Input) (*acquisition.Image, error) {
	switch {
	case in.File != nil:
		return acquisition.FromUpload(in.File, in.Filename)
	case in.URL != "":
		return s.fetcher.Fetch(ctx, in.URL)
	default:
		return nil, ErrNoImage
	}
}

// Preview acquires the image and renders a displayable thumbnail
func (s *Service) Preview(ctx context.Context, in Input) (*acquisition.Preview, *acquisition.Image, error) {
	img, err := s.Acquire(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	preview, err := acquisition.NewPreview(img)
	if err != nil {
		return nil, nil, err
	}
	return preview, img, nil
}

// Extract acquires the image, sends it to the model and validates the reply.
// Images that cannot be displayed are rejected before any model call.
func (s *Service) Extract(ctx context.Context, in Input) (*Result, error) {
	rid := s.idGenerator.Generate()
	start := time.Now()
	log := slog.With("req_id", rid)

	img, err := s.Acquire(ctx, in)
	if err != nil {
		log.Error("Failed to acquire image", "url", in.URL, "filename", in.Filename, "error", err)
		return nil, err
	}
	log.Info("Extracting invoice", "mime_type", img.MIMEType, "file_size", len(img.Data), "remote", img.URL != "")

	if _, _, err := acquisition.Decode(img); err != nil {
		log.Error("Image is not displayable", "error", err)
		return nil, err
	}

	prompt, err := scanning.BuildPrompt(schema.InvoiceJSONSchema())
	if err != nil {
		return nil, fmt.Errorf("building prompt: %w", err)
	}

	doc, err := s.scanner.Scan(ctx, prompt, scanning.Image{
		Data:     img.Data,
		MIMEType: img.MIMEType,
		URL:      img.URL,
	})
	if err != nil {
		var malformed *scanning.MalformedResponseError
		if errors.As(err, &malformed) {
			log.Error("Model returned malformed JSON", "content", malformed.Content, "error", err)
		} else {
			log.Error("Failed to scan invoice", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		}
		return nil, fmt.Errorf("scanning invoice: %w", err)
	}

	data, dropped, err := s.validator.Validate(doc)
	for _, d := range dropped {
		log.Warn("Dropped malformed line item", "path", d.Path, "reason", d.Message)
	}
	if err != nil {
		log.Error("Model output does not match schema", "error", err, "policy", s.validator.Policy(), "output", doc)
		return nil, fmt.Errorf("validating invoice: %w", err)
	}

	result := &Result{Invoice: data, MIMEType: img.MIMEType}
	for _, d := range dropped {
		result.DroppedLineItems = append(result.DroppedLineItems, DroppedLineItem{Path: d.Path, Message: d.Message})
	}

	log.Info("Invoice extracted",
		"line_items", len(data.LineItems),
		"dropped_line_items", len(dropped),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}
