package invoice

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/zombor/invoice-ocr/internal/acquisition"
	"github.com/zombor/invoice-ocr/internal/schema"
)

// maxFormSize bounds multipart uploads; high-resolution phone photos fit.
const maxFormSize = int64(50 << 20)

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// writeFailure renders any error as a single message
func writeFailure(w http.ResponseWriter, err error) {
	f := DescribeError(err)
	writeJSON(w, f.Status, f)
}

// readInput extracts the image source from a multipart upload or a url field.
// The returned cleanup func must be called once the input is consumed.
func readInput(w http.ResponseWriter, r *http.Request) (Input, func(), error) {
	noop := func() {}
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize)

	err := r.ParseMultipartForm(maxFormSize)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return Input{}, noop, errTooLarge
		}
		return Input{}, noop, errBadForm
	}

	if r.MultipartForm != nil {
		if f, header, err := r.FormFile("file"); err == nil {
			return Input{File: f, Filename: header.Filename}, func() { f.Close() }, nil
		}
	}

	return Input{URL: strings.TrimSpace(r.FormValue("url"))}, noop, nil
}

var (
	errTooLarge = errors.New("file is too large. Maximum size is 50MB. Please compress or resize your image")
	errBadForm  = errors.New("error parsing form")
)

func writeInputError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusBadRequest, Failure{Kind: KindInvalidInput, Message: err.Error()})
}

// handleIndex serves the HTML interface
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(indexHTML)
}

// handleStaticCSS serves the CSS file
func (s *Server) handleStaticCSS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "text/css")
	w.Write(appCSS)
}

// handleStaticJS serves the JavaScript file
func (s *Server) handleStaticJS(w http.ResponseWriter, r *http.Request) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Write(appJS)
}

// handleSchema returns the JSON schema requested from the model
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, schema.InvoiceJSONSchema())
}

type previewResponse struct {
	MIMEType string               `json:"mime_type"`
	Source   string               `json:"source"`
	Preview  *acquisition.Preview `json:"preview"`
}

// handlePreview acquires the image and returns a displayable thumbnail
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	in, cleanup, err := readInput(w, r)
	defer cleanup()
	if err != nil {
		slog.Error("Error reading preview input", "error", err)
		writeInputError(w, err)
		return
	}

	preview, img, err := s.service.Preview(r.Context(), in)
	if err != nil {
		slog.Error("Error previewing image", "filename", in.Filename, "url", in.URL, "error", err)
		writeFailure(w, err)
		return
	}

	source := img.URL
	if source == "" {
		source = img.Filename
	}
	writeJSON(w, http.StatusOK, previewResponse{
		MIMEType: img.MIMEType,
		Source:   source,
		Preview:  preview,
	})
}

// handleExtract runs one extraction call and returns the validated invoice
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	in, cleanup, err := readInput(w, r)
	defer cleanup()
	if err != nil {
		slog.Error("Error reading extract input", "error", err)
		writeInputError(w, err)
		return
	}

	result, err := s.service.Extract(r.Context(), in)
	if err != nil {
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}
