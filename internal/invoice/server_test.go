package invoice

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/invoice-ocr/internal/acquisition"
	"github.com/zombor/invoice-ocr/internal/schema"
)

func multipartUpload(filename string, data []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filename)
	Expect(err).NotTo(HaveOccurred())
	_, err = part.Write(data)
	Expect(err).NotTo(HaveOccurred())
	Expect(writer.Close()).To(Succeed())
	return body, writer.FormDataContentType()
}

func decodeBody(resp *http.Response, v any) {
	defer resp.Body.Close()
	Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
}

var _ = Describe("Server", func() {
	var (
		scanner     *mockScanner
		service     *Service
		server      *Server
		auth        BasicAuth
		ghttpServer *ghttp.Server
		imageServer *ghttp.Server
	)

	setupServer := func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
		validator, err := schema.NewValidator(schema.Strict)
		Expect(err).NotTo(HaveOccurred())
		service = NewServiceWithDeps(scanner, acquisition.NewFetcher(nil, acquisition.TrustHeader), validator, fixedIDGenerator{})
		server = NewServerWithMux(service, auth, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
		ghttpServer.AppendHandlers(server.ServeHTTP)
	}

	BeforeEach(func() {
		scanner = newMockScanner(sampleResponse)
		auth = BasicAuth{}
		imageServer = ghttp.NewServer()
		setupServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
			ghttpServer = nil
		}
		imageServer.Close()
	})

	postUpload := func(path, filename string, data []byte) *http.Response {
		body, contentType := multipartUpload(filename, data)
		resp, err := http.Post(ghttpServer.URL()+path, contentType, body)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	postURL := func(path, imageURL string) *http.Response {
		resp, err := http.PostForm(ghttpServer.URL()+path, url.Values{"url": {imageURL}})
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	Describe("handleIndex", func() {
		When("request method is GET", func() {
			It("should return HTML containing Invoice OCR", func() {
				resp, err := http.Get(ghttpServer.URL() + "/")
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				body, err := io.ReadAll(resp.Body)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(body)).To(ContainSubstring("Invoice OCR"))
			})
		})

		When("request method is not GET", func() {
			It("should return status Method Not Allowed", func() {
				resp, err := http.Post(ghttpServer.URL()+"/", "text/plain", nil)
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusMethodNotAllowed))
				resp.Body.Close()
			})
		})
	})

	Describe("static assets", func() {
		DescribeTable("serving embedded files",
			func(path, contentType string) {
				resp, err := http.Get(ghttpServer.URL() + path)
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(HavePrefix(contentType))
			},
			Entry("css", "/static/app.css", "text/css"),
			Entry("js", "/static/app.js", "application/javascript"),
		)
	})

	Describe("handleSchema", func() {
		It("should return the invoice schema", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/schema")
			Expect(err).NotTo(HaveOccurred())
			var got map[string]any
			decodeBody(resp, &got)
			Expect(got).To(HaveKeyWithValue("title", "InvoiceData"))
			Expect(got["properties"]).To(HaveKey("line_items"))
		})
	})

	Describe("handleExtract", func() {
		When("an invoice image is uploaded", func() {
			It("should render every field, absent ones as null", func() {
				resp := postUpload("/api/extract", "invoice.png", pngBytes(8, 8))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var got struct {
					Invoice  map[string]any `json:"invoice"`
					MIMEType string         `json:"mime_type"`
				}
				decodeBody(resp, &got)

				Expect(got.MIMEType).To(Equal("image/png"))
				Expect(got.Invoice).To(HaveKeyWithValue("invoice_number", "INV-1"))
				Expect(got.Invoice).To(HaveKeyWithValue("total_amount", 10.0))
				Expect(got.Invoice).To(HaveLen(12))
				for _, key := range []string{
					"invoice_date", "due_date", "billing_address", "shipping_address",
					"vendor_name", "customer_name", "subtotal", "tax", "currency",
				} {
					Expect(got.Invoice).To(HaveKeyWithValue(key, BeNil()), key)
				}

				items, ok := got.Invoice["line_items"].([]any)
				Expect(ok).To(BeTrue())
				Expect(items).To(HaveLen(1))
				Expect(items[0]).To(Equal(map[string]any{
					"description": "Widget",
					"quantity":    2.0,
					"unit_price":  5.0,
					"total_price": 10.0,
				}))
			})

			It("should map a .jpg upload to image/jpeg", func() {
				resp := postUpload("/api/extract", "scan.JPG", pngBytes(4, 4))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
				Expect(scanner.lastImage.MIMEType).To(Equal("image/jpeg"))
			})
		})

		When("the image URL returns 404", func() {
			BeforeEach(func() {
				imageServer.AppendHandlers(ghttp.RespondWith(http.StatusNotFound, "missing"))
			})

			It("should report a fetch error mentioning the status", func() {
				resp := postURL("/api/extract", imageServer.URL()+"/missing.png")
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				var f Failure
				decodeBody(resp, &f)
				Expect(f.Kind).To(Equal(KindFetchError))
				Expect(f.Message).To(ContainSubstring("404"))
				Expect(scanner.calls).To(BeZero())
			})
		})

		When("the image URL serves an image", func() {
			BeforeEach(func() {
				imageServer.AppendHandlers(ghttp.RespondWith(http.StatusOK, pngBytes(4, 4),
					http.Header{"Content-Type": []string{"image/png"}}))
			})

			It("should extract from the fetched image", func() {
				resp := postURL("/api/extract", imageServer.URL()+"/invoice")
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				resp.Body.Close()
				Expect(scanner.lastImage.URL).To(Equal(imageServer.URL() + "/invoice"))
				Expect(scanner.lastImage.MIMEType).To(Equal("image/png"))
			})
		})

		When("the model returns malformed JSON", func() {
			BeforeEach(func() {
				scanner.response = "Sure! Here is the invoice."
			})

			It("should report a malformed response", func() {
				resp := postUpload("/api/extract", "invoice.png", pngBytes(4, 4))
				Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))
				var f Failure
				decodeBody(resp, &f)
				Expect(f.Kind).To(Equal(KindMalformedResponse))
				Expect(f.Message).NotTo(ContainSubstring("Sure!"))
			})
		})

		When("the model output violates the schema", func() {
			BeforeEach(func() {
				scanner.response = `{"invoice_number":"INV-1","total_amount":"abc"}`
			})

			It("should name the offending field", func() {
				resp := postUpload("/api/extract", "invoice.png", pngBytes(4, 4))
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				var f Failure
				decodeBody(resp, &f)
				Expect(f.Kind).To(Equal(KindSchemaViolation))
				Expect(f.Message).To(ContainSubstring("total_amount"))
			})
		})

		When("the upload is not an image", func() {
			It("should report a display error without calling the model", func() {
				resp := postUpload("/api/extract", "invoice.png", []byte("%PDF-1.4"))
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				var f Failure
				decodeBody(resp, &f)
				Expect(f.Kind).To(Equal(KindDisplayError))
				Expect(scanner.calls).To(BeZero())
			})
		})

		When("no image is provided", func() {
			It("should return Bad Request", func() {
				resp := postURL("/api/extract", "  ")
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				var f Failure
				decodeBody(resp, &f)
				Expect(f.Kind).To(Equal(KindInvalidInput))
			})
		})

		When("the body is not a form", func() {
			It("should return Bad Request", func() {
				resp, err := http.Post(ghttpServer.URL()+"/api/extract", "multipart/form-data; boundary=x", strings.NewReader("garbage"))
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
				resp.Body.Close()
			})
		})
	})

	Describe("handlePreview", func() {
		It("should return a thumbnail and the MIME type", func() {
			resp := postUpload("/api/preview", "invoice.jpeg", pngBytes(10, 20))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var got previewResponse
			decodeBody(resp, &got)
			Expect(got.MIMEType).To(Equal("image/jpeg"))
			Expect(got.Source).To(Equal("invoice.jpeg"))
			Expect(got.Preview.Width).To(Equal(10))
			Expect(got.Preview.Height).To(Equal(20))
			Expect(got.Preview.DataURI).To(HavePrefix("data:image/png;base64,"))
			Expect(scanner.calls).To(BeZero())
		})

		It("should report undisplayable uploads", func() {
			resp := postUpload("/api/preview", "invoice.png", []byte("nope"))
			Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
			resp.Body.Close()
		})
	})

	Describe("basic auth", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "admin", Password: "secret"}
			setupServer()
		})

		It("should reject requests without credentials", func() {
			resp, err := http.Get(ghttpServer.URL() + "/api/schema")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			resp.Body.Close()
		})

		It("should reject wrong credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/schema", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("admin:wrong")))
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			resp.Body.Close()
		})

		It("should accept valid credentials", func() {
			req, err := http.NewRequest(http.MethodGet, ghttpServer.URL()+"/api/schema", nil)
			Expect(err).NotTo(HaveOccurred())
			req.SetBasicAuth("admin", "secret")
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})
})
