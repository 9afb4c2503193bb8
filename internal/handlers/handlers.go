// Package handlers provides HTTP handlers for the decryption and
// watermarking API.
//
// Endpoints:
//   - POST /decrypt: removes PDF encryption.
//   - POST /watermark: protects one or more uploaded PDFs for a user and
//     bills the pages.
//   - POST /batch-watermark: protects many base64 documents, reporting an
//     outcome per item.
//
// Example usage:
//
//	h := handlers.NewAPIHandler(service, decrypter, m, log, maxUploadBytes)
//	r := chi.NewRouter()
//	r.Post("/watermark", h.Watermark)
//
// All handlers are designed to be used with the chi router.
package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"go-aquamark/internal/metrics"
	"go-aquamark/internal/utils"
	"go-aquamark/internal/watermark"

	"go.uber.org/zap"
)

const Banner = "Aquamark Decryption & Watermarking API is running."

// Route labels for metrics.
const (
	RouteDecrypt        = "/decrypt"
	RouteWatermark      = "/watermark"
	RouteBatchWatermark = "/batch-watermark"
)

// Multipart parts beyond this are spilled to temporary files.
const multipartMemory = 32 << 20

// Decrypter always runs the external tool.
type Decrypter interface {
	DecryptAlways(ctx context.Context, data []byte) ([]byte, error)
}

type Watermarker interface {
	Watermark(ctx context.Context, reqs []watermark.Request) ([]watermark.Result, error)
	Batch(ctx context.Context, reqs []watermark.Request) []watermark.Outcome
}

type APIHandler struct {
	Service        Watermarker
	Decrypter      Decrypter
	Metrics        *metrics.Metrics
	Log            *zap.Logger
	MaxUploadBytes int64
}

func NewAPIHandler(svc Watermarker, dec Decrypter, m *metrics.Metrics, log *zap.Logger, maxUploadBytes int64) *APIHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &APIHandler{Service: svc, Decrypter: dec, Metrics: m, Log: log, MaxUploadBytes: maxUploadBytes}
}

var kindMessages = map[watermark.Kind]string{
	watermark.KindInputMissing:          "Missing or invalid input.",
	watermark.KindUnauthorized:          "Unauthorized.",
	watermark.KindDecryptionFailed:      "Failed to decrypt PDF.",
	watermark.KindLedgerRecordNotFound:  "Usage record not found.",
	watermark.KindInsufficientCredit:    "Not enough page credits.",
	watermark.KindLogoNotFound:          "No logo found.",
	watermark.KindUnsupportedLogoFormat: "Logo must be a PNG, JPEG or WebP image.",
	watermark.KindCompositionFailed:     "Failed to apply watermark.",
	watermark.KindLedgerCommitFailed:    "Document was protected but usage could not be recorded; no document was returned.",
	watermark.KindUnexpected:            "Failed to process watermark.",
}

func message(kind watermark.Kind) string {
	if msg, ok := kindMessages[kind]; ok {
		return msg
	}
	return kindMessages[watermark.KindUnexpected]
}

func writeError(w http.ResponseWriter, err error) {
	kind := watermark.KindOf(err)
	w.Header().Set("X-Error-Code", kind.Code())
	http.Error(w, message(kind), kind.HTTPStatus())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// parseUpload enforces the upload limit and parses a multipart body. It
// writes the error response itself and reports whether to continue.
func (h *APIHandler) parseUpload(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
			return false
		}
		http.Error(w, "Invalid multipart form", http.StatusBadRequest)
		return false
	}
	return true
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Root godoc
// @Summary      Service banner
// @Tags         health
// @Produce      plain
// @Success      200  {string}  string  "Banner"
// @Router       / [get]
func (h *APIHandler) Root(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, Banner)
}

// Healthz godoc
// @Summary      Liveness probe
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string  "{ status: ok }"
// @Router       /healthz [get]
func (h *APIHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Decrypt godoc
// @Summary      Decrypt a PDF
// @Description  Removes password protection from an uploaded PDF
// @Tags         pdf
// @Accept       multipart/form-data
// @Produce      application/pdf
// @Param        file  formData  file  true  "PDF file"
// @Success      200  {file}    file    "Decrypted PDF"
// @Failure      400  {string}  string  "No file uploaded"
// @Failure      500  {string}  string  "Decryption failed"
// @Router       /decrypt [post]
func (h *APIHandler) Decrypt(w http.ResponseWriter, r *http.Request) {
	if !h.parseUpload(w, r) {
		return
	}
	fh := firstFile(r, "file")
	if fh == nil {
		http.Error(w, "No file uploaded.", http.StatusBadRequest)
		return
	}
	data, err := readPart(fh)
	if err != nil {
		http.Error(w, "Could not read uploaded PDF.", http.StatusInternalServerError)
		return
	}

	out, err := h.Decrypter.DecryptAlways(r.Context(), data)
	if err != nil {
		h.Metrics.Decryption(metrics.OutcomeFailure)
		h.Metrics.Document(RouteDecrypt, metrics.OutcomeFailure)
		h.Log.Warn("decrypt failed", zap.String("filename", fh.Filename), zap.Error(err))
		http.Error(w, "Failed to decrypt PDF.", http.StatusInternalServerError)
		return
	}
	h.Metrics.Decryption(metrics.OutcomeSuccess)
	h.Metrics.Document(RouteDecrypt, metrics.OutcomeSuccess)

	w.Header().Set("Content-Type", "application/pdf")
	_, _ = w.Write(out)
}

func firstFile(r *http.Request, field string) *multipart.FileHeader {
	if r.MultipartForm == nil || len(r.MultipartForm.File[field]) == 0 {
		return nil
	}
	return r.MultipartForm.File[field][0]
}

type manifestEntry struct {
	Filename string `json:"filename"`
	Base64   string `json:"base64"`
}

// Watermark godoc
// @Summary      Watermark PDFs
// @Description  Stamps the user's latest logo, an optional QR code, disclaimer and lender badge on every page and bills the pages. Several file parts return a JSON manifest.
// @Tags         pdf
// @Accept       multipart/form-data
// @Produce      application/pdf
// @Produce      json
// @Security     BearerAuth
// @Param        file         formData  file    true   "PDF file (repeatable)"
// @Param        user_email   formData  string  true   "Account email"
// @Param        lender       formData  string  false  "Counterparty name"
// @Param        salesperson  formData  string  false  "Salesperson"
// @Param        processor    formData  string  false  "Processor"
// @Param        state        formData  string  false  "Two-letter jurisdiction code"
// @Param        badge        formData  bool    false  "Stamp the lender as a badge"
// @Success      200  {file}    file    "Protected PDF"
// @Failure      400  {string}  string  "Missing required fields"
// @Failure      401  {string}  string  "Unauthorized"
// @Failure      402  {string}  string  "Not enough page credits"
// @Failure      500  {string}  string  "Processing failure (see X-Error-Code)"
// @Router       /watermark [post]
func (h *APIHandler) Watermark(w http.ResponseWriter, r *http.Request) {
	if !h.parseUpload(w, r) {
		return
	}
	email := strings.TrimSpace(r.FormValue("user_email"))
	files := r.MultipartForm.File["file"]
	if email == "" || len(files) == 0 {
		h.Metrics.Document(RouteWatermark, metrics.OutcomeFailure)
		w.Header().Set("X-Error-Code", watermark.KindInputMissing.Code())
		http.Error(w, "Missing required fields: file and user_email.", http.StatusBadRequest)
		return
	}
	badge, _ := strconv.ParseBool(r.FormValue("badge"))

	reqs := make([]watermark.Request, 0, len(files))
	for _, fh := range files {
		data, err := readPart(fh)
		if err != nil {
			http.Error(w, "Could not read uploaded PDF.", http.StatusInternalServerError)
			return
		}
		reqs = append(reqs, watermark.Request{
			Identity:     email,
			Filename:     fh.Filename,
			Data:         data,
			Lender:       strings.TrimSpace(r.FormValue("lender")),
			Salesperson:  strings.TrimSpace(r.FormValue("salesperson")),
			Processor:    strings.TrimSpace(r.FormValue("processor")),
			Jurisdiction: r.FormValue("state"),
			Badge:        badge,
		})
	}

	results, err := h.Service.Watermark(r.Context(), reqs)
	if err != nil {
		h.Metrics.Document(RouteWatermark, metrics.OutcomeFailure)
		writeError(w, err)
		return
	}
	h.Metrics.Document(RouteWatermark, metrics.OutcomeSuccess)

	if len(results) == 1 {
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", results[0].Filename))
		_, _ = w.Write(results[0].Data)
		return
	}
	manifest := make([]manifestEntry, 0, len(results))
	for _, res := range results {
		manifest = append(manifest, manifestEntry{Filename: res.Filename, Base64: base64.StdEncoding.EncodeToString(res.Data)})
	}
	writeJSON(w, http.StatusOK, manifest)
}

type batchItem struct {
	UserEmail   string `json:"user_email"`
	File        string `json:"file"`
	Lender      string `json:"lender"`
	Salesperson string `json:"salesperson,omitempty"`
	Processor   string `json:"processor,omitempty"`
	State       string `json:"state,omitempty"`
	Filename    string `json:"filename,omitempty"`
}

// BatchResult is one entry of the batch response, in request order.
type BatchResult struct {
	Index     int    `json:"index"`
	UserEmail string `json:"user_email"`
	Status    string `json:"status"`
	Filename  string `json:"filename,omitempty"`
	Base64    string `json:"base64,omitempty"`
	Pages     int    `json:"pages,omitempty"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

// BatchWatermark godoc
// @Summary      Watermark a batch of PDFs
// @Description  Runs every item independently and reports a success or failure for each, in request order
// @Tags         pdf
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        items  body      []object  true  "[{ user_email, file (base64), lender, filename? }]"
// @Success      200    {array}   BatchResult
// @Failure      400    {string}  string  "Empty or invalid payload"
// @Failure      401    {string}  string  "Unauthorized"
// @Router       /batch-watermark [post]
func (h *APIHandler) BatchWatermark(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	var items []batchItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "Payload too large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}
	if len(items) == 0 {
		http.Error(w, "Empty batch", http.StatusBadRequest)
		return
	}

	results := make([]BatchResult, len(items))
	reqs := make([]watermark.Request, 0, len(items))
	positions := make([]int, 0, len(items))
	for i, item := range items {
		results[i] = BatchResult{Index: i, UserEmail: item.UserEmail}
		data, err := base64.StdEncoding.DecodeString(item.File)
		if err != nil {
			results[i].fail(fmt.Errorf("%w: file is not valid base64", watermark.ErrInputMissing))
			continue
		}
		name := item.Filename
		if name == "" {
			name = fmt.Sprintf("document-%d.pdf", i+1)
		}
		reqs = append(reqs, watermark.Request{
			Identity:     strings.TrimSpace(item.UserEmail),
			Filename:     name,
			Data:         data,
			Lender:       strings.TrimSpace(item.Lender),
			Salesperson:  strings.TrimSpace(item.Salesperson),
			Processor:    strings.TrimSpace(item.Processor),
			Jurisdiction: item.State,
		})
		positions = append(positions, i)
	}

	for _, o := range h.Service.Batch(r.Context(), reqs) {
		res := &results[positions[o.Index]]
		if !o.OK() {
			res.fail(o.Err)
			continue
		}
		res.Status = "success"
		res.Filename = o.Result.Filename
		res.Base64 = base64.StdEncoding.EncodeToString(o.Result.Data)
		res.Pages = o.Result.Pages
	}

	succeeded := 0
	for _, res := range results {
		outcome := metrics.OutcomeFailure
		if res.Status == "success" {
			outcome = metrics.OutcomeSuccess
			succeeded++
		}
		h.Metrics.Document(RouteBatchWatermark, outcome)
	}
	batchID := utils.GenerateUUID()
	h.Log.Info("batch processed", zap.String("batch_id", batchID), zap.Int("items", len(items)), zap.Int("succeeded", succeeded))
	w.Header().Set("X-Batch-ID", batchID)
	writeJSON(w, http.StatusOK, results)
}

func (b *BatchResult) fail(err error) {
	kind := watermark.KindOf(err)
	b.Status = "failure"
	b.Code = kind.Code()
	b.Error = message(kind)
	if kind == watermark.KindInputMissing {
		b.Error = err.Error()
	}
}
