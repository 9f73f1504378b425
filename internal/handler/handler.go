// Package handler exposes the catalog lifecycle over HTTP. It decodes
// requests, delegates to the catalog service, and maps domain errors to
// status codes; all business rules live below it.
package handler

import (
	"net/http"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/keramo/craftmarket/internal/domain/auth"
	"github.com/keramo/craftmarket/internal/domain/catalog"
)

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to relative image paths in product responses.
	// When empty, image URLs are returned as stored in the database.
	ImageBaseURL string
}

// Handler serves the catalog HTTP API.
type Handler struct {
	catalog      *catalog.Service
	apikeys      auth.Repository
	pepper       []byte
	imageBaseURL string
}

// NewHandler constructs a Handler with the required dependencies.
func NewHandler(cfg Config, catalogSvc *catalog.Service, apikeys auth.Repository, pepper []byte) *Handler {
	return &Handler{
		catalog:      catalogSvc,
		apikeys:      apikeys,
		pepper:       pepper,
		imageBaseURL: cfg.ImageBaseURL,
	}
}

// Register mounts all catalog routes on mux. Mutating routes require a valid
// API key; reads are public.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/products", h.requireAPIKey(h.createProduct))
	mux.HandleFunc("PUT /api/products/{productID}", h.requireAPIKey(h.updateProduct))
	mux.HandleFunc("GET /api/products/{productID}", h.getProduct)
}

// writeJSON sends an encoded jx document with the given status.
func writeJSON(w http.ResponseWriter, status int, e *jx.Encoder) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// writeError sends the error envelope {"code","message"}.
func writeError(w http.ResponseWriter, status int, message string) {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("code", func(e *jx.Encoder) { e.Int(status) })
		e.Field("message", func(e *jx.Encoder) { e.Str(message) })
	})
	writeJSON(w, status, &e)
}

// logError records an unclassified failure with the request-scoped logger.
func logError(r *http.Request, msg string, err error) {
	zctx.From(r.Context()).Error(msg, zap.Error(err))
}
