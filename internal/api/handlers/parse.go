package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dvloznov/statement-parser/internal/api/middleware"
	"github.com/dvloznov/statement-parser/internal/assist"
	"github.com/dvloznov/statement-parser/internal/domain"
	"github.com/dvloznov/statement-parser/internal/logger"
	"github.com/dvloznov/statement-parser/internal/pipeline"
)

// RowsRejectedHeader reports how many rows were dropped.
const RowsRejectedHeader = "X-Rows-Rejected"

// multipartOverhead is the slack allowed on top of the file limit for
// boundaries and part headers.
const multipartOverhead = 1 << 20

// StatementParser is the slice of pipeline.Parser the handler needs.
type StatementParser interface {
	Parse(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
	MaxBytes() int64
}

// AdvisorSource resolves a model_id query value to an advisor. A nil
// advisor with a nil error means assistance is off.
type AdvisorSource interface {
	For(ctx context.Context, modelID string) (assist.Advisor, error)
}

// ParseHandler handles statement uploads.
type ParseHandler struct {
	parser   StatementParser
	advisors AdvisorSource
	slots    chan struct{}
	log      zerolog.Logger
}

// NewParseHandler creates a handler running at most maxConcurrent parses at
// once. advisors may be nil.
func NewParseHandler(parser StatementParser, advisors AdvisorSource, maxConcurrent int, log zerolog.Logger) *ParseHandler {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &ParseHandler{
		parser:   parser,
		advisors: advisors,
		slots:    make(chan struct{}, maxConcurrent),
		log:      log,
	}
}

// errorBody is the failure response of POST /parse.
type errorBody struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Stage  string `json:"stage"`
	Detail string `json:"detail"`
}

// Parse handles POST /parse
func (h *ParseHandler) Parse(w http.ResponseWriter, r *http.Request) {
	// Requests that bypassed the logging middleware log to the handler's own
	// logger, and so do their pipeline runs.
	log := logger.FromContextOr(r.Context(), h.log)
	ctx := logger.WithContext(r.Context(), log)

	select {
	case h.slots <- struct{}{}:
		defer func() { <-h.slots }()
	case <-ctx.Done():
		writeParseError(w, domain.Wrap(domain.StageDispatch, domain.KindCancelled, ctx.Err(), "request cancelled while queued"))
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.parser.MaxBytes()+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			writeParseError(w, domain.Errorf(domain.StageDispatch, domain.KindPayloadTooLarge,
				"upload exceeds %d bytes", h.parser.MaxBytes()))
		case errors.Is(err, http.ErrMissingFile):
			writeParseError(w, domain.Errorf(domain.StageDispatch, domain.KindEmptyPayload, "multipart field \"file\" is missing"))
		default:
			log.Warn().Err(err).Msg("Failed to read multipart upload")
			middleware.WriteError(w, http.StatusBadRequest, "Invalid multipart body")
		}
		return
	}
	defer file.Close()

	if header.Size > h.parser.MaxBytes() {
		writeParseError(w, domain.Errorf(domain.StageDispatch, domain.KindPayloadTooLarge,
			"file is %d bytes, limit is %d", header.Size, h.parser.MaxBytes()))
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read uploaded file")
		middleware.WriteError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	res, err := h.parser.Parse(ctx, pipeline.Request{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Advisor:     h.advisor(ctx, r.URL.Query().Get("model_id")),
	})
	w.Header().Set(RowsRejectedHeader, strconv.Itoa(res.Stats.Rejected))
	if err != nil {
		writeParseError(w, err)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, res.Transactions)
}

// advisor is lenient: a bad or unsupported model_id parses without hints.
func (h *ParseHandler) advisor(ctx context.Context, modelID string) pipeline.Advisor {
	if h.advisors == nil {
		return nil
	}
	a, err := h.advisors.For(ctx, modelID)
	if err != nil {
		log := logger.FromContextOr(ctx, h.log)
		log.Warn().Err(err).Str("model_id", modelID).Msg("Model assist disabled for request")
		return nil
	}
	if a == nil {
		return nil
	}
	return a
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindUnsupportedType:
		return http.StatusUnsupportedMediaType
	case domain.KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func writeParseError(w http.ResponseWriter, err error) {
	var pe *domain.ParseError
	if !errors.As(err, &pe) {
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	middleware.WriteJSON(w, StatusFor(pe.Kind), errorBody{
		Error:  "PARSE_FAILED",
		Kind:   string(pe.Kind),
		Stage:  string(pe.Stage),
		Detail: pe.Message,
	})
}
