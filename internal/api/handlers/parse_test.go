package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-parser/internal/assist"
	"github.com/dvloznov/statement-parser/internal/domain"
	"github.com/dvloznov/statement-parser/internal/pipeline"
)

func newParser(t *testing.T, opts pipeline.Options) *pipeline.Parser {
	t.Helper()
	p, err := pipeline.NewParser(opts)
	require.NoError(t, err)
	return p
}

func uploadRequest(t *testing.T, target, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	part, err := mw.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestParse_Success(t *testing.T) {
	h := NewParseHandler(newParser(t, pipeline.Options{}), nil, 2, zerolog.Nop())

	csv := "Date,Description,Amount,Currency\n" +
		"2024-02-01,Salary,2500.00,USD\n" +
		"2024-02-02,,1.00,USD\n" +
		"2024-02-03,Coffee,-3.20,USD\n"
	rec := httptest.NewRecorder()
	h.Parse(rec, uploadRequest(t, "/parse", "feb.csv", "text/csv", []byte(csv)))

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1", rec.Header().Get(RowsRejectedHeader))
	assert.JSONEq(t, `[
		{"date":"2024-02-01","description":"Salary","amount":2500.00,"currency":"USD","merchant_raw":null,"source":"csv"},
		{"date":"2024-02-03","description":"Coffee","amount":-3.20,"currency":"USD","merchant_raw":null,"source":"csv"}
	]`, rec.Body.String())
}

func TestParse_EmptyArray(t *testing.T) {
	h := NewParseHandler(newParser(t, pipeline.Options{}), nil, 1, zerolog.Nop())

	rec := httptest.NewRecorder()
	h.Parse(rec, uploadRequest(t, "/parse", "empty.csv", "", []byte("Date,Description,Amount\n")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestParse_ErrorStatuses(t *testing.T) {
	h := NewParseHandler(newParser(t, pipeline.Options{MaxBytes: 64}), nil, 1, zerolog.Nop())

	tests := []struct {
		name       string
		filename   string
		data       []byte
		wantStatus int
		wantKind   domain.Kind
		wantStage  domain.Stage
	}{
		{"txt", "notes.txt", []byte("hello"), http.StatusUnsupportedMediaType, domain.KindUnsupportedType, domain.StageDispatch},
		{"too large", "big.csv", bytes.Repeat([]byte("a,b\n"), 40), http.StatusRequestEntityTooLarge, domain.KindPayloadTooLarge, domain.StageDispatch},
		{"empty", "empty.csv", nil, http.StatusBadRequest, domain.KindEmptyPayload, domain.StageDispatch},
		{"corrupt pdf", "fake.pdf", []byte("%PDF-1.4 garbage"), http.StatusBadRequest, domain.KindCorruptDocument, domain.StageExtract},
		{"no delimiter", "one.csv", []byte("hello\nworld\n"), http.StatusBadRequest, domain.KindDelimiterDetection, domain.StageExtract},
		{"unmappable", "x.csv", []byte("Foo,Bar\nx,y\nz,w\n"), http.StatusBadRequest, domain.KindRequiredFieldUnmappable, domain.StageMap},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Parse(rec, uploadRequest(t, "/parse", tt.filename, "", tt.data))

			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			body := decodeError(t, rec)
			assert.Equal(t, "PARSE_FAILED", body.Error)
			assert.Equal(t, string(tt.wantKind), body.Kind)
			assert.Equal(t, string(tt.wantStage), body.Stage)
			assert.NotEmpty(t, body.Detail)
		})
	}
}

func TestParse_MissingFileField(t *testing.T) {
	h := NewParseHandler(newParser(t, pipeline.Options{}), nil, 1, zerolog.Nop())

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	require.NoError(t, mw.WriteField("other", "value"))
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/parse", body)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	rec := httptest.NewRecorder()
	h.Parse(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(domain.KindEmptyPayload), decodeError(t, rec).Kind)
}

func TestParse_NotMultipart(t *testing.T) {
	h := NewParseHandler(newParser(t, pipeline.Options{}), nil, 1, zerolog.Nop())

	req := httptest.NewRequest(http.MethodPost, "/parse", bytes.NewBufferString("{}"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Parse(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type fakeAdvisors struct {
	mu       sync.Mutex
	requests []string
	advisor  assist.Advisor
	err      error
}

func (f *fakeAdvisors) For(_ context.Context, modelID string) (assist.Advisor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, modelID)
	return f.advisor, f.err
}

func TestParse_LogsToHandlerLogger(t *testing.T) {
	buf := &bytes.Buffer{}
	advisors := &fakeAdvisors{err: errors.New("unsupported provider")}
	h := NewParseHandler(newParser(t, pipeline.Options{}), advisors, 1, zerolog.New(buf))

	rec := httptest.NewRecorder()
	h.Parse(rec, uploadRequest(t, "/parse?model_id=openai:gpt", "a.csv", "", []byte("Date,Description,Amount\n2024-01-15,Coffee,-4.50\n")))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, buf.String(), "Model assist disabled for request")
	assert.Contains(t, buf.String(), "Parsing run succeeded")
	assert.Contains(t, buf.String(), `"run_id"`)
}

type dayFirst struct{}

func (dayFirst) SuggestMapping(context.Context, []string, [][]string) (map[string]int, error) {
	return nil, errors.New("unused")
}

func (dayFirst) SuggestDateLayout(context.Context, []string, []string) (string, error) {
	return "DD/MM/YYYY", nil
}

func TestParse_ModelHint(t *testing.T) {
	csv := []byte("Date,Description,Amount\n01/02/2024,A,1.00\n03/04/2024,B,2.00\n")

	advisors := &fakeAdvisors{advisor: dayFirst{}}
	h := NewParseHandler(newParser(t, pipeline.Options{}), advisors, 1, zerolog.Nop())
	rec := httptest.NewRecorder()
	h.Parse(rec, uploadRequest(t, "/parse?model_id=google:gemini-2.5-flash", "a.csv", "", csv))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"date":"2024-02-01"`)
	assert.Equal(t, []string{"google:gemini-2.5-flash"}, advisors.requests)

	// An unusable model id falls back to the deterministic result.
	advisors = &fakeAdvisors{err: errors.New("unsupported provider")}
	h = NewParseHandler(newParser(t, pipeline.Options{}), advisors, 1, zerolog.Nop())
	rec = httptest.NewRecorder()
	h.Parse(rec, uploadRequest(t, "/parse?model_id=openai:gpt", "a.csv", "", csv))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"date":"2024-01-02"`)
}

type blockingParser struct {
	started chan struct{}
	release chan struct{}
}

func (b *blockingParser) Parse(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	b.started <- struct{}{}
	<-b.release
	return pipeline.Result{Transactions: []domain.Transaction{}}, nil
}

func (b *blockingParser) MaxBytes() int64 { return 1 << 20 }

func TestParse_ConcurrencyLimit(t *testing.T) {
	bp := &blockingParser{started: make(chan struct{}, 4), release: make(chan struct{})}
	h := NewParseHandler(bp, nil, 1, zerolog.Nop())

	first := uploadRequest(t, "/parse", "a.csv", "", []byte("a,b\n"))
	done := make(chan int, 1)
	go func() {
		rec := httptest.NewRecorder()
		h.Parse(rec, first)
		done <- rec.Code
	}()
	<-bp.started

	// The second request waits for a slot and gives up with its context.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	rec := httptest.NewRecorder()
	h.Parse(rec, uploadRequest(t, "/parse", "b.csv", "", []byte("a,b\n")).WithContext(ctx))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, string(domain.KindCancelled), decodeError(t, rec).Kind)

	close(bp.release)
	assert.Equal(t, http.StatusOK, <-done)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusUnsupportedMediaType, StatusFor(domain.KindUnsupportedType))
	assert.Equal(t, http.StatusRequestEntityTooLarge, StatusFor(domain.KindPayloadTooLarge))
	for _, k := range []domain.Kind{
		domain.KindEmptyPayload, domain.KindDelimiterDetection, domain.KindNoTextLayer,
		domain.KindTableStructure, domain.KindRequiredFieldUnmappable,
		domain.KindRejectionThreshold, domain.KindCancelled,
	} {
		assert.Equal(t, http.StatusBadRequest, StatusFor(k), string(k))
	}
}

func TestHealth(t *testing.T) {
	rec := httptest.NewRecorder()
	Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
