package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/brunobiangulo/kgsynth"
	"github.com/brunobiangulo/kgsynth/batch"
	"github.com/brunobiangulo/kgsynth/retrieval"
	"github.com/brunobiangulo/kgsynth/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	generated []string
	runPath   string
	genErr    error
	panicOn   string
	noCorpus  bool
}

func (f *fakePipeline) Run(ctx context.Context, source string, rows []batch.InputRow) (*batch.Summary, error) {
	return &batch.Summary{Source: source, Rows: len(rows)}, nil
}

func (f *fakePipeline) RunFile(ctx context.Context, path string) (*batch.Summary, error) {
	f.runPath = path
	if path == "" {
		return nil, fmt.Errorf("%w: batch.input_path: required", kgsynth.ErrInvalidConfig)
	}
	return &batch.Summary{RunID: "run-1", Source: path, Rows: 2, OK: 2, Records: 3}, nil
}

func (f *fakePipeline) Generate(ctx context.Context, text string) (*kgsynth.Generation, error) {
	if text == f.panicOn {
		panic("boom")
	}
	if f.genErr != nil {
		return nil, f.genErr
	}
	f.generated = append(f.generated, text)
	return &kgsynth.Generation{
		Context: text,
		Status:  "ok",
		Triples: []string{"(Boiler, heats, Feedwater)"},
		Records: []kgsynth.GeneratedRecord{{Triple: "(Boiler, heats, Feedwater)", Question: "Question: q", Answer: "Answer: a"}},
	}, nil
}

func (f *fakePipeline) Ingest(ctx context.Context, root string) (*retrieval.IngestStats, error) {
	return nil, fmt.Errorf("%w: ingest needs retrieval.mode \"corpus\"", kgsynth.ErrInvalidConfig)
}

func (f *fakePipeline) Documents(ctx context.Context) ([]store.Document, error) {
	if f.noCorpus {
		return nil, fmt.Errorf("%w: listing documents needs retrieval.mode \"corpus\"", kgsynth.ErrInvalidConfig)
	}
	return []store.Document{{ID: 1, Path: "/docs/reformer.txt", Filename: "reformer.txt", Format: "txt", Status: store.StatusReady}}, nil
}

func (f *fakePipeline) Chunks(ctx context.Context, documentID int64) ([]store.Chunk, error) {
	if documentID != 1 {
		return nil, nil
	}
	return []store.Chunk{{ID: 10, DocumentID: 1, Content: "Partial oxidation of methane produces syngas."}}, nil
}

func (f *fakePipeline) Config() kgsynth.Config { return kgsynth.DefaultConfig() }
func (f *fakePipeline) Close() error           { return nil }

func post(t *testing.T, h http.Handler, path, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGenerate(t *testing.T) {
	fake := &fakePipeline{}
	h := newServer(fake, "", "")

	rec := post(t, h, "/generate", `{"context":"  The boiler heats feedwater.  "}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	var gen kgsynth.Generation
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &gen))
	assert.Equal(t, "ok", gen.Status)
	require.Len(t, gen.Records, 1)
	assert.Equal(t, "Answer: a", gen.Records[0].Answer)
	assert.Equal(t, []string{"The boiler heats feedwater."}, fake.generated)
}

func TestGenerateRejectsBadRequests(t *testing.T) {
	h := newServer(&fakePipeline{}, "", "")

	assert.Equal(t, http.StatusBadRequest, post(t, h, "/generate", `{"context":"   "}`).Code)
	assert.Equal(t, http.StatusBadRequest, post(t, h, "/generate", `not json`).Code)

	req := httptest.NewRequest(http.MethodGet, "/generate", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGenerateOutputUnavailable(t *testing.T) {
	fake := &fakePipeline{genErr: fmt.Errorf("writing: %w", kgsynth.ErrOutputUnavailable)}
	rec := post(t, newServer(fake, "", ""), "/generate", `{"context":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRun(t *testing.T) {
	fake := &fakePipeline{}
	h := newServer(fake, "", "")

	rec := post(t, h, "/runs", ``)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "batch.input_path")

	rec = post(t, h, "/runs", `{"path":"does/not/exist.xlsx"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, h, "/runs", fmt.Sprintf(`{"path":%q}`, "server_test.go"))
	require.Equal(t, http.StatusOK, rec.Code)
	var sum batch.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, 3, sum.Records)
	assert.True(t, strings.HasSuffix(fake.runPath, "server_test.go"))
}

func TestIngestOutsideCorpusMode(t *testing.T) {
	rec := post(t, newServer(&fakePipeline{}, "", ""), "/ingest", `{"root":"docs"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestDocuments(t *testing.T) {
	h := newServer(&fakePipeline{}, "", "")

	rec := get(h, "/documents")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Documents []store.Document `json:"documents"`
		Count     int              `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "reformer.txt", body.Documents[0].Filename)

	rec = get(h, "/documents/1/chunks")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Partial oxidation")

	assert.Equal(t, http.StatusNotFound, get(h, "/documents/2/chunks").Code)
	assert.Equal(t, http.StatusBadRequest, get(h, "/documents/abc/chunks").Code)
}

func TestDocumentsOutsideCorpusMode(t *testing.T) {
	rec := get(newServer(&fakePipeline{noCorpus: true}, "", ""), "/documents")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "corpus")
}

func TestAuthAndHealth(t *testing.T) {
	h := newServer(&fakePipeline{}, "secret", "")

	assert.Equal(t, http.StatusUnauthorized, post(t, h, "/generate", `{"context":"x"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, post(t, h, "/generate", `{"context":"x"}`, "Authorization", "Bearer wrong").Code)
	assert.Equal(t, http.StatusOK, post(t, h, "/generate", `{"context":"x"}`, "Authorization", "Bearer secret").Code)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "command", body["retrieval"])
}

func TestRecoveryMiddleware(t *testing.T) {
	h := newServer(&fakePipeline{panicOn: "explode"}, "", "")
	rec := post(t, h, "/generate", `{"context":"explode"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "internal server error")
}
