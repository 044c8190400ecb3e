package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verihuman/verihuman-api/internal/config"
	"github.com/verihuman/verihuman-api/internal/domain"
	"github.com/verihuman/verihuman-api/internal/usecase"
)

type firstChooser struct{}

func (firstChooser) Choose(options []string) string { return options[0] }

type fakeHumanizer struct {
	resp domain.HumanizerResponse
	err  error
}

func (f fakeHumanizer) Humanize(context.Context, string) (domain.HumanizerResponse, error) {
	return f.resp, f.err
}

type fakeDetector struct {
	res   domain.DetectionResult
	err   error
	calls int
}

func (f *fakeDetector) Detect(_ context.Context, doc string) (domain.DetectionResult, error) {
	f.calls++
	f.res.Document = doc
	return f.res, f.err
}

type fakeChat struct {
	payload domain.ChatPayload
	err     error
	prompt  string
}

func (f *fakeChat) Complete(_ context.Context, _ string, prompt string, _ int) (domain.ChatPayload, error) {
	f.prompt = prompt
	return f.payload, f.err
}

type fakeHistory struct{ entries []domain.HistoryEntry }

func (f *fakeHistory) Create(_ context.Context, e domain.HistoryEntry) (string, error) {
	f.entries = append(f.entries, e)
	return "id", nil
}

func (f *fakeHistory) List(_ context.Context, _ domain.HistoryKind, limit int) ([]domain.HistoryEntry, error) {
	if len(f.entries) > limit {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func newTestServer(h domain.Humanizer, d domain.Detector, c domain.ChatClient) *Server {
	cfg := config.Config{AppEnv: "test", MaxBodyMB: 1}
	return NewServer(cfg,
		usecase.ChatService{Client: c, Model: "gpt-3.5-turbo", VerifyModel: "gpt-5-nano", APIKeySet: true},
		usecase.NewDetectService(d, nil, usecase.HistoryRecorder{}),
		usecase.NewHumanizeService(h, usecase.NewSimilarityJudge(25), usecase.NewLocalRewriter(firstChooser{}), 0, usecase.HistoryRecorder{}),
		usecase.NewHistoryService(nil),
		nil, nil,
	)
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestHumanizeHandler_AcceptsExternalRewrite(t *testing.T) {
	rewritten := "A wholly different sentence that an outside service produced for this request."
	srv := newTestServer(fakeHumanizer{resp: domain.HumanizerResponse{StatusCode: 200, Text: rewritten}}, &fakeDetector{}, &fakeChat{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/humanize", strings.NewReader(`{"text":"short input"}`))
	srv.HumanizeHandler()(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"humanized_text": rewritten}, decodeBody(t, rec))
}

func TestHumanizeHandler_FallbackStillOK(t *testing.T) {
	srv := newTestServer(fakeHumanizer{err: domain.ErrUpstreamTimeout}, &fakeDetector{}, &fakeChat{})
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/humanize", strings.NewReader(`{"text":"The cat sat"}`))
	srv.HumanizeHandler()(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "In simple terms, the cat sat. As a result, it feels more natural, balanced, and easier to understand.", body["humanized_text"])
}

func TestHumanizeHandler_RejectsMissingText(t *testing.T) {
	srv := newTestServer(fakeHumanizer{}, &fakeDetector{}, &fakeChat{})
	for _, body := range []string{`{}`, `{"text":""}`, `not json`} {
		rec := httptest.NewRecorder()
		srv.HumanizeHandler()(rec, httptest.NewRequest(http.MethodPost, "/api/humanize", strings.NewReader(body)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Contains(t, rec.Body.String(), "INVALID_ARGUMENT")
	}
}

func TestDetectHandler_SetsCacheHeader(t *testing.T) {
	det := &fakeDetector{res: domain.DetectionResult{DocumentClassification: "HUMAN_ONLY"}}
	srv := newTestServer(fakeHumanizer{}, det, &fakeChat{})
	rec := httptest.NewRecorder()
	srv.DetectHandler()(rec, httptest.NewRequest(http.MethodPost, "/api/detect", strings.NewReader(`{"document":"hello there"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	body := decodeBody(t, rec)
	assert.Equal(t, "HUMAN_ONLY", body["document_classification"])
	assert.Equal(t, "hello there", body["document"])
}

func TestDetectHandler_UpstreamErrors(t *testing.T) {
	cases := map[error]int{
		domain.ErrUnavailable:       http.StatusServiceUnavailable,
		domain.ErrUpstreamMalformed: http.StatusBadGateway,
		domain.ErrUpstream:          http.StatusBadGateway,
	}
	for e, want := range cases {
		srv := newTestServer(fakeHumanizer{}, &fakeDetector{err: e}, &fakeChat{})
		rec := httptest.NewRecorder()
		srv.DetectHandler()(rec, httptest.NewRequest(http.MethodPost, "/api/detect", strings.NewReader(`{"document":"x"}`)))
		assert.Equal(t, want, rec.Code, e.Error())
	}
}

func TestChatHandler_JSON(t *testing.T) {
	chat := &fakeChat{payload: domain.ChatPayload{Kind: domain.ReplySuccess, Text: " hi! ", Usage: &domain.TokenUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2}}}
	srv := newTestServer(fakeHumanizer{}, &fakeDetector{}, chat)
	rec := httptest.NewRecorder()
	srv.ChatHandler()(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"prompt":"hello"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "hi!", body["reply"])
	assert.NotNil(t, body["usage"])
	assert.Equal(t, "gpt-3.5-turbo", body["model"])

	chat.payload.Model = "gpt-3.5-turbo-0125"
	rec = httptest.NewRecorder()
	srv.ChatHandler()(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"prompt":"hello"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "gpt-3.5-turbo-0125", decodeBody(t, rec)["model"])
}

func TestChatHandler_RejectsOutOfRangeTokens(t *testing.T) {
	srv := newTestServer(fakeHumanizer{}, &fakeDetector{}, &fakeChat{})
	rec := httptest.NewRecorder()
	srv.ChatHandler()(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"prompt":"hello","max_output_tokens":5000}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatHandler_UpstreamFailure(t *testing.T) {
	srv := newTestServer(fakeHumanizer{}, &fakeDetector{}, &fakeChat{err: errors.Join(domain.ErrUpstream, errors.New("boom"))})
	rec := httptest.NewRecorder()
	srv.ChatHandler()(rec, httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"prompt":"hello"}`)))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "UPSTREAM_ERROR")
}

func multipartRequest(t *testing.T, prompt, filename string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("prompt", prompt))
	if filename != "" {
		fw, err := mw.CreateFormFile("files", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	req := httptest.NewRequest(http.MethodPost, "/api/chat", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestChatHandler_MultipartAppendsTextAttachment(t *testing.T) {
	chat := &fakeChat{payload: domain.ChatPayload{Kind: domain.ReplySuccess, Text: "ok"}}
	srv := newTestServer(fakeHumanizer{}, &fakeDetector{}, chat)
	rec := httptest.NewRecorder()
	srv.ChatHandler()(rec, multipartRequest(t, "summarize", "notes.txt", []byte("first line\nsecond line")))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, strings.HasPrefix(chat.prompt, "summarize"))
	assert.Contains(t, chat.prompt, "Attached file: notes.txt")
	assert.Contains(t, chat.prompt, "second line")
}

func TestChatHandler_MultipartRejectsBinary(t *testing.T) {
	srv := newTestServer(fakeHumanizer{}, &fakeDetector{}, &fakeChat{})
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}
	rec := httptest.NewRecorder()
	srv.ChatHandler()(rec, multipartRequest(t, "look", "pic.png", png))
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNSUPPORTED_MEDIA_TYPE")
}

func TestVerifyHandler(t *testing.T) {
	chat := &fakeChat{payload: domain.ChatPayload{Kind: domain.ReplySuccess, Text: "pong"}}
	srv := newTestServer(fakeHumanizer{}, &fakeDetector{}, chat)
	rec := httptest.NewRecorder()
	srv.VerifyHandler()(rec, httptest.NewRequest(http.MethodPost, "/api/verify", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "gpt-5-nano", body["model"])
	assert.Equal(t, "pong", body["response"])

	srv.Chat.APIKeySet = false
	rec = httptest.NewRecorder()
	srv.VerifyHandler()(rec, httptest.NewRequest(http.MethodPost, "/api/verify", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "NOT_CONFIGURED")
}

func TestHistoryHandler(t *testing.T) {
	srv := newTestServer(fakeHumanizer{}, &fakeDetector{}, &fakeChat{})
	rec := httptest.NewRecorder()
	srv.HistoryHandler()(rec, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	hist := &fakeHistory{entries: []domain.HistoryEntry{{ID: "1", Kind: domain.HistoryChat}, {ID: "2", Kind: domain.HistoryDetect}}}
	srv.History = usecase.NewHistoryService(hist)
	rec = httptest.NewRecorder()
	srv.HistoryHandler()(rec, httptest.NewRequest(http.MethodGet, "/api/history?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeBody(t, rec)["items"].([]any)
	assert.Len(t, items, 1)

	for _, q := range []string{"?limit=abc", "?limit=500", "?kind=bogus"} {
		rec = httptest.NewRecorder()
		srv.HistoryHandler()(rec, httptest.NewRequest(http.MethodGet, "/api/history"+q, nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestRootAndHealth(t *testing.T) {
	srv := newTestServer(fakeHumanizer{}, &fakeDetector{}, &fakeChat{})
	rec := httptest.NewRecorder()
	srv.HealthHandler()(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, map[string]any{"status": "ok"}, decodeBody(t, rec))

	rec = httptest.NewRecorder()
	srv.RootHandler()(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, decodeBody(t, rec)["message"], "Welcome to VeriHuman API")
}

func TestReadyzHandler(t *testing.T) {
	srv := newTestServer(fakeHumanizer{}, &fakeDetector{}, &fakeChat{})
	rec := httptest.NewRecorder()
	srv.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	srv.DBCheck = func(context.Context) error { return nil }
	srv.RedisCheck = func(context.Context) error { return errors.New("redis down") }
	rec = httptest.NewRecorder()
	srv.ReadyzHandler()(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis down")
}

func TestOpenAPIHandlers(t *testing.T) {
	srv := newTestServer(fakeHumanizer{}, &fakeDetector{}, &fakeChat{})
	rec := httptest.NewRecorder()
	srv.OpenAPIServe()(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/api/humanize")

	rec = httptest.NewRecorder()
	srv.OpenAPIJSONServe()(rec, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	doc := decodeBody(t, rec)
	assert.Equal(t, "3.0.3", doc["openapi"])
	assert.Contains(t, doc["paths"], "/api/detect")
}
