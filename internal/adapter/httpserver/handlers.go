package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"

	"github.com/verihuman/verihuman-api/internal/adapter/observability"
	"github.com/verihuman/verihuman-api/internal/config"
	"github.com/verihuman/verihuman-api/internal/domain"
	"github.com/verihuman/verihuman-api/internal/usecase"
	"github.com/verihuman/verihuman-api/pkg/textx"
)

// Server aggregates handlers dependencies.
type Server struct {
	Cfg        config.Config
	Chat       usecase.ChatService
	Detect     usecase.DetectService
	Humanize   usecase.HumanizeService
	History    usecase.HistoryService
	DBCheck    func(ctx context.Context) error
	RedisCheck func(ctx context.Context) error
}

var (
	vldOnce sync.Once
	vld     *validator.Validate
)

func getValidator() *validator.Validate {
	vldOnce.Do(func() { vld = validator.New() })
	return vld
}

// NewServer constructs an HTTP server with all handlers and checks wired.
func NewServer(cfg config.Config, chat usecase.ChatService, detect usecase.DetectService, humanize usecase.HumanizeService, history usecase.HistoryService, dbCheck func(context.Context) error, redisCheck func(context.Context) error) *Server {
	return &Server{Cfg: cfg, Chat: chat, Detect: detect, Humanize: humanize, History: history, DBCheck: dbCheck, RedisCheck: redisCheck}
}

type chatRequest struct {
	Prompt          string `json:"prompt" validate:"required"`
	MaxOutputTokens int    `json:"max_output_tokens" validate:"omitempty,min=1,max=4000"`
}

type detectRequest struct {
	Document string `json:"document" validate:"required"`
}

type humanizeRequest struct {
	Text string `json:"text" validate:"required"`
}

// decodeJSON reads a single JSON object from the body and validates it.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json: %v", domain.ErrInvalidArgument, err)
	}
	if err := getValidator().Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidArgument, validationMessage(err))
	}
	return nil
}

func validationMessage(err error) string {
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return err.Error()
	}
	parts := make([]string, 0, len(ves))
	for _, fe := range ves {
		parts = append(parts, fmt.Sprintf("%s failed %s", strings.ToLower(fe.Field()), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

func (s *Server) maxBodyBytes() int64 {
	mb := s.Cfg.MaxBodyMB
	if mb <= 0 {
		mb = 5
	}
	return mb * 1024 * 1024
}

// ChatHandler accepts either a JSON body or a multipart form with text attachments.
func (s *Server) ChatHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes())
		var req chatRequest
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			status, err := s.readChatForm(r, &req)
			if status == http.StatusUnsupportedMediaType {
				writeStatusError(w, status, "UNSUPPORTED_MEDIA_TYPE", err.Error(), nil)
				return
			}
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
		} else if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, nil)
			return
		}
		reply, err := s.Chat.Chat(r.Context(), req.Prompt, req.MaxOutputTokens)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, reply)
	}
}

// readChatForm fills req from a multipart form. A non-zero status is only
// returned for attachments with a type other than text.
func (s *Server) readChatForm(r *http.Request, req *chatRequest) (int, error) {
	if err := r.ParseMultipartForm(s.maxBodyBytes()); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err)
	}
	req.Prompt = r.FormValue("prompt")
	if v := strings.TrimSpace(r.FormValue("max_output_tokens")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%w: max_output_tokens must be an integer", domain.ErrInvalidArgument)
		}
		req.MaxOutputTokens = n
	}
	if err := getValidator().Struct(req); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, validationMessage(err))
	}
	var b strings.Builder
	b.WriteString(req.Prompt)
	for _, fh := range r.MultipartForm.File["files"] {
		text, err := readTextAttachment(fh)
		if err != nil {
			if errors.Is(err, errUnsupportedAttachment) {
				return http.StatusUnsupportedMediaType, err
			}
			return 0, err
		}
		fmt.Fprintf(&b, "\n\nAttached file: %s\n%s", fh.Filename, text)
	}
	req.Prompt = b.String()
	return 0, nil
}

var errUnsupportedAttachment = errors.New("unsupported attachment type")

func readTextAttachment(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrInvalidArgument, fh.Filename, err)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", domain.ErrInvalidArgument, fh.Filename, err)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "text/") {
		return "", fmt.Errorf("%w: %s is %s", errUnsupportedAttachment, fh.Filename, mt.String())
	}
	return textx.SanitizeText(string(data)), nil
}

// VerifyHandler pings the chat provider.
func (s *Server) VerifyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.Chat.Verify(r.Context())
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// DetectHandler classifies the document and reports cache usage in X-Cache.
func (s *Server) DetectHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes())
		var req detectRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, map[string]string{"field": "document"})
			return
		}
		res, cached, err := s.Detect.Detect(r.Context(), req.Document)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		if s.Detect.Cache != nil {
			observability.RecordDetectCache(cached)
		}
		if cached {
			w.Header().Set("X-Cache", "HIT")
		} else {
			w.Header().Set("X-Cache", "MISS")
		}
		writeJSON(w, http.StatusOK, res)
	}
}

// HumanizeHandler always answers 200 once the request is valid.
func (s *Server) HumanizeHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxBodyBytes())
		var req humanizeRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err, map[string]string{"field": "text"})
			return
		}
		out := s.Humanize.Humanize(r.Context(), req.Text)
		observability.RecordHumanizePath(string(out.Path))
		writeJSON(w, http.StatusOK, map[string]string{"humanized_text": out.HumanizedText})
	}
}

// HistoryHandler lists recorded operations, newest first.
func (s *Server) HistoryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.History.Enabled() {
			writeStatusError(w, http.StatusNotFound, "NOT_CONFIGURED", "history is not configured", nil)
			return
		}
		q := r.URL.Query()
		limit := 0
		if v := strings.TrimSpace(q.Get("limit")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				writeError(w, r, fmt.Errorf("%w: limit must be an integer", domain.ErrInvalidArgument), map[string]string{"field": "limit"})
				return
			}
			limit = n
		}
		items, err := s.History.List(r.Context(), q.Get("kind"), limit)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": items})
	}
}

// RootHandler greets clients.
func (s *Server) RootHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "Welcome to VeriHuman API backend 🚀"})
	}
}

// HealthHandler is the liveness probe.
func (s *Server) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// ReadyzHandler returns a readiness handler that probes the configured DB and Redis.
func (s *Server) ReadyzHandler() http.HandlerFunc {
	type check struct {
		Name    string `json:"name"`
		OK      bool   `json:"ok"`
		Details string `json:"details,omitempty"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		probes := []struct {
			name string
			fn   func(context.Context) error
		}{{"db", s.DBCheck}, {"redis", s.RedisCheck}}
		checks := make([]check, 0, len(probes))
		ok := true
		for _, p := range probes {
			if p.fn == nil {
				continue
			}
			if err := p.fn(ctx); err != nil {
				ok = false
				checks = append(checks, check{Name: p.name, OK: false, Details: err.Error()})
				continue
			}
			checks = append(checks, check{Name: p.name, OK: true})
		}
		st := http.StatusOK
		if !ok {
			st = http.StatusServiceUnavailable
		}
		writeJSON(w, st, map[string]any{"checks": checks})
	}
}
