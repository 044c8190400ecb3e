package httpserver

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed openapi.yaml
var openAPIYAML []byte

var (
	openAPIJSONOnce sync.Once
	openAPIJSON     []byte
	openAPIJSONErr  error
)

// OpenAPIServe serves the embedded API description as YAML.
func (s *Server) OpenAPIServe() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(openAPIYAML)
	}
}

// OpenAPIJSONServe serves the embedded API description converted to JSON.
func (s *Server) OpenAPIJSONServe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		openAPIJSONOnce.Do(func() { openAPIJSON, openAPIJSONErr = yamlToJSON(openAPIYAML) })
		if openAPIJSONErr != nil {
			writeError(w, r, openAPIJSONErr, nil)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(openAPIJSON)
	}
}

func yamlToJSON(b []byte) ([]byte, error) {
	var doc any
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("op=openapi.yaml: %w", err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("op=openapi.json: %w", err)
	}
	return out, nil
}
