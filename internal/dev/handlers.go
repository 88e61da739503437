package dev

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/vango-dev/hotshim/internal/errors"
	"github.com/vango-dev/hotshim/pkg/mangle"
	"github.com/vango-dev/hotshim/pkg/shim"
)

// maxInitBody bounds the body of an init request.
const maxInitBody = 1 << 16

// InitRequest is the body of POST /_hotshim/init.
type InitRequest struct {
	AppName string `json:"appName"`
}

// InitResponse is returned by a successful init.
type InitResponse struct {
	AppName string       `json:"appName"`
	Modules []shim.State `json:"modules"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// handleIndex serves the index document with the dev scripts injected.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	doc, err := os.ReadFile(s.config.IndexPath())
	if err != nil {
		doc = []byte(defaultIndex(s.bundleURL()))
	}

	scripts := []string{HostScript}
	if s.reloadEnabled() {
		scripts = append(scripts, ReloadScript)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	io.WriteString(w, injectScripts(string(doc), scripts...))
}

// handleModules lists the registry entries.
func (s *Server) handleModules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.modules.Registry().Entries())
}

// handleModule returns the module object published under {key}.
func (s *Server) handleModule(w http.ResponseWriter, r *http.Request) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if _, err := mangle.Parse(key); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	module, ok := s.modules.Registry().Lookup(key)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no module registered under " + key})
		return
	}
	writeJSON(w, http.StatusOK, module)
}

// handleShims lists the registrar states.
func (s *Server) handleShims(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.modules.States())
}

// handleInit initialises every native module for the posted application.
func (s *Server) handleInit(w http.ResponseWriter, r *http.Request) {
	var req InitRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxInitBody))
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	if err := s.modules.InitAll(r.Context(), req.AppName); err != nil {
		status := http.StatusInternalServerError
		if stderrors.Is(err, mangle.ErrInvalidIdentifier) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}

	s.logger.Info("native modules initialised", "app", req.AppName)
	writeJSON(w, http.StatusOK, InitResponse{
		AppName: req.AppName,
		Modules: s.modules.States(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var coded *errors.Error
	if stderrors.As(err, &coded) {
		resp.Code = coded.Code
		resp.Detail = coded.Detail
	}
	writeJSON(w, status, resp)
}
