package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sanonone/pageselect/pkg/core"
	"github.com/sanonone/pageselect/pkg/core/types"
	"github.com/sanonone/pageselect/pkg/selection"
)

// maxBodySize bounds JSON and YAML request bodies.
const maxBodySize = 32 << 20

func (s *Server) registerHTTPHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /pages/{uid}", s.handleGetPage)
	mux.HandleFunc("PUT /pages", s.handlePutPage)
	mux.HandleFunc("DELETE /pages/{uid}", s.handleDeletePage)
	mux.HandleFunc("POST /pages/import", s.handleImport)

	mux.HandleFunc("POST /selection", s.handleSelection)

	mux.HandleFunc("POST /system/save", s.handleSave)
	mux.HandleFunc("POST /system/aof-rewrite", s.handleAOFRewrite)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeHTTPResponse(w, http.StatusOK, StatusResponse{Status: "OK"})
}

func (s *Server) handleGetPage(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.pathUID(w, r)
	if !ok {
		return
	}
	page, found := s.Engine.Store().Get(uid)
	if !found {
		s.writeHTTPError(w, http.StatusNotFound, "page not found")
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, page)
}

func (s *Server) handlePutPage(w http.ResponseWriter, r *http.Request) {
	var page types.Page
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&page); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := s.Engine.PutPage(page); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, page)
}

func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	uid, ok := s.pathUID(w, r)
	if !ok {
		return
	}
	if err := s.Engine.DeletePage(uid); err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, StatusResponse{Status: "OK"})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	n, err := s.Engine.Import(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, ImportResponse{Imported: n})
}

// handleSelection runs one selection on a fresh builder. Builders do not
// outlive the request, so exclude_selected has nothing to exclude here.
func (s *Server) handleSelection(w http.ResponseWriter, r *http.Request) {
	var req selection.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		s.writeHTTPError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	b, err := s.Engine.NewSelection()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	if err := req.Apply(b); err != nil {
		s.writeEngineError(w, err)
		return
	}
	filter := b.Filter().String()

	pages, err := b.Execute()
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, SelectionResponse{Pages: pages, Count: len(pages), Filter: filter})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.SaveSnapshot(); err != nil {
		s.log.Error("SAVE via HTTP failed", "error", err)
		s.writeHTTPError(w, http.StatusInternalServerError, "snapshot failed: "+err.Error())
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, StatusResponse{Status: "OK", Message: "snapshot saved"})
}

func (s *Server) handleAOFRewrite(w http.ResponseWriter, r *http.Request) {
	if err := s.Engine.RewriteAOF(); err != nil {
		s.log.Error("AOF rewrite via HTTP failed", "error", err)
		s.writeHTTPError(w, http.StatusInternalServerError, "AOF rewrite failed: "+err.Error())
		return
	}
	s.writeHTTPResponse(w, http.StatusOK, StatusResponse{Status: "OK", Message: "AOF rewritten"})
}

func (s *Server) pathUID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	uid, err := strconv.ParseUint(r.PathValue("uid"), 10, 32)
	if err != nil || uid == 0 {
		s.writeHTTPError(w, http.StatusBadRequest, "uid must be a positive integer")
		return 0, false
	}
	return uint32(uid), true
}

// writeEngineError maps engine and store errors to HTTP status codes.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, core.ErrPageNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrInvalidPage), errors.Is(err, core.ErrInvalidPageFile),
		errors.Is(err, selection.ErrDepthOutOfRange):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", "error", err)
	}
	s.writeHTTPError(w, status, err.Error())
}

func (s *Server) writeHTTPResponse(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func (s *Server) writeHTTPError(w http.ResponseWriter, statusCode int, message string) {
	s.writeHTTPResponse(w, statusCode, map[string]string{"error": message})
}
