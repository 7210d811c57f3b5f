package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"postkeeper/internal/model"
	"postkeeper/internal/store"
	"postkeeper/internal/validate"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type healthResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type validationResponse struct {
	Errors []validate.Violation `json:"errors"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Time: s.now().UTC()})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, err := readPostRequest(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	post := req.Post()
	if err := s.store.Insert(r.Context(), &post); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter := store.Filter{Term: r.URL.Query().Get("term")}

	posts, err := s.store.Find(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if posts == nil {
		posts = []model.Post{}
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	post, err := s.store.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	req, err := readPostRequest(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	post := req.Post()
	if err := s.store.Replace(r.Context(), mux.Vars(r)["id"], &post); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), mux.Vars(r)["id"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// readPostRequest reads and validates a create/update body.
func readPostRequest(w http.ResponseWriter, r *http.Request) (validate.PostRequest, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return validate.PostRequest{}, &validate.Error{Violations: []validate.Violation{
				{Field: "body", Message: "request body too large"},
			}}
		}
		return validate.PostRequest{}, err
	}
	return validate.Post(body)
}

// writeError is the single place where failures become responses.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, validationResponse{Errors: verr.Violations})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "Post not found"})
	default:
		s.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
