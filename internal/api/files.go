package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/dharsanguruparan/ResumeVault/internal/model"
	"github.com/dharsanguruparan/ResumeVault/internal/objectstore"
)

func (s *Server) baseURL(r *http.Request) string {
	if s.opts.PublicBaseURL != "" {
		return s.opts.PublicBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = fwd
	}
	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

func (s *Server) handleFileURL(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	doc, err := s.store.GetDocument(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if model.IsManual(doc.FileKey) {
		s.respondError(w, http.StatusNotFound, "manual entries have no file")
		return
	}
	link, expires := s.signer.Link(s.baseURL(r), id, s.opts.SignedURLTTL)
	s.respondJSON(w, http.StatusOK, map[string]any{
		"url":       link,
		"expiresAt": expires.Format(time.RFC3339),
	})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	q := r.URL.Query()
	if !s.signer.Validate(id, q.Get("expires"), q.Get("sig")) {
		s.respondError(w, http.StatusForbidden, "invalid or expired signature")
		return
	}
	doc, err := s.store.GetDocument(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if model.IsManual(doc.FileKey) {
		s.respondError(w, http.StatusNotFound, "manual entries have no file")
		return
	}
	key := doc.FileKey
	if key == "" {
		key = objectstore.KeyFromURL(doc.FileURL, s.objects.Bucket())
	}
	data, err := s.objects.Get(r.Context(), key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	contentType := doc.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if doc.FileName != "" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", doc.FileName))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
