package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dharsanguruparan/ResumeVault/internal/extract"
	"github.com/dharsanguruparan/ResumeVault/internal/logger"
	"github.com/dharsanguruparan/ResumeVault/internal/model"
	"github.com/dharsanguruparan/ResumeVault/internal/normalize"
	"github.com/dharsanguruparan/ResumeVault/internal/repository"
	"github.com/dharsanguruparan/ResumeVault/internal/search"
	"github.com/dharsanguruparan/ResumeVault/internal/skills"
	"github.com/dharsanguruparan/ResumeVault/internal/tier"
)

var extensions = map[string]string{
	extract.MimePDF:  ".pdf",
	extract.MimeDOCX: ".docx",
	extract.MimeText: ".txt",
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid id")
	}
	return id, nil
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.respondError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, s.opts.MaxUploadBytes+1))
	if err != nil {
		s.fail(w, r, fmt.Errorf("read upload: %w", err))
		return
	}
	if int64(len(data)) > s.opts.MaxUploadBytes {
		s.respondError(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}
	if len(bytes.TrimSpace(data)) == 0 {
		s.respondError(w, http.StatusBadRequest, "empty file")
		return
	}
	contentType := extract.Detect(data)
	if !extract.Supported(contentType) {
		s.respondError(w, http.StatusUnsupportedMediaType, "unsupported file type "+contentType)
		return
	}

	key := fmt.Sprintf("resumes/%s%s", uuid.NewString(), extensions[contentType])
	url, err := s.objects.Put(r.Context(), key, data, contentType)
	if err != nil {
		s.fail(w, r, fmt.Errorf("store upload: %w", err))
		return
	}
	doc := &model.Document{
		FileKey:     key,
		FileURL:     url,
		FileName:    filepath.Base(header.Filename),
		ContentType: contentType,
		Status:      model.StatusPending,
	}
	if err := s.store.CreateDocument(r.Context(), doc); err != nil {
		s.fail(w, r, err)
		return
	}
	s.dispatch(r.Context(), doc.ID)
	s.respondJSON(w, http.StatusAccepted, doc)
}

// dispatch queues a document. A failed hand-off leaves the record Pending
// for a later reanalysis.
func (s *Server) dispatch(ctx context.Context, id int64) {
	if err := s.dispatcher.Dispatch(ctx, id); err != nil {
		s.logger.Error("dispatch document", zap.Int64(logger.FieldDocumentID, id), zap.Error(err))
	}
}

type manualEntry struct {
	Name           string   `json:"name" validate:"required,min=2,max=50"`
	Phone          string   `json:"phone" validate:"required,len=11,numeric,startswith=1"`
	Email          string   `json:"email" validate:"omitempty,email"`
	Institution    string   `json:"institution" validate:"max=100"`
	Tier           string   `json:"tier" validate:"tier"`
	Degree         string   `json:"degree" validate:"degree"`
	Major          string   `json:"major" validate:"max=100"`
	GraduationYear string   `json:"graduationYear" validate:"gradyear"`
	Skills         []string `json:"skills"`
	RubricID       *int64   `json:"rubricId" validate:"omitempty,gt=0"`
}

func (m *manualEntry) trim() {
	for _, f := range []*string{&m.Name, &m.Phone, &m.Email, &m.Institution, &m.Tier, &m.Degree, &m.Major, &m.GraduationYear} {
		*f = strings.TrimSpace(*f)
	}
}

func (s *Server) handleManual(w http.ResponseWriter, r *http.Request) {
	var req manualEntry
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	req.trim()
	if err := s.validate.Struct(req); err != nil {
		s.fail(w, r, err)
		return
	}

	var rubric *model.Rubric
	if req.RubricID != nil {
		rb, err := s.store.GetRubric(r.Context(), *req.RubricID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		rubric = rb
	}

	label := tier.NormalizeLabel(req.Tier)
	if label == tier.Unknown {
		label = s.search.Resolver().Resolve(req.Institution)
	}
	doc := &model.Document{
		FileKey:  model.ManualScheme + uuid.NewString(),
		FileName: req.Name,
		Status:   model.StatusPending,
		Profile: model.Profile{
			Name:           req.Name,
			Phone:          req.Phone,
			Email:          req.Email,
			Institution:    req.Institution,
			Tier:           string(label),
			Degree:         model.CanonicalDegree(req.Degree),
			Major:          req.Major,
			GraduationYear: req.GraduationYear,
			Skills:         skills.Normalize(req.Skills),
		},
	}
	doc.FileURL = doc.FileKey
	if err := s.store.CreateDocument(r.Context(), doc); err != nil {
		s.fail(w, r, err)
		return
	}
	if rubric != nil {
		eval := &model.Evaluation{
			DocumentID: doc.ID,
			RubricID:   rubric.ID,
			Qualified:  true,
			Reason:     "manual entry",
		}
		if err := s.store.UpsertEvaluation(r.Context(), eval); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	s.dispatch(r.Context(), doc.ID)
	s.respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	c, err := criteriaFromQuery(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	page, err := s.search.Query(r.Context(), c)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, page)
}

func queryInt(q map[string][]string, key string) (int, bool, error) {
	vals, ok := q[key]
	if !ok || len(vals) == 0 || strings.TrimSpace(vals[0]) == "" {
		return 0, false, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(vals[0]))
	if err != nil {
		return 0, false, &search.ValidationError{Field: key, Message: "must be an integer"}
	}
	return n, true, nil
}

// criteriaFromQuery reads search parameters. page/page_size are accepted as an
// alternative to offset/limit; offset/limit win when both are present.
func criteriaFromQuery(r *http.Request) (search.Criteria, error) {
	q := r.URL.Query()
	c := search.Criteria{
		Status:      q.Get("status"),
		Name:        q.Get("name"),
		Email:       q.Get("email"),
		Phone:       q.Get("phone"),
		Institution: q.Get("institution"),
		Tier:        q.Get("tier"),
		Degree:      q.Get("degree"),
		Major:       q.Get("major"),
		Skill:       q.Get("skill"),
		DateFrom:    q.Get("date_from"),
		DateTo:      q.Get("date_to"),
	}
	if c.Institution == "" {
		c.Institution = q.Get("university")
	}
	if raw := q.Get("include_deleted"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return c, &search.ValidationError{Field: "include_deleted", Message: "must be a boolean"}
		}
		c.IncludeDeleted = b
	}

	pageSize, hasSize, err := queryInt(q, "page_size")
	if err != nil {
		return c, err
	}
	page, hasPage, err := queryInt(q, "page")
	if err != nil {
		return c, err
	}
	if hasSize {
		c.Limit = pageSize
	}
	if hasPage {
		if page < 1 {
			return c, &search.ValidationError{Field: "page", Message: "must be at least 1"}
		}
		size := c.Limit
		if size <= 0 {
			size = search.DefaultLimit
		}
		c.Offset = (page - 1) * min(size, search.MaxLimit)
	}

	if limit, ok, err := queryInt(q, "limit"); err != nil {
		return c, err
	} else if ok {
		c.Limit = limit
	}
	if offset, ok, err := queryInt(q, "offset"); err != nil {
		return c, err
	} else if ok {
		c.Offset = offset
	}
	return c, nil
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
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
	s.respondJSON(w, http.StatusOK, doc)
}

type correctionRequest struct {
	Name           *string         `json:"name" validate:"omitempty,min=2,max=50"`
	Phone          *string         `json:"phone" validate:"omitempty,max=32"`
	Email          *string         `json:"email" validate:"omitempty,email"`
	Institution    *string         `json:"institution" validate:"omitempty,max=100"`
	Tier           *string         `json:"tier" validate:"omitempty,tier"`
	Degree         *string         `json:"degree" validate:"omitempty,degree"`
	Major          *string         `json:"major" validate:"omitempty,max=100"`
	GraduationYear *string         `json:"graduation_year"`
	Skills         *[]string       `json:"skills"`
	WorkExperience json.RawMessage `json:"work_experience"`
	Projects       json.RawMessage `json:"projects"`
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var req correctionRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := req.correction()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if c.Empty() {
		s.fail(w, r, badRequest("no updatable fields provided"))
		return
	}
	doc, err := s.store.ApplyCorrection(r.Context(), id, c)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, doc)
}

func (req correctionRequest) correction() (model.Correction, error) {
	c := model.Correction{
		Name:        req.Name,
		Phone:       req.Phone,
		Email:       req.Email,
		Institution: req.Institution,
		Major:       req.Major,
		Skills:      req.Skills,
	}
	var err error
	if c.WorkExperience, err = listField("work_experience", req.WorkExperience); err != nil {
		return c, err
	}
	if c.Projects, err = listField("projects", req.Projects); err != nil {
		return c, err
	}
	if req.Tier != nil {
		label := string(tier.NormalizeLabel(*req.Tier))
		c.Tier = &label
	}
	if req.Degree != nil {
		degree := model.CanonicalDegree(*req.Degree)
		c.Degree = &degree
	}
	if req.GraduationYear != nil {
		year := normalize.ExtractYear(*req.GraduationYear)
		if year == "" && strings.TrimSpace(*req.GraduationYear) != "" {
			return c, &search.ValidationError{Field: "graduation_year", Message: "must contain a four digit year"}
		}
		c.GraduationYear = &year
	}
	return c, nil
}

// listField accepts a JSON array or null (stored as []). Absent stays nil.
func listField(field string, raw json.RawMessage) (json.RawMessage, error) {
	if raw == nil {
		return nil, nil
	}
	trimmed := bytes.TrimSpace(raw)
	if string(trimmed) == "null" {
		return json.RawMessage(`[]`), nil
	}
	var items []any
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, &search.ValidationError{Field: field, Message: "must be an array"}
	}
	return json.RawMessage(trimmed), nil
}

func (s *Server) handleEvaluations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if _, err := s.store.GetDocument(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	evals, err := s.store.ListEvaluations(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if evals == nil {
		evals = []model.Evaluation{}
	}
	s.respondJSON(w, http.StatusOK, evals)
}

func (s *Server) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	criteria := model.DeleteCriteria{
		Name:  strings.TrimSpace(q.Get("name")),
		Email: strings.TrimSpace(q.Get("email")),
		Phone: strings.TrimSpace(q.Get("phone")),
	}
	if criteria.Empty() {
		s.fail(w, r, badRequest("at least one of name, email or phone is required"))
		return
	}
	n, err := s.store.SoftDelete(r.Context(), criteria)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

func (s *Server) handleReanalyzeOne(w http.ResponseWriter, r *http.Request) {
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
	if doc.IsDeleted {
		s.fail(w, r, fmt.Errorf("document %d is deleted: %w", id, repository.ErrNotFound))
		return
	}
	if err := s.dispatcher.Dispatch(r.Context(), id); err != nil {
		s.fail(w, r, fmt.Errorf("dispatch document %d: %w", id, err))
		return
	}
	s.respondJSON(w, http.StatusAccepted, map[string]any{"id": id, "queued": true})
}

type reanalyzeRequest struct {
	IDs []int64 `json:"ids"`
	All bool    `json:"all"`
}

func (s *Server) handleReanalyzeMany(w http.ResponseWriter, r *http.Request) {
	var req reanalyzeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	ids := req.IDs
	if req.All {
		all, err := s.store.ListActiveIDs(r.Context())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ids = all
	} else if len(ids) == 0 {
		s.fail(w, r, badRequest("ids or all is required"))
		return
	}
	ids = uniqueIDs(ids)
	if len(ids) > 0 {
		if err := s.dispatcher.DispatchBatch(r.Context(), ids); err != nil {
			s.fail(w, r, fmt.Errorf("dispatch batch: %w", err))
			return
		}
	}
	s.respondJSON(w, http.StatusAccepted, map[string]any{"queued": len(ids)})
}

func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
