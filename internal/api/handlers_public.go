package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/govworks/foia/internal/auth"
	"github.com/govworks/foia/internal/foia"
	"github.com/govworks/foia/internal/similarity"
)

// bodyOverhead is the JSON envelope allowed on top of the text limit.
const bodyOverhead = 64 * 1024

// decodeJSON reads a size-capped JSON body into v and writes the error
// response itself when it fails.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Analysis.MaxTextBytes+bodyOverhead)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "payload_too_large", "Request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	return true
}

func actorFromRequest(r *http.Request) foia.Actor {
	claims, ok := auth.GetUserFromContext(r.Context())
	if !ok {
		return foia.Actor{}
	}
	name := claims.Name
	if name == "" {
		name = claims.Email
	}
	return foia.Actor{ID: claims.UserID, Name: name}
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_id", "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) createRequest(w http.ResponseWriter, r *http.Request) {
	var req foia.NewRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}

	req.RequesterName = sanitizeText(req.RequesterName)
	req.RequesterOrganization = sanitizeText(req.RequesterOrganization)
	req.Subject = sanitizeText(req.Subject)
	req.Description = sanitizeText(req.Description)

	created, err := s.requests.CreateRequest(r.Context(), req, actorFromRequest(r))
	if err != nil {
		if foia.IsClientError(err) {
			respondError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		s.logger.Error("creating request", "error", err)
		respondError(w, http.StatusInternalServerError, "db_error", "Failed to create request")
		return
	}

	resp := map[string]interface{}{
		"request":        created,
		"trackingNumber": created.TrackingNumber,
		"dateDue":        created.DateDue,
	}

	// Analysis links the request into the entity graph; a failure must
	// not fail the submission.
	analysis, err := s.architect.AnalyzeRequest(r.Context(), created.Subject+"\n\n"+created.Description, foia.RequestOptions{
		RequestID: &created.ID,
	})
	if err != nil {
		s.logger.Warn("analyzing new request", "tracking_number", created.TrackingNumber, "error", err)
	} else {
		resp["analysisId"] = analysis.AnalysisID
	}

	respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) getRequestStatus(w http.ResponseWriter, r *http.Request) {
	trackingNumber := strings.TrimSpace(chi.URLParam(r, "trackingNumber"))

	view, err := s.requests.GetByTrackingNumber(r.Context(), trackingNumber)
	if err != nil {
		if errors.Is(err, foia.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not_found", "Request not found")
			return
		}
		s.logger.Error("looking up request status", "tracking_number", trackingNumber, "error", err)
		respondError(w, http.StatusInternalServerError, "db_error", "Failed to load request")
		return
	}

	respondJSON(w, http.StatusOK, view)
}

type analyzeRequestBody struct {
	Text    string                 `json:"text"`
	Context map[string]interface{} `json:"context"`
}

func (s *Server) analyzeRequest(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequestBody
	if !s.decodeJSON(w, r, &req) {
		return
	}

	text := sanitizeText(req.Text)
	if text == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "text is required")
		return
	}

	// Failures answer 200 with success false and an empty analysis so
	// form clients can keep rendering.
	analysis, err := s.architect.AnalyzeRequest(r.Context(), text, foia.RequestOptions{Context: req.Context})
	if err != nil {
		s.logger.Error("analyzing request", "error", err)
		respondDegraded(w, http.StatusOK, "analysis_failed", "Failed to analyze request", foia.EmptyRequestAnalysis())
		return
	}
	if text != req.Text {
		analysis.AnalyzedText = text
	}

	respondJSON(w, http.StatusOK, analysis)
}

type suggestBody struct {
	Text         string `json:"text"`
	CurrentField string `json:"currentField"`
}

// suggest never fails: short or unusable text simply yields no
// suggestions.
func (s *Server) suggest(w http.ResponseWriter, r *http.Request) {
	var req suggestBody
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.Analysis.MaxTextBytes+bodyOverhead)).Decode(&req); err != nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"suggestions": []string{}})
		return
	}

	suggestions := s.architect.GenerateSuggestions(sanitizeText(req.Text))
	if suggestions == nil {
		suggestions = []string{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"suggestions":  suggestions,
		"currentField": req.CurrentField,
	})
}

type findExistingBody struct {
	Text string `json:"text"`
}

func (s *Server) findExisting(w http.ResponseWriter, r *http.Request) {
	var req findExistingBody
	if !s.decodeJSON(w, r, &req) {
		return
	}

	text := sanitizeText(req.Text)
	if text == "" {
		respondError(w, http.StatusBadRequest, "validation_error", "text is required")
		return
	}

	matches := s.architect.FindSimilar(r.Context(), text)
	if matches == nil {
		matches = []similarity.Match{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"similarRequests": matches,
		"count":           len(matches),
	})
}
