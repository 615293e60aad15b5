package rpc

import (
	"errors"
	"net/http"

	"novalink/native/escrow"
	"novalink/native/review"
	"novalink/observability/metrics"
)

type reviewSubmitParams struct {
	SessionID string `json:"sessionId"`
	Author    string `json:"author"`
	Rating    uint8  `json:"rating"`
	Text      string `json:"text"`
}

type reviewTutorParams struct {
	Tutor string `json:"tutor"`
}

type reviewJSON struct {
	SessionID string `json:"sessionId"`
	Tutor     string `json:"tutor"`
	Author    string `json:"author"`
	Rating    uint8  `json:"rating"`
	Text      string `json:"text"`
	CreatedAt int64  `json:"createdAt"`
}

type averageRatingJSON struct {
	Tutor   string  `json:"tutor"`
	Average float64 `json:"average"`
	HasData bool    `json:"hasData"`
}

func reviewToJSON(entry *review.Review) reviewJSON {
	return reviewJSON{
		SessionID: entry.SessionID.Hex(),
		Tutor:     entry.Tutor,
		Author:    entry.Author,
		Rating:    entry.Rating,
		Text:      entry.Text,
		CreatedAt: entry.CreatedAt,
	}
}

func writeReviewError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, review.ErrNotFound):
		writeError(w, http.StatusNotFound, id, codeEscrowNotFound, "not_found", err.Error())
	case errors.Is(err, review.ErrSessionNotCompleted):
		writeError(w, http.StatusConflict, id, codeEscrowConflict, "invalid_state", err.Error())
	case errors.Is(err, review.ErrDuplicateReview):
		writeError(w, http.StatusConflict, id, codeReviewConflict, "duplicate_review", err.Error())
	case errors.Is(err, review.ErrInvalidRating):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "invalid_params", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal_error", err.Error())
	}
}

func (s *Server) handleReviewSubmit(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params reviewSubmitParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := escrow.ParseSessionID(params.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	entry, err := s.reviews.Submit(id, params.Author, params.Rating, params.Text, s.now())
	if err != nil {
		writeReviewError(w, req.ID, err)
		return
	}
	metrics.Escrow().ReviewSubmitted()
	writeResult(w, req.ID, reviewToJSON(entry))
}

func (s *Server) handleReviewList(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params reviewTutorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	out := make([]reviewJSON, 0)
	for entry := range s.reviews.ForTutor(params.Tutor) {
		out = append(out, reviewToJSON(entry))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleReviewAverage(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params reviewTutorParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	average, hasData, err := s.reviews.AverageRating(params.Tutor)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", err.Error())
		return
	}
	writeResult(w, req.ID, averageRatingJSON{Tutor: params.Tutor, Average: average, HasData: hasData})
}
