package rpc

import (
	"errors"
	"math/big"
	"net/http"
	"strings"

	"novalink/core/types"
	"novalink/native/registry"
)

type tutorRegisterParams struct {
	Address         string   `json:"address"`
	Name            string   `json:"name"`
	Subjects        []string `json:"subjects"`
	HourlyRate      string   `json:"hourlyRate"`
	CredentialsHash string   `json:"credentialsHash,omitempty"`
}

type tutorAddressParams struct {
	Address string `json:"address"`
}

type tutorJSON struct {
	Address         string   `json:"address"`
	Name            string   `json:"name"`
	Subjects        []string `json:"subjects"`
	HourlyRate      string   `json:"hourlyRate"`
	Currency        string   `json:"currency"`
	CredentialsHash string   `json:"credentialsHash,omitempty"`
	RegisteredAt    int64    `json:"registeredAt"`
	AverageRating   float64  `json:"averageRating"`
	Rated           bool     `json:"rated"`
}

func (s *Server) tutorToJSON(profile *registry.TutorProfile) tutorJSON {
	out := tutorJSON{
		Address:         profile.Address,
		Name:            profile.Name,
		Subjects:        profile.Subjects,
		HourlyRate:      profile.HourlyRate.Amount.String(),
		Currency:        profile.HourlyRate.Currency,
		CredentialsHash: profile.CredentialsHash,
		RegisteredAt:    profile.RegisteredAt,
	}
	if s.reviews != nil {
		if average, hasData, err := s.reviews.AverageRating(profile.Address); err == nil {
			out.AverageRating = average
			out.Rated = hasData
		}
	}
	return out
}

func (s *Server) handleRegistryRegister(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params tutorRegisterParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	rateValue, ok := new(big.Int).SetString(strings.TrimSpace(params.HourlyRate), 10)
	if !ok || rateValue.Sign() <= 0 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "hourlyRate must be a positive integer")
		return
	}
	rate, err := types.NewMoney(rateValue, s.ledger.Currency())
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	profile, err := s.tutors.Register(&registry.TutorProfile{
		Address:         params.Address,
		Name:            params.Name,
		Subjects:        params.Subjects,
		HourlyRate:      rate,
		CredentialsHash: strings.TrimSpace(params.CredentialsHash),
	})
	if err != nil {
		if errors.Is(err, registry.ErrAlreadyRegistered) {
			writeError(w, http.StatusConflict, req.ID, codeRegistryConflict, "already_registered", err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	writeResult(w, req.ID, s.tutorToJSON(profile))
}

func (s *Server) handleRegistryGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params tutorAddressParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	profile, err := s.tutors.Get(params.Address)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			writeError(w, http.StatusNotFound, req.ID, codeEscrowNotFound, "not_found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", err.Error())
		return
	}
	writeResult(w, req.ID, s.tutorToJSON(profile))
}

func (s *Server) handleRegistryList(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	profiles, err := s.tutors.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "internal_error", err.Error())
		return
	}
	out := make([]tutorJSON, 0, len(profiles))
	for _, profile := range profiles {
		out = append(out, s.tutorToJSON(profile))
	}
	writeResult(w, req.ID, out)
}
