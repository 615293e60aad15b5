package rpc

import (
	"encoding/base64"
	"errors"
	"net/http"

	"novalink/native/credential"
	"novalink/native/escrow"
)

type credentialPutParams struct {
	Data string `json:"data"` // base64-encoded blob
	Name string `json:"name,omitempty"`
	Type string `json:"type,omitempty"`
}

type credentialHashParams struct {
	Hash string `json:"hash"`
}

type credentialAttachParams struct {
	SessionID string `json:"sessionId"`
	Hash      string `json:"hash"`
}

type credentialPutResult struct {
	Hash string `json:"hash"`
}

type credentialGetResult struct {
	Hash string `json:"hash"`
	Data string `json:"data"`
}

func writeCredentialError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, credential.ErrNotFound):
		writeError(w, http.StatusNotFound, id, codeCredentialNotFound, "not_found", err.Error())
	case errors.Is(err, credential.ErrEmptyContent):
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, "invalid_params", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal_error", err.Error())
	}
}

func (s *Server) handleCredentialPut(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params credentialPutParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	data, err := base64.StdEncoding.DecodeString(params.Data)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", "data must be base64 encoded")
		return
	}
	hash, err := s.credentials.Put(data, params.Name, params.Type)
	if err != nil {
		writeCredentialError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, credentialPutResult{Hash: hash.Hex()})
}

func (s *Server) handleCredentialGet(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params credentialHashParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	hash, err := credential.ParseHash(params.Hash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	data, found, err := s.credentials.Get(hash)
	if err != nil {
		writeCredentialError(w, req.ID, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, req.ID, codeCredentialNotFound, "not_found", "content not found")
		return
	}
	writeResult(w, req.ID, credentialGetResult{
		Hash: hash.Hex(),
		Data: base64.StdEncoding.EncodeToString(data),
	})
}

func (s *Server) handleCredentialPin(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params credentialHashParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	hash, err := credential.ParseHash(params.Hash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.credentials.Pin(hash); err != nil {
		writeCredentialError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"pinned": true})
}

func (s *Server) handleCredentialSessionNotes(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params struct {
		SessionID string `json:"sessionId"`
	}
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	sessionID, err := escrow.ParseSessionID(params.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	hash, found, err := s.credentials.SessionNotes(sessionID)
	if err != nil {
		writeCredentialError(w, req.ID, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, req.ID, codeCredentialNotFound, "not_found", "no notes attached")
		return
	}
	writeResult(w, req.ID, map[string]string{"sessionId": sessionID.Hex(), "hash": hash.Hex()})
}

func (s *Server) handleCredentialAttachNotes(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params credentialAttachParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	sessionID, err := escrow.ParseSessionID(params.SessionID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	hash, err := credential.ParseHash(params.Hash)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	if _, err := s.ledger.GetSession(sessionID); err != nil {
		writeLedgerError(w, req, err)
		return
	}
	if err := s.credentials.AttachSessionNotes(sessionID, hash); err != nil {
		writeCredentialError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]string{"sessionId": sessionID.Hex(), "hash": hash.Hex()})
}
