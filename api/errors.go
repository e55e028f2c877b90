package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"auction-importer/auth"
	"auction-importer/services"
	"auction-importer/storage"
)

// errorBody is the toast shape the admin panel renders.
type errorBody struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	Kind    string `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, title, message string) {
	writeJSON(w, status, errorBody{Title: title, Message: message})
}

// writeErr maps a service error to a status and toast.
func writeErr(w http.ResponseWriter, err error) {
	var ie *services.ImportError
	switch {
	case errors.As(err, &ie):
		writeJSON(w, importStatus(ie), errorBody{Title: ie.Title(), Message: ie.Err.Error(), Kind: string(ie.Kind)})
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		writeError(w, http.StatusUnauthorized, "Sign-in required", "Sign in with an admin account")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, http.StatusForbidden, "Not allowed", "This account is not an administrator")
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
	}
}

func importStatus(ie *services.ImportError) int {
	switch ie.Kind {
	case services.KindInput:
		switch {
		case errors.Is(ie, services.ErrPayloadTooLarge):
			return http.StatusRequestEntityTooLarge
		case errors.Is(ie, services.ErrEmptyBatch):
			return http.StatusUnprocessableEntity
		}
		return http.StatusBadRequest
	case services.KindConflict:
		return http.StatusConflict
	case services.KindTransport, services.KindApplication:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
