package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ucmodeler/modelstore/pkg/errclass"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var statusByClass = []struct {
	class  *errclass.ModelError
	status int
}{
	{errclass.ErrNotFound, http.StatusNotFound},
	{errclass.ErrCorrupted, http.StatusInternalServerError},
	{errclass.ErrNameInvalid, http.StatusBadRequest},
	{errclass.ErrPathEscape, http.StatusBadRequest},
	{errclass.ErrBadRequest, http.StatusBadRequest},
	{errclass.ErrAlreadyExists, http.StatusPreconditionFailed},
	{errclass.ErrNameConflict, http.StatusPreconditionFailed},
	{errclass.ErrForbidden, http.StatusForbidden},
	{errclass.ErrAuth, http.StatusUnauthorized},
	{errclass.ErrUnsupportedMedia, http.StatusUnsupportedMediaType},
}

func statusFor(err error) int {
	for _, m := range statusByClass {
		if errors.Is(err, m.class) {
			return m.status
		}
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	code := errclass.Code(err)
	if code == "" {
		code = "E_INTERNAL"
	}
	writeJSON(w, statusFor(err), errorBody{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
