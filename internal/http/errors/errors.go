package errors

import (
	"encoding/json"
	"net/http"
)

// WriteError escribe la respuesta JSON {code, error, details} para err.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	details := appErr.Details
	if details == nil {
		details = map[string]any{}
	}
	resp := struct {
		Code    string         `json:"code"`
		Error   string         `json:"error"`
		Details map[string]any `json:"details"`
	}{appErr.Code, appErr.Message, details}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(appErr.HTTPStatus)
	_ = json.NewEncoder(w).Encode(resp)
}
