package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"ammrelay/apierr"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError renders err using apierr's stable code/status mapping (spec
// §7). Errors with no *apierr.Error wrapper render as an opaque 500 with no
// detail leaked to the client.
func writeError(w http.ResponseWriter, err error) {
	status := apierr.HTTPStatus(err)
	resp := map[string]string{"code": apierr.Code(err)}
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) && status < http.StatusInternalServerError {
		resp["message"] = err.Error()
	} else {
		resp["message"] = "internal error"
	}
	writeJSON(w, status, resp)
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apierr.New(apierr.InvalidInput, err)
	}
	return nil
}
