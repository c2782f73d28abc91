package controller

import (
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"

	domainErrors "github.com/cassiomorais/paybridge/internal/domain/errors"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

const maxBodySize = 1 << 20

// Response is the envelope every endpoint answers with, except a successful
// issuance which relays the gateway payload unchanged.
type Response struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// writeFunc renders v with the given status.
type writeFunc func(w http.ResponseWriter, status int, v any)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

var callbackName = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$.]*$`)

// jsonp wraps the JSON document in a call to callback, for script-tag clients.
func jsonp(callback string) writeFunc {
	return func(w http.ResponseWriter, status int, v any) {
		body, err := json.Marshal(v)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, Response{Message: "Internal Server Error"})
			return
		}
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.WriteHeader(status)
		fmt.Fprintf(w, "%s(%s)", callback, body)
	}
}

// writeError reports business outcomes as HTTP 200 with success=false, and
// everything else as a 500 that hides the cause.
func writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, write writeFunc, err error) {
	msg, ok := domainErrors.PublicMessage(err)
	if ok {
		write(w, http.StatusOK, Response{Success: false, Message: msg})
		return
	}

	log.Error().Err(err).
		Str("request_id", chimw.GetReqID(r.Context())).
		Str("path", r.URL.Path).
		Msg("request failed")
	if msg == "" {
		msg = "Internal Server Error"
	}
	write(w, http.StatusInternalServerError, Response{Success: false, Message: msg})
}

// readParams collects request fields from the query string, a form body or
// a JSON object body. Body values win over query values. Non-string JSON
// values are rendered in their literal form.
func readParams(w http.ResponseWriter, r *http.Request) (map[string]string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := r.ParseForm(); err != nil {
		return nil, domainErrors.NewValidationError("body", "Invalid request body.")
	}

	params := make(map[string]string, len(r.Form))
	for k := range r.Form {
		params[k] = r.Form.Get(k)
	}

	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if ct != "application/json" {
		return params, nil
	}

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var body map[string]any
	if err := dec.Decode(&body); err != nil && err != io.EOF {
		return nil, domainErrors.NewValidationError("body", "Invalid JSON body.")
	}
	for k, v := range body {
		switch val := v.(type) {
		case nil:
		case string:
			params[k] = val
		case json.Number:
			params[k] = val.String()
		default:
			params[k] = fmt.Sprint(val)
		}
	}
	return params, nil
}

func field(params map[string]string, name string) string {
	return strings.TrimSpace(params[name])
}
