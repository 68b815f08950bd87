package httputil

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"whatsdata/internal/errors"
	"whatsdata/internal/tracing"

	"github.com/goccy/go-json"
)

// Envelope is the success body. Metadata keys sit next to data at the top level.
type Envelope map[string]any

// NewEnvelope starts a success envelope of the given type
func NewEnvelope(kind string, data any) Envelope {
	e := Envelope{
		"success":   true,
		"type":      kind,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if data != nil {
		e["data"] = data
	}
	return e
}

// With adds a metadata key and returns the envelope
func (e Envelope) With(key string, value any) Envelope {
	e[key] = value
	return e
}

// WriteJSON encodes v with HTML escaping off, matching the on-disk form
func WriteJSON(w http.ResponseWriter, status int, v any) error {
	data, err := json.MarshalWithOption(v, json.DisableHTMLEscape())
	if err != nil {
		http.Error(w, `{"success":false,"type":"error","message":"internal error"}`, http.StatusInternalServerError)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}

// WriteError writes the error envelope with the status mapped from the error code
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errors.ToHTTPResponse(err, tracing.GetRequestID(r.Context()))
	_ = WriteJSON(w, errors.HTTPStatusCode(err), resp)
}

// DecodeJSON reads a request body into v, numbers kept as json.Number
func DecodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return errors.NewInputError("request body is not valid JSON")
	}
	return nil
}

// QueryString returns a trimmed query parameter
func QueryString(r *http.Request, key string) string {
	return strings.TrimSpace(r.URL.Query().Get(key))
}

// QueryPresent reports whether the parameter appears at all
func QueryPresent(r *http.Request, key string) bool {
	_, ok := r.URL.Query()[key]
	return ok
}

// QueryBool parses "true"/"1"/"yes"; anything else is def
func QueryBool(r *http.Request, key string, def bool) bool {
	v := strings.ToLower(QueryString(r, key))
	switch v {
	case "":
		return def
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return def
}

// QueryInt parses an integer parameter, returning def when absent or malformed
func QueryInt(r *http.Request, key string, def int) int {
	n, err := strconv.Atoi(QueryString(r, key))
	if err != nil {
		return def
	}
	return n
}
