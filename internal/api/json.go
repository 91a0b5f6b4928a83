package api

import (
	"encoding/json"
	"net/http"
)

// Problem is the RFC7807 problem details body every API error takes. The
// schedule and order loaders' error kinds map onto distinct titles
// ("Malformed schedule input", "Missing day context", "Empty schedule
// input") so clients can branch without parsing detail strings.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
}

// problemType is the type URI for problems without a dedicated document.
const problemType = "about:blank"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeProblem writes a Problem with the request path as the instance.
func writeProblem(w http.ResponseWriter, status int, title, detail, instance string) {
	writeJSON(w, status, Problem{
		Type:     problemType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	})
}
