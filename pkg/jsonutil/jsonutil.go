// Package jsonutil centralizes JSON encoding on a single implementation so
// every HTTP response and config dump serializes the same way.
package jsonutil

import (
	"net/http"

	json "github.com/goccy/go-json"
)

// Marshal encodes v as JSON.
func Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// WriteResponse writes v as a JSON response body with the given status.
func WriteResponse(w http.ResponseWriter, status int, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}
