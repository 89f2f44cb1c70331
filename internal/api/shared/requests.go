package shared

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
)

// MaxJSONBodyBytes caps JSON request bodies.
const MaxJSONBodyBytes = 1 << 20

var (
	// ErrEmptyBody is returned by DecodeJSON for a request without a body.
	ErrEmptyBody = errors.New("request body is empty")

	// ErrTrailingData is returned when the body holds more than one JSON value.
	ErrTrailingData = errors.New("request body must contain a single JSON object")
)

var validate = validator.New()

// DecodeJSON decodes a single JSON value from the body into v. Bodies over
// MaxJSONBodyBytes fail with *http.MaxBytesError.
func DecodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxJSONBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyBody
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return ErrTrailingData
	}
	return nil
}

// ValidateRequest runs v's own Validate method when it has one, and the
// struct tags otherwise.
func ValidateRequest(v any) error {
	if custom, ok := v.(interface{ Validate() error }); ok {
		return custom.Validate()
	}
	return validate.Struct(v)
}
