package gemini

import "errors"

var (
	// ErrInvalidConfig is returned when the model cannot be configured.
	ErrInvalidConfig = errors.New("invalid LLM configuration")

	// ErrEmptyMessage is returned when asked to answer an empty question.
	ErrEmptyMessage = errors.New("message cannot be empty")

	// ErrInvalidResponse is returned when the model's response has no usable text.
	ErrInvalidResponse = errors.New("invalid response from model")

	// ErrContentBlocked is returned when the safety filters withheld the reply.
	ErrContentBlocked = errors.New("content blocked by safety filters")

	// ErrTransientFailure is returned when every retry of the API call failed.
	ErrTransientFailure = errors.New("model temporarily unavailable")
)
