// Package gemini answers customer questions with Google's Gemini models.
//
// ChatModel renders the question and the retrieved knowledge passages into a
// prompt, calls the model through the google.golang.org/genai client and
// extracts the text reply. Transport failures are retried with exponential
// backoff; malformed or blocked responses are returned immediately.
package gemini
