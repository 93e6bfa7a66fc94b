package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return e.Message
}

func NewHTTPError400(message string) *HTTPError {
	return &HTTPError{StatusCode: http.StatusBadRequest, Message: message}
}

func NewHTTPError404(message string) *HTTPError {
	return &HTTPError{StatusCode: http.StatusNotFound, Message: message}
}

func NewHTTPError500(message string) *HTTPError {
	return &HTTPError{StatusCode: http.StatusInternalServerError, Message: message}
}

type errorResponse struct {
	Error string `json:"error"`
}

// handlers that decide their own status codes on failure
type httpWrapper[T any] func(res http.ResponseWriter, req *http.Request) (T, *HTTPError)

// Wrapper turns a handler returning data or an *HTTPError into an http.HandlerFunc
// that writes either the data or {"error": message} as JSON.
func Wrapper[T any](handler httpWrapper[T]) http.HandlerFunc {
	return func(res http.ResponseWriter, req *http.Request) {
		data, err := handler(res, req)
		var body []byte
		if err == nil {
			var encErr error
			if body, encErr = json.Marshal(data); encErr != nil {
				err = NewHTTPError500(fmt.Sprintf("failed to encode response: %v", encErr))
			}
		}
		if err != nil {
			statusCode := err.StatusCode
			if statusCode == 0 {
				statusCode = http.StatusInternalServerError
			}
			if statusCode >= http.StatusInternalServerError {
				log.Error().Str("path", req.URL.Path).Msgf("error for route: %s", err.Error())
			} else {
				log.Debug().Str("path", req.URL.Path).Int("status", statusCode).Msg(err.Error())
			}
			writeJSON(res, statusCode, errorResponse{Error: err.Message})
			return
		}
		res.Header().Set("Content-Type", "application/json")
		res.WriteHeader(http.StatusOK)
		res.Write(append(body, '\n'))
	}
}

func writeJSON(res http.ResponseWriter, statusCode int, data any) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(statusCode)
	if err := json.NewEncoder(res).Encode(data); err != nil {
		log.Error().Err(err).Msg("error for json encoding")
	}
}

func notFoundHandler(res http.ResponseWriter, req *http.Request) {
	log.Debug().Str("method", req.Method).Str("path", req.URL.Path).Msg("unknown API path")
	writeJSON(res, http.StatusNotFound, errorResponse{Error: "Endpoint not found"})
}

func methodNotAllowedHandler(res http.ResponseWriter, req *http.Request) {
	writeJSON(res, http.StatusMethodNotAllowed, errorResponse{Error: "Method not allowed"})
}
