package server

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapper(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		code    int
		body    string
	}{
		{
			name: "data",
			handler: Wrapper(func(http.ResponseWriter, *http.Request) (map[string]float64, *HTTPError) {
				return map[string]float64{"gb": 1.5}, nil
			}),
			code: http.StatusOK,
			body: `{"gb":1.5}`,
		},
		{
			name: "handler error",
			handler: Wrapper(func(http.ResponseWriter, *http.Request) (map[string]float64, *HTTPError) {
				return nil, NewHTTPError400("batch_size is required")
			}),
			code: http.StatusBadRequest,
			body: `{"error":"batch_size is required"}`,
		},
		{
			name: "unencodable response",
			handler: Wrapper(func(http.ResponseWriter, *http.Request) (map[string]float64, *HTTPError) {
				return map[string]float64{"gb": math.NaN()}, nil
			}),
			code: http.StatusInternalServerError,
			body: `{"error":"failed to encode response: json: unsupported value: NaN"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.handler(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.code, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}
