package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error wins", Newf(ErrMalformedEntry, http.StatusBadRequest, "record %d", 3), http.StatusBadRequest},
		{"bare malformed", ErrMalformedEntry, http.StatusUnprocessableEntity},
		{"wrapped not found", fmt.Errorf("lookup: %w", ErrSymbolNotFound), http.StatusNotFound},
		{"not ready", ErrIndexNotReady, http.StatusServiceUnavailable},
		{"source failed", fmt.Errorf("reload: %w", ErrSourceFailed), http.StatusServiceUnavailable},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("building index: %w", New(ErrMalformedEntry, http.StatusUnprocessableEntity, "record 0: empty display name"))
	assert.True(t, Is(err, ErrMalformedEntry))
	assert.Equal(t, "building index: malformed entry: record 0: empty display name", err.Error())
}
