package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: title required", ErrValidation), http.StatusBadRequest},
		{ErrUnauthorized, http.StatusUnauthorized},
		{fmt.Errorf("%w: not your book", ErrForbidden), http.StatusForbidden},
		{fmt.Errorf("%w: book 3", ErrNotFound), http.StatusNotFound},
		{ErrConflict, http.StatusConflict},
		{fmt.Errorf("%w: book \"Go\" has 2 left", ErrInsufficientStock), http.StatusConflict},
		{errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Status(tt.err), tt.err.Error())
	}
}

func TestMessage_HidesInternalCause(t *testing.T) {
	assert.Equal(t, "internal error", Message(errors.New("pq: connection refused")))
	assert.Equal(t, "not found: book 3", Message(fmt.Errorf("%w: book 3", ErrNotFound)))
}
