package remote

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   Kind
	}{
		{http.StatusRequestTimeout, KindTransient},
		{http.StatusTooManyRequests, KindTransient},
		{http.StatusInternalServerError, KindTransient},
		{http.StatusBadGateway, KindTransient},
		{http.StatusServiceUnavailable, KindTransient},
		{http.StatusGatewayTimeout, KindTransient},
		{http.StatusUnauthorized, KindAuthExpired},
		{http.StatusBadRequest, KindPermanent},
		{http.StatusForbidden, KindPermanent},
		{http.StatusNotFound, KindPermanent},
		{http.StatusUnprocessableEntity, KindPermanent},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, classifyStatus(tt.status))
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	transient := &Error{Kind: KindTransient, Status: 503, Message: "unavailable"}
	assert.True(t, IsTransient(transient))
	assert.False(t, IsPermanent(transient))
	assert.False(t, IsAuthExpired(transient))
	assert.Equal(t, 503, StatusOf(transient))

	wrapped := fmt.Errorf("replaying operation: %w", transient)
	assert.True(t, IsTransient(wrapped), "helpers see through wrapping")
	assert.Equal(t, 503, StatusOf(wrapped))

	plain := errors.New("not an api error")
	assert.False(t, IsTransient(plain))
	assert.False(t, IsPermanent(plain))
	assert.Equal(t, 0, StatusOf(plain))
}

func TestErrorString(t *testing.T) {
	err := &Error{Kind: KindPermanent, Status: 422, Code: "VALIDATION", Message: "name is required"}
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "422")
}
