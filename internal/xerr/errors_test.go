package xerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromExchangeCode(t *testing.T) {
	tests := []struct {
		code string
		want Kind
	}{
		{"-1003", KindTransient},
		{"-1021", KindClockSkew},
		{"-1022", KindConfigAuth},
		{"-2015", KindConfigAuth},
		{"-1102", KindClientRequest},
		{"-1111", KindClientRequest},
		{"345239", KindDailyLimit},
		{"-9999", KindBusinessRule},
	}
	for _, tt := range tests {
		err := FromExchangeCode(tt.code, "msg")
		assert.Equal(t, tt.want, err.Kind, "code %s", tt.code)
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(New(KindTransient, "-1003", "rate limited")))
	assert.True(t, Retryable(New(KindClockSkew, "-1021", "bad timestamp")))
	assert.False(t, Retryable(New(KindConfigAuth, "-1022", "bad sig")))
	assert.False(t, Retryable(errors.New("plain error")))
}

func TestFromHTTPStatus(t *testing.T) {
	assert.Equal(t, KindTransient, FromHTTPStatus(429, "").Kind)
	assert.Equal(t, KindTransient, FromHTTPStatus(418, "").Kind)
	assert.Equal(t, KindTransient, FromHTTPStatus(503, "").Kind)
	assert.Equal(t, KindClientRequest, FromHTTPStatus(400, "").Kind)
}

func TestIsAndUnwrap(t *testing.T) {
	cause := errors.New("boom")
	wrapped := Wrap(KindTransient, "", cause)
	assert.True(t, Is(wrapped, KindTransient))
	assert.Equal(t, cause, errors.Unwrap(wrapped))
}
