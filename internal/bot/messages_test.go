package bot

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"igrelay/pkg/errors"
	"igrelay/pkg/instagram"
)

func TestRateLimitedMessage(t *testing.T) {
	assert.Contains(t, rateLimitedMessage(30*time.Second), "1m0s", "rounds up to a minute")
	assert.Contains(t, rateLimitedMessage(90*time.Second), "2m0s")
	assert.Contains(t, rateLimitedMessage(45*time.Minute), "45m0s")
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "challenge",
			err:  &instagram.ChallengeError{Username: "alice"},
			want: "extra verification",
		},
		{
			name: "not found",
			err:  errors.New(errors.ErrorTypeNotFound, "@ghost has no active stories", 0),
			want: "no active stories",
		},
		{
			name: "private",
			err:  errors.New(errors.ErrorTypePrivate, "private profile", 0),
			want: "/login",
		},
		{
			name: "auth",
			err:  errors.New(errors.ErrorTypeAuth, "denied", 401),
			want: "denied access",
		},
		{
			name: "rate limit",
			err:  errors.New(errors.ErrorTypeRateLimit, "429", 429),
			want: "rate limiting",
		},
		{
			name: "too large",
			err:  errors.New(errors.ErrorTypeMediaTooLarge, "big", 0),
			want: "50 MB",
		},
		{
			name: "server error",
			err:  errors.New(errors.ErrorTypeServerError, "502", 502),
			want: "unreachable",
		},
		{
			name: "plain error",
			err:  fmt.Errorf("boom"),
			want: "Something went wrong",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, userMessage(tt.err), tt.want)
		})
	}
}
