package link

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Target
		ok    bool
	}{
		{
			name:  "bare username",
			input: "natgeo",
			want:  Target{Kind: KindStories, Username: "natgeo"},
			ok:    true,
		},
		{
			name:  "username with at sign",
			input: "@natgeo",
			want:  Target{Kind: KindStories, Username: "natgeo"},
			ok:    true,
		},
		{
			name:  "username with dots and underscores",
			input: "some_user.99",
			want:  Target{Kind: KindStories, Username: "some_user.99"},
			ok:    true,
		},
		{
			name:  "profile URL",
			input: "https://www.instagram.com/natgeo/",
			want:  Target{Kind: KindStories, Username: "natgeo"},
			ok:    true,
		},
		{
			name:  "stories URL",
			input: "https://instagram.com/stories/natgeo/123456789/",
			want:  Target{Kind: KindStories, Username: "natgeo"},
			ok:    true,
		},
		{
			name:  "post URL",
			input: "https://www.instagram.com/p/CxYzAbCdEfG/",
			want:  Target{Kind: KindPost, Shortcode: "CxYzAbCdEfG"},
			ok:    true,
		},
		{
			name:  "post URL with query",
			input: "https://www.instagram.com/p/CxYzAbCdEfG/?igshid=abc123",
			want:  Target{Kind: KindPost, Shortcode: "CxYzAbCdEfG"},
			ok:    true,
		},
		{
			name:  "reel URL",
			input: "https://www.instagram.com/reel/CxYzAbCdEfG/",
			want:  Target{Kind: KindReel, Shortcode: "CxYzAbCdEfG"},
			ok:    true,
		},
		{
			name:  "reels plural URL",
			input: "https://www.instagram.com/reels/CxYzAbCdEfG",
			want:  Target{Kind: KindReel, Shortcode: "CxYzAbCdEfG"},
			ok:    true,
		},
		{
			name:  "bare shortcode with uppercase",
			input: "CxYzAbCdEfG",
			want:  Target{Kind: KindPost, Shortcode: "CxYzAbCdEfG"},
			ok:    true,
		},
		{
			name:  "eleven char lowercase reads as username",
			input: "lowercaseus",
			want:  Target{Kind: KindStories, Username: "lowercaseus"},
			ok:    true,
		},
		{
			name:  "reserved path is not a username",
			input: "https://www.instagram.com/explore/",
			ok:    false,
		},
		{
			name:  "random sentence",
			input: "hello how are you",
			ok:    false,
		},
		{
			name:  "empty input",
			input: "",
			ok:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestSanitizeUsername(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"@natgeo", "natgeo"},
		{"natgeo", "natgeo"},
		{"NatGeo", "natgeo"},
		{"natgeo/", "natgeo"},
		{"natgeo?igshid=xyz", "natgeo"},
		{"  natgeo  ", "natgeo"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeUsername(tt.input), "input %q", tt.input)
	}
}

func TestIsVerificationCode(t *testing.T) {
	assert.True(t, IsVerificationCode("123456"))
	assert.True(t, IsVerificationCode("000000"))
	assert.False(t, IsVerificationCode("12345"))
	assert.False(t, IsVerificationCode("1234567"))
	assert.False(t, IsVerificationCode("12345a"))
	assert.False(t, IsVerificationCode(""))
}
