// Package link classifies free-text user input into relay targets:
// a profile URL or bare username (stories), a post URL, or a reel URL.
package link

import (
	"regexp"
	"strings"
)

// Kind identifies the type of content a target refers to
type Kind string

const (
	KindStories Kind = "stories"
	KindPost    Kind = "post"
	KindReel    Kind = "reel"
)

// Target is a parsed relay request
type Target struct {
	Kind      Kind
	Username  string // set for KindStories
	Shortcode string // set for KindPost and KindReel
}

var (
	postRe      = regexp.MustCompile(`instagram\.com/(?:p|post|posts)/([A-Za-z0-9_-]+)`)
	reelRe      = regexp.MustCompile(`instagram\.com/(?:reel|reels|r)/([A-Za-z0-9_-]+)`)
	storiesRe   = regexp.MustCompile(`instagram\.com/stories/([A-Za-z0-9._]+)`)
	profileRe   = regexp.MustCompile(`instagram\.com/([^/?#]+)`)
	shortcodeRe = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	usernameRe  = regexp.MustCompile(`^[A-Za-z0-9._]{1,30}$`)
)

// reservedPaths are instagram.com path components that are not usernames
var reservedPaths = map[string]bool{
	"p":       true,
	"post":    true,
	"posts":   true,
	"reel":    true,
	"reels":   true,
	"r":       true,
	"stories": true,
	"explore": true,
	"tv":      true,
}

// Parse classifies user input into a Target. It returns ok=false when the
// input is neither a recognizable Instagram URL, shortcode, nor username.
func Parse(input string) (Target, bool) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Target{}, false
	}

	if m := postRe.FindStringSubmatch(input); m != nil {
		return Target{Kind: KindPost, Shortcode: m[1]}, true
	}
	if m := reelRe.FindStringSubmatch(input); m != nil {
		return Target{Kind: KindReel, Shortcode: m[1]}, true
	}

	if m := storiesRe.FindStringSubmatch(input); m != nil {
		return Target{Kind: KindStories, Username: SanitizeUsername(m[1])}, true
	}

	if strings.Contains(input, "instagram.com") {
		if m := profileRe.FindStringSubmatch(input); m != nil {
			username := SanitizeUsername(m[1])
			if reservedPaths[username] || !usernameRe.MatchString(username) {
				return Target{}, false
			}
			return Target{Kind: KindStories, Username: username}, true
		}
		return Target{}, false
	}

	// A bare 11-character code is treated as a post shortcode when it
	// contains characters a username cannot (uppercase or hyphen).
	// Usernames are lowercase letters, digits, periods and underscores.
	if shortcodeRe.MatchString(input) && strings.ContainsAny(input, "ABCDEFGHIJKLMNOPQRSTUVWXYZ-") {
		return Target{Kind: KindPost, Shortcode: input}, true
	}

	username := SanitizeUsername(input)
	if username == "" || !usernameRe.MatchString(username) {
		return Target{}, false
	}
	return Target{Kind: KindStories, Username: username}, true
}

// SanitizeUsername strips decorations users paste along with a username
func SanitizeUsername(username string) string {
	username = strings.TrimSpace(username)
	username = strings.TrimPrefix(username, "@")
	if idx := strings.IndexByte(username, '?'); idx >= 0 {
		username = username[:idx]
	}
	username = strings.TrimRight(username, "/ ")
	return strings.ToLower(username)
}

// IsVerificationCode reports whether the input looks like a 6-digit
// Instagram verification code
func IsVerificationCode(input string) bool {
	input = strings.TrimSpace(input)
	if len(input) != 6 {
		return false
	}
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
