package instagram

import (
	"encoding/json"
	"fmt"
	"net/url"
)

const (
	// BaseURL is the Instagram web base URL
	BaseURL = "https://www.instagram.com"

	// ProfileEndpoint is the web profile info endpoint
	ProfileEndpoint = "/api/v1/users/web_profile_info/"

	// StoriesEndpoint returns the active story reel for one or more users
	StoriesEndpoint = "/api/v1/feed/reels_media/"

	// GraphQLEndpoint serves shortcode media queries
	GraphQLEndpoint = "/graphql/query/"

	// LoginPageEndpoint is fetched once to seed the CSRF cookie
	LoginPageEndpoint = "/accounts/login/"

	// LoginEndpoint is the ajax login endpoint
	LoginEndpoint = "/accounts/login/ajax/"

	// TwoFactorEndpoint completes a two-factor login
	TwoFactorEndpoint = "/accounts/login/ajax/two_factor/"

	// shortcodeQueryHash identifies the shortcode media GraphQL query
	shortcodeQueryHash = "b3055c01b4b222b8a47dc12b090e4e64"
)

// profileURL builds the profile info URL for a username
func (c *Client) profileURL(username string) string {
	return fmt.Sprintf("%s%s?username=%s", c.baseURL, ProfileEndpoint, url.QueryEscape(username))
}

// storiesURL builds the reels media URL for a numeric user ID
func (c *Client) storiesURL(userID string) string {
	return fmt.Sprintf("%s%s?reel_ids=%s", c.baseURL, StoriesEndpoint, url.QueryEscape(userID))
}

// shortcodeURL builds the GraphQL query URL for a post or reel shortcode
func (c *Client) shortcodeURL(shortcode string) string {
	variables, _ := json.Marshal(map[string]interface{}{
		"shortcode": shortcode,
	})
	params := url.Values{}
	params.Set("query_hash", shortcodeQueryHash)
	params.Set("variables", string(variables))
	return fmt.Sprintf("%s%s?%s", c.baseURL, GraphQLEndpoint, params.Encode())
}
