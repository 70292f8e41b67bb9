package instagram

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igrelay/pkg/config"
	"igrelay/pkg/errors"
	"igrelay/pkg/logger"
)

func testInstagramConfig() *config.InstagramConfig {
	return &config.InstagramConfig{
		UserAgent:      "test-agent",
		AppID:          "936619743392459",
		RequestTimeout: 5 * time.Second,
	}
}

// newTestClient points a fresh client at a mock Instagram server
func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(testInstagramConfig(), logger.NewTestLogger())
	client.SetBaseURL(server.URL)
	return client, server
}

func TestNewClient(t *testing.T) {
	client := NewClient(testInstagramConfig(), logger.NewTestLogger())

	assert.NotNil(t, client.httpClient)
	assert.NotNil(t, client.jar)
	assert.Equal(t, BaseURL, client.baseURL)
	assert.Equal(t, "test-agent", client.headers["User-Agent"])
	assert.Equal(t, "936619743392459", client.headers["X-IG-App-ID"])
	assert.False(t, client.IsAuthenticated())
}

func TestFetchProfile(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(ProfileEndpoint, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "936619743392459", r.Header.Get("X-IG-App-ID"))
		assert.Equal(t, "natgeo", r.URL.Query().Get("username"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok","data":{"user":{"id":"787132","username":"natgeo","full_name":"National Geographic","is_private":false}}}`))
	})

	client, _ := newTestClient(t, mux)

	profile, err := client.FetchProfile(context.Background(), "natgeo")
	require.NoError(t, err)
	assert.Equal(t, "787132", profile.ID)
	assert.Equal(t, "natgeo", profile.Username)
	assert.False(t, profile.IsPrivate)
}

func TestFetchProfileNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(ProfileEndpoint, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","data":{"user":null}}`))
	})

	client, _ := newTestClient(t, mux)

	_, err := client.FetchProfile(context.Background(), "no_such_user")
	require.Error(t, err)
	var apiErr *errors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errors.ErrorTypeNotFound, apiErr.Type)
}

func TestFetchProfileRequiresLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(ProfileEndpoint, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","requires_to_login":true,"data":{}}`))
	})

	client, _ := newTestClient(t, mux)

	_, err := client.FetchProfile(context.Background(), "gated")
	require.Error(t, err)
	var apiErr *errors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errors.ErrorTypeAuth, apiErr.Type)
}

func TestFetchStories(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(StoriesEndpoint, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "787132", r.URL.Query().Get("reel_ids"))
		w.Write([]byte(`{
			"status": "ok",
			"reels_media": [{
				"id": 787132,
				"items": [
					{"id": "s1", "media_type": 1, "image_versions2": {"candidates": [{"url": "https://cdn/s1.jpg", "width": 1080, "height": 1920}]}},
					{"id": "s2", "media_type": 2, "video_versions": [{"url": "https://cdn/s2.mp4"}], "image_versions2": {"candidates": [{"url": "https://cdn/s2.jpg"}]}}
				]
			}]
		}`))
	})

	client, _ := newTestClient(t, mux)

	items, err := client.FetchStories(context.Background(), "787132")
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, MediaKindPhoto, items[0].Kind)
	assert.Equal(t, "https://cdn/s1.jpg", items[0].URL)
	assert.Equal(t, MediaKindVideo, items[1].Kind)
	assert.Equal(t, "https://cdn/s2.mp4", items[1].URL)
}

func TestFetchStoriesEmpty(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(StoriesEndpoint, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","reels_media":[]}`))
	})

	client, _ := newTestClient(t, mux)

	items, err := client.FetchStories(context.Background(), "787132")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestFetchPostSingleImage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(GraphQLEndpoint, func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Query().Get("variables"), "CxYzAbCdEfG")
		w.Write([]byte(`{
			"status": "ok",
			"data": {"shortcode_media": {
				"__typename": "GraphImage",
				"id": "m1",
				"shortcode": "CxYzAbCdEfG",
				"display_url": "https://cdn/m1.jpg",
				"is_video": false,
				"owner": {"username": "natgeo"}
			}}
		}`))
	})

	client, _ := newTestClient(t, mux)

	post, err := client.FetchPost(context.Background(), "CxYzAbCdEfG")
	require.NoError(t, err)
	assert.Equal(t, "natgeo", post.Owner)
	require.Len(t, post.Items, 1)
	assert.Equal(t, MediaKindPhoto, post.Items[0].Kind)
	assert.Equal(t, "https://cdn/m1.jpg", post.Items[0].URL)
}

func TestFetchPostCarousel(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(GraphQLEndpoint, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"status": "ok",
			"data": {"shortcode_media": {
				"__typename": "GraphSidecar",
				"id": "m0",
				"shortcode": "CxYzAbCdEfG",
				"display_url": "https://cdn/m0.jpg",
				"owner": {"username": "natgeo"},
				"edge_sidecar_to_children": {"edges": [
					{"node": {"id": "c1", "display_url": "https://cdn/c1.jpg", "is_video": false}},
					{"node": {"id": "c2", "video_url": "https://cdn/c2.mp4", "is_video": true}}
				]}
			}}
		}`))
	})

	client, _ := newTestClient(t, mux)

	post, err := client.FetchPost(context.Background(), "CxYzAbCdEfG")
	require.NoError(t, err)
	require.Len(t, post.Items, 2)
	assert.Equal(t, MediaKindPhoto, post.Items[0].Kind)
	assert.Equal(t, MediaKindVideo, post.Items[1].Kind)
	assert.Equal(t, "https://cdn/c2.mp4", post.Items[1].URL)
}

func TestFetchPostNotFound(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc(GraphQLEndpoint, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","data":{"shortcode_media":null}}`))
	})

	client, _ := newTestClient(t, mux)

	_, err := client.FetchPost(context.Background(), "gone")
	var apiErr *errors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errors.ErrorTypeNotFound, apiErr.Type)
}

func TestStatusErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   errors.ErrorType
	}{
		{http.StatusTooManyRequests, errors.ErrorTypeRateLimit},
		{http.StatusUnauthorized, errors.ErrorTypeAuth},
		{http.StatusForbidden, errors.ErrorTypeAuth},
		{http.StatusNotFound, errors.ErrorTypeNotFound},
		{http.StatusInternalServerError, errors.ErrorTypeServerError},
		{http.StatusBadGateway, errors.ErrorTypeServerError},
		{http.StatusTeapot, errors.ErrorTypeUnknown},
	}

	for _, tt := range tests {
		mux := http.NewServeMux()
		mux.HandleFunc(ProfileEndpoint, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		})
		client, _ := newTestClient(t, mux)

		_, err := client.FetchProfile(context.Background(), "whoever")
		var apiErr *errors.Error
		require.ErrorAs(t, err, &apiErr, "status %d", tt.status)
		assert.Equal(t, tt.want, apiErr.Type, "status %d", tt.status)
		assert.Equal(t, tt.status, apiErr.Code)
	}
}

func TestDownloadMedia(t *testing.T) {
	payload := []byte("fake image bytes")
	mux := http.NewServeMux()
	mux.HandleFunc("/media.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	})

	client, server := newTestClient(t, mux)

	var buf bytes.Buffer
	n, err := client.DownloadMedia(context.Background(), server.URL+"/media.jpg", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), n)
	assert.Equal(t, payload, buf.Bytes())
}

func TestDownloadMediaServerError(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/media.jpg", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client, server := newTestClient(t, mux)

	var buf bytes.Buffer
	_, err := client.DownloadMedia(context.Background(), server.URL+"/media.jpg", &buf)
	var apiErr *errors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errors.ErrorTypeServerError, apiErr.Type)
}
