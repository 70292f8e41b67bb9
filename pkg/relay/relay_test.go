package relay

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igrelay/pkg/accounts"
	"igrelay/pkg/auth"
	"igrelay/pkg/config"
	"igrelay/pkg/errors"
	"igrelay/pkg/instagram"
	"igrelay/pkg/link"
	"igrelay/pkg/logger"
	"igrelay/pkg/storage"
)

// testRelay builds a relay with an empty rotation pool; requests carry a chat
// client pointed at the mock server so no real network is touched.
func testRelay(t *testing.T) (*Relay, *config.Config) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Download.TempDir = t.TempDir()
	cfg.Download.ConcurrentDownloads = 2
	cfg.Download.DownloadTimeout = 5 * time.Second
	cfg.Retry.MaxAttempts = 1
	cfg.Accounts.StateFile = filepath.Join(t.TempDir(), "accounts.json")

	creds, _ := auth.NewMockManager()
	pool, err := accounts.NewManager(&cfg.Accounts, creds, logger.NewTestLogger())
	require.NoError(t, err)

	sessions := instagram.NewSessionStore(t.TempDir(), logger.NewTestLogger())

	staging, err := storage.NewManager(&cfg.Download, cfg.Telegram.MaxFileSize, logger.NewTestLogger())
	require.NoError(t, err)

	return New(cfg, pool, sessions, staging, nil, logger.NewTestLogger()), cfg
}

func mockServerClient(t *testing.T, cfg *config.Config, register func(mux *http.ServeMux, baseURL string)) *instagram.Client {
	t.Helper()

	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	register(mux, server.URL)

	client := instagram.NewClient(&cfg.Instagram, logger.NewTestLogger())
	client.SetBaseURL(server.URL)
	return client
}

func TestFetchPost(t *testing.T) {
	relay, cfg := testRelay(t)

	client := mockServerClient(t, cfg, func(mux *http.ServeMux, baseURL string) {
		mux.HandleFunc(instagram.GraphQLEndpoint, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{
				"status": "ok",
				"data": {"shortcode_media": {
					"__typename": "GraphImage",
					"id": "m1",
					"shortcode": "CxYzAbCdEfG",
					"display_url": "%s/media/m1.jpg",
					"is_video": false,
					"owner": {"username": "natgeo"}
				}}
			}`, baseURL)
		})
		mux.HandleFunc("/media/m1.jpg", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("jpeg bytes"))
		})
	})

	delivery, err := relay.Fetch(context.Background(), Request{
		Target:     link.Target{Kind: link.KindPost, Shortcode: "CxYzAbCdEfG"},
		ChatClient: client,
	})
	require.NoError(t, err)
	defer delivery.Cleanup()

	assert.Equal(t, "natgeo", delivery.Owner)
	assert.Equal(t, "Post by @natgeo", delivery.Caption)
	require.Len(t, delivery.Media, 1)
	assert.Equal(t, []instagram.MediaKind{instagram.MediaKindPhoto}, delivery.Kinds)

	data, err := os.ReadFile(delivery.Media[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "jpeg bytes", string(data))
}

func TestFetchPostCarouselCaption(t *testing.T) {
	relay, cfg := testRelay(t)

	client := mockServerClient(t, cfg, func(mux *http.ServeMux, baseURL string) {
		mux.HandleFunc(instagram.GraphQLEndpoint, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{
				"status": "ok",
				"data": {"shortcode_media": {
					"__typename": "GraphSidecar",
					"id": "m0",
					"shortcode": "CxYzAbCdEfG",
					"display_url": "%[1]s/media/m0.jpg",
					"owner": {"username": "natgeo"},
					"edge_sidecar_to_children": {"edges": [
						{"node": {"id": "c1", "display_url": "%[1]s/media/c1.jpg", "is_video": false}},
						{"node": {"id": "c2", "video_url": "%[1]s/media/c2.mp4", "is_video": true}}
					]}
				}}
			}`, baseURL)
		})
		mux.HandleFunc("/media/", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("bytes"))
		})
	})

	delivery, err := relay.Fetch(context.Background(), Request{
		Target:     link.Target{Kind: link.KindReel, Shortcode: "CxYzAbCdEfG"},
		ChatClient: client,
	})
	require.NoError(t, err)
	defer delivery.Cleanup()

	assert.Equal(t, "Post by @natgeo (2 items)", delivery.Caption)
	require.Len(t, delivery.Media, 2)
	assert.Equal(t, instagram.MediaKindVideo, delivery.Kinds[1])
}

func TestFetchStories(t *testing.T) {
	relay, cfg := testRelay(t)

	client := mockServerClient(t, cfg, func(mux *http.ServeMux, baseURL string) {
		mux.HandleFunc(instagram.ProfileEndpoint, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"ok","data":{"user":{"id":"787132","username":"natgeo","is_private":false}}}`))
		})
		mux.HandleFunc(instagram.StoriesEndpoint, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{
				"status": "ok",
				"reels_media": [{"id": 787132, "items": [
					{"id": "s1", "media_type": 1, "image_versions2": {"candidates": [{"url": "%s/media/s1.jpg"}]}}
				]}]
			}`, baseURL)
		})
		mux.HandleFunc("/media/s1.jpg", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("story bytes"))
		})
	})

	delivery, err := relay.Fetch(context.Background(), Request{
		Target:     link.Target{Kind: link.KindStories, Username: "natgeo"},
		ChatClient: client,
	})
	require.NoError(t, err)
	defer delivery.Cleanup()

	assert.Equal(t, "Stories from @natgeo (1)", delivery.Caption)
	require.Len(t, delivery.Media, 1)
}

func TestFetchStoriesPrivateAnonymous(t *testing.T) {
	relay, cfg := testRelay(t)

	client := mockServerClient(t, cfg, func(mux *http.ServeMux, baseURL string) {
		mux.HandleFunc(instagram.ProfileEndpoint, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"ok","data":{"user":{"id":"1","username":"hermit","is_private":true}}}`))
		})
	})

	_, err := relay.Fetch(context.Background(), Request{
		Target:     link.Target{Kind: link.KindStories, Username: "hermit"},
		ChatClient: client,
	})
	var apiErr *errors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errors.ErrorTypePrivate, apiErr.Type)
}

func TestFetchStoriesNoneActive(t *testing.T) {
	relay, cfg := testRelay(t)

	client := mockServerClient(t, cfg, func(mux *http.ServeMux, baseURL string) {
		mux.HandleFunc(instagram.ProfileEndpoint, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"ok","data":{"user":{"id":"1","username":"quiet","is_private":false}}}`))
		})
		mux.HandleFunc(instagram.StoriesEndpoint, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"ok","reels_media":[]}`))
		})
	})

	_, err := relay.Fetch(context.Background(), Request{
		Target:     link.Target{Kind: link.KindStories, Username: "quiet"},
		ChatClient: client,
	})
	var apiErr *errors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errors.ErrorTypeNotFound, apiErr.Type)
	assert.Contains(t, apiErr.Message, "no active stories")
}

func TestFetchUnrecognizedTarget(t *testing.T) {
	relay, cfg := testRelay(t)
	client := instagram.NewClient(&cfg.Instagram, logger.NewTestLogger())

	_, err := relay.Fetch(context.Background(), Request{
		Target:     link.Target{Kind: link.Kind("unknown")},
		ChatClient: client,
	})
	var apiErr *errors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errors.ErrorTypeParsing, apiErr.Type)
}

func TestDeliveryCleanup(t *testing.T) {
	relay, cfg := testRelay(t)

	client := mockServerClient(t, cfg, func(mux *http.ServeMux, baseURL string) {
		mux.HandleFunc(instagram.GraphQLEndpoint, func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{"status":"ok","data":{"shortcode_media":{"__typename":"GraphImage","id":"m1","shortcode":"x","display_url":"%s/m1.jpg","is_video":false,"owner":{"username":"u"}}}}`, baseURL)
		})
		mux.HandleFunc("/m1.jpg", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("x"))
		})
	})

	delivery, err := relay.Fetch(context.Background(), Request{
		Target:     link.Target{Kind: link.KindPost, Shortcode: "CxYzAbCdEfG"},
		ChatClient: client,
	})
	require.NoError(t, err)

	stagedPath := delivery.Media[0].Path
	delivery.Cleanup()

	_, err = os.Stat(stagedPath)
	assert.True(t, os.IsNotExist(err))
}
