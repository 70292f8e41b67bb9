package instagram

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"igrelay/pkg/errors"
)

// loginMux builds a mock server that seeds a CSRF cookie and answers the
// login endpoint with the given handler
func loginMux(login http.HandlerFunc) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(LoginPageEndpoint, func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "csrftoken", Value: "csrf123", Path: "/"})
	})
	mux.HandleFunc(LoginEndpoint, login)
	return mux
}

func TestLoginSuccess(t *testing.T) {
	mux := loginMux(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "csrf123", r.Header.Get("X-CSRFToken"))
		assert.Equal(t, "alice", r.PostFormValue("username"))
		assert.True(t, strings.HasPrefix(r.PostFormValue("enc_password"), "#PWD_INSTAGRAM_BROWSER:0:"))
		assert.True(t, strings.HasSuffix(r.PostFormValue("enc_password"), ":hunter2"))

		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "sess456", Path: "/"})
		w.Write([]byte(`{"status":"ok","authenticated":true,"user":true,"userId":"42"}`))
	})

	client, _ := newTestClient(t, mux)

	err := client.Login(context.Background(), "alice", "hunter2")
	require.NoError(t, err)
	assert.True(t, client.IsAuthenticated())
	assert.Equal(t, "alice", client.Username())
	assert.Equal(t, "sess456", client.CookieValue("sessionid"))
}

func TestLoginWrongPassword(t *testing.T) {
	mux := loginMux(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","authenticated":false,"user":true}`))
	})

	client, _ := newTestClient(t, mux)

	err := client.Login(context.Background(), "alice", "wrong")
	var apiErr *errors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errors.ErrorTypeAuth, apiErr.Type)
	assert.Contains(t, apiErr.Message, "password")
	assert.False(t, client.IsAuthenticated())
}

func TestLoginUnknownUsername(t *testing.T) {
	mux := loginMux(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"ok","authenticated":false,"user":false}`))
	})

	client, _ := newTestClient(t, mux)

	err := client.Login(context.Background(), "ghost", "whatever")
	var apiErr *errors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errors.ErrorTypeAuth, apiErr.Type)
	assert.Contains(t, apiErr.Message, "username")
}

func TestLoginTwoFactorRequired(t *testing.T) {
	mux := loginMux(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"fail","two_factor_required":true,"two_factor_info":{"two_factor_identifier":"tf-id-1","username":"alice"}}`))
	})

	client, _ := newTestClient(t, mux)

	err := client.Login(context.Background(), "alice", "hunter2")
	var challenge *ChallengeError
	require.ErrorAs(t, err, &challenge)
	assert.Equal(t, "alice", challenge.Username)
	assert.Equal(t, "tf-id-1", challenge.Identifier)
	assert.False(t, client.IsAuthenticated())
}

func TestLoginCheckpointRequired(t *testing.T) {
	mux := loginMux(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"fail","message":"checkpoint_required","checkpoint_url":"/challenge/12345/"}`))
	})

	client, _ := newTestClient(t, mux)

	err := client.Login(context.Background(), "alice", "hunter2")
	var challenge *ChallengeError
	require.ErrorAs(t, err, &challenge)
	assert.Equal(t, "/challenge/12345/", challenge.CheckpointURL)
}

func TestSubmitVerificationCode(t *testing.T) {
	mux := loginMux(func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc(TwoFactorEndpoint, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "alice", r.PostFormValue("username"))
		assert.Equal(t, "tf-id-1", r.PostFormValue("identifier"))
		assert.Equal(t, "123456", r.PostFormValue("verificationCode"))

		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "sess789", Path: "/"})
		w.Write([]byte(`{"status":"ok","authenticated":true}`))
	})

	client, _ := newTestClient(t, mux)

	err := client.SubmitVerificationCode(context.Background(), "alice", "tf-id-1", "123456")
	require.NoError(t, err)
	assert.True(t, client.IsAuthenticated())
	assert.Equal(t, "alice", client.Username())
}

func TestSubmitVerificationCodeRejected(t *testing.T) {
	mux := loginMux(func(w http.ResponseWriter, r *http.Request) {})
	mux.HandleFunc(TwoFactorEndpoint, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"status":"fail","authenticated":false,"message":"Please check the code we sent you and try again."}`))
	})

	client, _ := newTestClient(t, mux)

	err := client.SubmitVerificationCode(context.Background(), "alice", "tf-id-1", "000000")
	var apiErr *errors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, errors.ErrorTypeAuth, apiErr.Type)
	assert.False(t, client.IsAuthenticated())
}

func TestEncodePasswordFormat(t *testing.T) {
	encoded := encodePassword("secret")
	assert.True(t, strings.HasPrefix(encoded, "#PWD_INSTAGRAM_BROWSER:0:"))
	assert.True(t, strings.HasSuffix(encoded, ":secret"))
}
