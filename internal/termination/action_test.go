// SPDX-License-Identifier: MIT

package termination

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEndChatAction_PostsExpectedPayload(t *testing.T) {
	var gotBody endChatRequest
	var gotCookie, gotContentType string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		gotCookie = r.Header.Get("Cookie")
		gotContentType = r.Header.Get("Content-Type")

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &gotBody))

		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	action := NewEndChatAction(ts.Client(), ts.URL, "chat-42", "session=abc")
	require.NoError(t, action(context.Background()))

	require.Equal(t, "application/json", gotContentType)
	require.Equal(t, "session=abc", gotCookie)
	require.Equal(t, "chat-42", gotBody.Message.ChatID)
	require.Equal(t, "end-user", gotBody.Message.AuthorRole)
	require.Equal(t, "CLIENT_LEFT_FOR_UNKNOWN_REASONS", gotBody.Message.Event)
	require.NotEmpty(t, gotBody.Message.AuthorTimestamp)
}

func TestEndChatAction_NoCookieHeaderWhenEmpty(t *testing.T) {
	cookieSeen := false

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Header["Cookie"]
		cookieSeen = ok
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	action := NewEndChatAction(ts.Client(), ts.URL, "chat-1", "")
	require.NoError(t, action(context.Background()))
	require.False(t, cookieSeen)
}

func TestEndChatAction_NonSuccessStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer ts.Close()

	action := NewEndChatAction(ts.Client(), ts.URL, "chat-1", "")
	err := action(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "502")
}

func TestEndChatAction_EndpointUnreachable(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ts.Close()

	action := NewEndChatAction(nil, ts.URL, "chat-1", "")
	require.Error(t, action(context.Background()))
}
