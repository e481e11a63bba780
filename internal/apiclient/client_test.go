// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// newTestClient returns a client without rate limiting or retry delay surprises.
func newTestClient(url string, opts ...Option) *Client {
	base := []Option{WithRateLimit(0), WithTimeout(2 * time.Second)}
	return New(url, append(base, opts...)...)
}

// =============================================================================
// HEADER TESTS
// =============================================================================

func TestDo_AttachesKeyHeader(t *testing.T) {
	var gotKey, gotReqID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get(KeyHeader)
		gotReqID = r.Header.Get(RequestIDHeader)
		w.Write([]byte(`{"totp_enabled":false}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	raw, err := c.Do(context.Background(), Request{Path: "/admin/verify", Key: "sb-admin-secret"})
	require.NoError(t, err)
	require.JSONEq(t, `{"totp_enabled":false}`, string(raw))
	require.Equal(t, "sb-admin-secret", gotKey)
	require.NotEmpty(t, gotReqID)
}

func TestDo_PublicRequestHasNoKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, present := r.Header[http.CanonicalHeaderKey(KeyHeader)]
		if present {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Do(context.Background(), Request{Path: "/agents"})
	require.NoError(t, err)
}

func TestDo_EncodesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		b, _ := io.ReadAll(r.Body)
		var body map[string]string
		require.NoError(t, json.Unmarshal(b, &body))
		require.Equal(t, "123456", body["code"])
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	raw, err := newTestClient(server.URL).Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/admin/2fa/verify",
		Key:    "k",
		Body:   map[string]string{"code": "123456"},
	})
	require.NoError(t, err)
	require.Nil(t, raw)
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestDo_UnauthorizedMatchesSentinel(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"Invalid admin key"}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Do(context.Background(), Request{Path: "/admin/skills", Key: "bad"})
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrUnauthorized))

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusUnauthorized, apiErr.Status)
	require.Equal(t, "Invalid admin key", apiErr.Message)
}

func TestDo_NestedErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"reason required"}}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).Do(context.Background(), Request{Method: http.MethodDelete, Path: "/register/1"})
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "reason required", apiErr.Message)
	require.False(t, errors.Is(err, ErrUnauthorized))
}

func TestDo_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(url, WithMaxRetries(0)).Do(context.Background(), Request{Path: "/agents"})
	var netErr *NetworkError
	require.True(t, errors.As(err, &netErr))
	require.Contains(t, netErr.Op, "/agents")
}

func TestDo_RejectsOversizedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"`))
		w.Write([]byte(strings.Repeat("a", MaxResponseSize+1)))
		w.Write([]byte(`"`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, WithMaxRetries(0)).Do(context.Background(), Request{Path: "/skills"})
	require.ErrorIs(t, err, ErrResponseTooLarge)
}

// =============================================================================
// RETRY TESTS
// =============================================================================

func TestDo_RetriesGetOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, WithMaxRetries(2)).Do(context.Background(), Request{Path: "/agents"})
	require.NoError(t, err)
	require.Equal(t, int32(2), calls.Load())
}

func TestDo_NeverRetriesWrites(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, WithMaxRetries(3)).Do(context.Background(), Request{Method: http.MethodPut, Path: "/register/1"})
	require.Error(t, err)
	require.Equal(t, int32(1), calls.Load())
}

func TestDo_NoRetryOn401(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, WithMaxRetries(3)).Do(context.Background(), Request{Path: "/admin/verify"})
	require.ErrorIs(t, err, ErrUnauthorized)
	require.Equal(t, int32(1), calls.Load())
}

func TestDo_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(server.URL).Do(ctx, Request{Path: "/agents"})
	require.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// HELPER TESTS
// =============================================================================

func TestFingerprint(t *testing.T) {
	require.Equal(t, "none", Fingerprint(""))
	fp := Fingerprint("sb-admin-secret")
	require.Len(t, fp, 8)
	require.NotContains(t, fp, "secret")
	require.Equal(t, fp, Fingerprint("sb-admin-secret"))
}

func TestDecode_EmptyIsNoop(t *testing.T) {
	var out map[string]any
	require.NoError(t, Decode(nil, &out))
	require.Nil(t, out)
	require.Error(t, Decode(json.RawMessage(`[1,2]`), &out))
}

func TestNew_TrimsBaseURL(t *testing.T) {
	c := New("http://example.test/")
	require.Equal(t, "http://example.test", c.BaseURL())
	require.Equal(t, DefaultBaseURL, New("").BaseURL())
}
