package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityClient_VerifyOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/auth/v1/user", r.URL.Path)
		assert.Equal(t, "anon", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(User{ID: "user-1", Email: "a@example.com"})
	}))
	defer srv.Close()

	c := NewIdentityClient(srv.URL, "anon", time.Second)
	claim, err := c.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, SessionClaim{Valid: true, UserID: "user-1"}, claim)
}

func TestIdentityClient_VerifyRejectedIsFinal(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewIdentityClient(srv.URL, "anon", time.Second)
	claim, err := c.Verify(context.Background(), "tok")
	require.ErrorIs(t, err, ErrInvalidSession)
	assert.False(t, claim.Valid)
	assert.Equal(t, int32(1), calls.Load())
}

func TestIdentityClient_VerifyRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(User{ID: "user-2"})
	}))
	defer srv.Close()

	c := NewIdentityClient(srv.URL, "anon", time.Second)
	claim, err := c.Verify(context.Background(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "user-2", claim.UserID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestIdentityClient_VerifyUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewIdentityClient(srv.URL, "anon", time.Second)
	_, err := c.Verify(context.Background(), "tok")
	require.ErrorIs(t, err, ErrIdentityUnavailable)
}

func TestIdentityClient_VerifyTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewIdentityClient(srv.URL, "anon", time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Verify(ctx, "tok")
	require.ErrorIs(t, err, ErrIdentityUnavailable)
}

func TestIdentityClient_SignIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		var in credentials
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in.Password != "right" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_ = json.NewEncoder(w).Encode(Session{AccessToken: "a", RefreshToken: "r", User: User{ID: "u"}})
	}))
	defer srv.Close()

	c := NewIdentityClient(srv.URL, "anon", time.Second)

	s, err := c.SignInWithPassword(context.Background(), "a@example.com", "right")
	require.NoError(t, err)
	assert.Equal(t, "a", s.AccessToken)
	assert.Equal(t, "u", s.User.ID)

	_, err = c.SignInWithPassword(context.Background(), "a@example.com", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}
