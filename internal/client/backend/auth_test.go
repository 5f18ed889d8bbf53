package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/neighborwatch/internal/common"
)

func TestSignInWithPassword_StoresSessionAndNotifies(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	var token string

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, testKey, r.Header.Get("apikey"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ann@example.test", body["email"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  token,
			"refresh_token": "r1",
			"token_type":    "bearer",
			"user":          map[string]any{"id": "u1", "email": "ann@example.test"},
		})
	})

	store := &memStore{}
	c, _ := newTestClient(t, mux, store)
	token = signedToken(t, "u1", exp)

	rec := newRecorder()
	sub := c.Auth.OnAuthStateChange(rec.listen)
	defer sub.Unsubscribe()
	require.Equal(t, EventInitialSession, rec.next(t))

	s, err := c.Auth.SignInWithPassword(context.Background(), "ann@example.test", "pw")
	require.NoError(t, err)
	assert.Equal(t, "u1", s.User.ID)
	assert.WithinDuration(t, exp, s.ExpiresAt, time.Second, "expiry comes from the token claims")
	assert.Equal(t, token, c.Auth.AccessToken())
	assert.Equal(t, 1, store.Saves)
	assert.Equal(t, EventSignedIn, rec.next(t))
}

func TestSignInWithPassword_AuthErrorMessageFields(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
		code string
	}{
		{"msg", `{"msg":"Invalid login credentials","code":400}`, "Invalid login credentials", "400"},
		{"error_description", `{"error":"invalid_grant","error_description":"Email not confirmed"}`, "Email not confirmed", ""},
		{"message", `{"message":"rate limited","error_code":"over_request_rate_limit"}`, "rate limited", "over_request_rate_limit"},
		{"error only", `{"error":"invalid_grant"}`, "invalid_grant", ""},
		{"empty", `not json`, "Bad Request", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(tt.body))
			}), nil)

			_, err := c.Auth.SignInWithPassword(context.Background(), "a@b.c", "x")
			var authErr *AuthError
			require.ErrorAs(t, err, &authErr)
			assert.Equal(t, tt.want, authErr.Message)
			assert.Equal(t, http.StatusBadRequest, authErr.Status)
			assert.Equal(t, tt.code, authErr.Code)
			assert.Empty(t, c.Auth.AccessToken())
		})
	}
}

func TestSignIn_TransportErrorIsUnavailable(t *testing.T) {
	c, srv := newTestClient(t, http.NotFoundHandler(), nil)
	srv.Close()

	_, err := c.Auth.SignInWithPassword(context.Background(), "a@b.c", "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnavailable))
}

func TestSignUp_WithoutAutoConfirmReturnsIdentityOnly(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		data := body["data"].(map[string]any)
		assert.Equal(t, "security_officer", data["user_type"])

		_ = json.NewEncoder(w).Encode(map[string]any{"id": "new-id", "email": "o@example.test"})
	})
	c, _ := newTestClient(t, mux, nil)

	res, err := c.Auth.SignUp(context.Background(), "o@example.test", "pw", map[string]any{"user_type": "security_officer"})
	require.NoError(t, err)
	require.NotNil(t, res.User)
	assert.Equal(t, "new-id", res.User.ID)
	assert.Nil(t, res.Session)
	assert.Empty(t, c.Auth.AccessToken())
}

func TestSignUp_AutoConfirmEstablishesSession(t *testing.T) {
	var token string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  token,
			"refresh_token": "r",
			"expires_in":    3600,
			"user":          map[string]any{"id": "u9", "email": "m@example.test"},
		})
	})
	c, _ := newTestClient(t, mux, nil)
	token = signedToken(t, "u9", time.Now().Add(time.Hour))

	res, err := c.Auth.SignUp(context.Background(), "m@example.test", "pw", nil)
	require.NoError(t, err)
	require.NotNil(t, res.Session)
	assert.Equal(t, "u9", res.User.ID)
	assert.Equal(t, token, c.Auth.AccessToken())
}

func TestSignOut_DropsLocalSessionEvenWhenRevokeFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	store := &memStore{s: &Session{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour), User: Identity{ID: "u"}}}
	c, _ := newTestClient(t, mux, store)

	s, err := c.Auth.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)

	rec := newRecorder()
	sub := c.Auth.OnAuthStateChange(rec.listen)
	defer sub.Unsubscribe()
	require.Equal(t, EventInitialSession, rec.next(t))

	err = c.Auth.SignOut(context.Background())
	require.Error(t, err)
	assert.Empty(t, c.Auth.AccessToken())
	assert.Equal(t, 1, store.Clears)
	assert.Equal(t, EventSignedOut, rec.next(t))

	s, err = c.Auth.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)

	require.NoError(t, c.Auth.SignOut(context.Background()), "signing out twice is a no-op")
}

func TestGetSession_NoSessionIsExplicitAbsence(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler(), &memStore{})

	s, err := c.Auth.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestGetSession_RefreshesExpiredStoredSession(t *testing.T) {
	var fresh string
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "old-refresh", body["refresh_token"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  fresh,
			"refresh_token": "new-refresh",
			"expires_in":    3600,
			"user":          map[string]any{"id": "u1"},
		})
	})

	store := &memStore{s: &Session{
		AccessToken:  "stale",
		RefreshToken: "old-refresh",
		ExpiresAt:    time.Now().Add(-time.Minute),
		User:         Identity{ID: "u1"},
	}}
	c, _ := newTestClient(t, mux, store)
	fresh = signedToken(t, "u1", time.Now().Add(time.Hour))

	s, err := c.Auth.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, fresh, s.AccessToken)
	assert.Equal(t, "new-refresh", store.s.RefreshToken)
}

func TestGetSession_RejectedRefreshSignsOut(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid Refresh Token"}`))
	})
	store := &memStore{s: &Session{RefreshToken: "bad", ExpiresAt: time.Now().Add(-time.Hour)}}
	c, _ := newTestClient(t, mux, store)

	s, err := c.Auth.GetSession(context.Background())
	require.Error(t, err)
	assert.Nil(t, s)
	assert.Equal(t, 1, store.Clears)
}

func TestOnAuthStateChange_UnsubscribeIsIdempotent(t *testing.T) {
	c, _ := newTestClient(t, http.NotFoundHandler(), nil)

	rec := newRecorder()
	sub := c.Auth.OnAuthStateChange(rec.listen)
	require.Equal(t, EventInitialSession, rec.next(t))

	sub.Unsubscribe()
	sub.Unsubscribe()

	c.Auth.setSession(context.Background(), &Session{AccessToken: "x"}, EventSignedIn)
	select {
	case ev := <-rec.ch:
		t.Fatalf("unexpected event after unsubscribe: %s", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSession_ExpiresWithin(t *testing.T) {
	now := time.Now()
	s := &Session{ExpiresAt: now.Add(time.Minute)}
	assert.False(t, s.ExpiresWithin(now, 30*time.Second))
	assert.True(t, s.ExpiresWithin(now, 2*time.Minute))
	assert.False(t, (&Session{}).ExpiresWithin(now, time.Hour))
}

func TestParseClaims_Garbage(t *testing.T) {
	_, err := parseClaims("not-a-jwt")
	require.ErrorIs(t, err, common.ErrInvalidToken)
}
