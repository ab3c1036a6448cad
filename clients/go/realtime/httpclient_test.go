package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(t *testing.T, srv *httptest.Server, session *Session, onBlocked func()) *Client {
	t.Helper()
	c, err := NewClient(session, HTTPOptions{
		BaseURL:   srv.URL,
		OnBlocked: onBlocked,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestRefreshAndReplay(t *testing.T) {
	var refreshed atomic.Bool
	var refreshCalls, dataCalls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			atomic.AddInt32(&refreshCalls, 1)
			refreshed.Store(true)
			w.WriteHeader(http.StatusOK)
		case "/data":
			atomic.AddInt32(&dataCalls, 1)
			if !refreshed.Load() {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, loggedInSession(), nil)

	body, err := c.Do(context.Background(), http.MethodGet, "/data", nil)
	if err != nil {
		t.Fatalf("expected success after refresh, got %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Fatalf("unexpected body %q", body)
	}
	if n := atomic.LoadInt32(&refreshCalls); n != 1 {
		t.Fatalf("expected 1 refresh call, got %d", n)
	}
	if n := atomic.LoadInt32(&dataCalls); n != 2 {
		t.Fatalf("expected original plus one replay, got %d data calls", n)
	}
}

func TestConcurrent401sShareOneRefresh(t *testing.T) {
	const parallel = 8

	var refreshed atomic.Bool
	var refreshCalls, unauthorized int32
	allUnauthorized := make(chan struct{})
	var closeOnce sync.Once

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			atomic.AddInt32(&refreshCalls, 1)
			// Let every caller receive its 401 and join before finishing,
			// so the coalescing is exercised rather than lucked into.
			<-allUnauthorized
			time.Sleep(50 * time.Millisecond)
			refreshed.Store(true)
			w.WriteHeader(http.StatusOK)
		case "/data":
			if !refreshed.Load() {
				if atomic.AddInt32(&unauthorized, 1) == parallel {
					closeOnce.Do(func() { close(allUnauthorized) })
				}
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte(`{"ok":true}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, loggedInSession(), nil)

	var wg sync.WaitGroup
	errs := make([]error, parallel)
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.Do(context.Background(), http.MethodGet, "/data", nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("request %d failed: %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&refreshCalls); n != 1 {
		t.Fatalf("expected exactly 1 refresh for %d concurrent 401s, got %d", parallel, n)
	}
}

func TestReplayHappensAtMostOnce(t *testing.T) {
	var refreshCalls, dataCalls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/refresh":
			atomic.AddInt32(&refreshCalls, 1)
			w.WriteHeader(http.StatusOK)
		case "/data":
			atomic.AddInt32(&dataCalls, 1)
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv, loggedInSession(), nil)

	_, err := c.Do(context.Background(), http.MethodGet, "/data", nil)
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired, got %v", err)
	}
	if n := atomic.LoadInt32(&dataCalls); n != 2 {
		t.Fatalf("expected exactly one replay, got %d data calls", n)
	}
	if n := atomic.LoadInt32(&refreshCalls); n != 1 {
		t.Fatalf("expected exactly one refresh, got %d", n)
	}
}

func TestSkipRefreshExclusions(t *testing.T) {
	var refreshCalls int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/auth/refresh" {
			atomic.AddInt32(&refreshCalls, 1)
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := newTestClient(t, srv, loggedInSession(), nil)
	ctx := context.Background()

	// Auth endpoints and the expertise namespace never trigger a refresh.
	for _, path := range []string{"/auth/login", "/auth/logout", "/expertise/catalog"} {
		_, err := c.Do(ctx, http.MethodPost, path, nil)
		if !errors.Is(err, ErrAuthExpired) {
			t.Fatalf("%s: expected ErrAuthExpired, got %v", path, err)
		}
		if n := atomic.LoadInt32(&refreshCalls); n != 0 {
			t.Fatalf("%s: unexpected refresh (count %d)", path, n)
		}
	}

	// The current-user endpoint is the exception: it refreshes.
	_, _ = c.Do(ctx, http.MethodGet, "/auth/me", nil)
	if n := atomic.LoadInt32(&refreshCalls); n != 1 {
		t.Fatalf("/auth/me: expected 1 refresh, got %d", n)
	}
}

func TestRefreshFailureClearsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	session := loggedInSession()
	c := newTestClient(t, srv, session, nil)

	_, err := c.Do(context.Background(), http.MethodGet, "/data", nil)
	if !errors.Is(err, ErrRefreshFailed) {
		t.Fatalf("expected ErrRefreshFailed, got %v", err)
	}
	if session.LoggedIn() {
		t.Fatal("expected session cleared after refresh failure")
	}
}

func TestBlockedAccountClearsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"account blocked"}`))
	}))
	defer srv.Close()

	session := loggedInSession()
	var blockedCalled atomic.Bool
	c := newTestClient(t, srv, session, func() { blockedCalled.Store(true) })

	_, err := c.Do(context.Background(), http.MethodGet, "/data", nil)
	if !errors.Is(err, ErrAccountBlocked) {
		t.Fatalf("expected ErrAccountBlocked, got %v", err)
	}
	if session.LoggedIn() {
		t.Fatal("expected session cleared for blocked account")
	}
	if !blockedCalled.Load() {
		t.Fatal("expected OnBlocked callback")
	}
}

func TestPlainForbiddenKeepsSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"not your resource"}`))
	}))
	defer srv.Close()

	session := loggedInSession()
	c := newTestClient(t, srv, session, nil)

	_, err := c.Do(context.Background(), http.MethodGet, "/data", nil)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if !session.LoggedIn() {
		t.Fatal("plain 403 must not clear the session")
	}
}

func TestStatusErrorForOtherFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer srv.Close()

	c := newTestClient(t, srv, loggedInSession(), nil)

	_, err := c.Do(context.Background(), http.MethodGet, "/data", nil)
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusInternalServerError || se.Body != "boom" {
		t.Fatalf("unexpected status error %+v", se)
	}
}

func TestLoginPopulatesSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"id":"u1","email":"ada@example.com","name":"Ada","role":"mentor"}`))
	}))
	defer srv.Close()

	session := NewSession()
	c := newTestClient(t, srv, session, nil)

	user, err := c.Login(context.Background(), "ada@example.com", "secret")
	if err != nil {
		t.Fatal(err)
	}
	if user.ID != "u1" || user.Role != "mentor" {
		t.Fatalf("unexpected user %+v", user)
	}
	if !session.LoggedIn() || session.User().Name != "Ada" {
		t.Fatalf("session not populated: %+v", session.State())
	}
}

func TestLogoutClearsSessionEvenOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	session := loggedInSession()
	c := newTestClient(t, srv, session, nil)

	if err := c.Logout(context.Background()); err == nil {
		t.Fatal("expected error from failing logout endpoint")
	}
	if session.LoggedIn() {
		t.Fatal("expected session cleared regardless of server response")
	}
}
