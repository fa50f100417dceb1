/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func issueFor(t *testing.T, secret []byte, role string) string {
	t.Helper()
	token, err := Issue(secret, Claims{Name: role + "-client", Roles: []string{role}}, time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return token
}

func TestMiddleware_AcceptsBearerToken(t *testing.T) {
	secret := []byte("test-secret")
	token := issueFor(t, secret, RoleOperator)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || claims == nil {
			t.Fatalf("expected claims in context")
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()

	Middleware(secret)(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestMiddleware_AnonymousPassesWithoutClaims(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ClaimsFromContext(r.Context()); ok {
			t.Error("anonymous request carried claims")
		}
		w.WriteHeader(http.StatusNoContent)
	})

	rr := httptest.NewRecorder()
	Middleware([]byte("s"))(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/state", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
}

func TestMiddleware_RejectsInvalidToken(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler reached with an invalid token")
	})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/state", nil)
	req.Header.Set("Authorization", "Bearer nope")
	rr := httptest.NewRecorder()

	Middleware([]byte("s"))(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestMiddleware_IgnoresQueryTokenOutsideEvents(t *testing.T) {
	secret := []byte("test-secret")
	token := issueFor(t, secret, RoleOperator)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ClaimsFromContext(r.Context()); ok {
			t.Error("query token accepted outside the events endpoint")
		}
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/commands?token="+token, nil)
	req.Header.Set("Upgrade", "websocket")
	Middleware(secret)(next).ServeHTTP(httptest.NewRecorder(), req)
}

func TestMiddleware_AcceptsQueryTokenForEventsWebSocketUpgrade(t *testing.T) {
	secret := []byte("test-secret")
	token := issueFor(t, secret, RoleOperator)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || !claims.HasRole(RoleOperator) {
			t.Fatalf("expected operator claims in context")
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events?token="+token, nil)
	req.Header.Set("Upgrade", "websocket")
	rr := httptest.NewRecorder()

	Middleware(secret)(next).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for websocket query token auth, got %d body=%s", rr.Code, rr.Body.String())
	}
}

func TestRequireRole(t *testing.T) {
	secret := []byte("test-secret")
	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"anonymous", "", http.StatusUnauthorized},
		{"bridge on operator route", issueFor(t, secret, RoleBridge), http.StatusForbidden},
		{"operator", issueFor(t, secret, RoleOperator), http.StatusOK},
	}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	handler := Middleware(secret)(RequireRole(RoleOperator)(ok))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/commands", nil)
			if tt.token != "" {
				req.Header.Set("Authorization", "Bearer "+tt.token)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}
}
