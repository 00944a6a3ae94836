package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAdminAuthMiddlewareAcceptsValidBearerToken(t *testing.T) {
	auth := AdminAuth{BearerToken: "topsecret"}
	called := false
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/anchor-pools/update-fee", nil)
	req.Header.Set("Authorization", "Bearer topsecret")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if !called {
		t.Fatalf("expected handler to be called with a valid bearer token")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rec.Code)
	}
}

func TestAdminAuthMiddlewareRejectsWrongBearerToken(t *testing.T) {
	auth := AdminAuth{BearerToken: "topsecret"}
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/anchor-pools/update-fee", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Fatalf("expected request to be rejected")
	}
}

func TestAdminAuthMiddlewareRejectsMissingToken(t *testing.T) {
	auth := AdminAuth{BearerToken: "topsecret"}
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodPost, "/anchor-pools/update-fee", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Fatalf("expected request without Authorization header to be rejected")
	}
}

func TestAdminAuthMiddlewareRequiresMTLSWhenConfigured(t *testing.T) {
	auth := AdminAuth{RequireMTLS: true}
	handler := auth.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("handler should not be called without a client certificate")
	}))

	req := httptest.NewRequest(http.MethodPost, "/anchor-pools/update-fee", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Fatalf("expected request without a client certificate to be rejected")
	}
}
