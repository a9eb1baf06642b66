package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewHTTPServer(t *testing.T) {
	tests := []struct {
		name    string
		config  HTTPConfig
		wantErr bool
	}{
		{
			name:   "empty config",
			config: HTTPConfig{},
		},
		{
			name:   "bearer token only",
			config: HTTPConfig{BearerToken: "secret"},
		},
		{
			name:   "TLS cert and key",
			config: HTTPConfig{TLSCertFile: "cert.pem", TLSKeyFile: "key.pem"},
		},
		{
			name:    "TLS cert without key",
			config:  HTTPConfig{TLSCertFile: "cert.pem"},
			wantErr: true,
		},
		{
			name:    "TLS key without cert",
			config:  HTTPConfig{TLSKeyFile: "key.pem"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, err := NewHTTPServer(nil, tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewHTTPServer() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && srv == nil {
				t.Error("NewHTTPServer() returned nil server")
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name      string
		header    string
		wantToken string
		wantOK    bool
	}{
		{name: "no header"},
		{name: "bearer with token", header: "Bearer secret", wantToken: "secret", wantOK: true},
		{name: "lowercase scheme", header: "bearer secret", wantToken: "secret", wantOK: true},
		{name: "wrong scheme", header: "Basic dXNlcjpwYXNz"},
		{name: "scheme without token", header: "Bearer"},
		{name: "scheme with trailing space only", header: "Bearer "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/mcp", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			token, ok := bearerToken(r)
			if ok != tt.wantOK {
				t.Errorf("bearerToken() ok = %v, want %v", ok, tt.wantOK)
			}
			if token != tt.wantToken {
				t.Errorf("bearerToken() = %q, want %q", token, tt.wantToken)
			}
		})
	}
}

func TestBearerAuth_NoTokenConfigured(t *testing.T) {
	srv, err := NewHTTPServer(nil, HTTPConfig{})
	if err != nil {
		t.Fatalf("NewHTTPServer() error = %v", err)
	}

	called := false
	handler := srv.bearerAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))

	if !called {
		t.Error("handler should be reached when no token is configured")
	}
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestBearerAuth_RejectsInvalidToken(t *testing.T) {
	srv, err := NewHTTPServer(nil, HTTPConfig{BearerToken: "secret"})
	if err != nil {
		t.Fatalf("NewHTTPServer() error = %v", err)
	}

	handler := srv.bearerAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing header"},
		{name: "wrong token", header: "Bearer wrong"},
		{name: "wrong scheme", header: "Basic secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, r)

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
			}
			if got := rec.Header().Get("WWW-Authenticate"); got == "" {
				t.Error("WWW-Authenticate header should be set")
			}
		})
	}
}

func TestBearerAuth_AcceptsValidToken(t *testing.T) {
	srv, err := NewHTTPServer(nil, HTTPConfig{BearerToken: "secret"})
	if err != nil {
		t.Fatalf("NewHTTPServer() error = %v", err)
	}

	called := false
	handler := srv.bearerAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusAccepted)
	}))

	r := httptest.NewRequest(http.MethodPost, "/mcp", nil)
	r.Header.Set("Authorization", "Bearer secret")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, r)

	if !called {
		t.Error("handler should be reached with a valid token")
	}
	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}
}

func TestInstrument_WithoutMetrics(t *testing.T) {
	srv, err := NewHTTPServer(nil, HTTPConfig{})
	if err != nil {
		t.Fatalf("NewHTTPServer() error = %v", err)
	}

	called := false
	handler := srv.instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))

	if !called {
		t.Error("handler should be reached without metrics configured")
	}
}

func TestStatusRecorder(t *testing.T) {
	rec := httptest.NewRecorder()
	recorder := &statusRecorder{ResponseWriter: rec, status: http.StatusOK}

	if recorder.status != http.StatusOK {
		t.Errorf("default status = %d, want %d", recorder.status, http.StatusOK)
	}

	recorder.WriteHeader(http.StatusNotFound)
	if recorder.status != http.StatusNotFound {
		t.Errorf("status = %d, want %d", recorder.status, http.StatusNotFound)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("underlying status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	// Flush must not panic when the underlying writer supports it
	recorder.Flush()
	if !rec.Flushed {
		t.Error("Flush() should reach the underlying writer")
	}
}
