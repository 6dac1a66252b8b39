package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func versionHandler(config VersionConfig) http.Handler {
	return Version(config)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestVersionMiddleware_Negotiation(t *testing.T) {
	handler := versionHandler(VersionConfig{CurrentVersion: "1.2.0"})

	tests := []struct {
		name       string
		accept     string
		wantStatus int
	}{
		{"no header", "", http.StatusOK},
		{"major only", "1", http.StatusOK},
		{"caret", "^1.1", http.StatusOK},
		{"range", ">=1.0, <2.0", http.StatusOK},
		{"too new", "^1.3", http.StatusNotAcceptable},
		{"next major", "2", http.StatusNotAcceptable},
		{"garbage", "not-a-version!", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Version", tt.accept)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := rr.Header().Get("API-Version"); got != "1.2.0" {
				t.Errorf("API-Version = %q, want 1.2.0", got)
			}
		})
	}
}

func TestVersionMiddleware_Sunset(t *testing.T) {
	sunset := time.Date(2027, 6, 1, 0, 0, 0, 0, time.UTC)
	handler := versionHandler(VersionConfig{CurrentVersion: "1.0.0", Sunset: sunset})

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))

	if rr.Header().Get("Deprecation") != "true" {
		t.Error("expected Deprecation header")
	}
	if got := rr.Header().Get("Sunset"); got != sunset.Format(http.TimeFormat) {
		t.Errorf("Sunset = %q", got)
	}
}

func TestVersionMiddleware_NotDeprecated(t *testing.T) {
	rr := httptest.NewRecorder()
	versionHandler(DefaultVersionConfig()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))

	if rr.Header().Get("Deprecation") != "" {
		t.Error("current version should not have Deprecation header")
	}
	if rr.Header().Get("API-Version") != DefaultAPIVersion {
		t.Errorf("API-Version = %q", rr.Header().Get("API-Version"))
	}
}

func TestVersionMiddleware_InvalidConfiguredVersion(t *testing.T) {
	rr := httptest.NewRecorder()
	versionHandler(VersionConfig{CurrentVersion: "banana"}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/test", nil))

	if rr.Header().Get("API-Version") != DefaultAPIVersion {
		t.Errorf("API-Version = %q, want fallback", rr.Header().Get("API-Version"))
	}
}
