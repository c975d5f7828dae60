package server

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"forwarded single", "", map[string]string{"X-Forwarded-For": "198.51.100.2"}, "198.51.100.2"},
		{"forwarded chain", "", map[string]string{"X-Forwarded-For": " 198.51.100.2 , 10.0.0.1"}, "198.51.100.2"},
		{"real ip", "", map[string]string{"X-Real-IP": "192.0.2.9"}, "192.0.2.9"},
		{"forwarded wins", "", map[string]string{"X-Forwarded-For": "198.51.100.2", "X-Real-IP": "192.0.2.9"}, "198.51.100.2"},
		{"forwarded beats peer", "203.0.113.7:5555", map[string]string{"X-Forwarded-For": "198.51.100.2"}, "198.51.100.2"},
		{"direct peer", "203.0.113.7:5555", nil, "203.0.113.7"},
		{"direct ipv6 peer", "[2001:db8::1]:443", nil, "2001:db8::1"},
		{"unparseable peer", "not-an-addr", nil, "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/api/validate", nil)
			r.RemoteAddr = tt.remoteAddr
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := clientIP(r); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSessionToken(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/keys", nil)
	if got := sessionToken(r); got != "" {
		t.Errorf("sessionToken() = %q, want empty", got)
	}
	r.Header.Set("Authorization", "Bearer abc")
	if got := sessionToken(r); got != "abc" {
		t.Errorf("sessionToken() = %q, want abc", got)
	}
	r.Header.Set("Authorization", "Basic abc")
	if got := sessionToken(r); got != "" {
		t.Errorf("non-bearer header accepted: %q", got)
	}
}
