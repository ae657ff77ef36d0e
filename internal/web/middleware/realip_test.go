package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		realIP  string
		xff     string
		want    string
	}{
		{"no proxies strips port", nil, "203.0.113.9:5123", "", "", "203.0.113.9"},
		{"untrusted proxy ignored", []string{"10.0.0.0/8"}, "203.0.113.9:5123", "198.51.100.7", "", "203.0.113.9"},
		{"trusted cidr uses x-real-ip", []string{"10.0.0.0/8"}, "10.1.2.3:80", "198.51.100.7", "", "198.51.100.7"},
		{"trusted bare address uses first xff hop", []string{"10.1.2.3"}, "10.1.2.3:80", "", "198.51.100.7, 10.9.9.9", "198.51.100.7"},
		{"garbage header keeps proxy", []string{"10.0.0.0/8"}, "10.1.2.3:80", "not-an-ip", "", "10.1.2.3"},
		{"ipv4-mapped ipv6", nil, "[::ffff:192.0.2.1]:443", "", "", "192.0.2.1"},
		{"invalid trusted entry skipped", []string{"bogus", "10.0.0.0/8"}, "10.1.2.3:80", "198.51.100.7", "", "198.51.100.7"},
		{"unparsable remote untouched", nil, "pipe", "", "", "pipe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			if got != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", got, tt.want)
			}
		})
	}
}
