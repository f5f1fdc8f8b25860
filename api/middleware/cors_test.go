package middleware

import (
	"net/http/httptest"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{"forwarded chain", "203.0.113.5, 10.0.0.1", "10.0.0.2:5555", "203.0.113.5"},
		{"single forwarded", " 198.51.100.7 ", "10.0.0.2:5555", "198.51.100.7"},
		{"empty first entry", " , 10.0.0.1", "192.0.2.10:443", "192.0.2.10"},
		{"remote addr", "", "192.0.2.10:443", "192.0.2.10"},
		{"ipv6 remote", "", "[2001:db8::1]:8080", "2001:db8::1"},
		{"no port", "", "192.0.2.10", "192.0.2.10"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/scrape", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := ClientIP(r); got != tt.want {
				t.Errorf("ClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
