package ssrf

import (
	"errors"
	"testing"
)

func TestValidateURLAllowed(t *testing.T) {
	urls := []string{
		"https://example.com",
		"https://example.com/path?q=1",
		"http://example.com:8080/page",
		"https://sub.domain.example.org",
		"https://93.184.216.34",
		"https://[2606:2800:220:1:248:1893:25c8:1946]/",
	}
	for _, u := range urls {
		if err := ValidateURL(u); err != nil {
			t.Errorf("ValidateURL(%q) = %v, want nil", u, err)
		}
	}
}

func TestValidateURLBlocked(t *testing.T) {
	urls := []string{
		// Loopback and unspecified.
		"http://localhost/admin",
		"http://localhost:8080",
		"http://127.0.0.1",
		"http://127.1.2.3",
		"http://0.0.0.0",
		"http://[::1]/",
		// Private ranges.
		"http://10.0.0.5/secret",
		"http://172.16.0.1",
		"http://192.168.1.1/router",
		// Link-local, including the cloud metadata address.
		"http://169.254.169.254/latest/meta-data/",
		"http://[fe80::1]/",
		// Blocked hostnames and suffixes.
		"http://metadata.google.internal/computeMetadata/v1/",
		"http://db.internal/",
		"http://printer.local/",
		"http://foo.localhost/",
		// Case and trailing-dot games.
		"http://LOCALHOST",
		"http://localhost.",
		// v4-mapped IPv6 hiding a loopback address.
		"http://[::ffff:127.0.0.1]/",
		// Non-HTTP schemes.
		"ftp://example.com/file",
		"file:///etc/passwd",
		"gopher://example.com",
	}
	for _, u := range urls {
		err := ValidateURL(u)
		if err == nil {
			t.Errorf("ValidateURL(%q) = nil, want blocked", u)
			continue
		}
		if !errors.Is(err, ErrBlocked) {
			t.Errorf("ValidateURL(%q) = %v, want ErrBlocked", u, err)
		}
	}
}

func TestValidateURLMalformed(t *testing.T) {
	for _, u := range []string{"", "https://", "not a url at all\x00"} {
		if err := ValidateURL(u); err == nil {
			t.Errorf("ValidateURL(%q) = nil, want error", u)
		}
	}
}
