package util

import (
	"net/http/httptest"
	"testing"
)

func TestClientIPStripsPort(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.1.2.3:4567"
	if got := ClientIP(r); got != "10.1.2.3" {
		t.Fatalf("expected 10.1.2.3, got %q", got)
	}
}

func TestClientIPWithoutPort(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.1.2.3"
	if got := ClientIP(r); got != "10.1.2.3" {
		t.Fatalf("expected 10.1.2.3, got %q", got)
	}
}
