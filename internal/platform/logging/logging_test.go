package logging

import "testing"

func TestNew(t *testing.T) {
	for _, format := range []string{"", "json", "console"} {
		logger, err := New("test", "debug", format)
		if err != nil {
			t.Fatalf("format %q: unexpected error: %v", format, err)
		}
		if !logger.Core().Enabled(-1) {
			t.Errorf("format %q: expected debug level enabled", format)
		}
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New("test", "loud", "json"); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := New("test", "info", "xml"); err == nil {
		t.Error("expected error for unknown format")
	}
}
