package logger

import (
	"testing"

	"github.com/iliyamo/campus-placement/internal/config"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		l, err := New(config.LogConfig{Level: "debug", Format: format})
		if err != nil {
			t.Fatalf("format %s: %v", format, err)
		}
		_ = l.Sync()
	}
	if _, err := New(config.LogConfig{Level: "loud", Format: "json"}); err == nil {
		t.Fatal("expected error for unknown level")
	}
}
