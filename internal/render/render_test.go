package render

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
)

func TestChromiumRender(t *testing.T) {
	bin, ok := launcher.LookPath()
	if !ok {
		t.Skip("no chromium binary available")
	}

	c := &Chromium{Bin: bin}
	t.Cleanup(func() { c.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pdf, err := c.Render(ctx, "<html><body><h1>Transfer</h1></body></html>")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Errorf("expected PDF output, got %q", pdf[:min(len(pdf), 16)])
	}
}
