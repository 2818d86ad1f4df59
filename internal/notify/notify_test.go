package notify_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/assetpipe/assetctl/internal/bundle"
	"github.com/assetpipe/assetctl/internal/config"
	"github.com/assetpipe/assetctl/internal/notify"
)

func TestSendOrder(t *testing.T) {
	n := notify.New()
	b := bundle.New(&config.Bundle{Name: "main"}, nil, ".jst")

	var calls []string
	record := func(name string) notify.Handler {
		return func(_ context.Context, e notify.Event) error {
			calls = append(calls, name+":"+string(e.Kind)+":"+e.Bundle.Name())
			return nil
		}
	}

	n.Subscribe(notify.StylesheetsCompressed, record("first"))
	n.Subscribe(notify.ScriptsCompressed, record("scripts"))
	n.Subscribe(notify.StylesheetsCompressed, record("second"))

	if err := n.Send(t.Context(), notify.Event{Kind: notify.StylesheetsCompressed, Bundle: b}); err != nil {
		t.Fatal(err)
	}

	exp := []string{
		"first:stylesheets-compressed:main",
		"second:stylesheets-compressed:main",
	}
	if diff := cmp.Diff(exp, calls); diff != "" {
		t.Fatalf("unexpected calls (-want +got):\n%s", diff)
	}
}

func TestSendStopsOnError(t *testing.T) {
	n := notify.New()
	errBoom := errors.New("boom")

	var called bool
	n.Subscribe(notify.ScriptsCompressed, func(context.Context, notify.Event) error { return errBoom })
	n.Subscribe(notify.ScriptsCompressed, func(context.Context, notify.Event) error {
		called = true
		return nil
	})

	err := n.Send(t.Context(), notify.Event{Kind: notify.ScriptsCompressed})
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected %v, got %v", errBoom, err)
	}
	if called {
		t.Fatal("expected later handlers to be skipped")
	}
}

func TestSendWithoutSubscribers(t *testing.T) {
	if err := notify.New().Send(t.Context(), notify.Event{Kind: notify.ScriptsCompressed}); err != nil {
		t.Fatal(err)
	}
}
