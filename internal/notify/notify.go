// Package notify announces finished bundle builds to subscribers.
package notify

import (
	"context"
	"sync"

	"github.com/assetpipe/assetctl/internal/bundle"
)

type Kind string

const (
	StylesheetsCompressed Kind = "stylesheets-compressed"
	ScriptsCompressed     Kind = "scripts-compressed"
)

// Params is the extra payload a build passes to its compressor, forwarded
// unchanged to subscribers. Stylesheet builds set Variant and AbsolutePaths,
// script builds set Templates.
type Params struct {
	Variant       string   `json:"variant,omitempty"`
	AbsolutePaths *bool    `json:"absolute_paths,omitempty"`
	Templates     []string `json:"templates,omitempty"`
}

type Event struct {
	Kind   Kind
	Bundle *bundle.Bundle
	Params Params
}

type Handler func(ctx context.Context, e Event) error

// Notifier delivers events synchronously, in subscription order. Delivery
// stops at the first handler error, which is returned to the sender.
type Notifier struct {
	mu       sync.RWMutex
	handlers map[Kind][]Handler
}

func New() *Notifier {
	return &Notifier{handlers: make(map[Kind][]Handler)}
}

func (n *Notifier) Subscribe(kind Kind, h Handler) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.handlers[kind] = append(n.handlers[kind], h)
}

func (n *Notifier) Send(ctx context.Context, e Event) error {
	n.mu.RLock()
	handlers := n.handlers[e.Kind]
	n.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
