// Package manifest records the bundles built during a run and writes them
// out as a JSON document, so templates and deploy tooling can look up the
// artifact of a bundle by name.
package manifest

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"io"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/assetpipe/assetctl/internal/notify"
)

type Storage interface {
	Save(ctx context.Context, path string, content io.Reader) error
}

// Entry describes one built bundle. TemplateName and ExtraContext are passed
// through from the bundle for whatever renders references to the output.
type Entry struct {
	Kind         string         `json:"kind"`
	Name         string         `json:"name"`
	Output       string         `json:"output"`
	Variant      string         `json:"variant,omitempty"`
	Templates    []string       `json:"templates,omitempty"`
	TemplateName string         `json:"template_name,omitempty"`
	ExtraContext map[string]any `json:"extra_context,omitempty"`
}

type Document struct {
	BuildID string  `json:"build_id"`
	Bundles []Entry `json:"bundles"`
}

var eventKinds = map[notify.Kind]string{
	notify.StylesheetsCompressed: "css",
	notify.ScriptsCompressed:     "js",
}

// Manifest collects one entry per built bundle. Rebuilding a bundle replaces
// its entry.
type Manifest struct {
	mu      sync.Mutex
	buildID string
	entries map[string]Entry
}

func New() *Manifest {
	return &Manifest{buildID: uuid.NewString(), entries: make(map[string]Entry)}
}

func (m *Manifest) BuildID() string {
	return m.buildID
}

// Subscribe registers the manifest for both build events.
func (m *Manifest) Subscribe(n *notify.Notifier) {
	for k := range eventKinds {
		n.Subscribe(k, m.Record)
	}
}

// Record adds the event's bundle unless the bundle opted out of the manifest.
func (m *Manifest) Record(_ context.Context, e notify.Event) error {
	kind, ok := eventKinds[e.Kind]
	if !ok || e.Bundle == nil || !e.Bundle.Manifest() {
		return nil
	}

	var extra map[string]any
	if ec := e.Bundle.ExtraContext(); len(ec) > 0 {
		extra = maps.Clone(ec)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[kind+"/"+e.Bundle.Name()] = Entry{
		Kind:         kind,
		Name:         e.Bundle.Name(),
		Output:       e.Bundle.OutputFilename(),
		Variant:      e.Params.Variant,
		Templates:    e.Params.Templates,
		TemplateName: e.Bundle.TemplateName(),
		ExtraContext: extra,
	}
	return nil
}

// Document returns the recorded entries ordered by kind and name.
func (m *Manifest) Document() Document {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc := Document{BuildID: m.buildID, Bundles: make([]Entry, 0, len(m.entries))}
	for _, e := range m.entries {
		doc.Bundles = append(doc.Bundles, e)
	}
	slices.SortFunc(doc.Bundles, func(a, b Entry) int {
		return cmp.Or(cmp.Compare(a.Kind, b.Kind), cmp.Compare(a.Name, b.Name))
	})
	return doc
}

func (m *Manifest) Write(ctx context.Context, s Storage, path string) error {
	bs, err := json.MarshalIndent(m.Document(), "", "  ")
	if err != nil {
		return err
	}
	return s.Save(ctx, path, bytes.NewReader(append(bs, '\n')))
}
