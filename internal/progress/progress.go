package progress

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Bar reports how many bundles have been processed. A nil *Bar is valid and
// does nothing, so workers can call Add unconditionally.
type Bar struct {
	bar *progressbar.ProgressBar
}

func New(total int, description string) *Bar {
	return NewWithWriter(os.Stderr, total, description)
}

func NewWithWriter(w io.Writer, total int, description string) *Bar {
	return &Bar{bar: progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)}
}

func (b *Bar) Add(n int) {
	if b == nil {
		return
	}
	_ = b.bar.Add(n)
}

func (b *Bar) Finish() {
	if b == nil {
		return
	}
	_ = b.bar.Finish()
}
