package progress

import (
	"io"

	"github.com/schollz/progressbar/v3"
)

// Bar reports discovered modules while the graph is built. The number of
// modules is not known up front, so it renders as a spinner. A nil *Bar is
// a no-op.
type Bar struct {
	bar *progressbar.ProgressBar
}

func New(w io.Writer, description string) *Bar {
	return &Bar{
		bar: progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowCount(),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		),
	}
}

func (b *Bar) Add(n int) {
	if b != nil {
		_ = b.bar.Add(n)
	}
}

func (b *Bar) Describe(description string) {
	if b != nil {
		b.bar.Describe(description)
	}
}

func (b *Bar) Finish() {
	if b != nil {
		_ = b.bar.Finish()
	}
}
