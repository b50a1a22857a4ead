package main

import (
	"log/slog"
	"os"

	"github.com/schollz/progressbar/v3"
)

// progressObserver renders operation progress as a terminal bar and routes
// diagnostics to slog. progressbar's Add is safe for concurrent use, which
// matters because workers report completions from their own goroutines.
type progressObserver struct {
	verb string
	bar  *progressbar.ProgressBar
}

func newProgressObserver(verb string) *progressObserver {
	return &progressObserver{verb: verb}
}

func (o *progressObserver) Start(total int) {
	o.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription(o.verb),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionShowCount(),
	)
}

func (o *progressObserver) Inc(n int) {
	if o.bar != nil {
		o.bar.Add(n)
	}
}

func (o *progressObserver) Info(msg string) {
	slog.Info(msg)
}

func (o *progressObserver) Warn(msg string) {
	slog.Warn(msg)
}

func (o *progressObserver) Finish(msg string) {
	if o.bar != nil {
		o.bar.Finish()
	}
	slog.Info(msg)
}
