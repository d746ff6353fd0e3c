package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"media-dubber/internal/engine"
	"media-dubber/internal/languages"
)

// renderer is an engine.Sink that also owns terminal cleanup.
type renderer interface {
	engine.Sink
	Close()
}

func newRenderer(w io.Writer) renderer {
	if isTerminal(w) {
		return newBarRenderer(w)
	}
	return &lineRenderer{w: w, last: -1}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// lineRenderer prints one line per event for pipes and logs.
type lineRenderer struct {
	w    io.Writer
	last int
}

func (r *lineRenderer) Emit(ev engine.Event) {
	switch ev.Kind {
	case engine.EventProgress:
		if ev.Progress.Percent == r.last {
			return
		}
		r.last = ev.Progress.Percent
		if ev.Progress.RemainingSeconds > 0 {
			fmt.Fprintf(r.w, "progress %d%% (%ds left)\n", ev.Progress.Percent, ev.Progress.RemainingSeconds)
			return
		}
		fmt.Fprintf(r.w, "progress %d%%\n", ev.Progress.Percent)
	case engine.EventStatus:
		fmt.Fprintf(r.w, "status %s\n", ev.Message)
	case engine.EventSuccess:
		printResult(r.w, ev)
	case engine.EventCancelled:
		fmt.Fprintln(r.w, "cancelled")
	}
}

func (r *lineRenderer) Close() {}

// barRenderer draws a single progress bar and prints status above it.
type barRenderer struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

func newBarRenderer(w io.Writer) *barRenderer {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("starting"),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionSetWidth(40),
		progressbar.OptionClearOnFinish(),
	)
	return &barRenderer{w: w, bar: bar}
}

func (r *barRenderer) Emit(ev engine.Event) {
	switch ev.Kind {
	case engine.EventProgress:
		if ev.Progress.RemainingSeconds > 0 {
			r.bar.Describe(fmt.Sprintf("%ds left", ev.Progress.RemainingSeconds))
		}
		_ = r.bar.Set(ev.Progress.Percent)
	case engine.EventStatus:
		r.bar.Describe(ev.Message)
	case engine.EventSuccess:
		_ = r.bar.Finish()
		printResult(r.w, ev)
	case engine.EventFailure, engine.EventCancelled:
		_ = r.bar.Clear()
	}
}

func (r *barRenderer) Close() {
	_ = r.bar.Exit()
}

func printResult(w io.Writer, ev engine.Event) {
	fmt.Fprintf(w, "output %s\n", ev.Result.OutputFile)
	if ev.Result.TargetLang != "" {
		if name := languages.Name(ev.Result.TargetLang); name != ev.Result.TargetLang {
			fmt.Fprintf(w, "language %s (%s)\n", ev.Result.TargetLang, name)
		} else {
			fmt.Fprintf(w, "language %s\n", ev.Result.TargetLang)
		}
	}
	if ev.Result.Translated != "" {
		fmt.Fprintf(w, "\n%s\n", ev.Result.Translated)
	}
}
