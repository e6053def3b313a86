package handlers

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rodaine/table"
	"go.uber.org/zap"

	"crawlurl/internal/app/history"
	"crawlurl/internal/usecase"
)

const (
	DefaultProgressBuffer = 64
	warningsPreview       = 5
	urlsPreview           = 10
)

// Update is one progress notification.
type Update struct {
	Message string
	Count   int
}

// Progress is a ProgressSink backed by a buffered channel. Notify never
// blocks: updates are dropped while the buffer is full or after Close.
type Progress struct {
	mu     sync.RWMutex
	closed bool
	ch     chan Update
	logger *zap.Logger
}

func NewProgress(buffer int, logger *zap.Logger) *Progress {
	if buffer <= 0 {
		buffer = DefaultProgressBuffer
	}
	return &Progress{ch: make(chan Update, buffer), logger: logger}
}

func (p *Progress) Notify(message string, count int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.ch <- Update{Message: message, Count: count}:
	default:
		p.logger.Debug("progress update dropped", zap.String("message", message))
	}
}

func (p *Progress) Updates() <-chan Update {
	return p.ch
}

func (p *Progress) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.ch)
	}
}

// ProcessProgress writes updates to w until the sink is closed or ctx is done.
func ProcessProgress(ctx context.Context, p *Progress, w io.Writer, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Debug("context done in process progress")
			return
		case u, ok := <-p.Updates():
			if !ok {
				logger.Debug("progress sink closed")
				return
			}
			fmt.Fprintf(w, "%s (%d URLs)\n", u.Message, u.Count)
		}
	}
}

// Setting is one row of the configuration summary.
type Setting struct {
	Name  string
	Value string
}

func PrintSettings(w io.Writer, settings []Setting) {
	tbl := table.New("Setting", "Value").WithWriter(w)
	for _, s := range settings {
		tbl.AddRow(s.Name, s.Value)
	}
	tbl.Print()
	fmt.Fprintln(w)
}

// PrintResult writes the outcome of a run. Warnings are capped to a short
// preview; verbose adds a table of the first URLs.
func PrintResult(w io.Writer, res usecase.CrawlResult, savedPath string, verbose bool) {
	if !res.Success {
		fmt.Fprintln(w, res.Message)
		if verbose {
			for _, e := range res.Errors {
				fmt.Fprintf(w, "  • %s\n", e)
			}
		}
		return
	}

	fmt.Fprintln(w, res.Message)
	fmt.Fprintf(w, "Found %d URLs\n", res.Count)
	if savedPath != "" {
		fmt.Fprintf(w, "Saved to: %s\n", savedPath)
	}

	if verbose && len(res.URLs) > 0 {
		fmt.Fprintln(w)
		tbl := table.New("#", "URL").WithWriter(w)
		for i, u := range res.URLs {
			if i == urlsPreview {
				break
			}
			tbl.AddRow(i+1, u)
		}
		tbl.Print()
	}

	if len(res.Errors) > 0 {
		fmt.Fprintf(w, "\n%d warnings/errors occurred:\n", len(res.Errors))
		for i, e := range res.Errors {
			if i == warningsPreview {
				fmt.Fprintf(w, "  • ... and %d more\n", len(res.Errors)-warningsPreview)
				break
			}
			fmt.Fprintf(w, "  • %s\n", e)
		}
	}
}

// PrintRuns writes recorded runs as a table, newest first.
func PrintRuns(w io.Writer, runs []history.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	tbl := table.New("Started", "Mode", "URL", "Result", "URLs", "Warnings", "Duration", "Output").WithWriter(w)
	for _, r := range runs {
		result := "ok"
		if !r.Success {
			result = "failed"
		}
		tbl.AddRow(r.StartedAt.Local().Format("2006-01-02 15:04:05"), r.Mode, r.StartURL, result,
			r.Count, r.Warnings, r.Duration.Round(time.Millisecond), r.Output)
	}
	tbl.Print()
}
