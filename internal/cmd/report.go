package cmd

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/dotcommander/yar/internal/config"
	"github.com/dotcommander/yar/internal/present"
	"github.com/dotcommander/yar/internal/research"
	"github.com/dotcommander/yar/internal/storage"
)

// streamReport writes the report to out as it streams in, with one status line
// per stage on status. It returns the terminal event.
func streamReport(out, status io.Writer, styles present.Styles, events iter.Seq[research.Event], quiet bool) research.Event {
	var streamed, newline bool
	write := func(s string) {
		_, _ = io.WriteString(out, s)
		streamed = true
		newline = strings.HasSuffix(s, "\n")
	}
	endLine := func() {
		if streamed && !newline {
			_, _ = io.WriteString(out, "\n")
		}
	}

	for e := range events {
		switch e.Type {
		case research.EventProgress:
			if quiet {
				continue
			}
			line := styles.Stage.Render(e.Text)
			if e.Cached {
				line += " " + styles.Cached.Render("(cached)")
			}
			_, _ = fmt.Fprintln(status, line)
		case research.EventPartialText:
			write(e.Text)
		case research.EventCompleted:
			if !streamed {
				write(e.Text)
			}
			endLine()
			return e
		case research.EventCompletedEmpty, research.EventFailed:
			endLine()
			return e
		}
	}
	endLine()
	return research.Event{Type: research.EventFailed, Stage: research.StageReport, Err: context.Canceled}
}

func runRecord(id, topic string, final research.Event, mod config.Model) storage.Run {
	run := storage.Run{
		ID:       id,
		Topic:    topic,
		Key:      storage.TopicKey(research.NormalizeTopic(topic)),
		Articles: final.Articles,
		API:      mod.API,
		Model:    mod.Name,
	}
	switch {
	case final.Type == research.EventCompleted && final.Cached:
		run.Outcome = storage.OutcomeCached
	case final.Type == research.EventCompleted:
		run.Outcome = storage.OutcomeCompleted
	case final.Type == research.EventCompletedEmpty:
		run.Outcome = storage.OutcomeEmpty
	default:
		run.Outcome = storage.OutcomeFailed
	}
	return run
}

func openRunDB(dir string) (*storage.DB, error) {
	return storage.Open(dir) //nolint:wrapcheck
}

func recordRun(dir string, run storage.Run) error {
	db, err := openRunDB(dir)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck
	return db.Save(run) //nolint:wrapcheck
}
