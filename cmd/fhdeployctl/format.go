package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fluxcd/fhdeploy/pkg/daemon"
	"github.com/fluxcd/fhdeploy/pkg/state"
)

const (
	outputFormatTab  = "tab"
	outputFormatJSON = "json"
)

var errorInvalidOutputFormat = newUsageError("invalid output format specified")

func newTabwriter(out io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(out, 0, 2, 2, ' ', 0)
}

func outputJSON(out io.Writer, v interface{}) error {
	e := json.NewEncoder(out)
	e.SetIndent("", "  ")
	return e.Encode(v)
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "(never)"
	}
	return t.Format(time.RFC3339)
}

func writeRecord(w io.Writer, r state.Record) {
	fmt.Fprintf(w, "LAST ATTEMPTED\t%s\n", orNone(r.LastAttemptedVersion))
	fmt.Fprintf(w, "OUTCOME\t%s\n", r.Outcome)
	fmt.Fprintf(w, "LAST GOOD\t%s\n", orNone(r.LastGoodVersion))
	fmt.Fprintf(w, "UPDATED\t%s\n", formatTime(r.UpdatedAt))
}

func writeStatus(out io.Writer, s daemon.Status) error {
	w := newTabwriter(out)
	fmt.Fprintf(w, "DAEMON\t%s\n", s.Version)
	fmt.Fprintf(w, "TARGET\t%s\n", s.Target)
	fmt.Fprintf(w, "OPERATION\t%s\n", s.Operation)
	writeRecord(w, s.Record)
	if c := s.LastCycle; c != nil {
		fmt.Fprintf(w, "LAST CYCLE\t%s (%s, %s)\n", c.Result, c.Trigger, formatTime(c.Finished))
	} else {
		fmt.Fprintf(w, "LAST CYCLE\t(none since start)\n")
	}
	return w.Flush()
}
