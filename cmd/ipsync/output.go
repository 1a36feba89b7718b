package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/bcnelson/ipsync/internal/domain"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const (
	outputTable = "table"
	outputJSON  = "json"
)

func validateOutput(format string) error {
	switch format {
	case outputTable, outputJSON:
		return nil
	default:
		return fmt.Errorf("unknown output format %q (want table or json): %w", format, domain.ErrInvalidInput)
	}
}

// renderReport writes report as JSON or as tables of plans, outcomes and
// pairing failures followed by a summary line.
func renderReport(w io.Writer, report *domain.SyncReport, format string) error {
	if format == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	if len(report.Plans) > 0 {
		t := newTable(w)
		t.SetTitle("Plans")
		t.AppendHeader(table.Row{"Pairing", "Target", "Collection", "Mode", "Add", "Remove", "Applied"})
		for _, p := range report.Plans {
			t.AppendRow(table.Row{p.Pairing, p.Target, p.Collection, p.Mode, len(p.Additions), len(p.Removals), p.Applied})
		}
		t.Render()
	}

	if len(report.Outcomes) > 0 {
		t := newTable(w)
		t.SetTitle("Outcomes")
		t.AppendHeader(table.Row{"Pairing", "Target", "Address", "Operation", "Status", "Message"})
		for _, o := range report.Outcomes {
			t.AppendRow(table.Row{o.Pairing, o.Target, o.Address, o.Operation, statusText(o.Status), o.Message})
		}
		t.Render()
	}

	if len(report.PairingFailures) > 0 {
		t := newTable(w)
		t.SetTitle("Failed pairings")
		t.AppendHeader(table.Row{"Pairing", "Stage", "Error"})
		for _, f := range report.PairingFailures {
			t.AppendRow(table.Row{f.Pairing, f.Stage, f.Error})
		}
		t.Render()
	}

	_, err := fmt.Fprintf(w, "%d successes, %d failures\n", report.Successes, report.Failures)
	return err
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func statusText(s domain.OutcomeStatus) string {
	if s == domain.StatusSuccess {
		return text.FgGreen.Sprint(strings.ToUpper(string(s)))
	}
	return text.FgRed.Sprint(strings.ToUpper(string(s)))
}
