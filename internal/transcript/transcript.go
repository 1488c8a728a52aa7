// Package transcript renders a session log as a printable PDF.
package transcript

import (
	"fmt"
	"io"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/jwebster45206/situation-engine/pkg/rules"
	"github.com/jwebster45206/situation-engine/pkg/state"
)

const (
	fontFamily = "Helvetica"
	lineHeight = 5.5
)

// Write renders gs's log, grouped by situation, to w.
func Write(w io.Writer, r *rules.GameRules, gs *state.GameState) error {
	pdf := newDocument(r, gs)
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render transcript: %w", err)
	}
	return nil
}

func newDocument(r *rules.GameRules, gs *state.GameState) *gofpdf.Fpdf {
	pdf := gofpdf.New("P", "mm", "A4", "")
	// Core fonts are cp1252; anything outside it prints as '?'.
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	title := r.Title
	if title == "" {
		title = gs.RuleSet
	}
	pdf.SetTitle(title, true)
	pdf.SetCreator("situation-engine", true)
	pdf.SetCreationDate(gs.UpdatedAt)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-15)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.SetTextColor(128, 128, 128)
		pdf.CellFormat(0, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	pdf.SetFont(fontFamily, "B", 18)
	pdf.MultiCell(0, 9, tr(title), "", "L", false)
	pdf.SetFont(fontFamily, "", 9)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, lineHeight, tr(summary(r, gs)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	label := func(id string) string {
		if sit, ok := r.Situations.Get(id); ok && sit.Label != "" {
			return sit.Label
		}
		return id
	}

	current := ""
	for _, entry := range gs.Log {
		if entry.Situation != "" && entry.Situation != current {
			current = entry.Situation
			pdf.Ln(2)
			pdf.SetFont(fontFamily, "B", 12)
			pdf.SetTextColor(0, 0, 0)
			pdf.MultiCell(0, 7, tr(label(current)), "B", "L", false)
			pdf.Ln(1)
		}
		switch entry.Kind {
		case state.LogAction:
			pdf.SetFont(fontFamily, "B", 10)
			pdf.SetTextColor(20, 60, 120)
			pdf.MultiCell(0, lineHeight, tr("> "+entry.Text), "", "L", false)
		case state.LogProcedural:
			pdf.SetFont(fontFamily, "I", 10)
			pdf.SetTextColor(90, 90, 90)
			pdf.MultiCell(0, lineHeight, tr(entry.Text), "", "L", false)
		default:
			pdf.SetFont(fontFamily, "", 11)
			pdf.SetTextColor(0, 0, 0)
			pdf.MultiCell(0, lineHeight+0.5, tr(entry.Text), "", "L", false)
		}
		pdf.Ln(1.5)
	}

	if len(gs.Log) == 0 {
		pdf.SetFont(fontFamily, "I", 10)
		pdf.SetTextColor(90, 90, 90)
		pdf.MultiCell(0, lineHeight, "Nothing has happened yet.", "", "L", false)
	}
	return pdf
}

func summary(r *rules.GameRules, gs *state.GameState) string {
	s := fmt.Sprintf("Turn %d  |  %s", gs.Turn, gs.UpdatedAt.Format(time.DateTime))
	if gs.Route != "" {
		s += "  |  Route: " + gs.Route
	}
	if sit, ok := r.Situations.Get(gs.Situation); ok && sit.Ending {
		s += "  |  Ended"
	}
	return s
}
