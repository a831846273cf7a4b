// Package dataset writes call summaries out as an Excel workbook.
package dataset

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"call-insights-go/internal/aggregator"
	"call-insights-go/internal/rubric"
	"call-insights-go/internal/types"
)

const (
	CallsSheet  = "Calls"
	AgentsSheet = "Agents"
)

var (
	callHeader  = []interface{}{"ID", "Agent", "Patient", "Agent Phone", "Bucket", "Total Score", "Created At (UTC)"}
	agentHeader = []interface{}{"Agent", "Calls", "Scored", "Average Score", "Excellent", "At Risk", "Bad", "Unscored", "Last Call (UTC)"}
)

// Write renders one row per summary on the Calls sheet and one row per agent
// rollup on the Agents sheet.
func Write(w io.Writer, summaries []types.CallSummary, ins aggregator.Insight) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", CallsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(AgentsSheet); err != nil {
		return err
	}

	if err := writeRow(f, CallsSheet, 1, callHeader); err != nil {
		return err
	}
	for i, s := range summaries {
		var total interface{} = ""
		if s.TotalScore != nil {
			total = *s.TotalScore
		}
		row := []interface{}{s.ID, s.AgentName, s.PatientName, s.AgentPhoneNumber, s.Bucket, total, s.CreatedAt.UTC().Format(time.RFC3339)}
		if err := writeRow(f, CallsSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := writeRow(f, AgentsSheet, 1, agentHeader); err != nil {
		return err
	}
	for i, a := range ins.Agents {
		row := []interface{}{
			a.Agent, a.Calls, a.Scored, a.AverageScore,
			a.Bands[rubric.BandExcellent], a.Bands[rubric.BandAtRisk], a.Bands[rubric.BandBad], a.Bands[rubric.BandUnscored],
			a.LastCallAt.UTC().Format(time.RFC3339),
		}
		if err := writeRow(f, AgentsSheet, i+2, row); err != nil {
			return err
		}
	}

	if err := f.SetPanes(CallsSheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
