package server

import (
	"bytes"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/joelkehle/ideaforge/internal/store"
)

const historySheet = "History"

var historyColumns = []string{
	"ID", "Saved", "Startup", "Industry", "Stage", "Source",
	"Overall", "Market Potential", "Feasibility", "Competition", "Risk Level", "Innovation",
	"Market Alignment", "Comparison Overall", "Market Size ($B)", "Growth",
}

// BuildHistoryWorkbook writes one row per entry, oldest first.
func BuildHistoryWorkbook(entries []store.Entry) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", historySheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	header := make([]any, len(historyColumns))
	for i, h := range historyColumns {
		header[i] = h
	}
	if err := f.SetSheetRow(historySheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	if err := f.SetRowStyle(historySheet, 1, 1, bold); err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}

	for i, e := range entries {
		a := e.AnalysisResult
		cmp := ReportFromEntry(e).Comparison
		row := []any{
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339),
			e.FormData.StartupName,
			e.FormData.Industry,
			string(e.FormData.Stage),
			string(a.Source),
			a.OverallScore,
			a.MarketPotential,
			a.Feasibility,
			a.Competition,
			a.RiskLevel,
			a.InnovationIndex,
			cmp.MarketAlignmentScore,
			cmp.OverallComparisonScore,
			a.RealWorldData.MarketSize,
			a.RealWorldData.MarketGrowth,
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(historySheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := f.SetColWidth(historySheet, "A", "A", 38); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(historySheet, "B", "F", 18); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return &buf, nil
}

func (s *Server) handleHistoryExport(c *gin.Context) {
	entries, err := s.store.List(c.Request.Context())
	if err != nil {
		s.historyError(c, err)
		return
	}
	buf, err := BuildHistoryWorkbook(entries)
	if err != nil {
		s.logger.Error("history export_failed", zap.Error(err))
		capture(c, err)
		writeError(c, http.StatusInternalServerError, "Failed to export history", "")
		return
	}
	c.Header("Content-Disposition", `attachment; filename="ideaforge-history.xlsx"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}

var filenameUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

func reportFilename(e store.Entry) string {
	name := strings.Trim(filenameUnsafe.ReplaceAllString(strings.ToLower(e.FormData.StartupName), "-"), "-")
	if name == "" {
		name = "startup"
	}
	if len(name) > 40 {
		name = strings.Trim(name[:40], "-")
	}
	id := e.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return "ideaforge-" + name + "-" + id
}
