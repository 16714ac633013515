package leavehandler

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"leavedesk/internal/domain/leave"
)

// exportRows flattens the grid into one row per calendar entry, in order of
// first appearance.
func exportRows(grid leave.MonthGrid) []leave.CalendarEntry {
	seen := map[string]bool{}
	rows := []leave.CalendarEntry{}
	for _, cell := range grid.Cells {
		for _, entry := range cell.Entries {
			id := entry.RequestID
			if id == "" {
				id = entry.EmployeeID + "|" + entry.StartDate.String() + "|" + entry.EndDate.String()
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			rows = append(rows, entry)
		}
	}
	return rows
}

func exportFilename(grid leave.MonthGrid, ext string) string {
	return fmt.Sprintf("leave-calendar-%04d-%02d.%s", grid.Year, int(grid.Month), ext)
}

func writeCalendarExport(w http.ResponseWriter, format string, grid leave.MonthGrid) {
	rows := exportRows(grid)
	switch format {
	case "pdf":
		var buf bytes.Buffer
		if err := renderCalendarPDF(&buf, grid, rows); err != nil {
			slog.Warn("calendar export pdf render failed", "err", err)
			http.Error(w, "failed to render calendar", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", "attachment; filename="+exportFilename(grid, "pdf"))
		if _, err := w.Write(buf.Bytes()); err != nil {
			slog.Warn("calendar export write failed", "err", err)
		}
	case "ics":
		w.Header().Set("Content-Type", "text/calendar")
		w.Header().Set("Content-Disposition", "attachment; filename="+exportFilename(grid, "ics"))
		if _, err := w.Write([]byte(renderCalendarICS(rows))); err != nil {
			slog.Warn("calendar export write failed", "err", err)
		}
	default:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", "attachment; filename="+exportFilename(grid, "csv"))
		writeCalendarCSV(w, rows)
	}
}

func writeCalendarCSV(w http.ResponseWriter, rows []leave.CalendarEntry) {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"request_id", "employee_id", "employee_name", "leave_type", "start_date", "end_date", "status"}); err != nil {
		slog.Warn("calendar export csv header write failed", "err", err)
	}
	for _, row := range rows {
		if err := writer.Write([]string{row.RequestID, row.EmployeeID, row.EmployeeName, row.LeaveTypeName, row.StartDate.String(), row.EndDate.String(), string(row.Status)}); err != nil {
			slog.Warn("calendar export csv row write failed", "err", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		slog.Warn("calendar export csv flush failed", "err", err)
	}
}

func renderCalendarICS(rows []leave.CalendarEntry) string {
	var builder strings.Builder
	builder.WriteString("BEGIN:VCALENDAR\r\nVERSION:2.0\r\nPRODID:-//Leavedesk//Team Calendar//EN\r\n")
	for _, row := range rows {
		builder.WriteString("BEGIN:VEVENT\r\n")
		builder.WriteString(fmt.Sprintf("UID:%s\r\n", row.RequestID))
		builder.WriteString(fmt.Sprintf("DTSTART;VALUE=DATE:%s\r\n", row.StartDate.Format("20060102")))
		builder.WriteString(fmt.Sprintf("DTEND;VALUE=DATE:%s\r\n", row.EndDate.AddDays(1).Format("20060102")))
		builder.WriteString(fmt.Sprintf("SUMMARY:%s - %s (%s)\r\n", row.EmployeeName, row.LeaveTypeName, row.Status))
		builder.WriteString("END:VEVENT\r\n")
	}
	builder.WriteString("END:VCALENDAR\r\n")
	return builder.String()
}

// renderCalendarPDF draws the six-week grid on a landscape page followed by
// the list of absences.
func renderCalendarPDF(buf *bytes.Buffer, grid leave.MonthGrid, rows []leave.CalendarEntry) error {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(0, 10, fmt.Sprintf("Team leave calendar: %s %d", grid.Month, grid.Year))
	pdf.Ln(12)

	const cellW, headerH, cellH = 39.0, 7.0, 19.0
	pdf.SetFont("Helvetica", "B", 9)
	for _, day := range []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday} {
		pdf.CellFormat(cellW, headerH, day.String(), "1", 0, "C", false, 0, "")
	}
	pdf.Ln(headerH)

	left, _, _, _ := pdf.GetMargins()
	pdf.SetFont("Helvetica", "", 7)
	pdf.SetFillColor(235, 235, 235)
	for i, cell := range grid.Cells {
		x, y := pdf.GetXY()
		style := "D"
		if cell.Weekend || cell.Holiday != "" {
			style = "FD"
		}
		pdf.Rect(x, y, cellW, cellH, style)
		if cell.InMonth {
			pdf.SetTextColor(0, 0, 0)
		} else {
			pdf.SetTextColor(150, 150, 150)
		}
		pdf.SetXY(x+1, y+1)
		label := fmt.Sprintf("%d", cell.Date.Day())
		if cell.Holiday != "" {
			label += " " + cell.Holiday
		}
		pdf.CellFormat(cellW-2, 3.5, label, "", 2, "L", false, 0, "")
		for j, entry := range cell.Entries {
			if j == 3 {
				pdf.CellFormat(cellW-2, 3.5, fmt.Sprintf("+%d more", len(cell.Entries)-3), "", 2, "L", false, 0, "")
				break
			}
			pdf.CellFormat(cellW-2, 3.5, entry.EmployeeName, "", 2, "L", false, 0, "")
		}
		if (i+1)%7 == 0 {
			pdf.SetXY(left, y+cellH)
		} else {
			pdf.SetXY(x+cellW, y)
		}
	}
	pdf.SetTextColor(0, 0, 0)

	if len(rows) > 0 {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 12)
		pdf.Cell(0, 8, "Absences")
		pdf.Ln(10)
		pdf.SetFont("Helvetica", "", 10)
		for _, row := range rows {
			pdf.Cell(0, 6, fmt.Sprintf("%s  %s  %s to %s  (%s)", row.EmployeeName, row.LeaveTypeName, row.StartDate, row.EndDate, row.Status))
			pdf.Ln(6)
		}
	}

	return pdf.Output(buf)
}
