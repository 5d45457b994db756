// Package downloads serves the administrator's record tables as CSV and
// Excel files.
package downloads

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/seatpredictor/seatweb/pkg/logging"
	"github.com/seatpredictor/seatweb/pkg/models"
	"github.com/seatpredictor/seatweb/pkg/security"
)

// setCellValueSafe safely sets a cell value with error handling
func setCellValueSafe(f *excelize.File, sheet, axis string, value interface{}, ip string) error {
	if err := f.SetCellValue(sheet, axis, value); err != nil {
		logging.LogError("Failed to set cell value", err,
			"sheet", sheet,
			"axis", axis,
			"ip", ip)
		return err
	}
	return nil
}

// createSheetSafe safely creates a new sheet with error handling
func createSheetSafe(f *excelize.File, name, ip string) error {
	if _, err := f.NewSheet(name); err != nil {
		logging.LogError("Failed to create sheet", err,
			"sheet_name", name,
			"ip", ip)
		return err
	}
	return nil
}

// deleteSheetSafe safely deletes a sheet with error handling
func deleteSheetSafe(f *excelize.File, name, ip string) {
	if err := f.DeleteSheet(name); err != nil {
		logging.LogError("Failed to delete sheet", err,
			"sheet_name", name,
			"ip", ip)
		// Non-critical error, continue
	}
}

// writeResponseSafe safely writes response with error handling
func writeResponseSafe(w http.ResponseWriter, buffer *bytes.Buffer, ip string) {
	if _, err := w.Write(buffer.Bytes()); err != nil {
		logging.LogError("Failed to write response", err, "ip", ip)
		// Response already started, can't send error status
	}
}

// sanitizeCSVField prevents CSV injection and properly escapes fields
func sanitizeCSVField(field string) string {
	// Prevent formula injection: prefix dangerous first characters
	if len(field) > 0 {
		first := field[0]
		if first == '=' || first == '+' || first == '-' || first == '@' || first == '\t' || first == '\r' {
			field = "'" + field
		}
	}
	// Properly quote fields containing commas, quotes, or newlines
	if strings.ContainsAny(field, ",\"\n") {
		field = "\"" + strings.ReplaceAll(field, "\"", "\"\"") + "\""
	}
	return field
}

// setDownloadHeaders sets common security and caching headers for downloads
func setDownloadHeaders(w http.ResponseWriter, contentType, filename string) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
}

// HandleRecordsCSV serves both admin tables as one CSV file.
func HandleRecordsCSV(w http.ResponseWriter, r *http.Request, records models.AdminRecordSet) {
	start := time.Now()
	ip := security.GetClientIP(r)

	logging.LogInfo("Admin records CSV download requested", "ip", ip)

	var buffer bytes.Buffer

	// Login records section
	buffer.WriteString("LOGIN RECORDS\n")
	buffer.WriteString("ID,Username,Login Time,IP Address\n")
	for _, rec := range records.Logins {
		line := fmt.Sprintf("%d,%s,%s,%s\n",
			rec.ID,
			sanitizeCSVField(rec.Username),
			sanitizeCSVField(rec.LoginTime),
			sanitizeCSVField(rec.IPAddress))
		buffer.WriteString(line)
	}

	// Empty line separator
	buffer.WriteString("\n")

	// Prediction records section
	buffer.WriteString("PREDICTION RECORDS\n")
	buffer.WriteString("ID,Username,Timestamp,Class 12 %,Stream,Result %,Model\n")
	for _, rec := range records.Predictions {
		line := fmt.Sprintf("%d,%s,%s,%s,%s,%s,%s\n",
			rec.ID,
			sanitizeCSVField(rec.Username),
			sanitizeCSVField(rec.Timestamp),
			sanitizeCSVField(rec.Class12Percentage),
			sanitizeCSVField(rec.Stream),
			sanitizeCSVField(rec.ResultPercentage),
			sanitizeCSVField(rec.ModelUsed))
		buffer.WriteString(line)
	}

	setDownloadHeaders(w, "text/csv", "admin_records.csv")
	writeResponseSafe(w, &buffer, ip)

	duration := time.Since(start)
	logging.LogInfo("Admin records CSV download completed",
		"size_bytes", buffer.Len(),
		"duration_ms", duration.Milliseconds(),
		"login_count", len(records.Logins),
		"prediction_count", len(records.Predictions),
		"ip", ip)
}

// HandleRecordsExcel serves both admin tables as an Excel workbook with one
// sheet per table.
func HandleRecordsExcel(w http.ResponseWriter, r *http.Request, records models.AdminRecordSet) {
	start := time.Now()
	ip := security.GetClientIP(r)

	logging.LogInfo("Admin records Excel download requested", "ip", ip)

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			logging.LogError("Failed to close Excel file", err, "ip", ip)
		}
	}()

	if err := writeLoginSheet(f, records.Logins, ip); err != nil {
		http.Error(w, "Failed to generate Excel file", http.StatusInternalServerError)
		return
	}
	if err := writePredictionSheet(f, records.Predictions, ip); err != nil {
		http.Error(w, "Failed to generate Excel file", http.StatusInternalServerError)
		return
	}
	deleteSheetSafe(f, "Sheet1", ip)

	buffer, err := f.WriteToBuffer()
	if err != nil {
		logging.LogError("Failed to serialize Excel file", err, "ip", ip)
		http.Error(w, "Failed to generate Excel file", http.StatusInternalServerError)
		return
	}

	setDownloadHeaders(w,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"admin_records.xlsx")
	writeResponseSafe(w, buffer, ip)

	duration := time.Since(start)
	logging.LogInfo("Admin records Excel download completed",
		"size_bytes", buffer.Len(),
		"duration_ms", duration.Milliseconds(),
		"login_count", len(records.Logins),
		"prediction_count", len(records.Predictions),
		"ip", ip)
}

func writeLoginSheet(f *excelize.File, logins []models.LoginRecord, ip string) error {
	const sheet = "Logins"
	if err := createSheetSafe(f, sheet, ip); err != nil {
		return err
	}

	headers := []string{"ID", "Username", "Login Time", "IP Address"}
	for col, header := range headers {
		axis, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := setCellValueSafe(f, sheet, axis, header, ip); err != nil {
			return err
		}
	}

	for row, rec := range logins {
		values := []interface{}{rec.ID, rec.Username, rec.LoginTime, rec.IPAddress}
		for col, value := range values {
			axis, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := setCellValueSafe(f, sheet, axis, value, ip); err != nil {
				return err
			}
		}
	}
	return nil
}

func writePredictionSheet(f *excelize.File, predictions []models.PredictionRecord, ip string) error {
	const sheet = "Predictions"
	if err := createSheetSafe(f, sheet, ip); err != nil {
		return err
	}

	headers := []string{"ID", "Username", "Timestamp", "Class 12 %", "Stream", "Result %", "Model"}
	for col, header := range headers {
		axis, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := setCellValueSafe(f, sheet, axis, header, ip); err != nil {
			return err
		}
	}

	for row, rec := range predictions {
		values := []interface{}{
			rec.ID, rec.Username, rec.Timestamp,
			rec.Class12Percentage, rec.Stream, rec.ResultPercentage, rec.ModelUsed,
		}
		for col, value := range values {
			axis, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := setCellValueSafe(f, sheet, axis, value, ip); err != nil {
				return err
			}
		}
	}
	return nil
}
