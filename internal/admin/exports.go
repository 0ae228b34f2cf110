package admin

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gatepass-hq/gatepass/internal/permits"
	"github.com/gatepass-hq/gatepass/internal/platform/httpx"
)

const (
	csvFlushEvery   = 200
	csvBufferSize   = 32 * 1024
	exportBatchSize = 500
	exportMaxRows   = 10000
)

var exportHeaders = []string{"Employee", "Code", "Grade", "Department", "Date", "Exit", "Return", "Destination", "Reason", "Status", "Rejection Reason"}

var exportPrinter = message.NewPrinter(language.English)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	if s == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if !strings.HasSuffix(line, "\r\n") {
		line = strings.TrimSuffix(line, "\n")
		line += "\r\n"
	}
	if _, err := s.buf.WriteString(line); err != nil {
		return err
	}
	return nil
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

// Flush drains buffered rows to the underlying writer.
func (s *csvStreamer) Flush() error {
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	s.pendingLines = 0
	return s.buf.Flush()
}

func (h *Handler) exportRows(ctx context.Context, filters permits.ListFilters) ([]permits.Permit, error) {
	scope := permits.Scope{Grades: permits.AllGrades()}
	var all []permits.Permit
	for offset := 0; offset < exportMaxRows; offset += exportBatchSize {
		batch, total, err := h.permits.List(ctx, scope, filters, exportBatchSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, batch...)
		if len(all) >= total || len(batch) == 0 {
			break
		}
	}
	return all, nil
}

func exportRow(p permits.Permit) []string {
	return []string{
		p.EmployeeName,
		p.EmployeeCode,
		string(p.EmployeeGrade),
		p.DepartmentName,
		p.Date.Format("2006-01-02"),
		p.ExitTime,
		p.ReturnTime,
		p.Destination,
		p.Reason,
		string(p.Status),
		p.RejectionReason,
	}
}

func (h *Handler) handleExportCSV(w http.ResponseWriter, r *http.Request) {
	filters, err := permits.ParseFilters(r.URL.Query())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid filter", err.Error())
		return
	}
	rows, err := h.exportRows(r.Context(), filters)
	if err != nil {
		h.logger.Error("export csv", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "internal error", "something went wrong")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="permit-register.csv"`)

	streamer := newCSVStreamer(w)
	if err := streamer.writeComment(exportPrinter.Sprintf("# Exit permit register, %d rows, generated %s", len(rows), h.now().UTC().Format("2006-01-02 15:04"))); err != nil {
		h.logger.Error("export csv header", slog.Any("error", err))
		return
	}
	if err := streamer.writeRow(exportHeaders); err != nil {
		h.logger.Error("export csv header row", slog.Any("error", err))
		return
	}
	for _, p := range rows {
		if err := streamer.writeRow(exportRow(p)); err != nil {
			h.logger.Error("export csv row", slog.Any("error", err))
			return
		}
	}
	if err := streamer.Flush(); err != nil {
		h.logger.Error("export csv flush", slog.Any("error", err))
		return
	}
	h.recordExport(r.Context(), "csv", len(rows))
}

func (h *Handler) handleExportXLSX(w http.ResponseWriter, r *http.Request) {
	filters, err := permits.ParseFilters(r.URL.Query())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid filter", err.Error())
		return
	}
	rows, err := h.exportRows(r.Context(), filters)
	if err != nil {
		h.logger.Error("export xlsx", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "internal error", "something went wrong")
		return
	}

	f := excelize.NewFile()
	defer func() {
		if err := f.Close(); err != nil {
			h.logger.Warn("close workbook", slog.Any("error", err))
		}
	}()
	sheet := "Sheet1"
	for col, header := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			h.logger.Error("export xlsx header", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "internal error", "something went wrong")
			return
		}
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			h.logger.Error("export xlsx header", slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "internal error", "something went wrong")
			return
		}
	}
	for i, p := range rows {
		for col, value := range exportRow(p) {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				h.logger.Error("export xlsx cell", slog.Any("error", err))
				httpx.Problem(w, http.StatusInternalServerError, "internal error", "something went wrong")
				return
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				h.logger.Error("export xlsx cell", slog.Any("error", err))
				httpx.Problem(w, http.StatusInternalServerError, "internal error", "something went wrong")
				return
			}
		}
	}
	f.SetSheetName(sheet, "Permits")

	buf, err := f.WriteToBuffer()
	if err != nil {
		h.logger.Error("export xlsx write", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "internal error", "something went wrong")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="permit-register.xlsx"`)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("export xlsx stream", slog.Any("error", err))
		return
	}
	h.recordExport(r.Context(), "xlsx", len(rows))
}

func (h *Handler) handleExportPDF(w http.ResponseWriter, r *http.Request) {
	if h.pdf == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "exports unavailable", "pdf rendering is not configured")
		return
	}
	filters, err := permits.ParseFilters(r.URL.Query())
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "invalid filter", err.Error())
		return
	}
	rows, err := h.exportRows(r.Context(), filters)
	if err != nil {
		h.logger.Error("export pdf", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "internal error", "something went wrong")
		return
	}

	pdf, err := h.pdf.RenderPermitRegister(r.Context(), rows, h.now().UTC())
	if err != nil {
		h.logger.Error("render pdf", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "exports unavailable", "pdf rendering failed")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `attachment; filename="permit-register.pdf"`)
	if _, err := w.Write(pdf); err != nil {
		h.logger.Warn("export pdf stream", slog.Any("error", err))
		return
	}
	h.recordExport(r.Context(), "pdf", len(rows))
}
