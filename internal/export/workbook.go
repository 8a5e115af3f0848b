// Package export renders stored invoice packages as XLSX workbooks.
package export

import (
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/telcoingest/invoice-pipeline/internal/application/port"
	"github.com/telcoingest/invoice-pipeline/internal/domain/invoice"
)

// Sheet names, in workbook order
const (
	SheetInvoice  = "Invoice"
	SheetNumbers  = "Numbers"
	SheetCharges  = "Charges"
	SheetWarnings = "Warnings"
)

// Service reads packages back and produces XLSX bytes
type Service struct {
	reader port.PackageReader
	logger *zap.Logger
}

// NewService creates an export service
func NewService(reader port.PackageReader, logger *zap.Logger) *Service {
	return &Service{reader: reader, logger: logger}
}

// PackageXLSX returns the workbook for one stored package and a download name
func (s *Service) PackageXLSX(ctx context.Context, id string) ([]byte, string, error) {
	start := time.Now()

	sp, err := s.reader.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	f, err := Build(sp)
	if err != nil {
		return nil, "", err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("Package exported",
		zap.String("id", id),
		zap.Int("numbers", len(sp.Package.Numbers)),
		zap.Int64("elapsed_ms", time.Since(start).Milliseconds()))
	return buf.Bytes(), Filename(sp), nil
}

// Filename is the suggested download name, e.g. maxis-812345678.xlsx
func Filename(sp *port.StoredPackage) string {
	name := sp.InvoiceNumber
	if name == "" {
		name = sp.ID
	}
	return fmt.Sprintf("%s-%s.xlsx", sp.Vendor, name)
}

// Build lays out a stored package over four sheets. The caller closes the file.
func Build(sp *port.StoredPackage) (*excelize.File, error) {
	if sp == nil || sp.Package == nil {
		return nil, fmt.Errorf("export: package is required")
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetInvoice); err != nil {
		_ = f.Close()
		return nil, err
	}
	for _, name := range []string{SheetNumbers, SheetCharges, SheetWarnings} {
		if _, err := f.NewSheet(name); err != nil {
			_ = f.Close()
			return nil, err
		}
	}

	w := &sheetWriter{f: f}
	writeInvoice(w, sp)
	writeNumbers(w, sp)
	writeCharges(w, sp.Package)
	writeWarnings(w, sp)
	if w.err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("export: %w", w.err)
	}

	_ = f.SetColWidth(SheetInvoice, "A", "A", 18)
	_ = f.SetColWidth(SheetInvoice, "B", "B", 40)
	_ = f.SetColWidth(SheetNumbers, "A", "A", 16)
	_ = f.SetColWidth(SheetNumbers, "B", "D", 28)
	_ = f.SetColWidth(SheetCharges, "A", "B", 24)
	_ = f.SetColWidth(SheetWarnings, "A", "C", 20)
	_ = f.SetColWidth(SheetWarnings, "D", "D", 60)

	idx, _ := f.GetSheetIndex(SheetInvoice)
	f.SetActiveSheet(idx)
	return f, nil
}

// sheetWriter keeps the first cell error so row writers stay linear
type sheetWriter struct {
	f   *excelize.File
	err error
}

func (w *sheetWriter) row(sheet string, row int, values ...any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		w.err = err
		return
	}
	w.err = w.f.SetSheetRow(sheet, cell, &values)
}

func writeInvoice(w *sheetWriter, sp *port.StoredPackage) {
	h := sp.Package.Invoice
	rows := [][]any{
		{"Vendor", h.Vendor.String()},
		{"Invoice Number", h.InvoiceNumber},
		{"Account Number", h.AccountNumber},
		{"Bill Date", h.BillDate.String()},
		{"Period Start", h.PeriodStart.String()},
		{"Period End", h.PeriodEnd.String()},
		{"Currency", h.Currency},
		{"Subtotal", amount(h.Subtotal)},
		{"Tax", amount(h.TaxTotal)},
		{"Grand Total", amount(h.GrandTotal)},
		{"Source File", sp.Filename},
		{"Parser Version", sp.ParserVersion},
		{"Fingerprint", sp.Fingerprint},
		{"Persisted At", sp.CreatedAt.UTC().Format(time.RFC3339)},
	}
	if sp.MappedAt != nil {
		rows = append(rows, []any{"Mapped At", sp.MappedAt.UTC().Format(time.RFC3339)})
	}
	for i, r := range rows {
		w.row(SheetInvoice, i+1, r...)
	}
}

func writeNumbers(w *sheetWriter, sp *port.StoredPackage) {
	w.row(SheetNumbers, 1, "MSISDN", "Description", "Subscriber", "Org Unit", "Items", "Line Total")
	for i, n := range sp.Package.Numbers {
		w.row(SheetNumbers, i+2,
			n.MSISDN, n.Description, n.Subscriber, sp.OrgUnits[n.MSISDN],
			len(n.MonthlyItems)+len(n.DetailOfCharges), amount(n.LineTotal))
	}
}

func writeCharges(w *sheetWriter, pkg *invoice.Package) {
	w.row(SheetCharges, 1, "Category", "Label", "Amount")
	for i, c := range pkg.Charges {
		w.row(SheetCharges, i+2, c.Category.String(), c.Label, amount(c.Amount))
	}
}

func writeWarnings(w *sheetWriter, sp *port.StoredPackage) {
	w.row(SheetWarnings, 1, "Kind", "Scope", "Subject", "Message")
	for i, warn := range sp.Warnings {
		w.row(SheetWarnings, i+2, string(warn.Kind), warn.Scope, warn.Subject, warn.Message)
	}
}

func amount(m invoice.Money) float64 {
	v, _ := m.Float64()
	return v
}
