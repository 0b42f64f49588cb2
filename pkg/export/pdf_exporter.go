package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

// PDFExporter renders datasets and putaway slips as PDF documents.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with an optional title and table body.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, strings.ToUpper(title), "", 1, "C", false, 0, "")
		pdf.Ln(5)
	}

	pdf.SetFont("Arial", "B", 10)
	colWidth := 190.0 / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			value := row[header]
			pdf.CellFormat(colWidth, 7, value, "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// PutawaySlip describes the tracking artifact printed at final approval.
type PutawaySlip struct {
	TrackingCode string
	QueueItemID  string
	ProductName  string
	VendorID     string
	Location     string
	CompletedBy  string
	CompletedAt  string
}

// RenderPutawaySlip produces the slip handed to warehouse staff when an item
// completes verification.
func (e *PDFExporter) RenderPutawaySlip(slip PutawaySlip) ([]byte, error) {
	if slip.TrackingCode == "" {
		return nil, fmt.Errorf("putaway slip requires a tracking code")
	}
	pdf := gofpdf.New("P", "mm", "A5", "")
	pdf.SetMargins(12, 15, 12)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 12, "PUTAWAY SLIP", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Courier", "B", 20)
	pdf.CellFormat(0, 14, slip.TrackingCode, "1", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	rows := [][2]string{
		{"Queue item", slip.QueueItemID},
		{"Product", slip.ProductName},
		{"Vendor", slip.VendorID},
		{"Location", slip.Location},
		{"Completed by", slip.CompletedBy},
		{"Completed at", slip.CompletedAt},
	}
	for _, row := range rows {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(40, 8, row[0], "", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 8, row[1], "", 1, "", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render putaway slip: %w", err)
	}
	return buf.Bytes(), nil
}
