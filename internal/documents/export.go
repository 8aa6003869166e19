package documents

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

var exportHeader = []string{
	"Number", "Type", "Status", "Company ID", "Client",
	"Subtotal", "Tax", "Discount", "Total", "Created",
}

// WriteCSV serialises documents to a CSV representation.
func WriteCSV(w io.Writer, docs []Document) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write(exportHeader); err != nil {
		return err
	}
	for _, doc := range docs {
		if err := writer.Write([]string{
			doc.Number,
			string(doc.DocType),
			string(doc.Status),
			strconv.FormatInt(doc.CompanyID, 10),
			doc.ClientName,
			formatFloat(doc.Subtotal),
			formatFloat(doc.TaxAmount),
			formatFloat(doc.DiscountAmount),
			formatFloat(doc.Total),
			doc.CreatedAt.Format("2006-01-02"),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteXLSX emits documents as a single-sheet workbook.
func WriteXLSX(w io.Writer, docs []Document) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Documents"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	for col, title := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return err
		}
	}
	for row, doc := range docs {
		values := []any{
			doc.Number,
			string(doc.DocType),
			string(doc.Status),
			doc.CompanyID,
			doc.ClientName,
			doc.Subtotal,
			doc.TaxAmount,
			doc.DiscountAmount,
			doc.Total,
			doc.CreatedAt.Format("2006-01-02"),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return f.Write(w)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// ExportFilename builds the download name for a document bundle.
func ExportFilename(docType string, format string) string {
	if docType == "" {
		docType = "documents"
	}
	return fmt.Sprintf("%s.%s", docType, format)
}
