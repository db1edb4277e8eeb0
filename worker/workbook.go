package worker

import (
	"fmt"
	"unicode/utf8"

	"github.com/jupark12/contract-extract/models"
	"github.com/xuri/excelize/v2"
)

const (
	contractSheet  = "Contract Data"
	documentsSheet = "Documents"
	failedSheet    = "Failed Files"

	maxColWidth = 50
)

// sheetLayout binds a workbook sheet to one section of models.ContractFields.
type sheetLayout struct {
	Name    string
	Section string
	Headers []string
}

var contractSheets = []sheetLayout{
	{contractSheet, SectionContractData, []string{
		"Contract No",
		"Contract Generated Date",
		"Bid / RA / PBP No",
		"Duration",
		"Amount of Contract (Including All Duties and Taxes INR)",
	}},
	{"Organisation Details", SectionOrganisation, []string{
		"Type", "Ministry", "Department", "Organisation Name", "Office Zone",
	}},
	{"Buyer Details", SectionBuyer, []string{
		"Designation", "Contact No.", "Email ID", "GSTIN", "Address",
	}},
	{"Financial Approval Details", SectionFinancialApproval, []string{
		"IFD Concurrence",
		"Designation of Administrative Approval",
		"Designation of Financial Approval",
	}},
	{"Paying Authority Details", SectionPayingAuthority, []string{
		"Role", "Payment Mode", "Designation", "Email ID", "GSTIN", "Address",
	}},
	{"Consignee Details", SectionConsignee, []string{
		"Contact", "Email ID", "GSTIN", "Address", "Service Description",
	}},
	{"Service Provider Details", SectionServiceProvider, []string{
		"GeM Seller ID",
		"Company Name",
		"Contact No.",
		"Email ID",
		"Address",
		"MSME Registration Number",
		"GSTIN",
		"MSME Status as verified by buyer",
		"MSE Social Category",
		"MSE Gender",
	}},
	{"Service Details", SectionServiceDetails, []string{
		"Service Start Date (latest by)",
		"Service End Date",
		"Category Name",
		"Billing Cycle",
		"District",
		"Zipcode",
		"Vehicle Type",
		"Type of car (Please select at least 3 options)",
	}},
}

var documentHeaders = []string{"File Name", "Title", "Pages", "Characters", "Excerpt"}

type workbookStyles struct {
	header int
	cell   int
}

func newWorkbookStyles(f *excelize.File) (workbookStyles, error) {
	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
	}

	header, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"4472C4"}, Pattern: 1},
		Border:    border,
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center", WrapText: true},
	})
	if err != nil {
		return workbookStyles{}, fmt.Errorf("xlsx style: %w", err)
	}

	cell, err := f.NewStyle(&excelize.Style{
		Border:    border,
		Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
	})
	if err != nil {
		return workbookStyles{}, fmt.Errorf("xlsx style: %w", err)
	}
	return workbookStyles{header: header, cell: cell}, nil
}

// WriteWorkbook writes one sheet per contract section with a row per
// processed document, a Documents sheet with per-file statistics, and a
// Failed Files sheet when some documents could not be read.
func WriteWorkbook(path string, docs []models.ExtractedDocument) error {
	f := excelize.NewFile()
	defer f.Close()

	styles, err := newWorkbookStyles(f)
	if err != nil {
		return err
	}

	var processed, failed []models.ExtractedDocument
	for _, doc := range docs {
		if doc.Processed() {
			processed = append(processed, doc)
		} else {
			failed = append(failed, doc)
		}
	}

	for i, layout := range contractSheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", layout.Name); err != nil {
				return fmt.Errorf("xlsx sheet: %w", err)
			}
		} else if _, err := f.NewSheet(layout.Name); err != nil {
			return fmt.Errorf("xlsx sheet: %w", err)
		}

		rows := make([][]any, 0, len(processed))
		for _, doc := range processed {
			row := []any{doc.FileName}
			for _, h := range layout.Headers {
				row = append(row, doc.Fields.Get(layout.Section, h))
			}
			rows = append(rows, row)
		}
		writeTable(f, styles, layout.Name, append([]string{"File Name"}, layout.Headers...), rows)
	}

	if _, err := f.NewSheet(documentsSheet); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	rows := make([][]any, 0, len(processed))
	for _, doc := range processed {
		rows = append(rows, []any{doc.FileName, doc.Title, doc.Pages, doc.CharCount, doc.Excerpt})
	}
	writeTable(f, styles, documentsSheet, documentHeaders, rows)

	if len(failed) > 0 {
		if _, err := f.NewSheet(failedSheet); err != nil {
			return fmt.Errorf("xlsx sheet: %w", err)
		}
		rows := make([][]any, 0, len(failed))
		for _, doc := range failed {
			rows = append(rows, []any{doc.FileName, doc.Err})
		}
		writeTable(f, styles, failedSheet, []string{"File Name", "Error"}, rows)
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// writeTable writes a styled header row and the data rows, then fits each
// column to its longest value up to maxColWidth.
func writeTable(f *excelize.File, styles workbookStyles, sheet string, headers []string, rows [][]any) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
		widths[i] = utf8.RuneCountInString(h)
	}
	last, _ := excelize.CoordinatesToCellName(len(headers), 1)
	_ = f.SetCellStyle(sheet, "A1", last, styles.header)

	for r, values := range rows {
		for i, v := range values {
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(i+1, r+2)
			_ = f.SetCellValue(sheet, cell, v)
			if n := utf8.RuneCountInString(fmt.Sprint(v)); i < len(widths) && n > widths[i] {
				widths[i] = n
			}
		}
	}
	if len(rows) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(headers), len(rows)+1)
		_ = f.SetCellStyle(sheet, "A2", last, styles.cell)
	}

	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheet, col, col, float64(min(w+2, maxColWidth)))
	}
}
