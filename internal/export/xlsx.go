// Package export writes pipeline output as an xlsx workbook.
package export

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/sells-group/acs-cli/internal/model"
)

// WriteWorkbook writes tagged records and their category summary to an xlsx
// file with a Records sheet and a Summary sheet. ratioColumn is the header
// for the derived metric; variable columns are emitted in sorted order so
// the layout is stable across runs.
func WriteWorkbook(path, ratioColumn string, records []model.TaggedRecord, summaries []model.CategorySummary) error {
	f := xlsx.NewFile()

	if err := writeRecords(f, ratioColumn, records); err != nil {
		return err
	}
	if err := writeSummary(f, summaries); err != nil {
		return err
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save workbook %s", path)
	}

	zap.L().Info("export: workbook written",
		zap.String("path", path),
		zap.Int("records", len(records)),
		zap.Int("summaries", len(summaries)),
	)
	return nil
}

func writeRecords(f *xlsx.File, ratioColumn string, records []model.TaggedRecord) error {
	sheet, err := f.AddSheet("Records")
	if err != nil {
		return eris.Wrap(err, "export: add records sheet")
	}

	// Union of variable columns across records, sorted for a stable layout.
	colSet := make(map[string]bool)
	for _, r := range records {
		for name := range r.Columns {
			colSet[name] = true
		}
	}
	columns := make([]string, 0, len(colSet))
	for name := range colSet {
		columns = append(columns, name)
	}
	sort.Strings(columns)

	header := sheet.AddRow()
	header.AddCell().SetString("dimension")
	header.AddCell().SetString("geography_id")
	for _, name := range columns {
		header.AddCell().SetString(name)
	}
	header.AddCell().SetString(ratioColumn)

	for _, r := range records {
		row := sheet.AddRow()
		row.AddCell().SetString(r.Dimension)
		row.AddCell().SetString(r.GeographyID)
		for _, name := range columns {
			if v, ok := r.Columns[name]; ok {
				row.AddCell().SetFloat(v)
			} else {
				row.AddCell()
			}
		}
		if r.RatioUndefined {
			row.AddCell().SetString("undefined")
		} else {
			row.AddCell().SetFloat(r.Ratio)
		}
	}

	return nil
}

func writeSummary(f *xlsx.File, summaries []model.CategorySummary) error {
	sheet, err := f.AddSheet("Summary")
	if err != nil {
		return eris.Wrap(err, "export: add summary sheet")
	}

	header := sheet.AddRow()
	header.AddCell().SetString("category")
	header.AddCell().SetString("count")
	header.AddCell().SetString("percentage")

	for _, s := range summaries {
		row := sheet.AddRow()
		row.AddCell().SetString(s.Category)
		row.AddCell().SetInt(s.Count)
		row.AddCell().SetFloat(s.Percentage)
	}

	return nil
}
