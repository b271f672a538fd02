package xlsx

import (
	"bytes"
	"context"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/property-docs/internal/core/domain"
)

// Extractor flattens every sheet of a workbook into tab-separated lines.
// Each sheet counts as one page.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(ctx context.Context, src domain.Source) (domain.Extraction, error) {
	book, err := excelize.OpenReader(bytes.NewReader(src.Data))
	if err != nil {
		return domain.Extraction{}, domain.WrapError(domain.ErrInvalidInput, "open workbook", err)
	}
	defer book.Close()

	sheets := book.GetSheetList()
	lines := make([]string, 0, 64)
	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return domain.Extraction{}, err
		}
		rows, err := book.GetRows(sheet)
		if err != nil {
			return domain.Extraction{}, domain.WrapError(domain.ErrInvalidInput, "read sheet "+sheet, err)
		}
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			for _, cell := range row {
				if cell = strings.TrimSpace(cell); cell != "" {
					cells = append(cells, cell)
				}
			}
			if len(cells) > 0 {
				lines = append(lines, strings.Join(cells, "\t"))
			}
		}
	}

	return domain.Extraction{Text: strings.Join(lines, "\n"), PageCount: len(sheets)}, nil
}
