package plaintext

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kirillkom/property-docs/internal/core/domain"
)

type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

func (e *Extractor) Extract(_ context.Context, src domain.Source) (domain.Extraction, error) {
	if !utf8.Valid(src.Data) {
		return domain.Extraction{}, domain.WrapError(
			domain.ErrInvalidInput,
			"extract plain text",
			fmt.Errorf("not valid utf-8: %s", src.Filename),
		)
	}

	text := strings.TrimSpace(strings.TrimPrefix(string(src.Data), "\ufeff"))
	if text == "" {
		return domain.Extraction{}, nil
	}
	return domain.Extraction{Text: text, PageCount: 1}, nil
}
