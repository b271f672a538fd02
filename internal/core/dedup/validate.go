package dedup

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/kirillkom/property-docs/internal/core/domain"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// ValidateIncoming rejects descriptors an upstream bug would produce: no checksum, no
// filename, confidences outside [0,1] or an inverted period.
func ValidateIncoming(in domain.IncomingFile) error {
	if err := validate.Struct(in); err != nil {
		return domain.WrapError(domain.ErrInvalidInput, "validate incoming file", describe(err))
	}
	if strings.TrimSpace(in.Checksum) == "" || strings.TrimSpace(in.Filename) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "validate incoming file", errors.New("checksum and filename must not be blank"))
	}
	return nil
}

// ValidateCandidates requires an id on every candidate so a winner can be reported.
func ValidateCandidates(candidates []domain.CandidateDocument) error {
	for i, c := range candidates {
		if strings.TrimSpace(c.ID) == "" {
			return domain.WrapError(domain.ErrInvalidInput, "validate candidates", fmt.Errorf("candidates[%d].id is required", i))
		}
		if err := validate.Var(c.OCRQuality, "omitempty,gte=0,lte=1"); err != nil {
			return domain.WrapError(domain.ErrInvalidInput, "validate candidates", fmt.Errorf("candidates[%d].ocr_quality: %w", i, describe(err)))
		}
		if c.Period != nil {
			if err := validate.Struct(c.Period); err != nil {
				return domain.WrapError(domain.ErrInvalidInput, "validate candidates", fmt.Errorf("candidates[%d].period: %w", i, describe(err)))
			}
		}
	}
	return nil
}

func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if idx := strings.Index(field, "."); idx >= 0 {
			field = field[idx+1:]
		}
		if field == "" {
			field = fe.Field()
		}
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		parts = append(parts, fmt.Sprintf("%s: failed %s", field, rule))
	}
	return errors.New(strings.Join(parts, "; "))
}
