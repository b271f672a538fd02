package httpadapter

import (
	"net/http"

	"github.com/kirillkom/property-docs/internal/core/domain"
)

func mapErrorToHTTPStatus(err error) int {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrDuplicateRejected), domain.IsKind(err, domain.ErrDecisionRequired),
		domain.IsKind(err, domain.ErrDocumentReplaced):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorCode is the stable machine-readable counterpart of mapErrorToHTTPStatus.
func errorCode(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid_input"
	case domain.IsKind(err, domain.ErrUnauthorized):
		return "unauthorized"
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return "not_found"
	case domain.IsKind(err, domain.ErrDuplicateRejected):
		return "duplicate_rejected"
	case domain.IsKind(err, domain.ErrDecisionRequired):
		return "decision_required"
	case domain.IsKind(err, domain.ErrDocumentReplaced):
		return "document_replaced"
	case domain.IsKind(err, domain.ErrTemporary):
		return "temporarily_unavailable"
	default:
		return "internal_error"
	}
}
