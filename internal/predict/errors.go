package predict

import (
	"errors"

	"github.com/civiclens/civiclens-go/internal/apperr"
	"github.com/civiclens/civiclens-go/internal/classify"
)

// AppError maps a prediction failure onto the API error taxonomy: empty text
// is a validation error, a collaborator failure is an upstream error naming
// the collaborator.
func AppError(err error) *apperr.Error {
	if errors.Is(err, ErrEmptyText) {
		return apperr.Validation(err.Error())
	}
	var collab *CollaboratorError
	if errors.As(err, &collab) {
		msg := collab.Collaborator + " classifier failed"
		if errors.Is(collab.Err, classify.ErrMalformedResult) {
			msg = collab.Collaborator + " classifier returned malformed output"
		}
		return apperr.External(msg, err).WithContext("collaborator", collab.Collaborator)
	}
	return apperr.As(err)
}
