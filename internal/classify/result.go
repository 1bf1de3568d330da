package classify

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrMalformedResult is returned when a collaborator produces output that
// violates the result contract.
var ErrMalformedResult = errors.New("malformed classifier result")

// Result is the classification output shared by the sentiment and issue
// collaborators.
type Result struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Entity is one recognized entity span, in source order.
type Entity struct {
	Token string `json:"token"`
	Tag   string `json:"tag"`
}

// Validate checks that the label is present and the confidence is a finite
// value in [0,1].
func (r Result) Validate() error {
	if strings.TrimSpace(r.Label) == "" {
		return fmt.Errorf("%w: empty label", ErrMalformedResult)
	}
	if math.IsNaN(r.Confidence) || r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrMalformedResult, r.Confidence)
	}
	return nil
}

// ValidateEntities checks every entity has a token and a tag.
func ValidateEntities(entities []Entity) error {
	for i, e := range entities {
		if strings.TrimSpace(e.Token) == "" || strings.TrimSpace(e.Tag) == "" {
			return fmt.Errorf("%w: entity %d has empty token or tag", ErrMalformedResult, i)
		}
	}
	return nil
}
