package handlers

import (
	"net/http"

	"github.com/civiclens/civiclens-go/internal/classify"
)

type LabelsHandler struct {
	taxonomy *classify.Taxonomy
}

func NewLabelsHandler(taxonomy *classify.Taxonomy) *LabelsHandler {
	return &LabelsHandler{taxonomy: taxonomy}
}

type labelsResponse struct {
	Groups []classify.Group `json:"groups"`
	Labels []string         `json:"labels"`
}

// List handles GET /v1/labels.
func (lh *LabelsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, labelsResponse{Groups: lh.taxonomy.Groups, Labels: lh.taxonomy.Labels()})
}
