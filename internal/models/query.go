package models

import "fmt"

// QueryRequest is a retrieval request against one collection, or the default one when DocumentID is empty.
type QueryRequest struct {
	Query      string `json:"query"`
	DocumentID string `json:"document_id,omitempty"`
	K          int    `json:"k,omitempty"`
}

// Validate ensures the query is non-empty and clamps K into [1, maxK], using defaultK when unset.
func (q *QueryRequest) Validate(defaultK, maxK int) error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.K <= 0 {
		q.K = defaultK
	}
	if maxK > 0 && q.K > maxK {
		q.K = maxK
	}
	return nil
}
