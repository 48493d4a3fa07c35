package server

import "github.com/sanonone/pageselect/pkg/core/types"

// SelectionResponse is returned by POST /selection.
type SelectionResponse struct {
	Pages []*types.Page `json:"pages"`
	Count int           `json:"count"`

	// Filter is the executed conjunction in human-readable form.
	Filter string `json:"filter"`
}

// ImportResponse is returned by POST /pages/import.
type ImportResponse struct {
	Imported int `json:"imported"`
}

// StatusResponse acknowledges commands that return no data.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}
