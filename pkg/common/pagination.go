package common

import (
	"net/http"
	"strconv"

	"meterhub-backend/application/ports"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ExtractListOptions reads cursor pagination parameters from the request
// query string: status, page_size, token, order.
func ExtractListOptions(r *http.Request) ports.ListOptions {
	opts := ports.ListOptions{
		PageSize: defaultPageSize,
		Forward:  true,
	}

	query := r.URL.Query()

	if status := query.Get("status"); status != "" {
		opts.StatusPrefix = status
	}

	if pageSize := query.Get("page_size"); pageSize != "" {
		if ps, err := strconv.Atoi(pageSize); err == nil && ps > 0 {
			if ps > maxPageSize {
				ps = maxPageSize
			}
			opts.PageSize = int32(ps)
		}
	}

	opts.Token = query.Get("token")

	if order := query.Get("order"); order == "desc" {
		opts.Forward = false
	}

	return opts
}

// PageResponse is the wire shape of a paginated listing.
type PageResponse struct {
	Items     interface{} `json:"items"`
	NextToken string      `json:"next_token,omitempty"`
}
