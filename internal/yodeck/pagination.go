// Screenline - Digital Out-of-Home Screen Network Operations
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/screenline

package yodeck

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// ListAll drains an offset/limit paginated endpoint by following each page's
// next link. It stops at the first page without next, or at the first failed
// page; in that case the results gathered so far are returned with the error.
func ListAll[T any](ctx context.Context, c *Client, path string, query url.Values) ([]T, error) {
	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	if q.Get("limit") == "" {
		q.Set("limit", strconv.Itoa(c.pageSize))
	}
	if q.Get("offset") == "" {
		q.Set("offset", "0")
	}

	req := Request{Method: http.MethodGet, Path: path, Query: q, Endpoint: path}
	var all []T
	seen := map[string]bool{}
	for {
		var page Page[T]
		if err := c.Do(ctx, req, &page); err != nil {
			return all, err
		}
		all = append(all, page.Results...)

		// A repeated cursor would loop forever.
		if page.Next == "" || seen[page.Next] {
			return all, nil
		}
		seen[page.Next] = true
		req = Request{Method: http.MethodGet, URL: page.Next, Endpoint: path}
	}
}

func itoa(n int) string { return strconv.Itoa(n) }
