package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"coach-backend/internal/query"
)

// ParseListParams reads list params from the query string:
//
//	page, limit, sortBy, sortOrder, search, searchFields=a,b, filter[field]=value
//
// sort=-name is accepted as shorthand for sortBy=name&sortOrder=desc.
// Values are passed on unchecked; the engine sanitizes them.
func ParseListParams(c *fiber.Ctx) query.Params {
	p := query.Params{
		Page:      c.QueryInt("page", 0),
		Limit:     c.QueryInt("limit", 0),
		SortBy:    c.Query("sortBy"),
		SortOrder: query.SortOrder(strings.ToLower(c.Query("sortOrder"))),
		Search:    c.Query("search"),
	}
	if p.SortBy == "" {
		if sort := strings.TrimSpace(c.Query("sort")); sort != "" {
			p.SortBy = sort
			p.SortOrder = query.Asc
			if strings.HasPrefix(sort, "-") {
				p.SortBy = sort[1:]
				p.SortOrder = query.Desc
			}
		}
	}
	if fields := c.Query("searchFields"); fields != "" {
		for _, f := range strings.Split(fields, ",") {
			if f = strings.TrimSpace(f); f != "" {
				p.SearchFields = append(p.SearchFields, f)
			}
		}
	}
	for key, val := range c.Queries() {
		if !strings.HasPrefix(key, "filter[") || !strings.HasSuffix(key, "]") {
			continue
		}
		if p.Filters == nil {
			p.Filters = make(map[string]any)
		}
		p.Filters[key[7:len(key)-1]] = val
	}
	return p
}
