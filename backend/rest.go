package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

const (
	acceptSingleObject = "application/vnd.pgrst.object+json"
	acceptOpenAPI      = "application/openapi+json"
)

// Query is a read against one table of the backend's row API. Row level
// security is enforced by the backend using the session's access token.
type Query struct {
	client *Client
	table  string
	params url.Values
}

// From starts a read against table.
func (c *Client) From(table string) *Query {
	return &Query{client: c, table: table, params: url.Values{}}
}

// Select sets the column list, "*" for all columns.
func (q *Query) Select(columns string) *Query {
	q.params.Set("select", columns)
	return q
}

// Eq filters rows where column equals value.
func (q *Query) Eq(column, value string) *Query {
	q.params.Add(column, "eq."+value)
	return q
}

func (q *Query) Limit(n int) *Query {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

// Single decodes exactly one row into dst. Zero or several matching rows
// produce an *APIError that matches errors.ErrNotFound.
func (q *Query) Single(ctx context.Context, dst any) error {
	return q.client.do(ctx, request{
		operation: "select_" + q.table,
		method:    http.MethodGet,
		path:      restPath + "/" + url.PathEscape(q.table),
		query:     q.params,
		bearer:    q.client.accessToken(ctx),
		accept:    acceptSingleObject,
	}, dst)
}

// Execute decodes all matching rows into dst, which must be a pointer to a slice.
func (q *Query) Execute(ctx context.Context, dst any) error {
	return q.client.do(ctx, request{
		operation: "select_" + q.table,
		method:    http.MethodGet,
		path:      restPath + "/" + url.PathEscape(q.table),
		query:     q.params,
		bearer:    q.client.accessToken(ctx),
	}, dst)
}

// Schema returns the row API's OpenAPI description of the exposed tables.
func (c *Client) Schema(ctx context.Context) ([]byte, error) {
	var doc []byte
	err := c.do(ctx, request{
		operation: "schema",
		method:    http.MethodGet,
		path:      restPath + "/",
		accept:    acceptOpenAPI,
	}, &doc)
	return doc, err
}
