package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode"
)

// Query builds a request against one table. Filter methods mutate and
// return the receiver; a Query must not be reused after a terminal call.
type Query struct {
	c      *Client
	table  string
	params url.Values
	order  []string
}

// Select sets the column list. Relational embeds use the table API syntax,
// e.g. "*,qr_codes(location_description)". Whitespace is ignored.
func (q *Query) Select(cols string) *Query {
	q.params.Set("select", compactSelect(cols))
	return q
}

// Eq adds a column = value filter.
func (q *Query) Eq(col string, v any) *Query {
	q.params.Add(col, "eq."+formatValue(v))
	return q
}

// Order appends an ordering term.
func (q *Query) Order(col string, ascending bool) *Query {
	dir := "desc"
	if ascending {
		dir = "asc"
	}
	q.order = append(q.order, col+"."+dir)
	return q
}

// Limit caps the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.params.Set("limit", strconv.Itoa(n))
	return q
}

// Execute runs a read and decodes the row array into dest.
func (q *Query) Execute(ctx context.Context, dest any) error {
	body, _, err := q.send(ctx, http.MethodGet, nil, nil)
	if err != nil {
		return err
	}
	return decodeInto(body, dest)
}

// Single reads exactly one row. No match is an *APIError with code
// CodeNoRows (see IsNotFound).
func (q *Query) Single(ctx context.Context, dest any) error {
	h := http.Header{"Accept": {"application/vnd.pgrst.object+json"}}
	body, _, err := q.send(ctx, http.MethodGet, h, nil)
	if err != nil {
		return err
	}
	return decodeInto(body, dest)
}

// MaybeSingle reads at most one row and reports whether one was found.
func (q *Query) MaybeSingle(ctx context.Context, dest any) (bool, error) {
	var rows []json.RawMessage
	if err := q.Execute(ctx, &rows); err != nil {
		return false, err
	}
	switch len(rows) {
	case 0:
		return false, nil
	case 1:
		return true, decodeInto(rows[0], dest)
	default:
		return false, &APIError{
			Code:    CodeNoRows,
			Message: "JSON object requested, multiple (or no) rows returned",
			Details: fmt.Sprintf("The result contains %d rows", len(rows)),
			Status:  http.StatusNotAcceptable,
		}
	}
}

// Count returns the number of rows matching the filters.
func (q *Query) Count(ctx context.Context) (int, error) {
	h := http.Header{"Prefer": {"count=exact"}}
	if q.params.Get("select") == "" {
		q.params.Set("select", "*")
	}
	q.params.Set("limit", "0")
	_, hdr, err := q.send(ctx, http.MethodGet, h, nil)
	if err != nil {
		return 0, err
	}
	return parseContentRange(hdr.Get("Content-Range"))
}

// Insert writes row (a struct, map or slice of them). When dest is non-nil
// the written rows are decoded into it.
func (q *Query) Insert(ctx context.Context, row any, dest any) error {
	return q.write(ctx, http.MethodPost, row, dest, nil)
}

// Update patches every row matching the filters.
func (q *Query) Update(ctx context.Context, patch any, dest any) error {
	return q.write(ctx, http.MethodPatch, patch, dest, nil)
}

// Upsert inserts row or merges it into the row that conflicts on onConflict.
func (q *Query) Upsert(ctx context.Context, row any, onConflict string, dest any) error {
	if onConflict != "" {
		q.params.Set("on_conflict", onConflict)
	}
	return q.write(ctx, http.MethodPost, row, dest, []string{"resolution=merge-duplicates"})
}

func (q *Query) write(ctx context.Context, method string, row, dest any, prefer []string) error {
	ret := "return=minimal"
	if dest != nil {
		ret = "return=representation"
	}
	h := http.Header{"Prefer": {strings.Join(append(prefer, ret), ",")}}
	body, _, err := q.send(ctx, method, h, row)
	if err != nil {
		return err
	}
	return decodeInto(body, dest)
}

func (q *Query) send(ctx context.Context, method string, h http.Header, body any) ([]byte, http.Header, error) {
	params := url.Values{}
	for k, v := range q.params {
		params[k] = v
	}
	if len(q.order) > 0 {
		params.Set("order", strings.Join(q.order, ","))
	}

	status, raw, hdr, err := q.c.do(ctx, request{
		method: method,
		path:   "/rest/v1/" + url.PathEscape(q.table),
		query:  params,
		header: h,
		body:   body,
		bearer: q.c.bearer(),
	})
	if err != nil {
		return nil, nil, err
	}
	if status >= 300 {
		return nil, nil, decodeAPIError(status, raw)
	}
	return raw, hdr, nil
}

func compactSelect(cols string) string {
	var b strings.Builder
	quoted := false
	for _, r := range cols {
		if r == '"' {
			quoted = !quoted
		}
		if !quoted && unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func formatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

// parseContentRange reads the total from "0-4/5" or "*/5".
func parseContentRange(h string) (int, error) {
	_, total, ok := strings.Cut(h, "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("no row count in Content-Range %q", h)
	}
	n, err := strconv.Atoi(total)
	if err != nil {
		return 0, fmt.Errorf("bad Content-Range %q: %w", h, err)
	}
	return n, nil
}
