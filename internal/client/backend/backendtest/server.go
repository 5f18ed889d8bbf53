// Package backendtest runs an in-memory stand-in for the hosted backend:
// enough of the auth and table APIs to exercise the client end to end.
// Relational embeds are not resolved; seed rows with the embedded objects
// already in place.
package backendtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Key is the API key the server expects.
const Key = "backendtest-anon-key"

var secret = []byte("backendtest-secret")

// primaryKeys maps table names to their key column.
var primaryKeys = map[string]string{
	"users":                "user_id",
	"security_officers":    "officer_id",
	"neighborhood_members": "member_id",
	"emergency_alerts":     "alert_id",
	"patrol_scans":         "scan_id",
	"qr_codes":             "qr_code_id",
	"community_posts":      "post_id",
	"community_comments":   "comment_id",
}

type Row = map[string]any

// Request is a recorded call.
type Request struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

type fault struct {
	status int
	body   string
	times  int
}

type account struct {
	id       string
	email    string
	password string
	metadata map[string]any
}

// Server is a fake backend. The zero value is not usable; call NewServer.
type Server struct {
	*httptest.Server

	// AutoConfirm makes sign-up return a session as well as the identity.
	AutoConfirm bool
	// RPCs handles /rest/v1/rpc/<name>; missing names answer 404.
	RPCs map[string]func(args Row) (any, int)

	mu        sync.Mutex
	tables    map[string][]Row
	accounts  map[string]*account
	refreshes map[string]string
	faults    map[string]*fault
	requests  []Request
}

// NewServer starts a fake backend. Close it when done.
func NewServer() *Server {
	s := &Server{
		RPCs:      map[string]func(Row) (any, int){},
		tables:    map[string][]Row{},
		accounts:  map[string]*account{},
		refreshes: map[string]string{},
		faults:    map[string]*fault{},
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	return s
}

// Seed appends rows to table.
func (s *Server) Seed(table string, rows ...Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.tables[table] = append(s.tables[table], clone(r))
	}
}

// Rows returns a copy of table.
func (s *Server) Rows(table string) []Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Row, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		out = append(out, clone(r))
	}
	return out
}

// AddAccount registers an auth identity and returns its id.
func (s *Server) AddAccount(email, password string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	s.accounts[strings.ToLower(email)] = &account{id: id, email: email, password: password}
	return id
}

// HasAccount reports whether an identity exists for email.
func (s *Server) HasAccount(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.accounts[strings.ToLower(email)]
	return ok
}

// Fail makes "METHOD /path" answer status with body. times <= 0 means
// until cleared with Fail(method, path, 0, "", 0).
func (s *Server) Fail(method, path string, status int, body string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	if status == 0 {
		delete(s.faults, key)
		return
	}
	s.faults[key] = &fault{status: status, body: body, times: times}
}

// Requests returns the calls received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Count returns how many calls matched method and path.
func (s *Server) Count(method, path string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Token issues an access token for id valid for ttl.
func Token(id, email string, ttl time.Duration) string {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   id,
		"email": email,
		"role":  "authenticated",
		"exp":   time.Now().Add(ttl).Unix(),
	})
	signed, err := tok.SignedString(secret)
	if err != nil {
		panic(err)
	}
	return signed
}

func (s *Server) serve(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	s.requests = append(s.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   string(body),
	})
	key := r.Method + " " + r.URL.Path
	f := s.faults[key]
	if f != nil && f.times > 0 {
		f.times--
		if f.times == 0 {
			delete(s.faults, key)
		}
	}
	s.mu.Unlock()

	if r.Header.Get("apikey") != Key {
		writeJSON(w, http.StatusUnauthorized, Row{"message": "Invalid API key"})
		return
	}
	if f != nil {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.body))
		return
	}

	switch {
	case strings.HasPrefix(r.URL.Path, "/auth/v1/"):
		s.serveAuth(w, r, body)
	case strings.HasPrefix(r.URL.Path, "/rest/v1/rpc/"):
		s.serveRPC(w, strings.TrimPrefix(r.URL.Path, "/rest/v1/rpc/"), body)
	case strings.HasPrefix(r.URL.Path, "/rest/v1/"):
		s.serveTable(w, r, strings.TrimPrefix(r.URL.Path, "/rest/v1/"), body)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) serveAuth(w http.ResponseWriter, r *http.Request, body []byte) {
	var in struct {
		Email        string         `json:"email"`
		Password     string         `json:"password"`
		RefreshToken string         `json:"refresh_token"`
		Data         map[string]any `json:"data"`
	}
	_ = json.Unmarshal(body, &in)

	switch r.URL.Path {
	case "/auth/v1/signup":
		s.signUp(w, in.Email, in.Password, in.Data)
	case "/auth/v1/token":
		switch r.URL.Query().Get("grant_type") {
		case "password":
			s.passwordGrant(w, in.Email, in.Password)
		case "refresh_token":
			s.refreshGrant(w, in.RefreshToken)
		default:
			writeJSON(w, http.StatusBadRequest, Row{"error": "unsupported_grant_type"})
		}
	case "/auth/v1/logout":
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusNotFound, Row{"msg": "not found"})
	}
}

func (s *Server) signUp(w http.ResponseWriter, email, password string, data map[string]any) {
	if !strings.Contains(email, "@") {
		writeJSON(w, http.StatusUnprocessableEntity, Row{"code": 422, "error_code": "validation_failed", "msg": "Unable to validate email address: invalid format"})
		return
	}
	if len(password) < 6 {
		writeJSON(w, http.StatusUnprocessableEntity, Row{"code": 422, "error_code": "weak_password", "msg": "Password should be at least 6 characters."})
		return
	}

	s.mu.Lock()
	if _, exists := s.accounts[strings.ToLower(email)]; exists {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnprocessableEntity, Row{"code": 422, "error_code": "user_already_exists", "msg": "User already registered"})
		return
	}
	acc := &account{id: uuid.NewString(), email: email, password: password, metadata: data}
	s.accounts[strings.ToLower(email)] = acc
	auto := s.AutoConfirm
	s.mu.Unlock()

	if auto {
		writeJSON(w, http.StatusOK, s.issue(acc))
		return
	}
	writeJSON(w, http.StatusOK, identity(acc))
}

func (s *Server) passwordGrant(w http.ResponseWriter, email, password string) {
	s.mu.Lock()
	acc, ok := s.accounts[strings.ToLower(email)]
	s.mu.Unlock()
	if !ok || acc.password != password {
		writeJSON(w, http.StatusBadRequest, Row{"code": 400, "error_code": "invalid_credentials", "msg": "Invalid login credentials"})
		return
	}
	writeJSON(w, http.StatusOK, s.issue(acc))
}

func (s *Server) refreshGrant(w http.ResponseWriter, token string) {
	s.mu.Lock()
	email, ok := s.refreshes[token]
	acc := s.accounts[email]
	delete(s.refreshes, token)
	s.mu.Unlock()
	if !ok || acc == nil {
		writeJSON(w, http.StatusBadRequest, Row{"error": "invalid_grant", "error_description": "Invalid Refresh Token: Refresh Token Not Found"})
		return
	}
	writeJSON(w, http.StatusOK, s.issue(acc))
}

func (s *Server) issue(acc *account) Row {
	refresh := uuid.NewString()
	s.mu.Lock()
	s.refreshes[refresh] = strings.ToLower(acc.email)
	s.mu.Unlock()
	return Row{
		"access_token":  Token(acc.id, acc.email, time.Hour),
		"refresh_token": refresh,
		"token_type":    "bearer",
		"expires_in":    3600,
		"user":          identity(acc),
	}
}

func identity(acc *account) Row {
	return Row{"id": acc.id, "email": acc.email, "user_metadata": acc.metadata}
}

func (s *Server) serveRPC(w http.ResponseWriter, name string, body []byte) {
	s.mu.Lock()
	fn := s.RPCs[name]
	s.mu.Unlock()
	if fn == nil {
		writeJSON(w, http.StatusNotFound, Row{"code": "PGRST202", "message": "Could not find the function public." + name})
		return
	}
	var args Row
	_ = json.Unmarshal(body, &args)
	out, status := fn(args)
	writeJSON(w, status, out)
}

func (s *Server) serveTable(w http.ResponseWriter, r *http.Request, table string, body []byte) {
	q := r.URL.Query()

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		s.mu.Lock()
		rows := filterRows(s.tables[table], q)
		s.mu.Unlock()
		total := len(rows)
		sortRows(rows, q.Get("order"))
		if l := q.Get("limit"); l != "" {
			if n, err := strconv.Atoi(l); err == nil && n < len(rows) {
				rows = rows[:n]
			}
		}
		if strings.Contains(r.Header.Get("Prefer"), "count=exact") {
			w.Header().Set("Content-Range", fmt.Sprintf("*/%d", total))
		}
		if strings.Contains(r.Header.Get("Accept"), "vnd.pgrst.object") {
			if len(rows) != 1 {
				writeJSON(w, http.StatusNotAcceptable, Row{
					"code":    "PGRST116",
					"message": "JSON object requested, multiple (or no) rows returned",
					"details": fmt.Sprintf("The result contains %d rows", len(rows)),
				})
				return
			}
			writeJSON(w, http.StatusOK, rows[0])
			return
		}
		writeJSON(w, http.StatusOK, rows)

	case http.MethodPost:
		in, err := decodeRows(body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, Row{"code": "PGRST102", "message": err.Error()})
			return
		}
		merge := strings.Contains(r.Header.Get("Prefer"), "resolution=merge-duplicates")
		out, apiErr := s.insert(table, in, merge, q.Get("on_conflict"))
		if apiErr != nil {
			writeJSON(w, http.StatusConflict, apiErr)
			return
		}
		respond(w, r, http.StatusCreated, out)

	case http.MethodPatch:
		var patch Row
		if err := json.Unmarshal(body, &patch); err != nil {
			writeJSON(w, http.StatusBadRequest, Row{"code": "PGRST102", "message": err.Error()})
			return
		}
		s.mu.Lock()
		var out []Row
		for _, row := range s.tables[table] {
			if matches(row, q) {
				for k, v := range patch {
					row[k] = v
				}
				out = append(out, clone(row))
			}
		}
		s.mu.Unlock()
		respond(w, r, http.StatusOK, out)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) insert(table string, in []Row, merge bool, onConflict string) ([]Row, Row) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pk := primaryKeys[table]
	conflict := onConflict
	if conflict == "" {
		conflict = pk
	}

	var out []Row
	for _, row := range in {
		row = clone(row)
		if pk != "" && row[pk] == nil {
			row[pk] = uuid.NewString()
		}

		idx := -1
		for i, existing := range s.tables[table] {
			if conflict != "" && row[conflict] != nil && fmt.Sprint(existing[conflict]) == fmt.Sprint(row[conflict]) {
				idx = i
				break
			}
		}

		switch {
		case idx >= 0 && merge:
			existing := s.tables[table][idx]
			for k, v := range row {
				if k == pk {
					continue
				}
				existing[k] = v
			}
			out = append(out, clone(existing))
		case idx >= 0:
			return nil, Row{
				"code":    "23505",
				"message": fmt.Sprintf("duplicate key value violates unique constraint \"%s_pkey\"", table),
			}
		default:
			if row["created_at"] == nil {
				row["created_at"] = time.Now().UTC().Format(time.RFC3339Nano)
			}
			s.tables[table] = append(s.tables[table], row)
			out = append(out, clone(row))
		}
	}
	return out, nil
}

func respond(w http.ResponseWriter, r *http.Request, status int, rows []Row) {
	if strings.Contains(r.Header.Get("Prefer"), "return=representation") {
		if rows == nil {
			rows = []Row{}
		}
		writeJSON(w, status, rows)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func decodeRows(body []byte) ([]Row, error) {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "[") {
		var rows []Row
		err := json.Unmarshal(body, &rows)
		return rows, err
	}
	var row Row
	if err := json.Unmarshal(body, &row); err != nil {
		return nil, err
	}
	return []Row{row}, nil
}

var reserved = map[string]bool{"select": true, "order": true, "limit": true, "on_conflict": true, "offset": true}

func filterRows(rows []Row, q map[string][]string) []Row {
	var out []Row
	for _, row := range rows {
		if matches(row, q) {
			out = append(out, clone(row))
		}
	}
	return out
}

func matches(row Row, q map[string][]string) bool {
	for col, conds := range q {
		if reserved[col] {
			continue
		}
		for _, c := range conds {
			want, ok := strings.CutPrefix(c, "eq.")
			if !ok {
				continue
			}
			if format(row[col]) != want {
				return false
			}
		}
	}
	return true
}

func format(v any) string {
	switch x := v.(type) {
	case nil:
		return "null"
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

func sortRows(rows []Row, order string) {
	if order == "" {
		return
	}
	terms := strings.Split(order, ",")
	sort.SliceStable(rows, func(i, j int) bool {
		for _, term := range terms {
			col, dir, _ := strings.Cut(term, ".")
			a, b := format(rows[i][col]), format(rows[j][col])
			if a == b {
				continue
			}
			if dir == "desc" {
				return a > b
			}
			return a < b
		}
		return false
	})
}

func clone(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
