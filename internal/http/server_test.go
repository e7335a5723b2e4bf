package http

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmehdipour/subscribers/internal/config"
	"github.com/jmehdipour/subscribers/internal/db"
	"github.com/jmehdipour/subscribers/internal/http/middleware"
	"github.com/jmehdipour/subscribers/internal/model"
	"github.com/jmehdipour/subscribers/internal/repository"
	"github.com/jmehdipour/subscribers/migrations"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

const testAPIKey = "test-operator-key"

type ServerSuite struct {
	suite.Suite
	db      *sqlx.DB
	handler http.Handler
	gate    *httptest.Server
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerSuite))
}

func (s *ServerSuite) SetupTest() {
	t := s.T()

	dbx, err := db.NewSQLiteConnection("file:"+filepath.Join(t.TempDir(), "subs.db"), db.SQLOpts{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbx.Close() })
	stmts, err := migrations.Statements(db.DriverSQLite)
	require.NoError(t, err)
	for _, q := range stmts {
		_, err := dbx.Exec(q)
		require.NoError(t, err)
	}
	require.NoError(t, repository.NewOperatorsRepository(dbx).Upsert(context.Background(), model.Operator{
		Name: "admin", APIKey: testAPIKey, Status: model.OperatorActive,
	}))
	s.db = dbx

	// fake siteverify: only the token "good" passes
	s.gate = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		ok := r.PostForm.Get("response") == "good" && r.PostForm.Get("secret") == "secret"
		_ = json.NewEncoder(w).Encode(map[string]bool{"success": ok})
	}))
	t.Cleanup(s.gate.Close)

	mr := miniredis.RunT(t)
	rds := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rds.Close() })

	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Verification.Endpoint = s.gate.URL

	s.handler = NewServer(cfg, dbx, nil, rds, nil).Handler()
}

func (s *ServerSuite) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *ServerSuite) admin(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func (s *ServerSuite) subscribe(name, email, token string) (int, subscribeResp) {
	form := url.Values{"name": {name}, "email": {email}, "g-recaptcha-response": {token}}
	req := httptest.NewRequest(http.MethodPost, "/v1/subscribe", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := s.do(req)

	var out subscribeResp
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func (s *ServerSuite) count() int {
	var n int
	s.Require().NoError(s.db.Get(&n, `SELECT COUNT(*) FROM subscribers`))
	return n
}

func (s *ServerSuite) TestHealthz() {
	rec := s.do(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	s.Equal(http.StatusOK, rec.Code)
}

func (s *ServerSuite) TestSubscribeIsIdempotent() {
	code, res := s.subscribe("Jane", "jane@x.com", "")
	s.Equal(http.StatusOK, code)
	s.True(res.Success)
	s.Equal("Thank you for subscribing!", res.Message)

	code, res = s.subscribe("Jane again", "JANE@X.COM", "")
	s.Equal(http.StatusOK, code)
	s.True(res.Success)

	s.Equal(1, s.count())
}

func (s *ServerSuite) TestSubscribeJSON() {
	req := httptest.NewRequest(http.MethodPost, "/v1/subscribe",
		strings.NewReader(`{"name":"Jane","email":"jane@x.com"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := s.do(req)

	s.Equal(http.StatusOK, rec.Code)
	s.Equal(1, s.count())
}

func (s *ServerSuite) TestSubscribeInvalidInput() {
	code, res := s.subscribe("", "jane@x.com", "")
	s.Equal(http.StatusUnprocessableEntity, code)
	s.False(res.Success)

	code, _ = s.subscribe("Jane", "nope", "")
	s.Equal(http.StatusUnprocessableEntity, code)
	s.Zero(s.count())
}

func (s *ServerSuite) TestSubscribeWithVerification() {
	rec := s.admin(http.MethodPut, "/v1/admin/settings/verification", map[string]any{
		"verification_enabled":    true,
		"verification_site_key":   "site",
		"verification_secret_key": "secret",
	})
	s.Require().Equal(http.StatusOK, rec.Code)

	cfgRec := s.do(httptest.NewRequest(http.MethodGet, "/v1/subscribe/config", nil))
	s.Equal(http.StatusOK, cfgRec.Code)
	s.JSONEq(`{"verification_enabled":true,"site_key":"site"}`, cfgRec.Body.String())

	code, res := s.subscribe("Jane", "jane@x.com", "bad")
	s.Equal(http.StatusForbidden, code)
	s.False(res.Success)

	code, _ = s.subscribe("Jane", "jane@x.com", "")
	s.Equal(http.StatusForbidden, code)
	s.Zero(s.count())

	code, res = s.subscribe("Jane", "jane@x.com", "good")
	s.Equal(http.StatusOK, code)
	s.True(res.Success)
	s.Equal(1, s.count())
}

func (s *ServerSuite) TestEnableVerificationRequiresKeys() {
	rec := s.admin(http.MethodPut, "/v1/admin/settings/verification", map[string]any{
		"verification_enabled": true,
	})
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *ServerSuite) TestAdminRequiresAPIKey() {
	rec := s.do(httptest.NewRequest(http.MethodGet, "/v1/admin/subscribers", nil))
	s.Equal(http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/admin/subscribers", nil)
	req.Header.Set("X-API-Key", "wrong")
	s.Equal(http.StatusUnauthorized, s.do(req).Code)
}

func (s *ServerSuite) TestListGetUpdate() {
	s.subscribe("Jane", "jane@x.com", "")
	s.subscribe("Bob", "bob@x.com", "")

	rec := s.admin(http.MethodGet, "/v1/admin/subscribers", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	var list struct {
		Count   int                `json:"count"`
		Results []model.Subscriber `json:"results"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &list))
	s.Require().Equal(2, list.Count)
	jane, bob := list.Results[0], list.Results[1]
	s.Equal("Jane", jane.Name)

	rec = s.admin(http.MethodGet, "/v1/admin/subscribers/999", nil)
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.admin(http.MethodPut, "/v1/admin/subscribers/"+itoa(jane.ID), map[string]string{"name": "Janet", "email": "janet@x.com"})
	s.Equal(http.StatusOK, rec.Code)

	rec = s.admin(http.MethodPut, "/v1/admin/subscribers/"+itoa(bob.ID), map[string]string{"name": "Bob", "email": "JANET@x.com"})
	s.Equal(http.StatusConflict, rec.Code)

	rec = s.admin(http.MethodPut, "/v1/admin/subscribers/999", map[string]string{"name": "X", "email": "x@x.com"})
	s.Equal(http.StatusNotFound, rec.Code)

	rec = s.admin(http.MethodPut, "/v1/admin/subscribers/"+itoa(bob.ID), map[string]string{"name": "", "email": "bob@x.com"})
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
}

func (s *ServerSuite) TestDeleteRequiresSingleUseToken() {
	s.subscribe("Jane", "jane@x.com", "")
	path := "/v1/admin/subscribers/1"

	rec := s.admin(http.MethodDelete, path, nil)
	s.Equal(http.StatusForbidden, rec.Code)

	rec = s.admin(http.MethodPost, path+"/delete-token", nil)
	s.Require().Equal(http.StatusCreated, rec.Code)
	var issued map[string]string
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &issued))
	tok := issued["delete_token"]
	s.NotEmpty(tok)

	req := httptest.NewRequest(http.MethodDelete, path, nil)
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set(middleware.DeleteTokenHeader, tok)
	s.Equal(http.StatusNoContent, s.do(req).Code)
	s.Zero(s.count())

	req = httptest.NewRequest(http.MethodDelete, path, nil)
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set(middleware.DeleteTokenHeader, tok)
	s.Equal(http.StatusForbidden, s.do(req).Code)

	rec = s.admin(http.MethodPost, "/v1/admin/subscribers/999/delete-token", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *ServerSuite) importCSV(content string) *httptest.ResponseRecorder {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("subscribers_csv", "list.csv")
	s.Require().NoError(err)
	_, err = fw.Write([]byte(content))
	s.Require().NoError(err)
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/subscribers/import", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-API-Key", testAPIKey)
	return s.do(req)
}

func (s *ServerSuite) TestImportAndExport() {
	rec := s.importCSV("Name,Email\nAlice,a@x.com\nBob,b@x.com\nAlice,a@x.com\n")
	s.Require().Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"inserted_count":2,"skipped_duplicate_count":1,"skipped_invalid_count":0}`, rec.Body.String())

	rec = s.admin(http.MethodGet, "/v1/admin/subscribers/export", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Header().Get("Content-Disposition"), `filename="subscribers.csv"`)
	s.True(strings.HasPrefix(rec.Header().Get("Content-Type"), "text/csv"))
	s.Equal("ID,Name,Email\n1,Alice,a@x.com\n2,Bob,b@x.com\n", rec.Body.String())

	// re-importing the export adds nothing
	rec = s.importCSV(rec.Body.String())
	s.Require().Equal(http.StatusOK, rec.Code)
	s.JSONEq(`{"inserted_count":0,"skipped_duplicate_count":2,"skipped_invalid_count":0}`, rec.Body.String())
}

func (s *ServerSuite) TestImportBadHeader() {
	rec := s.importCSV("Full Name,Mail\nAlice,a@x.com\n")
	s.Equal(http.StatusUnprocessableEntity, rec.Code)
	s.Zero(s.count())
}

func (s *ServerSuite) TestImportMissingFile() {
	rec := s.admin(http.MethodPost, "/v1/admin/subscribers/import", nil)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
