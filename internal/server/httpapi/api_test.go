package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/notemist/notemist/internal/common"
	"github.com/notemist/notemist/internal/dbx"
	"github.com/notemist/notemist/internal/logging"
	"github.com/notemist/notemist/internal/server/config"
	"github.com/notemist/notemist/internal/server/markup"
	"github.com/notemist/notemist/internal/server/models"
	tokensrepo "github.com/notemist/notemist/internal/server/repositories/accesstokens"
	notesrepo "github.com/notemist/notemist/internal/server/repositories/notes"
	usersrepo "github.com/notemist/notemist/internal/server/repositories/users"
	"github.com/notemist/notemist/internal/server/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type nopLogger struct{}

func (nopLogger) Debug(context.Context, string, ...any) {}
func (nopLogger) Info(context.Context, string, ...any)  {}
func (nopLogger) Warn(context.Context, string, ...any)  {}
func (nopLogger) Error(context.Context, string, ...any) {}
func (nopLogger) With(...any) logging.Logger            { return nopLogger{} }

type stubUsers struct {
	registerErr error
}

func (s *stubUsers) Register(ctx context.Context, username, password string) (*models.User, error) {
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return &models.User{ID: "u1", UserName: username}, nil
}

func (s *stubUsers) Login(ctx context.Context, username, password string) (string, error) {
	if username == "alice" && password == "pw" {
		return "issued-token", nil
	}
	return "", common.ErrorUnauthorized
}

func (s *stubUsers) ResolveUsername(ctx context.Context, token string) (string, error) {
	if token == "good-token" {
		return "alice", nil
	}
	return "", common.ErrorUnauthorized
}

type stubAttachments struct {
	err error
}

func (s *stubAttachments) RequestUpload(ctx context.Context, username, noteID string) (string, string, error) {
	if s.err != nil {
		return "", "", s.err
	}
	return "users/k1", "http://put-url", nil
}
func (s *stubAttachments) MarkUploaded(ctx context.Context, username, noteID string) error {
	return s.err
}
func (s *stubAttachments) GetDownloadURL(ctx context.Context, username, noteID string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return "http://get-url", nil
}

type memNotesRepo struct {
	store map[string]*models.Note
}

func (m *memNotesRepo) Get(ctx context.Context, userID, noteID string) (*models.Note, error) {
	n, ok := m.store[noteID]
	if !ok || n.UserID != userID {
		return nil, common.ErrorNotFound
	}
	cp := *n
	return &cp, nil
}
func (m *memNotesRepo) Upsert(ctx context.Context, note *models.Note) error {
	cp := *note
	m.store[note.ID] = &cp
	return nil
}
func (m *memNotesRepo) SelectChangedSince(ctx context.Context, userID string, minRevision int64) ([]*models.Note, error) {
	var out []*models.Note
	for _, n := range m.store {
		if n.UserID == userID && n.Revision > minRevision {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Revision != out[j].Revision {
			return out[i].Revision < out[j].Revision
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
func (m *memNotesRepo) PurgeDeleted(ctx context.Context, userID string, beforeRevision int64) error {
	return nil
}
func (m *memNotesRepo) SetAttachment(ctx context.Context, userID, noteID, key, status string) error {
	return nil
}

type memUsersRepo struct {
	user *models.User
}

func (m *memUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	return u, nil
}
func (m *memUsersRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if m.user == nil || m.user.UserName != username {
		return nil, common.ErrorNotFound
	}
	cp := *m.user
	return &cp, nil
}
func (m *memUsersRepo) ReplaceSyncState(ctx context.Context, userID, serverID string, oldRev, newRev int64) error {
	if m.user == nil || m.user.ID != userID || m.user.CurrentRevision != oldRev {
		return common.ErrRevisionConflict
	}
	m.user.ManifestServerID = serverID
	m.user.CurrentRevision = newRev
	return nil
}

type memRepoManager struct {
	u *memUsersRepo
	n *memNotesRepo
}

func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *memRepoManager) Users(dbx.DBTX) usersrepo.Repository             { return m.u }
func (m *memRepoManager) Notes(dbx.DBTX) notesrepo.Repository             { return m.n }
func (m *memRepoManager) AccessTokens(dbx.DBTX) tokensrepo.Repository     { return nil }

// --- fixture ---

type fixture struct {
	server *httptest.Server
	rm     *memRepoManager
	mock   sqlmock.Sqlmock
	attach *stubAttachments
	users  *stubUsers
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithConverter(t, markup.NewPassthrough())
}

func newFixtureWithConverter(t *testing.T, conv markup.Converter) *fixture {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rm := &memRepoManager{
		u: &memUsersRepo{user: &models.User{
			ID: "u1", UserName: "alice", ManifestServerID: "srv-1",
		}},
		n: &memNotesRepo{store: make(map[string]*models.Note)},
	}

	cfg := &config.Config{
		SyncTimeout:         5 * time.Second,
		TokenRateLimitRPS:   100,
		TokenRateLimitBurst: 100,
	}

	sessions := services.NewSessionService(db, rm, cfg, nopLogger{})
	users := &stubUsers{}
	attach := &stubAttachments{}

	api := New(users, sessions, attach, conv, cfg, nopLogger{})
	ts := httptest.NewServer(api.Router())
	t.Cleanup(ts.Close)

	return &fixture{server: ts, rm: rm, mock: mock, attach: attach, users: users}
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req, err := http.NewRequest(method, f.server.URL+path, &buf)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// --- tests ---

func TestRegister(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/register", "", registerRequest{Username: "bob", Password: "pw"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody[registerResponse](t, resp)
	assert.Equal(t, "bob", body.Username)
}

func TestRegister_BadBody(t *testing.T) {
	f := newFixture(t)

	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/api/register", bytes.NewBufferString("{nope"))
	require.NoError(t, err)
	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestToken(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/token", "", tokenRequest{Username: "alice", Password: "pw"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody[tokenResponse](t, resp)
	assert.Equal(t, "issued-token", body.AccessToken)

	resp = f.do(t, http.MethodPost, "/api/token", "", tokenRequest{Username: "alice", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBearerAuth_Rejections(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/sync", "", syncRequest{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/sync", "bad-token", syncRequest{})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSync_HappyPath(t *testing.T) {
	f := newFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	// A note another client already synced.
	f.rm.n.store["n-old"] = &models.Note{
		ID: "n-old", UserID: "u1", Title: "old", Body: "old body", Revision: 0,
	}

	resp := f.do(t, http.MethodPost, "/api/sync", "good-token", syncRequest{
		Manifest: manifestPayload{ServerID: "srv-1", LastSyncRevision: 0},
		Changes: []noteChangePayload{
			{ID: "n-new", Title: "new", Body: "new body", ClientTimestamp: time.Now()},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[syncResponse](t, resp)
	assert.Equal(t, "srv-1", body.Manifest.ServerID)
	assert.Equal(t, int64(1), body.Manifest.CurrentRevision)
	assert.Empty(t, body.Conflicts)

	// The stored copy advanced.
	require.NotNil(t, f.rm.n.store["n-new"])
	assert.Equal(t, int64(1), f.rm.n.store["n-new"].Revision)
	assert.Equal(t, int64(1), f.rm.u.user.CurrentRevision)
}

func TestSync_ServerIDMismatch(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/sync", "good-token", syncRequest{
		Manifest: manifestPayload{ServerID: "some-other-collection"},
	})
	assert.Equal(t, http.StatusGone, resp.StatusCode)
}

// rejectingConverter refuses every incoming body.
type rejectingConverter struct{}

func (rejectingConverter) ToStorageFormat(string) (string, error) {
	return "", errors.New("unconvertible markup")
}
func (rejectingConverter) ToDisplayFormat(s string) (string, error) { return s, nil }

func TestSync_RejectedMarkup(t *testing.T) {
	f := newFixtureWithConverter(t, rejectingConverter{})

	resp := f.do(t, http.MethodPost, "/api/sync", "good-token", syncRequest{
		Manifest: manifestPayload{ServerID: "srv-1"},
		Changes: []noteChangePayload{
			{ID: "n-1", Body: "anything", ClientTimestamp: time.Now()},
		},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Nothing may reach the store when a body is rejected.
	assert.Empty(t, f.rm.n.store)
}

func TestNotes_Delta(t *testing.T) {
	f := newFixture(t)

	f.rm.u.user.CurrentRevision = 2
	f.rm.n.store["n-1"] = &models.Note{ID: "n-1", UserID: "u1", Title: "one", Revision: 1}
	f.rm.n.store["n-2"] = &models.Note{ID: "n-2", UserID: "u1", Title: "two", Revision: 2}

	resp := f.do(t, http.MethodGet, "/api/notes?since=1", "good-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[notesResponse](t, resp)
	require.Len(t, body.Notes, 1)
	assert.Equal(t, "n-2", body.Notes[0].ID)
}

func TestNotes_BadSince(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/notes?since=banana", "good-token", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAttachments(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/notes/n-1/attachment", "good-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	up := decodeBody[uploadResponse](t, resp)
	assert.Equal(t, "users/k1", up.Key)
	assert.Equal(t, "http://put-url", up.UploadURL)

	resp = f.do(t, http.MethodPost, "/api/notes/n-1/attachment/uploaded", "good-token", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/notes/n-1/attachment", "good-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	down := decodeBody[downloadResponse](t, resp)
	assert.Equal(t, "http://get-url", down.DownloadURL)
}

func TestAttachments_NotFound(t *testing.T) {
	f := newFixture(t)
	f.attach.err = common.ErrorNotFound

	resp := f.do(t, http.MethodPost, "/api/notes/n-x/attachment", "good-token", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestToken_RateLimited(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		SyncTimeout:         time.Second,
		TokenRateLimitRPS:   0.001,
		TokenRateLimitBurst: 1,
	}
	rm := &memRepoManager{u: &memUsersRepo{}, n: &memNotesRepo{store: map[string]*models.Note{}}}
	sessions := services.NewSessionService(db, rm, cfg, nopLogger{})

	api := New(&stubUsers{}, sessions, &stubAttachments{}, markup.NewPassthrough(), cfg, nopLogger{})
	ts := httptest.NewServer(api.Router())
	t.Cleanup(ts.Close)

	body, _ := json.Marshal(tokenRequest{Username: "alice", Password: "pw"})

	resp, err := ts.Client().Post(ts.URL+"/api/token", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = ts.Client().Post(ts.URL+"/api/token", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestRegister_ServiceError(t *testing.T) {
	f := newFixture(t)
	f.users.registerErr = errors.New("username and password are required")

	resp := f.do(t, http.MethodPost, "/api/register", "", registerRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
