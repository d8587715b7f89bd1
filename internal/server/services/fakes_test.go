package services

import (
	"context"
	"database/sql"
	"net/url"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/zoneboard/internal/common"
	"github.com/dmitrijs2005/zoneboard/internal/dbx"
	"github.com/dmitrijs2005/zoneboard/internal/logging"
	"github.com/dmitrijs2005/zoneboard/internal/server/config"
	"github.com/dmitrijs2005/zoneboard/internal/server/entitlements"
	"github.com/dmitrijs2005/zoneboard/internal/server/models"
	"github.com/dmitrijs2005/zoneboard/internal/server/receipts"
	entitlementsrepo "github.com/dmitrijs2005/zoneboard/internal/server/repositories/entitlements"
	"github.com/dmitrijs2005/zoneboard/internal/server/repositories/logintokens"
	"github.com/dmitrijs2005/zoneboard/internal/server/repositories/purchases"
	"github.com/dmitrijs2005/zoneboard/internal/server/repositories/refreshtokens"
	settingsrepo "github.com/dmitrijs2005/zoneboard/internal/server/repositories/settings"
	"github.com/dmitrijs2005/zoneboard/internal/server/repositories/softdelete"
	"github.com/dmitrijs2005/zoneboard/internal/server/repositories/users"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	return cfg
}

// newTxDB returns a sqlmock handle expecting one transaction per outcome,
// "commit" or "rollback", in order.
func newTxDB(t *testing.T, outcomes ...string) *sql.DB {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	for _, o := range outcomes {
		mock.ExpectBegin()
		if o == "rollback" {
			mock.ExpectRollback()
		} else {
			mock.ExpectCommit()
		}
	}

	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return db
}

func repeat(outcome string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = outcome
	}
	return out
}

type fakeMailer struct {
	mu    sync.Mutex
	to    []string
	links []string
	err   error
}

func (m *fakeMailer) SendMagicLink(ctx context.Context, to, link string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.to = append(m.to, to)
	m.links = append(m.links, link)
	return nil
}

// lastToken extracts the token query parameter of the last mailed link.
func (m *fakeMailer) lastToken(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.links)
	u, err := url.Parse(m.links[len(m.links)-1])
	require.NoError(t, err)
	return u.Query().Get("token")
}

type fakeLimiter struct {
	err   error
	calls []string
}

func (l *fakeLimiter) Allow(ctx context.Context, subject string) error {
	l.calls = append(l.calls, subject)
	return l.err
}

type fakeVerifier struct {
	calls int
	out   *entitlements.VerifiedPurchase
	err   error
}

func (v *fakeVerifier) Verify(ctx context.Context, req entitlements.VerifyRequest) (*entitlements.VerifiedPurchase, error) {
	v.calls++
	if v.err != nil {
		return nil, v.err
	}
	return v.out, nil
}

type fakeArchive struct {
	stored []receipts.Receipt
	err    error
}

func (a *fakeArchive) Store(ctx context.Context, r receipts.Receipt) (string, error) {
	a.stored = append(a.stored, r)
	if a.err != nil {
		return "", a.err
	}
	return "receipts/" + r.UserID, nil
}

// --- in-memory repository manager ---

// memStore backs every repository with maps guarded by one mutex. It ignores
// the handle it is bound to, so transaction rollbacks do not undo writes.
type memStore struct {
	mu sync.Mutex

	users        map[string]models.User
	loginTokens  map[string]models.LoginToken
	refresh      map[string]models.RefreshToken
	purchases    map[string]models.PurchaseToken
	entitlements map[string]models.Entitlement
	snapshots    map[string]models.SettingsSnapshot

	// Hooks run without the lock held, simulating a concurrent request.
	afterFindLoginToken   func()
	afterFindRefreshToken func()
	beforeCreatePurchase  func()
}

func newMemStore() *memStore {
	return &memStore{
		users:        map[string]models.User{},
		loginTokens:  map[string]models.LoginToken{},
		refresh:      map[string]models.RefreshToken{},
		purchases:    map[string]models.PurchaseToken{},
		entitlements: map[string]models.Entitlement{},
		snapshots:    map[string]models.SettingsSnapshot{},
	}
}

func (m *memStore) RunMigrations(context.Context, *sql.DB) error      { return nil }
func (m *memStore) Users(dbx.DBTX) users.Repository                   { return memUsers{m} }
func (m *memStore) LoginTokens(dbx.DBTX) logintokens.Repository       { return memLoginTokens{m} }
func (m *memStore) RefreshTokens(dbx.DBTX) refreshtokens.Repository   { return memRefreshTokens{m} }
func (m *memStore) Purchases(dbx.DBTX) purchases.Repository           { return memPurchases{m} }
func (m *memStore) Entitlements(dbx.DBTX) entitlementsrepo.Repository { return memEntitlements{m} }
func (m *memStore) Settings(dbx.DBTX) settingsrepo.Repository         { return memSettings{m} }
func (m *memStore) SoftDelete(dbx.DBTX) softdelete.Repository         { return memSoftDelete{m} }

func (m *memStore) addUser(email string) models.User {
	u, _ := memUsers{m}.Upsert(context.Background(), email, t0)
	return *u
}

func (m *memStore) activeEntitlements(userID string) []string {
	keys, _ := memEntitlements{m}.ListActive(context.Background(), userID)
	out := []string{}
	for _, e := range keys {
		out = append(out, e.Key)
	}
	return out
}

type memUsers struct{ *memStore }

func (r memUsers) Upsert(ctx context.Context, email string, now time.Time) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, u := range r.users {
		if u.Email == email {
			u.UpdatedAt = now
			r.users[id] = u
			return &u, nil
		}
	}
	u := models.User{ID: uuid.NewString(), Email: email, CreatedAt: now, UpdatedAt: now}
	r.users[u.ID] = u
	return &u, nil
}

func (r memUsers) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &u, nil
}

func (r memUsers) LockByID(ctx context.Context, id string) error {
	_, err := r.GetByID(ctx, id)
	return err
}

type memLoginTokens struct{ *memStore }

func (r memLoginTokens) Create(ctx context.Context, t models.LoginToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loginTokens[t.ID] = t
	return nil
}

func (r memLoginTokens) FindByHash(ctx context.Context, hash string) (*models.LoginToken, error) {
	r.mu.Lock()
	var found *models.LoginToken
	for _, t := range r.loginTokens {
		if t.TokenHash == hash {
			found = &t
			break
		}
	}
	hook := r.afterFindLoginToken
	r.mu.Unlock()

	if found == nil {
		return nil, common.ErrorNotFound
	}
	if hook != nil {
		hook()
	}
	return found, nil
}

func (r memLoginTokens) MarkUsed(ctx context.Context, id string, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.loginTokens[id]
	if !ok || t.UsedAt != nil {
		return false, nil
	}
	t.UsedAt = &now
	r.loginTokens[id] = t
	return true, nil
}

func (r memLoginTokens) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.loginTokens {
		if t.ExpiresAt.Before(cutoff) {
			delete(r.loginTokens, id)
			n++
		}
	}
	return n, nil
}

type memRefreshTokens struct{ *memStore }

func (r memRefreshTokens) Create(ctx context.Context, t models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.refresh {
		if existing.TokenHash == t.TokenHash {
			return common.ErrAlreadyExists
		}
	}
	r.refresh[t.ID] = t
	return nil
}

func (r memRefreshTokens) FindByHash(ctx context.Context, hash string) (*models.RefreshToken, error) {
	r.mu.Lock()
	var found *models.RefreshToken
	for _, t := range r.refresh {
		if t.TokenHash == hash {
			found = &t
			break
		}
	}
	hook := r.afterFindRefreshToken
	r.mu.Unlock()

	if found == nil {
		return nil, common.ErrorNotFound
	}
	if hook != nil {
		hook()
	}
	return found, nil
}

func (r memRefreshTokens) Revoke(ctx context.Context, id string, upd models.RevokeUpdate, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.refresh[id]
	if !ok || !t.Active(now) {
		return false, nil
	}
	r.refresh[id] = upd.Apply(t)
	return true, nil
}

func (r memRefreshTokens) MarkStale(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, t := range r.refresh {
		if t.DeletedAt == nil && (t.RevokedAt != nil || !t.ExpiresAt.After(now)) {
			t.DeletedAt = &now
			r.refresh[id] = t
			n++
		}
	}
	return n, nil
}

type memPurchases struct{ *memStore }

func (r memPurchases) FindByToken(ctx context.Context, token string) (*models.PurchaseToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.purchases[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &p, nil
}

func (r memPurchases) Create(ctx context.Context, p models.PurchaseToken) error {
	if hook := r.beforeCreatePurchase; hook != nil {
		hook()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.purchases[p.PurchaseToken]; ok {
		return common.ErrAlreadyExists
	}
	r.purchases[p.PurchaseToken] = p
	return nil
}

type memEntitlements struct{ *memStore }

func (r memEntitlements) ListActive(ctx context.Context, userID string) ([]models.Entitlement, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Entitlement
	for _, e := range r.entitlements {
		if e.UserID == userID && e.Status == models.EntitlementActive && e.DeletedAt == nil {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (r memEntitlements) Apply(ctx context.Context, change models.EntitlementChange) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := change.UserID() + "/" + change.Key()
	e, exists := r.entitlements[k]

	switch c := change.(type) {
	case models.EntitlementGrant:
		if !exists {
			e = models.Entitlement{ID: uuid.NewString(), UserID: c.UserID(), Key: c.Key(), CreatedAt: c.At()}
		}
		e.Status = c.Status()
		e.Source = c.Source()
		e.RevokedAt = nil
		e.UpdatedAt = c.At()
		r.entitlements[k] = e
	case models.EntitlementRevocation:
		if exists && e.Status == models.EntitlementActive {
			at := c.At()
			e.Status = c.Status()
			e.RevokedAt = &at
			e.UpdatedAt = at
			r.entitlements[k] = e
		}
	}
	return nil
}

type memSettings struct{ *memStore }

func (r memSettings) live(userID string) []models.SettingsSnapshot {
	var out []models.SettingsSnapshot
	for _, s := range r.snapshots {
		if s.UserID == userID && s.DeletedAt == nil {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	return out
}

func (r memSettings) Latest(ctx context.Context, userID string) (*models.SettingsSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	live := r.live(userID)
	if len(live) == 0 {
		return nil, common.ErrorNotFound
	}
	return &live[0], nil
}

func (r memSettings) LatestVersion(ctx context.Context, userID string) (*int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var latest *int64
	for _, s := range r.snapshots {
		if s.UserID == userID && (latest == nil || s.Version > *latest) {
			latest = ptr(s.Version)
		}
	}
	return latest, nil
}

func (r memSettings) Create(ctx context.Context, s models.SettingsSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.snapshots {
		if existing.UserID == s.UserID && existing.Version == s.Version {
			return common.ErrVersionConflict
		}
	}
	r.snapshots[s.ID] = s
	return nil
}

func (r memSettings) ListActiveNewestFirst(ctx context.Context, userID string) ([]models.SettingsSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live(userID), nil
}

func (r memSettings) SoftDelete(ctx context.Context, id string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.snapshots[id]
	if !ok {
		return common.ErrorNotFound
	}
	s.DeletedAt = &now
	r.snapshots[id] = s
	return nil
}

type memSoftDelete struct{ *memStore }

func (r memSoftDelete) PurgeBefore(ctx context.Context, table string, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	switch table {
	case "refresh_tokens":
		for id, t := range r.refresh {
			if t.DeletedAt != nil && t.DeletedAt.Before(cutoff) {
				delete(r.refresh, id)
				n++
			}
		}
	case "entitlements":
		for k, e := range r.entitlements {
			if e.DeletedAt != nil && e.DeletedAt.Before(cutoff) {
				delete(r.entitlements, k)
				n++
			}
		}
	case "settings_snapshots":
		for id, s := range r.snapshots {
			if s.DeletedAt != nil && s.DeletedAt.Before(cutoff) {
				delete(r.snapshots, id)
				n++
			}
		}
	default:
		return 0, common.ErrInvalidInput
	}
	return n, nil
}
