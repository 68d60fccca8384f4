package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"eduplatform/internal/types"
)

// ============================================================
// Shared helpers
// ============================================================

func lifecycleTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// refNow is the fixed reference time used across lifecycle tests.
var refNow = time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(n int) time.Time {
	return refNow.AddDate(0, 0, -n)
}

func daysFromNow(n int) time.Time {
	return refNow.AddDate(0, 0, n)
}

func ptr(t time.Time) *time.Time {
	return &t
}

func ctx() context.Context {
	return context.Background()
}

var errStoreDown = errors.New("connection refused")

// ============================================================
// Fake: AccountStore + SignalSource
// ============================================================

type fakeStore struct {
	mu sync.Mutex

	accounts map[string]types.Account
	order    []string
	signals  map[string]map[types.SignalKind]time.Time

	findErr      error
	signalErr    map[string]error
	writeErr     map[string]error
	deleteErr    map[string]error
	createdAt    map[string]time.Time
	createdAtErr error

	// lostRace makes WriteWarnAndSchedule report that another writer won.
	lostRace map[string]bool

	findRoles   [][]types.Role
	signalCalls []string
	writes      []warnWrite
	deletedIDs  []string
}

type warnWrite struct {
	AccountID   string
	WarnedAt    time.Time
	ScheduledAt time.Time
}

func newFakeStore(accounts ...types.Account) *fakeStore {
	s := &fakeStore{
		accounts:  make(map[string]types.Account),
		signals:   make(map[string]map[types.SignalKind]time.Time),
		signalErr: make(map[string]error),
		writeErr:  make(map[string]error),
		deleteErr: make(map[string]error),
		createdAt: make(map[string]time.Time),
		lostRace:  make(map[string]bool),
	}
	for _, a := range accounts {
		s.accounts[a.ID] = a
		s.order = append(s.order, a.ID)
	}
	return s
}

func (s *fakeStore) setSignal(id string, kind types.SignalKind, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.signals[id] == nil {
		s.signals[id] = make(map[types.SignalKind]time.Time)
	}
	s.signals[id][kind] = at
}

func (s *fakeStore) FindAccountsByRoles(_ context.Context, roles []types.Role) ([]types.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.findRoles = append(s.findRoles, roles)
	if s.findErr != nil {
		return nil, s.findErr
	}
	wanted := make(map[types.Role]bool, len(roles))
	for _, r := range roles {
		wanted[r] = true
	}
	var out []types.Account
	for _, id := range s.order {
		a, ok := s.accounts[id]
		if ok && wanted[a.Role] {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *fakeStore) GetCreatedAt(_ context.Context, accountID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createdAtErr != nil {
		return time.Time{}, s.createdAtErr
	}
	return s.createdAt[accountID], nil
}

func (s *fakeStore) LastSignalTimestamp(_ context.Context, accountID string, kind types.SignalKind) (*time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.signalCalls = append(s.signalCalls, accountID+":"+string(kind))
	if err := s.signalErr[accountID]; err != nil {
		return nil, err
	}
	if at, ok := s.signals[accountID][kind]; ok {
		return &at, nil
	}
	return nil, nil
}

func (s *fakeStore) WriteWarnAndSchedule(_ context.Context, accountID string, warnedAt, scheduledAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writeErr[accountID]; err != nil {
		return false, err
	}
	if s.lostRace[accountID] {
		return false, nil
	}
	a, ok := s.accounts[accountID]
	if !ok || a.InactivityWarnedAt != nil || a.ScheduledDeletionAt != nil {
		return false, nil
	}
	a.InactivityWarnedAt = ptr(warnedAt)
	a.ScheduledDeletionAt = ptr(scheduledAt)
	s.accounts[accountID] = a
	s.writes = append(s.writes, warnWrite{AccountID: accountID, WarnedAt: warnedAt, ScheduledAt: scheduledAt})
	return true, nil
}

func (s *fakeStore) DeleteAccount(_ context.Context, accountID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.deleteErr[accountID]; err != nil {
		return false, err
	}
	if _, ok := s.accounts[accountID]; !ok {
		return false, nil
	}
	delete(s.accounts, accountID)
	s.deletedIDs = append(s.deletedIDs, accountID)
	return true, nil
}

func (s *fakeStore) account(id string) (types.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[id]
	return a, ok
}

func (s *fakeStore) snapshot() []types.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ============================================================
// Fake: Notifier
// ============================================================

type fakeNotifier struct {
	mu      sync.Mutex
	sent    []types.InactivityWarning
	failFor map[string]error
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{failFor: make(map[string]error)}
}

func (n *fakeNotifier) SendInactivityWarning(_ context.Context, w types.InactivityWarning) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if err := n.failFor[w.AccountID]; err != nil {
		return err
	}
	n.sent = append(n.sent, w)
	return nil
}

func (n *fakeNotifier) sentTo() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]string, 0, len(n.sent))
	for _, w := range n.sent {
		ids = append(ids, w.AccountID)
	}
	sort.Strings(ids)
	return ids
}

// ============================================================
// Fake: LinkBuilder, RunMetrics
// ============================================================

type staticLinks struct{}

func (staticLinks) ResourceLink(acct types.Account) string {
	return "https://app.test.local/" + string(acct.Role)
}

type fakeMetrics struct {
	mu       sync.Mutex
	runs     []RunSummary
	triggers []string
	errs     []error
}

func (m *fakeMetrics) RecordRun(_ context.Context, trigger string, summary RunSummary, _ time.Duration, runErr error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, summary)
	m.triggers = append(m.triggers, trigger)
	m.errs = append(m.errs, runErr)
}

// ============================================================
// Fixtures
// ============================================================

type engineFixture struct {
	store    *fakeStore
	notifier *fakeNotifier
	metrics  *fakeMetrics
	engine   *Engine
}

func newEngineFixture(t *testing.T, features Features, accounts ...types.Account) *engineFixture {
	t.Helper()
	store := newFakeStore(accounts...)
	notifier := newFakeNotifier()
	metrics := &fakeMetrics{}
	engine := NewEngine(Dependencies{
		Accounts: store,
		Signals:  store,
		Notifier: notifier,
		Links:    staticLinks{},
		Metrics:  metrics,
		Features: features,
		Clock:    func() time.Time { return refNow },
		Logger:   lifecycleTestLogger(),
	})
	return &engineFixture{store: store, notifier: notifier, metrics: metrics, engine: engine}
}

var allFeatures = Features{IncludeContentOwners: true, DeletionEnabled: true}

// student builds a student account created long ago with the given last
// submission recorded by the caller via setSignal.
func student(id string) types.Account {
	return types.Account{
		ID:        id,
		Role:      types.RoleStudent,
		Email:     id + "@school.test",
		Name:      "Student " + id,
		CreatedAt: daysAgo(400),
	}
}

func professor(id string) types.Account {
	return types.Account{
		ID:        id,
		Role:      types.RoleProfessor,
		Email:     id + "@school.test",
		Name:      "Professor " + id,
		CreatedAt: daysAgo(400),
	}
}
