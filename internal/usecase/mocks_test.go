package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/model"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/adapter"
	"github.com/zerodata731/remnawave-tg-shop-sub000/internal/domain/ports/repository"
)

// restorable lets the mock transaction manager emulate rollback: a snapshot is
// taken before fn runs and restored when fn fails.
type restorable interface {
	snapshot() interface{}
	restore(interface{})
}

// mockTxManager runs the callback against the shared in-memory stores and
// rolls their state back on error, mirroring the real manager's semantics.
type mockTxManager struct {
	mu    sync.Mutex
	repos []restorable
}

func newMockTxManager(repos ...restorable) *mockTxManager {
	return &mockTxManager{repos: repos}
}

func (m *mockTxManager) WithTx(ctx context.Context, _ pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snaps := make([]interface{}, len(m.repos))
	for i, r := range m.repos {
		snaps[i] = r.snapshot()
	}
	if err := fn(ctx, mockTx{}); err != nil {
		for i, r := range m.repos {
			r.restore(snaps[i])
		}
		return err
	}
	return nil
}

// mockTx marks calls as transactional without being a pgx.Tx.
type mockTx struct{}

// ===== payments =====

type memPaymentRepo struct {
	mu        sync.Mutex
	store     map[string]*model.Payment
	saveErr   error
	updateErr error
}

func newMemPaymentRepo() *memPaymentRepo {
	return &memPaymentRepo{store: make(map[string]*model.Payment)}
}

func (m *memPaymentRepo) snapshot() interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]*model.Payment, len(m.store))
	for k, v := range m.store {
		p := *v
		cp[k] = &p
	}
	return cp
}

func (m *memPaymentRepo) restore(s interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = s.(map[string]*model.Payment)
}

func (m *memPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.store[p.ID] = &cp
	return nil
}

func (m *memPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPaymentRepo) FindByProviderPaymentID(ctx context.Context, tx repository.Tx, ppid string) (*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.store {
		if p.ProviderPaymentID != nil && *p.ProviderPaymentID == ppid {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPaymentRepo) GetOrCreateByProviderPaymentID(ctx context.Context, tx repository.Tx, p *model.Payment) (*model.Payment, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ex := range m.store {
		if ex.ProviderPaymentID != nil && p.ProviderPaymentID != nil && *ex.ProviderPaymentID == *p.ProviderPaymentID {
			cp := *ex
			return &cp, false, nil
		}
	}
	cp := *p
	m.store[p.ID] = &cp
	out := cp
	return &out, true, nil
}

func (m *memPaymentRepo) UpdateStatusIfNotTerminal(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, ppid *string) (bool, error) {
	if m.updateErr != nil {
		return false, m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok || p.Status.Terminal() {
		return false, nil
	}
	p.Status = status
	if ppid != nil {
		v := *ppid
		p.ProviderPaymentID = &v
	}
	p.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (m *memPaymentRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, ppid *string) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.store[id]
	if !ok {
		return domain.ErrNotFound
	}
	p.Status = status
	if ppid != nil {
		v := *ppid
		p.ProviderPaymentID = &v
	}
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *memPaymentRepo) ListAwaitingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Payment
	for _, p := range m.store {
		if p.Status == model.PaymentStatusAwaitingProvider && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// ===== subscriptions =====

type memSubRepo struct {
	mu      sync.Mutex
	subs    map[string]*model.Subscription
	saveErr error
}

func newMemSubRepo() *memSubRepo {
	return &memSubRepo{subs: make(map[string]*model.Subscription)}
}

func (m *memSubRepo) snapshot() interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[string]*model.Subscription, len(m.subs))
	for k, v := range m.subs {
		s := *v
		cp[k] = &s
	}
	return cp
}

func (m *memSubRepo) restore(s interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = s.(map[string]*model.Subscription)
}

func (m *memSubRepo) Save(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.subs[s.ID] = &cp
	return nil
}

func (m *memSubRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID int64) (*model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *model.Subscription
	now := time.Now()
	for _, s := range m.subs {
		if s.UserID == userID && s.IsActive && s.EndDate.After(now) {
			if best == nil || s.EndDate.After(best.EndDate) {
				best = s
			}
		}
	}
	if best == nil {
		return nil, domain.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *memSubRepo) CancelActiveWithGrace(ctx context.Context, tx repository.Tx, userID int64, graceEnd time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	now := time.Now()
	for _, s := range m.subs {
		if s.UserID == userID && s.IsActive && s.EndDate.After(now) {
			if graceEnd.Before(s.EndDate) {
				s.EndDate = graceEnd
			}
			s.AutoRenewEnabled = false
			n++
		}
	}
	return n, nil
}

// ===== users =====

type memUserRepo struct {
	mu    sync.Mutex
	store map[int64]*model.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{store: make(map[int64]*model.User)}
}

func (m *memUserRepo) snapshot() interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[int64]*model.User, len(m.store))
	for k, v := range m.store {
		u := *v
		cp[k] = &u
	}
	return cp
}

func (m *memUserRepo) restore(s interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = s.(map[int64]*model.User)
}

func (m *memUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.store[u.ID] = &cp
	return nil
}

func (m *memUserRepo) FindByID(ctx context.Context, tx repository.Tx, id int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// ===== promo codes =====

type memPromoRepo struct {
	mu    sync.Mutex
	store map[int64]*model.PromoCode
}

func newMemPromoRepo() *memPromoRepo {
	return &memPromoRepo{store: make(map[int64]*model.PromoCode)}
}

func (m *memPromoRepo) snapshot() interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make(map[int64]*model.PromoCode, len(m.store))
	for k, v := range m.store {
		c := *v
		cp[k] = &c
	}
	return cp
}

func (m *memPromoRepo) restore(s interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = s.(map[int64]*model.PromoCode)
}

func (m *memPromoRepo) FindByCode(ctx context.Context, tx repository.Tx, code string) (*model.PromoCode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.store {
		if c.Code == code {
			cp := *c
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memPromoRepo) ConsumeActivation(ctx context.Context, tx repository.Tx, promoCodeID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[promoCodeID]
	if !ok {
		return 0, domain.ErrNotFound
	}
	if !c.IsActive || (c.ValidUntil != nil && c.ValidUntil.Before(time.Now())) {
		return 0, domain.ErrPromoInactive
	}
	if c.CurrentActivations >= c.MaxActivations {
		return 0, domain.ErrPromoExhausted
	}
	c.CurrentActivations++
	return c.BonusDays, nil
}

// ===== locker =====

type memLocker struct {
	mu    sync.Mutex
	locks map[string]string
}

func newMemLocker() *memLocker {
	return &memLocker{locks: make(map[string]string)}
}

func (m *memLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	for i := 0; i < 3; i++ {
		m.mu.Lock()
		if _, held := m.locks[key]; !held {
			token := key + "-token"
			m.locks[key] = token
			m.mu.Unlock()
			return token, nil
		}
		m.mu.Unlock()
		time.Sleep(5 * time.Millisecond)
	}
	return "", domain.ErrLockUnavailable
}

func (m *memLocker) Unlock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.locks[key] != token {
		return errors.New("not the lock holder")
	}
	delete(m.locks, key)
	return nil
}

// ===== adapters =====

type stubReferral struct {
	applyFn func(ctx context.Context, userID int64, months int, ledgerID string) (*adapter.ReferralBonus, error)
}

func (s *stubReferral) ApplyForPayment(ctx context.Context, userID int64, months int, ledgerID string) (*adapter.ReferralBonus, error) {
	if s.applyFn == nil {
		return nil, nil
	}
	return s.applyFn(ctx, userID, months, ledgerID)
}

type stubPanel struct {
	link string
	err  error
}

func (s *stubPanel) AccessLink(ctx context.Context, userID int64) (string, error) {
	return s.link, s.err
}

type stubGateway struct {
	name     model.Provider
	createFn func(ctx context.Context, req adapter.CreatePaymentRequest) (string, string, error)
	fetchFn  func(ctx context.Context, p *model.Payment) (*model.ProviderEvent, error)
}

func (s *stubGateway) Name() model.Provider { return s.name }

func (s *stubGateway) CreatePayment(ctx context.Context, req adapter.CreatePaymentRequest) (string, string, error) {
	return s.createFn(ctx, req)
}

func (s *stubGateway) FetchEvent(ctx context.Context, p *model.Payment) (*model.ProviderEvent, error) {
	if s.fetchFn == nil {
		return nil, domain.ErrNotFound
	}
	return s.fetchFn(ctx, p)
}

// notifyRecorder captures fire-and-forget outcome notifications.
type notifyRecorder struct {
	mu   sync.Mutex
	outs []*model.ActivationOutcome
}

func (n *notifyRecorder) fn() func(out *model.ActivationOutcome) {
	return func(out *model.ActivationOutcome) {
		n.mu.Lock()
		defer n.mu.Unlock()
		n.outs = append(n.outs, out)
	}
}

func (n *notifyRecorder) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.outs)
}
