package handler

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/DukeRupert/hiretrack/internal/auth"
	"github.com/DukeRupert/hiretrack/internal/domain"
	"github.com/DukeRupert/hiretrack/internal/service"
	"github.com/stripe/stripe-go/v79"
)

var errNotImplemented = errors.New("not implemented")

var errNoRows = sql.ErrNoRows

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// withPrincipal attaches a principal as WithPrincipal would.
func withPrincipal(r *http.Request, id string) *http.Request {
	return r.WithContext(auth.SetPrincipal(r.Context(), &auth.Principal{ID: id, Email: id + "@example.com"}))
}

// passthrough stands in for the auth middleware stacks.
func passthrough(next http.Handler) http.Handler { return next }

type mockProfiles struct {
	EnsureUserFunc    func(ctx context.Context, id, email, name string) (*domain.User, error)
	GetHeaderDataFunc func(ctx context.Context, userID string) (*service.HeaderData, error)
}

func (m *mockProfiles) EnsureUser(ctx context.Context, id, email, name string) (*domain.User, error) {
	if m.EnsureUserFunc != nil {
		return m.EnsureUserFunc(ctx, id, email, name)
	}
	return &domain.User{ID: id, Email: email}, nil
}

func (m *mockProfiles) GetHeaderData(ctx context.Context, userID string) (*service.HeaderData, error) {
	if m.GetHeaderDataFunc != nil {
		return m.GetHeaderDataFunc(ctx, userID)
	}
	return nil, errNotImplemented
}

type mockEntitlements struct {
	VerifyTierAccessFunc func(ctx context.Context, key domain.ServiceKey, action domain.QuotaAction) (domain.QuotaCheck, error)
}

func (m *mockEntitlements) Verify(ctx context.Context, userID string, key domain.ServiceKey, action domain.QuotaAction) (domain.QuotaCheck, error) {
	return domain.QuotaCheck{}, errNotImplemented
}

func (m *mockEntitlements) VerifyTierAccess(ctx context.Context, key domain.ServiceKey, action domain.QuotaAction) (domain.QuotaCheck, error) {
	if m.VerifyTierAccessFunc != nil {
		return m.VerifyTierAccessFunc(ctx, key, action)
	}
	return domain.QuotaCheck{}, errNotImplemented
}

func (m *mockEntitlements) DecrementServiceUsage(ctx context.Context, userID string, key domain.ServiceKey, amount int) error {
	return errNotImplemented
}

type mockConfig struct {
	cfg                  *domain.QuotaConfig
	err                  error
	UpdateFunc           func(ctx context.Context, actor string, upd domain.ConfigUpdate) (*domain.QuotaConfig, error)
	AddServiceFunc       func(ctx context.Context, actor string, key domain.ServiceKey, name, description string) (*domain.QuotaConfig, error)
	SetServiceActiveFunc func(ctx context.Context, actor string, key domain.ServiceKey, active bool) (*domain.QuotaConfig, error)
	RemoveServiceFunc    func(ctx context.Context, actor string, key domain.ServiceKey) (*domain.QuotaConfig, error)
}

func (m *mockConfig) Get(ctx context.Context) (*domain.QuotaConfig, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.cfg == nil {
		return domain.DefaultQuotaConfig(), nil
	}
	return m.cfg, nil
}

func (m *mockConfig) EnsureExists(ctx context.Context) error { return m.err }

func (m *mockConfig) Update(ctx context.Context, actor string, upd domain.ConfigUpdate) (*domain.QuotaConfig, error) {
	if m.UpdateFunc != nil {
		return m.UpdateFunc(ctx, actor, upd)
	}
	return nil, errNotImplemented
}

func (m *mockConfig) AddService(ctx context.Context, actor string, key domain.ServiceKey, name, description string) (*domain.QuotaConfig, error) {
	if m.AddServiceFunc != nil {
		return m.AddServiceFunc(ctx, actor, key, name, description)
	}
	return nil, errNotImplemented
}

func (m *mockConfig) SetServiceActive(ctx context.Context, actor string, key domain.ServiceKey, active bool) (*domain.QuotaConfig, error) {
	if m.SetServiceActiveFunc != nil {
		return m.SetServiceActiveFunc(ctx, actor, key, active)
	}
	return nil, errNotImplemented
}

func (m *mockConfig) RemoveService(ctx context.Context, actor string, key domain.ServiceKey) (*domain.QuotaConfig, error) {
	if m.RemoveServiceFunc != nil {
		return m.RemoveServiceFunc(ctx, actor, key)
	}
	return nil, errNotImplemented
}

// mockQuotas implements only the reset used by the admin handler.
type mockQuotas struct {
	service.QuotaService
	ResetQuotaFunc func(ctx context.Context, userID string, tier domain.Tier, periodEnd *time.Time, reason string) (*domain.UserQuota, error)
}

func (m *mockQuotas) ResetQuota(ctx context.Context, userID string, tier domain.Tier, periodEnd *time.Time, reason string) (*domain.UserQuota, error) {
	if m.ResetQuotaFunc != nil {
		return m.ResetQuotaFunc(ctx, userID, tier, periodEnd, reason)
	}
	return nil, errNotImplemented
}

type mockReconciler struct {
	ReconcileFunc func(ctx context.Context, userID string) (*domain.User, error)
}

func (m *mockReconciler) Sync(ctx context.Context, user *domain.User) *domain.User { return user }

func (m *mockReconciler) Reconcile(ctx context.Context, userID string) (*domain.User, error) {
	if m.ReconcileFunc != nil {
		return m.ReconcileFunc(ctx, userID)
	}
	return nil, errNotImplemented
}

type mockUsers struct {
	users map[string]*domain.User
}

func (m *mockUsers) GetUser(ctx context.Context, id string) (*domain.User, error) {
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, errNoRows
}

type mockBilling struct {
	StartCheckoutFunc func(ctx context.Context, userID string, tier domain.Tier) (string, error)
	OpenPortalFunc    func(ctx context.Context, userID string) (string, error)
	CancelFunc        func(ctx context.Context, userID string) (*domain.User, error)
	ReactivateFunc    func(ctx context.Context, userID string) (*domain.User, error)
}

func (m *mockBilling) StartCheckout(ctx context.Context, userID string, tier domain.Tier) (string, error) {
	if m.StartCheckoutFunc != nil {
		return m.StartCheckoutFunc(ctx, userID, tier)
	}
	return "", errNotImplemented
}

func (m *mockBilling) OpenPortal(ctx context.Context, userID string) (string, error) {
	if m.OpenPortalFunc != nil {
		return m.OpenPortalFunc(ctx, userID)
	}
	return "", errNotImplemented
}

func (m *mockBilling) Cancel(ctx context.Context, userID string) (*domain.User, error) {
	if m.CancelFunc != nil {
		return m.CancelFunc(ctx, userID)
	}
	return nil, errNotImplemented
}

func (m *mockBilling) Reactivate(ctx context.Context, userID string) (*domain.User, error) {
	if m.ReactivateFunc != nil {
		return m.ReactivateFunc(ctx, userID)
	}
	return nil, errNotImplemented
}

type mockResumes struct {
	UploadFunc func(ctx context.Context, userID string, upload service.ResumeUpload) (*service.StoredResume, error)
}

func (m *mockResumes) Upload(ctx context.Context, userID string, upload service.ResumeUpload) (*service.StoredResume, error) {
	if m.UploadFunc != nil {
		return m.UploadFunc(ctx, userID, upload)
	}
	return nil, errNotImplemented
}

type mockVerifier struct {
	VerifyFunc func(payload []byte, signature string) (stripe.Event, error)
	ParseFunc  func(event stripe.Event) (*domain.BillingEvent, error)
}

func (m *mockVerifier) VerifyWebhookSignature(payload []byte, signature string) (stripe.Event, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(payload, signature)
	}
	return stripe.Event{}, errNotImplemented
}

func (m *mockVerifier) ParseEvent(event stripe.Event) (*domain.BillingEvent, error) {
	if m.ParseFunc != nil {
		return m.ParseFunc(event)
	}
	return &domain.BillingEvent{ID: event.ID, Type: domain.BillingEventType(event.Type)}, nil
}

type mockSubscriptions struct {
	events []*domain.BillingEvent
	err    error
}

func (m *mockSubscriptions) HandleEvent(ctx context.Context, ev *domain.BillingEvent) error {
	m.events = append(m.events, ev)
	return m.err
}

type fakePinger struct{ err error }

func (p fakePinger) PingContext(context.Context) error { return p.err }
