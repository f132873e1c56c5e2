// internal/services/helpers_test.go
package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/partner-engine/internal/config"
	"github.com/javajoker/partner-engine/internal/events"
	"github.com/javajoker/partner-engine/internal/models"
	"github.com/javajoker/partner-engine/internal/repository"
	"github.com/javajoker/partner-engine/internal/repository/memory"
)

var (
	adminActor = Actor{ID: "admin-1", IP: "127.0.0.1"}
	ctx        = context.Background()
)

type publishedEvent struct {
	Type string
	Key  string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, eventType, key string, _ interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{Type: eventType, Key: key})
	return nil
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type fakeGateway struct {
	ref   string
	err   error
	calls []TransferRequest
}

func (g *fakeGateway) Transfer(_ context.Context, req TransferRequest) (string, error) {
	g.calls = append(g.calls, req)
	if g.err != nil {
		return "", g.err
	}
	return g.ref, nil
}

var (
	errGatewayDown = errors.New("gateway unavailable")
	errStorageDown = errors.New("storage unavailable")
)

// storeFaults injects failures into a faultyStore. The zero value injects
// nothing.
type storeFaults struct {
	mu                sync.Mutex
	armed             bool
	commissionUpdates int // updates allowed while armed before failing
	usageConflicts    bool
	usageCalls        int
}

// failCommissionUpdatesAfter lets n commission updates through and fails the
// rest.
func (f *storeFaults) failCommissionUpdatesAfter(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = true
	f.commissionUpdates = n
}

func (f *storeFaults) heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.armed = false
	f.usageConflicts = false
}

func (f *storeFaults) conflictOnUsage() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usageConflicts = true
}

func (f *storeFaults) usageAttempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usageCalls
}

type faultyStore struct {
	repository.Store
	faults *storeFaults
}

func (s faultyStore) Commissions() repository.CommissionRepository {
	return faultyCommissions{CommissionRepository: s.Store.Commissions(), faults: s.faults}
}

func (s faultyStore) Policies() repository.PolicyRepository {
	return faultyPolicies{PolicyRepository: s.Store.Policies(), faults: s.faults}
}

func (s faultyStore) WithTx(ctx context.Context, fn func(tx repository.Store) error) error {
	return s.Store.WithTx(ctx, func(tx repository.Store) error {
		return fn(faultyStore{Store: tx, faults: s.faults})
	})
}

type faultyCommissions struct {
	repository.CommissionRepository
	faults *storeFaults
}

func (r faultyCommissions) Update(ctx context.Context, c *models.PartnerCommission) error {
	r.faults.mu.Lock()
	if r.faults.armed {
		if r.faults.commissionUpdates <= 0 {
			r.faults.mu.Unlock()
			return errStorageDown
		}
		r.faults.commissionUpdates--
	}
	r.faults.mu.Unlock()
	return r.CommissionRepository.Update(ctx, c)
}

type faultyPolicies struct {
	repository.PolicyRepository
	faults *storeFaults
}

func (r faultyPolicies) IncrementUsage(ctx context.Context, policyID, partnerID uuid.UUID, expectedVersion int) error {
	r.faults.mu.Lock()
	r.faults.usageCalls++
	conflict := r.faults.usageConflicts
	r.faults.mu.Unlock()
	if conflict {
		return repository.ErrVersionConflict
	}
	return r.PolicyRepository.IncrementUsage(ctx, policyID, partnerID, expectedVersion)
}

type testEnv struct {
	store        *memory.Store
	audit        *AuditService
	partners     *PartnerService
	catalog      *CatalogService
	links        *LinkService
	clicks       *ClickService
	commissions  *CommissionService
	attribution  *AttributionService
	policies     *PolicyService
	settlements  *SettlementService
	fingerprints *Fingerprinter
	publisher    *recordingPublisher
	gateway      *fakeGateway
	faults       *storeFaults
	exportDir    string
}

func newTestEnv(t *testing.T, hold time.Duration, model string) *testEnv {
	t.Helper()
	return newFaultyTestEnv(t, hold, model, nil)
}

// newFaultyTestEnv wires the services through a faultyStore when faults is
// set. env.store stays the unwrapped store for assertions.
func newFaultyTestEnv(t *testing.T, hold time.Duration, model string, faults *storeFaults) *testEnv {
	t.Helper()

	raw := memory.NewStore()
	var store repository.Store = raw
	if faults != nil {
		store = faultyStore{Store: raw, faults: faults}
	}
	audit := NewAuditService(store)
	publisher := &recordingPublisher{}
	notifier := NewNotificationService(config.EmailConfig{})

	env := &testEnv{
		store:        raw,
		faults:       faults,
		audit:        audit,
		publisher:    publisher,
		fingerprints: NewFingerprinter("test-secret"),
		gateway:      &fakeGateway{ref: "tr_test"},
		exportDir:    t.TempDir(),
	}
	env.partners = NewPartnerService(store, audit)
	env.catalog = NewCatalogService(store)
	env.links = NewLinkService(store, config.LinksConfig{
		BaseURL:             "https://go.test/l/",
		CodeLength:          8,
		MaxRetries:          3,
		BlockedProductTypes: []string{"alcohol", "tobacco"},
	}, audit)
	env.clicks = NewClickService(store, env.links, nil, 30*time.Minute)
	env.commissions = NewCommissionService(store, audit, publisher, config.CommissionConfig{
		HoldPeriod:      hold,
		RetryAttempts:   3,
		RetryBaseDelay:  time.Millisecond,
		DefaultCurrency: "KRW",
	})
	env.attribution = NewAttributionService(store, env.links, env.commissions, env.fingerprints, audit, config.AttributionConfig{
		Model:       model,
		Window:      720 * time.Hour,
		DedupWindow: 30 * time.Minute,
	}, "KRW")
	env.policies = NewPolicyService(store, audit, notifier, RetryPolicy{Attempts: 3, BaseDelay: time.Millisecond})

	storage, err := NewStorageService(config.AWSConfig{ExportPrefix: "settlements/", LocalExportDir: env.exportDir})
	require.NoError(t, err)
	env.settlements = NewSettlementService(store, NewLocalLocker(), audit, config.SettlementConfig{LockTTL: time.Second}, "KRW", SettlementDeps{
		Publisher: publisher,
		Storage:   storage,
		Gateway:   env.gateway,
		Notifier:  notifier,
	})
	return env
}

func (env *testEnv) activePartner(t *testing.T, name string) *models.Partner {
	t.Helper()
	partner, err := env.partners.Register(ctx, &RegisterPartnerRequest{
		Name:            name,
		Email:           name + "@partners.test",
		Tier:            "gold",
		PayoutAccountID: "acct_" + name,
	}, adminActor)
	require.NoError(t, err)
	partner, err = env.partners.Approve(ctx, partner.ID, adminActor)
	require.NoError(t, err)
	return partner
}

func (env *testEnv) product(t *testing.T, sku, productType string) *models.CatalogItem {
	t.Helper()
	item, err := env.catalog.Upsert(ctx, &UpsertCatalogItemRequest{
		TargetType:  "product",
		TargetID:    sku,
		Title:       "Product " + sku,
		URL:         "https://shop.test/p/" + sku,
		ProductType: productType,
		Category:    "skincare",
	})
	require.NoError(t, err)
	return item
}

func (env *testEnv) link(t *testing.T, partner *models.Partner, sku string) *models.PartnerLink {
	t.Helper()
	env.product(t, sku, "cosmetics")
	link, err := env.links.CreateLink(ctx, &CreateLinkRequest{
		PartnerID:  partner.ID,
		TargetType: "product",
		TargetID:   sku,
	}, adminActor)
	require.NoError(t, err)
	return link
}

func (env *testEnv) click(t *testing.T, link *models.PartnerLink, visitor string, at time.Time) *ClickResult {
	t.Helper()
	res, err := env.clicks.RecordClick(ctx, ClickInput{
		Code:        link.ShortCode,
		Fingerprint: env.fingerprints.Visitor(visitor),
		At:          at,
	})
	require.NoError(t, err)
	return res
}

func (env *testEnv) ratePolicy(t *testing.T, name, rate string, priority int) *models.CommissionPolicy {
	t.Helper()
	policy, err := env.policies.Create(ctx, &PolicyRequest{
		Name:           name,
		PolicyType:     "default",
		CommissionType: "percentage",
		Rate:           decimal.RequireFromString(rate),
		Priority:       priority,
		Status:         "active",
	}, adminActor)
	require.NoError(t, err)
	return policy
}

func orderEvent(orderID, visitor string, amount int64, at time.Time) *events.OrderEvent {
	return &events.OrderEvent{
		OrderID:            orderID,
		Amount:             decimal.NewFromInt(amount),
		Currency:           "KRW",
		Timestamp:          at,
		VisitorFingerprint: visitor,
	}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
