package purchaserequest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/unipro/procurement/internal/config"
	"github.com/unipro/procurement/internal/entity"
	"github.com/unipro/procurement/internal/identity"
	"github.com/unipro/procurement/internal/notification"
	repo "github.com/unipro/procurement/internal/repository/purchaserequest"
	"github.com/unipro/procurement/internal/stage"
	"github.com/unipro/procurement/pkg/errorbank"
)

var (
	requester   = identity.Actor{ID: 10, Role: identity.RoleFieldTeam}
	purchasing  = identity.Actor{ID: 11, Role: identity.RolePurchasing}
	costControl = identity.Actor{ID: 12, Role: identity.RoleCostControl}
	gm          = identity.Actor{ID: 13, Role: identity.RoleGM}
)

// memStore is an in-memory Store with the same optimistic-concurrency
// contract as the database-backed repository.
type memStore struct {
	mu          sync.Mutex
	seq         int64
	entrySeq    int64
	prs         map[int64]*entity.PurchaseRequest
	unavailable bool
}

func newMemStore() *memStore {
	return &memStore{prs: make(map[int64]*entity.PurchaseRequest)}
}

func clonePR(pr *entity.PurchaseRequest) *entity.PurchaseRequest {
	cp := *pr
	cp.Items = nil
	cp.ApprovalHistory = nil
	cp.Comments = nil
	for _, item := range pr.Items {
		c := *item
		cp.Items = append(cp.Items, &c)
	}
	for _, entry := range pr.ApprovalHistory {
		c := *entry
		cp.ApprovalHistory = append(cp.ApprovalHistory, &c)
	}
	for _, comment := range pr.Comments {
		c := *comment
		cp.Comments = append(cp.Comments, &c)
	}
	return &cp
}

func (m *memStore) Create(_ context.Context, pr *entity.PurchaseRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return repo.ErrUnavailable
	}
	m.seq++
	pr.ID = m.seq
	for _, item := range pr.Items {
		item.PurchaseRequestID = pr.ID
	}
	m.prs[pr.ID] = clonePR(pr)
	return nil
}

func (m *memStore) GetByID(_ context.Context, id int64) (*entity.PurchaseRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return nil, repo.ErrUnavailable
	}
	pr, ok := m.prs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return clonePR(pr), nil
}

func (m *memStore) List(_ context.Context, f repo.ListFilter) ([]*entity.PurchaseRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return nil, repo.ErrUnavailable
	}
	var out []*entity.PurchaseRequest
	for _, pr := range m.prs {
		if f.ProjectID > 0 && pr.ProjectID != f.ProjectID {
			continue
		}
		if f.RequesterID > 0 && pr.RequesterID != f.RequesterID {
			continue
		}
		if f.Status != "" && pr.Status != f.Status {
			continue
		}
		if f.CurrentStage != "" && pr.CurrentStage != f.CurrentStage {
			continue
		}
		out = append(out, clonePR(pr))
	}
	return out, nil
}

func (m *memStore) CountCreatedInYear(_ context.Context, year int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return 0, repo.ErrUnavailable
	}
	var count int64
	for _, pr := range m.prs {
		if pr.CreatedAt.Year() == year {
			count++
		}
	}
	return count, nil
}

func (m *memStore) CompareAndApply(_ context.Context, id, expectedVersion int64, apply repo.ApplyFunc) (*entity.PurchaseRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return nil, repo.ErrUnavailable
	}
	stored, ok := m.prs[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return nil, repo.ErrVersionConflict
	}
	next := clonePR(stored)
	entry, err := apply(next)
	if err != nil {
		return nil, err
	}
	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now().UTC()
	if entry != nil {
		m.entrySeq++
		entry.ID = m.entrySeq
		entry.PurchaseRequestID = id
		next.ApprovalHistory = append(next.ApprovalHistory, entry)
	}
	m.prs[id] = clonePR(next)
	return clonePR(next), nil
}

func (m *memStore) AppendComment(_ context.Context, comment *entity.PRComment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return repo.ErrUnavailable
	}
	pr, ok := m.prs[comment.PurchaseRequestID]
	if !ok {
		return repo.ErrNotFound
	}
	comment.ID = int64(len(pr.Comments) + 1)
	c := *comment
	pr.Comments = append(pr.Comments, &c)
	return nil
}

func newTestService(t *testing.T, store Store, retries int) *Service {
	t.Helper()
	cfg := config.Config{}
	cfg.Approval.DecideRetries = retries
	cfg.Cache.DefaultTTL = time.Minute

	policy, err := stage.NewFixedPolicy(stage.DefaultSequence())
	if err != nil {
		t.Fatalf("NewFixedPolicy: %v", err)
	}
	emitter := notification.NewEmitter(notification.Params{
		Logger: zap.NewNop(),
		Config: cfg,
	})
	return NewWithStore(store, nil, policy, emitter, zap.NewNop(), cfg)
}

func validDraft() Draft {
	return Draft{
		ProjectID: 1,
		Title:     "Rebar for block A",
		Priority:  entity.PriorityNormal,
		Items: []DraftItem{
			{MaterialID: 1, Quantity: 500, Unit: "kg", EstimatedUnitPrice: 1.2},
			{MaterialID: 2, Quantity: 40, Unit: "sheet", EstimatedUnitPrice: 18.5},
		},
	}
}

func submit(t *testing.T, svc *Service) *entity.PurchaseRequest {
	t.Helper()
	pr, err := svc.Submit(context.Background(), requester, validDraft())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return pr
}

func kindOf(err error) errorbank.Kind {
	return errorbank.From(err).Kind()
}

// assertStateInvariant checks that pending implies a current stage and a
// terminal status implies none.
func assertStateInvariant(t *testing.T, pr *entity.PurchaseRequest) {
	t.Helper()
	pending := pr.Status == entity.StatusPending
	hasStage := pr.CurrentStage != ""
	if pending != hasStage {
		t.Fatalf("invariant violated: status=%q current_stage=%q", pr.Status, pr.CurrentStage)
	}
}

func TestSubmitStartsAtFirstStage(t *testing.T) {
	svc := newTestService(t, newMemStore(), 0)

	pr := submit(t, svc)

	if pr.Status != entity.StatusPending {
		t.Errorf("expected status pending, got %q", pr.Status)
	}
	if pr.CurrentStage != "Purchasing" {
		t.Errorf("expected current stage Purchasing, got %q", pr.CurrentStage)
	}
	if pr.RequesterID != requester.ID {
		t.Errorf("expected requester %d, got %d", requester.ID, pr.RequesterID)
	}
	wantNumber := fmt.Sprintf("PR-%d-0001", time.Now().UTC().Year())
	if pr.Number != wantNumber {
		t.Errorf("expected number %q, got %q", wantNumber, pr.Number)
	}
	wantTotal := 500*1.2 + 40*18.5
	if pr.TotalAmount != wantTotal {
		t.Errorf("expected total %f, got %f", wantTotal, pr.TotalAmount)
	}
	if len(pr.ApprovalHistory) != 0 {
		t.Errorf("expected empty approval history at submit, got %d entries", len(pr.ApprovalHistory))
	}
	assertStateInvariant(t, pr)
}

func TestSubmitNumbersAreSequentialPerYear(t *testing.T) {
	svc := newTestService(t, newMemStore(), 0)

	first := submit(t, svc)
	second := submit(t, svc)

	year := time.Now().UTC().Year()
	if first.Number != fmt.Sprintf("PR-%d-0001", year) || second.Number != fmt.Sprintf("PR-%d-0002", year) {
		t.Errorf("unexpected numbers: %q, %q", first.Number, second.Number)
	}
}

func TestSubmitValidation(t *testing.T) {
	svc := newTestService(t, newMemStore(), 0)

	cases := []struct {
		name   string
		mutate func(*Draft)
	}{
		{"empty title", func(d *Draft) { d.Title = " " }},
		{"missing project", func(d *Draft) { d.ProjectID = 0 }},
		{"no items", func(d *Draft) { d.Items = nil }},
		{"zero quantity", func(d *Draft) { d.Items[0].Quantity = 0 }},
		{"negative quantity", func(d *Draft) { d.Items[0].Quantity = -1 }},
		{"negative price", func(d *Draft) { d.Items[1].EstimatedUnitPrice = -0.01 }},
		{"missing unit", func(d *Draft) { d.Items[0].Unit = "" }},
		{"missing material", func(d *Draft) { d.Items[0].MaterialID = 0 }},
		{"unknown priority", func(d *Draft) { d.Priority = "critical" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			draft := validDraft()
			tc.mutate(&draft)
			_, err := svc.Submit(context.Background(), requester, draft)
			if kindOf(err) != errorbank.KindBadRequest {
				t.Errorf("expected bad request, got %v", err)
			}
		})
	}
}

func TestApproveThroughAllStages(t *testing.T) {
	svc := newTestService(t, newMemStore(), 0)
	ctx := context.Background()
	pr := submit(t, svc)

	steps := []struct {
		actor identity.Actor
		stage string
	}{
		{purchasing, "Purchasing"},
		{costControl, "Cost Control"},
		{gm, "GM"},
	}
	for _, step := range steps {
		updated, err := svc.Decide(ctx, step.actor, pr.ID, step.stage, entity.DecisionApproved, "ok")
		if err != nil {
			t.Fatalf("Decide(%s): %v", step.stage, err)
		}
		assertStateInvariant(t, updated)
	}

	final, err := svc.Get(ctx, pr.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != entity.StatusApproved {
		t.Errorf("expected approved, got %q", final.Status)
	}
	if final.CurrentStage != "" {
		t.Errorf("expected no current stage, got %q", final.CurrentStage)
	}
	if len(final.ApprovalHistory) != 3 {
		t.Fatalf("expected 3 history entries, got %d", len(final.ApprovalHistory))
	}
	// Approved entries must be exactly the stage-list prefix, in order.
	wantStages := []string{"Purchasing", "Cost Control", "GM"}
	for i, entry := range final.ApprovalHistory {
		if entry.Stage != wantStages[i] {
			t.Errorf("entry %d: expected stage %q, got %q", i, wantStages[i], entry.Stage)
		}
		if entry.Decision != entity.DecisionApproved {
			t.Errorf("entry %d: expected approved, got %q", i, entry.Decision)
		}
	}
}

func TestRejectAtSecondStageIsTerminal(t *testing.T) {
	svc := newTestService(t, newMemStore(), 0)
	ctx := context.Background()
	pr := submit(t, svc)

	if _, err := svc.Decide(ctx, purchasing, pr.ID, "Purchasing", entity.DecisionApproved, ""); err != nil {
		t.Fatalf("approve Purchasing: %v", err)
	}
	rejected, err := svc.Decide(ctx, costControl, pr.ID, "Cost Control", entity.DecisionRejected, "over budget")
	if err != nil {
		t.Fatalf("reject Cost Control: %v", err)
	}

	if rejected.Status != entity.StatusRejected {
		t.Errorf("expected rejected, got %q", rejected.Status)
	}
	if rejected.CurrentStage != "" {
		t.Errorf("expected no current stage, got %q", rejected.CurrentStage)
	}
	if len(rejected.ApprovalHistory) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(rejected.ApprovalHistory))
	}
	if rejected.ApprovalHistory[1].Decision != entity.DecisionRejected {
		t.Errorf("expected second entry rejected, got %q", rejected.ApprovalHistory[1].Decision)
	}
	if rejected.ApprovalHistory[1].Comment != "over budget" {
		t.Errorf("expected reason stored as comment, got %q", rejected.ApprovalHistory[1].Comment)
	}
	for _, entry := range rejected.ApprovalHistory {
		if entry.Stage == "GM" {
			t.Error("unexpected history entry for GM")
		}
	}
	assertStateInvariant(t, rejected)

	// No further decision succeeds, regardless of the stage argument.
	for _, stg := range []string{"Purchasing", "Cost Control", "GM"} {
		_, err := svc.Decide(ctx, gm, pr.ID, stg, entity.DecisionApproved, "")
		if !errors.Is(err, ErrAlreadyFinalized) {
			t.Errorf("stage %q: expected ErrAlreadyFinalized, got %v", stg, err)
		}
	}
}

func TestDecideStageMismatch(t *testing.T) {
	svc := newTestService(t, newMemStore(), 0)
	ctx := context.Background()
	pr := submit(t, svc)

	_, err := svc.Decide(ctx, gm, pr.ID, "GM", entity.DecisionApproved, "")
	if !errors.Is(err, ErrStageMismatch) {
		t.Fatalf("expected ErrStageMismatch, got %v", err)
	}
	if kindOf(err) != errorbank.KindConflict {
		t.Errorf("expected conflict kind, got %q", kindOf(err))
	}

	current, err := svc.Get(ctx, pr.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(current.ApprovalHistory) != 0 {
		t.Errorf("expected zero history entries, got %d", len(current.ApprovalHistory))
	}
	if current.CurrentStage != "Purchasing" {
		t.Errorf("expected stage unchanged, got %q", current.CurrentStage)
	}
}

func TestDecideWrongRoleIsForbidden(t *testing.T) {
	svc := newTestService(t, newMemStore(), 0)
	ctx := context.Background()
	pr := submit(t, svc)

	_, err := svc.Decide(ctx, costControl, pr.ID, "Purchasing", entity.DecisionApproved, "")
	if kindOf(err) != errorbank.KindForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	// The error must not leak which role is required.
	if msg := errorbank.From(err).Message(); msg != "not authorized to decide at this stage" {
		t.Errorf("unexpected message: %q", msg)
	}

	current, err := svc.Get(ctx, pr.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(current.ApprovalHistory) != 0 || current.CurrentStage != "Purchasing" {
		t.Error("expected no mutation after unauthorized decide")
	}
}

func TestDecideUnknownRequest(t *testing.T) {
	svc := newTestService(t, newMemStore(), 0)

	_, err := svc.Decide(context.Background(), purchasing, 404, "Purchasing", entity.DecisionApproved, "")
	if kindOf(err) != errorbank.KindNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestDecideUnknownDecision(t *testing.T) {
	svc := newTestService(t, newMemStore(), 0)
	pr := submit(t, svc)

	_, err := svc.Decide(context.Background(), purchasing, pr.ID, "Purchasing", entity.Decision("maybe"), "")
	if kindOf(err) != errorbank.KindBadRequest {
		t.Errorf("expected bad request, got %v", err)
	}
}

// barrierStore lets two concurrent Decide calls read the same version before
// either write commits, forcing a deterministic lost race.
type barrierStore struct {
	*memStore
	barrier sync.WaitGroup
	once    sync.Once
}

func (b *barrierStore) GetByID(ctx context.Context, id int64) (*entity.PurchaseRequest, error) {
	pr, err := b.memStore.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	b.barrier.Done()
	b.barrier.Wait()
	return pr, nil
}

func TestConcurrentDecidesExactlyOneWins(t *testing.T) {
	store := &barrierStore{memStore: newMemStore()}
	store.barrier.Add(2)
	svc := newTestService(t, store, 0)
	ctx := context.Background()

	// Seed directly so Submit does not pass through the barrier.
	seeded := &entity.PurchaseRequest{
		Number:       "PR-2026-0042",
		ProjectID:    1,
		RequesterID:  requester.ID,
		Title:        "Concrete pumps",
		Priority:     entity.PriorityNormal,
		Status:       entity.StatusPending,
		CurrentStage: "Purchasing",
		CreatedAt:    time.Now().UTC(),
		Items:        []*entity.PRItem{{MaterialID: 1, Quantity: 2, Unit: "unit", EstimatedUnitPrice: 1500}},
	}
	if err := store.memStore.Create(ctx, seeded); err != nil {
		t.Fatalf("seed: %v", err)
	}

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := svc.Decide(ctx, purchasing, seeded.ID, "Purchasing", entity.DecisionApproved, "")
			results <- err
		}()
	}

	var wins, losses int
	for i := 0; i < 2; i++ {
		err := <-results
		switch {
		case err == nil:
			wins++
		case errors.Is(err, ErrConcurrentModification) || errors.Is(err, ErrStageMismatch):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || losses != 1 {
		t.Fatalf("expected exactly one winner, got wins=%d losses=%d", wins, losses)
	}

	final, err := store.memStore.GetByID(ctx, seeded.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	var entriesForStage int
	for _, entry := range final.ApprovalHistory {
		if entry.Stage == "Purchasing" {
			entriesForStage++
		}
	}
	if entriesForStage != 1 {
		t.Errorf("expected exactly one history entry for Purchasing, got %d", entriesForStage)
	}
	if final.CurrentStage != "Cost Control" {
		t.Errorf("expected Cost Control after single approve, got %q", final.CurrentStage)
	}
}

// conflictStore fails the first n compare-and-apply calls with a version
// conflict to exercise the engine's bounded internal retry.
type conflictStore struct {
	*memStore
	mu        sync.Mutex
	conflicts int
}

func (c *conflictStore) CompareAndApply(ctx context.Context, id, expectedVersion int64, apply repo.ApplyFunc) (*entity.PurchaseRequest, error) {
	c.mu.Lock()
	if c.conflicts > 0 {
		c.conflicts--
		c.mu.Unlock()
		return nil, repo.ErrVersionConflict
	}
	c.mu.Unlock()
	return c.memStore.CompareAndApply(ctx, id, expectedVersion, apply)
}

func TestDecideRetriesLostRaceOnce(t *testing.T) {
	store := &conflictStore{memStore: newMemStore(), conflicts: 1}
	svc := newTestService(t, store, 1)
	pr := submit(t, svc)

	updated, err := svc.Decide(context.Background(), purchasing, pr.ID, "Purchasing", entity.DecisionApproved, "")
	if err != nil {
		t.Fatalf("expected retried decide to succeed, got %v", err)
	}
	if updated.CurrentStage != "Cost Control" {
		t.Errorf("expected Cost Control, got %q", updated.CurrentStage)
	}
}

func TestDecideSurfacesConflictWhenRetriesExhausted(t *testing.T) {
	store := &conflictStore{memStore: newMemStore(), conflicts: 5}
	svc := newTestService(t, store, 1)
	pr := submit(t, svc)

	_, err := svc.Decide(context.Background(), purchasing, pr.ID, "Purchasing", entity.DecisionApproved, "")
	if !errors.Is(err, ErrConcurrentModification) {
		t.Fatalf("expected ErrConcurrentModification, got %v", err)
	}
	if kindOf(err) != errorbank.KindConflict {
		t.Errorf("expected conflict kind, got %q", kindOf(err))
	}
}

func TestStoreUnavailableSurfacesAsRetryable(t *testing.T) {
	store := newMemStore()
	svc := newTestService(t, store, 0)
	pr := submit(t, svc)

	store.mu.Lock()
	store.unavailable = true
	store.mu.Unlock()

	_, err := svc.Decide(context.Background(), purchasing, pr.ID, "Purchasing", entity.DecisionApproved, "")
	if kindOf(err) != errorbank.KindUnavailable {
		t.Errorf("expected unavailable kind, got %v", err)
	}
	if !errors.Is(err, repo.ErrUnavailable) {
		t.Errorf("expected repo.ErrUnavailable cause, got %v", err)
	}
}

func TestAddCommentOnApprovedRequest(t *testing.T) {
	svc := newTestService(t, newMemStore(), 0)
	ctx := context.Background()
	pr := submit(t, svc)

	for _, step := range []struct {
		actor identity.Actor
		stage string
	}{{purchasing, "Purchasing"}, {costControl, "Cost Control"}, {gm, "GM"}} {
		if _, err := svc.Decide(ctx, step.actor, pr.ID, step.stage, entity.DecisionApproved, ""); err != nil {
			t.Fatalf("Decide(%s): %v", step.stage, err)
		}
	}

	comment, err := svc.AddComment(ctx, requester, pr.ID, "please expedite delivery")
	if err != nil {
		t.Fatalf("AddComment: %v", err)
	}
	if comment.AuthorID != requester.ID {
		t.Errorf("expected author %d, got %d", requester.ID, comment.AuthorID)
	}

	final, err := svc.Get(ctx, pr.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if final.Status != entity.StatusApproved || final.CurrentStage != "" {
		t.Error("comment must not alter approval state")
	}
	if len(final.Comments) != 1 {
		t.Errorf("expected 1 comment, got %d", len(final.Comments))
	}
}

func TestAddCommentValidation(t *testing.T) {
	svc := newTestService(t, newMemStore(), 0)
	ctx := context.Background()
	pr := submit(t, svc)

	if _, err := svc.AddComment(ctx, requester, pr.ID, "   "); kindOf(err) != errorbank.KindBadRequest {
		t.Errorf("expected bad request for blank text, got %v", err)
	}
	if _, err := svc.AddComment(ctx, requester, 404, "hello"); kindOf(err) != errorbank.KindNotFound {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestListProjections(t *testing.T) {
	svc := newTestService(t, newMemStore(), 0)
	ctx := context.Background()

	first := submit(t, svc)
	second := submit(t, svc)

	// Move the second request to Cost Control and finalize the first.
	if _, err := svc.Decide(ctx, purchasing, second.ID, "Purchasing", entity.DecisionApproved, ""); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if _, err := svc.Decide(ctx, purchasing, first.ID, "Purchasing", entity.DecisionRejected, "duplicate order"); err != nil {
		t.Fatalf("Decide: %v", err)
	}

	pendingForCC, err := svc.List(ctx, costControl, "pending_approval", 0)
	if err != nil {
		t.Fatalf("List pending_approval: %v", err)
	}
	if len(pendingForCC) != 1 || pendingForCC[0].ID != second.ID {
		t.Errorf("expected only second request pending for cost control, got %d", len(pendingForCC))
	}

	pendingForPurchasing, err := svc.List(ctx, purchasing, "pending_approval", 0)
	if err != nil {
		t.Fatalf("List pending_approval: %v", err)
	}
	if len(pendingForPurchasing) != 0 {
		t.Errorf("expected empty purchasing queue, got %d", len(pendingForPurchasing))
	}

	// A role outside the approval path has an empty queue, not an error.
	pendingForRequester, err := svc.List(ctx, requester, "pending_approval", 0)
	if err != nil {
		t.Fatalf("List pending_approval: %v", err)
	}
	if len(pendingForRequester) != 0 {
		t.Errorf("expected empty queue for requester role, got %d", len(pendingForRequester))
	}

	mine, err := svc.List(ctx, requester, "my_requests", 0)
	if err != nil {
		t.Fatalf("List my_requests: %v", err)
	}
	if len(mine) != 2 {
		t.Errorf("expected 2 own requests, got %d", len(mine))
	}

	rejected, err := svc.List(ctx, requester, "rejected", 0)
	if err != nil {
		t.Fatalf("List rejected: %v", err)
	}
	if len(rejected) != 1 || rejected[0].ID != first.ID {
		t.Errorf("expected first request rejected, got %d", len(rejected))
	}

	if _, err := svc.List(ctx, requester, "everything", 0); kindOf(err) != errorbank.KindBadRequest {
		t.Errorf("expected bad request for unknown filter, got %v", err)
	}
}

// collideStore simulates a concurrent submit claiming the generated number:
// a failing Create leaves the competing request in the store before
// reporting the duplicate.
type collideStore struct {
	*memStore
	failMu    sync.Mutex
	remaining int
}

func (c *collideStore) Create(ctx context.Context, pr *entity.PurchaseRequest) error {
	c.failMu.Lock()
	collide := c.remaining > 0
	if collide {
		c.remaining--
	}
	c.failMu.Unlock()
	if !collide {
		return c.memStore.Create(ctx, pr)
	}
	winner := &entity.PurchaseRequest{
		Number:       pr.Number,
		ProjectID:    pr.ProjectID,
		RequesterID:  99,
		Title:        "competing submit",
		Priority:     entity.PriorityNormal,
		Status:       entity.StatusPending,
		CurrentStage: pr.CurrentStage,
		CreatedAt:    time.Now().UTC(),
	}
	if err := c.memStore.Create(ctx, winner); err != nil {
		return err
	}
	return repo.ErrDuplicateNumber
}

func TestSubmitRegeneratesNumberOnCollision(t *testing.T) {
	store := &collideStore{memStore: newMemStore(), remaining: 1}
	svc := newTestService(t, store, 0)

	pr := submit(t, svc)

	year := time.Now().UTC().Year()
	if want := fmt.Sprintf("PR-%d-0002", year); pr.Number != want {
		t.Errorf("expected regenerated number %q, got %q", want, pr.Number)
	}
}

func TestSubmitSurfacesPersistentNumberCollision(t *testing.T) {
	store := &collideStore{memStore: newMemStore(), remaining: 5}
	svc := newTestService(t, store, 0)

	_, err := svc.Submit(context.Background(), requester, validDraft())
	if !errors.Is(err, repo.ErrDuplicateNumber) {
		t.Fatalf("expected duplicate number cause, got %v", err)
	}
	if kindOf(err) != errorbank.KindConflict {
		t.Errorf("expected conflict kind, got %q", kindOf(err))
	}
}
