package stocktake

import (
	"context"
	"errors"
	"testing"

	"tillpoint/internal/core/apperror"
	appctx "tillpoint/internal/core/context"
	"tillpoint/internal/core/id"
	"tillpoint/internal/core/numerator"
	"tillpoint/internal/core/types"
	"tillpoint/internal/domain"
	"tillpoint/internal/domain/stock"
)

// fakeRepo is an in-memory Repository keyed by document ID.
type fakeRepo struct {
	docs  map[id.ID]StockTake
	lines map[id.ID][]CountLine
}

var _ Repository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		docs:  make(map[id.ID]StockTake),
		lines: make(map[id.ID][]CountLine),
	}
}

type repoSnapshot struct {
	docs  map[id.ID]StockTake
	lines map[id.ID][]CountLine
}

func (r *fakeRepo) snapshot() repoSnapshot {
	s := repoSnapshot{
		docs:  make(map[id.ID]StockTake, len(r.docs)),
		lines: make(map[id.ID][]CountLine, len(r.lines)),
	}
	for k, v := range r.docs {
		s.docs[k] = v
	}
	for k, v := range r.lines {
		s.lines[k] = append([]CountLine(nil), v...)
	}
	return s
}

func (r *fakeRepo) restore(s repoSnapshot) {
	r.docs = s.docs
	r.lines = s.lines
}

func (r *fakeRepo) Create(_ context.Context, doc *StockTake) error {
	r.docs[doc.ID] = *doc
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, docID id.ID) (*StockTake, error) {
	doc, ok := r.docs[docID]
	if !ok {
		return nil, apperror.NewNotFound("stock take", docID.String())
	}
	out := doc
	return &out, nil
}

func (r *fakeRepo) GetByNumber(_ context.Context, number string) (*StockTake, error) {
	for _, doc := range r.docs {
		if doc.Number == number {
			out := doc
			return &out, nil
		}
	}
	return nil, apperror.NewNotFound("stock take", number)
}

func (r *fakeRepo) Update(_ context.Context, doc *StockTake) error {
	if _, ok := r.docs[doc.ID]; !ok {
		return apperror.NewNotFound("stock take", doc.ID.String())
	}
	r.docs[doc.ID] = *doc
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, docID id.ID) error {
	if _, ok := r.docs[docID]; !ok {
		return apperror.NewNotFound("stock take", docID.String())
	}
	delete(r.docs, docID)
	delete(r.lines, docID)
	return nil
}

func (r *fakeRepo) GetForUpdate(ctx context.Context, docID id.ID) (*StockTake, error) {
	return r.GetByID(ctx, docID)
}

func (r *fakeRepo) GetLines(_ context.Context, docID id.ID) ([]CountLine, error) {
	return append([]CountLine(nil), r.lines[docID]...), nil
}

func (r *fakeRepo) SaveLines(_ context.Context, docID id.ID, lines []CountLine) error {
	r.lines[docID] = append([]CountLine(nil), lines...)
	return nil
}

func (r *fakeRepo) List(_ context.Context, filter ListFilter) (domain.ListResult[*StockTake], error) {
	var result domain.ListResult[*StockTake]
	for _, doc := range r.docs {
		if filter.Status != nil && doc.Status != *filter.Status {
			continue
		}
		out := doc
		result.Items = append(result.Items, &out)
	}
	result.TotalCount = int64(len(result.Items))
	return result, nil
}

// fakeAdjuster holds on-hand quantities per product and records
// adjustments applied to them.
type fakeAdjuster struct {
	onHand      map[id.ID]types.Quantity
	adjustments []stock.AdjustInput
	failOn      id.ID
}

func newFakeAdjuster() *fakeAdjuster {
	return &fakeAdjuster{onHand: make(map[id.ID]types.Quantity)}
}

func (a *fakeAdjuster) AvailableStock(_ context.Context, productID, _ id.ID) (types.Quantity, error) {
	return a.onHand[productID], nil
}

func (a *fakeAdjuster) Adjust(_ context.Context, in stock.AdjustInput) (*stock.Batch, error) {
	if in.ProductID == a.failOn {
		return nil, errors.New("adjust failed")
	}
	a.adjustments = append(a.adjustments, in)
	a.onHand[in.ProductID] = in.NewQuantity
	return &stock.Batch{ProductID: in.ProductID, Quantity: in.NewQuantity}, nil
}

// fakeTxManager snapshots repo state on begin and restores on failure.
type fakeTxManager struct {
	repo *fakeRepo
}

func (m *fakeTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	snap := m.repo.snapshot()
	if err := fn(ctx); err != nil {
		m.repo.restore(snap)
		return err
	}
	return nil
}

// --- fixtures ---

func newTestService(repo *fakeRepo, engine *fakeAdjuster) *Service {
	return NewService(repo, engine, &numerator.MockGenerator{}, &fakeTxManager{repo: repo})
}

func counterCtx() context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID: "user-9",
		Email:  "backroom@example.com",
		Role:   appctx.RoleManager,
	})
}

// --- tests ---

func TestStartSnapshotsExpectedQuantities(t *testing.T) {
	repo := newFakeRepo()
	engine := newFakeAdjuster()
	svc := newTestService(repo, engine)

	p1, p2 := id.New(), id.New()
	engine.onHand[p1] = 12
	engine.onHand[p2] = 0

	doc, err := svc.Start(counterCtx(), id.New(), []id.ID{p1, p2})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if doc.Status != "draft" {
		t.Errorf("status = %s, want draft", doc.Status)
	}
	if doc.CountedBy != "user-9" {
		t.Errorf("countedBy = %q, want user-9", doc.CountedBy)
	}
	if doc.Number == "" {
		t.Error("number not assigned")
	}
	if len(doc.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(doc.Lines))
	}
	if doc.Lines[0].ExpectedQty != 12 || doc.Lines[0].CountedQty != 12 {
		t.Errorf("line 1 = %d/%d, want 12/12", doc.Lines[0].ExpectedQty, doc.Lines[0].CountedQty)
	}
	// Counted defaults to expected; an untouched line has zero variance.
	if doc.Lines[1].Variance() != 0 {
		t.Errorf("untouched line variance = %d", doc.Lines[1].Variance())
	}

	savedLines, _ := repo.GetLines(context.Background(), doc.ID)
	if len(savedLines) != 2 {
		t.Errorf("persisted lines = %d, want 2", len(savedLines))
	}
}

func TestStartWithoutProductsRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, newFakeAdjuster())

	_, err := svc.Start(counterCtx(), id.New(), nil)
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRecordCounts(t *testing.T) {
	repo := newFakeRepo()
	engine := newFakeAdjuster()
	svc := newTestService(repo, engine)

	p1, p2 := id.New(), id.New()
	engine.onHand[p1] = 10
	engine.onHand[p2] = 4

	doc, err := svc.Start(counterCtx(), id.New(), []id.ID{p1, p2})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	doc, err = svc.RecordCounts(counterCtx(), doc.ID, map[id.ID]types.Quantity{p1: 7})
	if err != nil {
		t.Fatalf("RecordCounts: %v", err)
	}

	if doc.Lines[0].CountedQty != 7 {
		t.Errorf("counted = %d, want 7", doc.Lines[0].CountedQty)
	}
	if doc.Lines[0].Variance() != -3 {
		t.Errorf("variance = %d, want -3", doc.Lines[0].Variance())
	}
	// Products not in the map keep their counted value.
	if doc.Lines[1].CountedQty != 4 {
		t.Errorf("untouched counted = %d, want 4", doc.Lines[1].CountedQty)
	}

	savedLines, _ := repo.GetLines(context.Background(), doc.ID)
	if savedLines[0].CountedQty != 7 {
		t.Errorf("persisted counted = %d, want 7", savedLines[0].CountedQty)
	}
}

func TestRecordCountsRejectsNegative(t *testing.T) {
	repo := newFakeRepo()
	engine := newFakeAdjuster()
	svc := newTestService(repo, engine)

	p := id.New()
	doc, err := svc.Start(counterCtx(), id.New(), []id.ID{p})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	_, err = svc.RecordCounts(counterCtx(), doc.ID, map[id.ID]types.Quantity{p: -1})
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCompleteAdjustsEveryLine(t *testing.T) {
	repo := newFakeRepo()
	engine := newFakeAdjuster()
	svc := newTestService(repo, engine)

	outletID := id.New()
	p1, p2 := id.New(), id.New()
	engine.onHand[p1] = 10
	engine.onHand[p2] = 5

	doc, err := svc.Start(counterCtx(), outletID, []id.ID{p1, p2})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.RecordCounts(counterCtx(), doc.ID, map[id.ID]types.Quantity{p1: 8, p2: 6}); err != nil {
		t.Fatalf("RecordCounts: %v", err)
	}

	doc, err = svc.Complete(counterCtx(), doc.ID)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if doc.Status != "completed" {
		t.Errorf("status = %s, want completed", doc.Status)
	}
	if len(engine.adjustments) != 2 {
		t.Fatalf("adjustments = %d, want 2", len(engine.adjustments))
	}
	for _, adj := range engine.adjustments {
		if adj.OutletID != outletID {
			t.Errorf("outlet = %s, want %s", adj.OutletID, outletID)
		}
		if adj.Reason != "stock take "+doc.Number {
			t.Errorf("reason = %q, want stock take %s", adj.Reason, doc.Number)
		}
	}
	if engine.onHand[p1] != 8 || engine.onHand[p2] != 6 {
		t.Errorf("on hand = %d/%d, want 8/6", engine.onHand[p1], engine.onHand[p2])
	}
}

func TestCompleteRollsBackWhenAdjustFails(t *testing.T) {
	repo := newFakeRepo()
	engine := newFakeAdjuster()
	svc := newTestService(repo, engine)

	p1, p2 := id.New(), id.New()
	engine.onHand[p1] = 3
	engine.onHand[p2] = 3
	engine.failOn = p2

	doc, err := svc.Start(counterCtx(), id.New(), []id.ID{p1, p2})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if _, err := svc.Complete(counterCtx(), doc.ID); err == nil {
		t.Fatal("expected error")
	}

	saved, _ := repo.GetByID(context.Background(), doc.ID)
	if saved.Status != "draft" {
		t.Errorf("status = %s after failed complete, want draft", saved.Status)
	}
}

func TestCompleteTwiceRejected(t *testing.T) {
	repo := newFakeRepo()
	engine := newFakeAdjuster()
	svc := newTestService(repo, engine)

	p := id.New()
	engine.onHand[p] = 1

	doc, err := svc.Start(counterCtx(), id.New(), []id.ID{p})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := svc.Complete(counterCtx(), doc.ID); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	_, err = svc.Complete(counterCtx(), doc.ID)
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeDocumentFinalized {
		t.Fatalf("expected finalized error, got %v", err)
	}
	if len(engine.adjustments) != 1 {
		t.Errorf("adjustments = %d, want 1", len(engine.adjustments))
	}
}

func TestVoidDraft(t *testing.T) {
	repo := newFakeRepo()
	engine := newFakeAdjuster()
	svc := newTestService(repo, engine)

	doc, err := svc.Start(counterCtx(), id.New(), []id.ID{id.New()})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := svc.Void(counterCtx(), doc.ID); err != nil {
		t.Fatalf("Void: %v", err)
	}
	saved, _ := repo.GetByID(context.Background(), doc.ID)
	if saved.Status != "voided" {
		t.Errorf("status = %s, want voided", saved.Status)
	}
	if len(engine.adjustments) != 0 {
		t.Errorf("void adjusted stock: %d calls", len(engine.adjustments))
	}

	// A voided count cannot be completed or recounted.
	if _, err := svc.Complete(counterCtx(), doc.ID); err == nil {
		t.Error("completed a voided stock take")
	}
	if _, err := svc.RecordCounts(counterCtx(), doc.ID, nil); err == nil {
		t.Error("recorded counts on a voided stock take")
	}
}

func TestCountLineReplacedOnRecount(t *testing.T) {
	doc := New(id.New(), "user-9")
	p := id.New()
	doc.AddLine(p, 10, 10)
	doc.AddLine(p, 10, 8)
	doc.AddLine(id.New(), 2, 2)

	if len(doc.Lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(doc.Lines))
	}
	if doc.Lines[0].CountedQty != 8 {
		t.Errorf("counted = %d, want 8", doc.Lines[0].CountedQty)
	}
	if doc.Lines[0].Variance() != -2 {
		t.Errorf("variance = %d, want -2", doc.Lines[0].Variance())
	}
}
