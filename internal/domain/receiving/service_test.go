package receiving

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

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
	docs  map[id.ID]Delivery
	lines map[id.ID][]DeliveryLine
}

var _ Repository = (*fakeRepo)(nil)

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		docs:  make(map[id.ID]Delivery),
		lines: make(map[id.ID][]DeliveryLine),
	}
}

type repoSnapshot struct {
	docs  map[id.ID]Delivery
	lines map[id.ID][]DeliveryLine
}

func (r *fakeRepo) snapshot() repoSnapshot {
	s := repoSnapshot{
		docs:  make(map[id.ID]Delivery, len(r.docs)),
		lines: make(map[id.ID][]DeliveryLine, len(r.lines)),
	}
	for k, v := range r.docs {
		s.docs[k] = v
	}
	for k, v := range r.lines {
		s.lines[k] = append([]DeliveryLine(nil), v...)
	}
	return s
}

func (r *fakeRepo) restore(s repoSnapshot) {
	r.docs = s.docs
	r.lines = s.lines
}

func (r *fakeRepo) Create(_ context.Context, doc *Delivery) error {
	r.docs[doc.ID] = *doc
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, docID id.ID) (*Delivery, error) {
	doc, ok := r.docs[docID]
	if !ok {
		return nil, apperror.NewNotFound("delivery", docID.String())
	}
	out := doc
	return &out, nil
}

func (r *fakeRepo) GetByNumber(_ context.Context, number string) (*Delivery, error) {
	for _, doc := range r.docs {
		if doc.Number == number {
			out := doc
			return &out, nil
		}
	}
	return nil, apperror.NewNotFound("delivery", number)
}

func (r *fakeRepo) Update(_ context.Context, doc *Delivery) error {
	if _, ok := r.docs[doc.ID]; !ok {
		return apperror.NewNotFound("delivery", doc.ID.String())
	}
	r.docs[doc.ID] = *doc
	return nil
}

func (r *fakeRepo) Delete(_ context.Context, docID id.ID) error {
	if _, ok := r.docs[docID]; !ok {
		return apperror.NewNotFound("delivery", docID.String())
	}
	delete(r.docs, docID)
	delete(r.lines, docID)
	return nil
}

func (r *fakeRepo) GetForUpdate(ctx context.Context, docID id.ID) (*Delivery, error) {
	return r.GetByID(ctx, docID)
}

func (r *fakeRepo) GetLines(_ context.Context, docID id.ID) ([]DeliveryLine, error) {
	return append([]DeliveryLine(nil), r.lines[docID]...), nil
}

func (r *fakeRepo) SaveLines(_ context.Context, docID id.ID, lines []DeliveryLine) error {
	r.lines[docID] = append([]DeliveryLine(nil), lines...)
	return nil
}

func (r *fakeRepo) List(_ context.Context, filter ListFilter) (domain.ListResult[*Delivery], error) {
	var result domain.ListResult[*Delivery]
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

// fakeAdder records batch receipts and can fail on a chosen product.
type fakeAdder struct {
	calls  []stock.AddInput
	failOn id.ID
}

func (a *fakeAdder) Add(_ context.Context, in stock.AddInput) (*stock.Batch, error) {
	a.calls = append(a.calls, in)
	if in.ProductID == a.failOn {
		return nil, errors.New("batch insert failed")
	}
	return &stock.Batch{
		ProductID:   in.ProductID,
		OutletID:    in.OutletID,
		BatchNumber: in.BatchNumber,
		ExpiryDate:  in.ExpiryDate,
		Quantity:    in.Quantity,
	}, nil
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

func newTestService(repo *fakeRepo, engine *fakeAdder) *Service {
	return NewService(repo, engine, &numerator.MockGenerator{}, &fakeTxManager{repo: repo})
}

func managerCtx() context.Context {
	return appctx.WithUser(context.Background(), &appctx.UserContext{
		UserID: "user-7",
		Email:  "stockroom@example.com",
		Role:   appctx.RoleManager,
	})
}

func expiry(days int) time.Time {
	return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
}

func draftDelivery(lines int) *Delivery {
	doc := New(id.New(), id.New())
	for i := 0; i < lines; i++ {
		doc.AddLine(id.New(), fmt.Sprintf("BN-%03d", i+1), expiry(30+i), 10, types.MustMoney("1.25"))
	}
	return doc
}

// --- tests ---

func TestReceiveNewDelivery(t *testing.T) {
	repo := newFakeRepo()
	engine := &fakeAdder{}
	svc := newTestService(repo, engine)

	doc := draftDelivery(2)
	if err := svc.Receive(managerCtx(), doc); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	if doc.Status != "completed" {
		t.Errorf("status = %s, want completed", doc.Status)
	}
	if doc.Number == "" {
		t.Error("number not assigned")
	}
	if len(engine.calls) != 2 {
		t.Fatalf("add calls = %d, want 2", len(engine.calls))
	}
	for i, call := range engine.calls {
		line := doc.Lines[i]
		if call.ProductID != line.ProductID {
			t.Errorf("line %d: product %s, want %s", i+1, call.ProductID, line.ProductID)
		}
		if call.BatchNumber != line.BatchNumber {
			t.Errorf("line %d: batch %q, want %q", i+1, call.BatchNumber, line.BatchNumber)
		}
		if !call.ExpiryDate.Equal(line.ExpiryDate) {
			t.Errorf("line %d: expiry %s, want %s", i+1, call.ExpiryDate, line.ExpiryDate)
		}
		if call.CostPrice == nil || !call.CostPrice.Equal(line.UnitCost) {
			t.Errorf("line %d: cost price not passed through", i+1)
		}
		if call.Type != stock.MovementPurchase {
			t.Errorf("line %d: movement type = %s, want purchase", i+1, call.Type)
		}
		if call.Reference != doc.Number {
			t.Errorf("line %d: reference = %q, want %q", i+1, call.Reference, doc.Number)
		}
		if call.OutletID != doc.OutletID {
			t.Errorf("line %d: outlet = %s, want %s", i+1, call.OutletID, doc.OutletID)
		}
	}

	saved, err := repo.GetByID(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("saved document missing: %v", err)
	}
	if saved.Status != "completed" {
		t.Errorf("persisted status = %s", saved.Status)
	}
	savedLines, _ := repo.GetLines(context.Background(), doc.ID)
	if len(savedLines) != 2 {
		t.Errorf("persisted lines = %d, want 2", len(savedLines))
	}
}

func TestReceiveRollsBackWhenBatchInsertFails(t *testing.T) {
	repo := newFakeRepo()
	bad := id.New()
	engine := &fakeAdder{failOn: bad}
	svc := newTestService(repo, engine)

	doc := New(id.New(), id.New())
	doc.AddLine(id.New(), "BN-001", expiry(30), 5, types.MustMoney("2.00"))
	doc.AddLine(bad, "BN-002", expiry(60), 5, types.MustMoney("2.00"))

	if err := svc.Receive(managerCtx(), doc); err == nil {
		t.Fatal("expected error")
	}

	if len(repo.docs) != 0 {
		t.Errorf("document persisted after failed receive")
	}
	if len(repo.lines) != 0 {
		t.Errorf("lines persisted after failed receive")
	}
	if len(engine.calls) != 2 {
		t.Errorf("add calls = %d, want 2", len(engine.calls))
	}
}

func TestReceiveCompletedDeliveryRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAdder{})

	doc := draftDelivery(1)
	doc.MarkCompleted()

	err := svc.Receive(managerCtx(), doc)
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeDocumentFinalized {
		t.Fatalf("expected finalized error, got %v", err)
	}
}

func TestReceiveExistingDraft(t *testing.T) {
	repo := newFakeRepo()
	engine := &fakeAdder{}
	svc := newTestService(repo, engine)

	doc := draftDelivery(1)
	if err := svc.Create(managerCtx(), doc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	doc.SetVersion(2)
	number := doc.Number

	if err := svc.Receive(managerCtx(), doc); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	if doc.Number != number {
		t.Errorf("number regenerated: %q -> %q", number, doc.Number)
	}
	if len(repo.docs) != 1 {
		t.Errorf("documents = %d, want 1", len(repo.docs))
	}
	if len(engine.calls) != 1 {
		t.Errorf("add calls = %d, want 1", len(engine.calls))
	}
}

func TestCreateDraftDoesNotTouchStock(t *testing.T) {
	repo := newFakeRepo()
	engine := &fakeAdder{}
	svc := newTestService(repo, engine)

	doc := draftDelivery(3)
	if err := svc.Create(managerCtx(), doc); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if doc.Status != "draft" {
		t.Errorf("status = %s, want draft", doc.Status)
	}
	if len(engine.calls) != 0 {
		t.Errorf("draft save created batches: %d calls", len(engine.calls))
	}
	savedLines, _ := repo.GetLines(context.Background(), doc.ID)
	if len(savedLines) != 3 {
		t.Errorf("lines = %d, want 3", len(savedLines))
	}
}

func TestDeliveryTotals(t *testing.T) {
	doc := New(id.New(), id.New())
	doc.AddLine(id.New(), "BN-001", expiry(10), 4, types.MustMoney("2.50"))
	doc.AddLine(id.New(), "BN-002", expiry(20), 2, types.MustMoney("0.75"))

	if doc.TotalQuantity != 6 {
		t.Errorf("total quantity = %d, want 6", doc.TotalQuantity)
	}
	if want := types.MustMoney("11.50"); !doc.TotalCost.Equal(want) {
		t.Errorf("total cost = %s, want %s", doc.TotalCost, want)
	}
	if doc.Lines[0].LineNo != 1 || doc.Lines[1].LineNo != 2 {
		t.Errorf("line numbering = %d/%d", doc.Lines[0].LineNo, doc.Lines[1].LineNo)
	}
}

func TestReceiveValidation(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAdder{})

	tests := []struct {
		name string
		doc  *Delivery
	}{
		{"no lines", New(id.New(), id.New())},
		{"missing supplier", func() *Delivery {
			d := New(id.New(), id.Zero())
			d.AddLine(id.New(), "BN-001", expiry(30), 1, types.MustMoney("1.00"))
			return d
		}()},
		{"missing batch number", func() *Delivery {
			d := New(id.New(), id.New())
			d.AddLine(id.New(), "", expiry(30), 1, types.MustMoney("1.00"))
			return d
		}()},
		{"zero expiry", func() *Delivery {
			d := New(id.New(), id.New())
			d.AddLine(id.New(), "BN-001", time.Time{}, 1, types.MustMoney("1.00"))
			return d
		}()},
		{"zero quantity", func() *Delivery {
			d := New(id.New(), id.New())
			d.AddLine(id.New(), "BN-001", expiry(30), 0, types.MustMoney("1.00"))
			return d
		}()},
		{"negative unit cost", func() *Delivery {
			d := New(id.New(), id.New())
			d.AddLine(id.New(), "BN-001", expiry(30), 1, types.MustMoney("-1.00"))
			return d
		}()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := svc.Receive(managerCtx(), tc.doc)
			appErr, ok := apperror.AsAppError(err)
			if !ok || appErr.Code != apperror.CodeValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestUpdateDraftReplacesLines(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAdder{})

	doc := draftDelivery(2)
	if err := svc.Create(managerCtx(), doc); err != nil {
		t.Fatalf("Create: %v", err)
	}

	doc.Lines = nil
	doc.AddLine(id.New(), "BN-101", expiry(90), 7, types.MustMoney("3.00"))
	if err := svc.Update(managerCtx(), doc); err != nil {
		t.Fatalf("Update: %v", err)
	}

	savedLines, _ := repo.GetLines(context.Background(), doc.ID)
	if len(savedLines) != 1 {
		t.Fatalf("lines = %d, want 1", len(savedLines))
	}
	if savedLines[0].BatchNumber != "BN-101" {
		t.Errorf("batch = %q, want BN-101", savedLines[0].BatchNumber)
	}
}

func TestUpdateCompletedDeliveryRejected(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAdder{})

	doc := draftDelivery(1)
	if err := svc.Receive(managerCtx(), doc); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	err := svc.Update(managerCtx(), doc)
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeDocumentFinalized {
		t.Fatalf("expected finalized error, got %v", err)
	}
}

func TestDeleteDraftOnly(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(repo, &fakeAdder{})

	draft := draftDelivery(1)
	if err := svc.Create(managerCtx(), draft); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Delete(managerCtx(), draft.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := repo.GetByID(context.Background(), draft.ID); !apperror.IsNotFound(err) {
		t.Errorf("draft still present after delete")
	}

	completed := draftDelivery(1)
	if err := svc.Receive(managerCtx(), completed); err != nil {
		t.Fatalf("Receive: %v", err)
	}
	err := svc.Delete(managerCtx(), completed.ID)
	appErr, ok := apperror.AsAppError(err)
	if !ok || appErr.Code != apperror.CodeDocumentFinalized {
		t.Fatalf("expected finalized error, got %v", err)
	}
}
