package numerator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	corenumerator "tillpoint/internal/core/numerator"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

// mockQuerier simulates the sys_sequences upsert: every call advances
// the stored value by the increment argument (1 for strict).
type mockQuerier struct {
	mu           sync.Mutex
	currentValue int64
	calls        int
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	var increment int64 = 1
	if len(args) == 2 {
		if val, ok := args[1].(int64); ok {
			increment = val
		}
	}

	m.currentValue += increment
	m.calls++

	return &mockRow{val: m.currentValue}
}

var testPeriod = time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

func TestGetNextNumber_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("SALE")

	num, err := svc.GetNextNumber(ctx, cfg, nil, testPeriod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "SALE-2026-00001" {
		t.Errorf("expected SALE-2026-00001, got %s", num)
	}

	num, err = svc.GetNextNumber(ctx, cfg, nil, testPeriod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "SALE-2026-00002" {
		t.Errorf("expected SALE-2026-00002, got %s", num)
	}

	if q.calls != 2 {
		t.Errorf("strict strategy must hit the database per number, got %d calls", q.calls)
	}
}

func TestGetNextNumber_Cached(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := corenumerator.DefaultConfig("GRN")

	opts := &corenumerator.Options{
		Strategy:  corenumerator.StrategyCached,
		RangeSize: 10,
	}

	// First call reserves 1..10 from the database.
	num, err := svc.GetNextNumber(ctx, cfg, opts, testPeriod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "GRN-2026-00001" {
		t.Errorf("expected GRN-2026-00001, got %s", num)
	}
	if q.currentValue != 10 {
		t.Errorf("expected reserved range end 10, got %d", q.currentValue)
	}

	// Second call is served from memory.
	num, err = svc.GetNextNumber(ctx, cfg, opts, testPeriod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "GRN-2026-00002" {
		t.Errorf("expected GRN-2026-00002, got %s", num)
	}
	if q.calls != 1 {
		t.Errorf("expected no extra database calls, got %d", q.calls)
	}

	// Exhaust the range; the next number triggers a refill to 11..20.
	for i := 0; i < 8; i++ {
		if _, err := svc.GetNextNumber(ctx, cfg, opts, testPeriod); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	num, err = svc.GetNextNumber(ctx, cfg, opts, testPeriod)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if num != "GRN-2026-00011" {
		t.Errorf("expected GRN-2026-00011, got %s", num)
	}
	if q.currentValue != 20 {
		t.Errorf("expected reserved range end 20, got %d", q.currentValue)
	}
}

func TestGetNextNumber_ResetPeriods(t *testing.T) {
	tests := []struct {
		name        string
		resetPeriod string
		includeYear bool
		want        string
	}{
		{"yearly", "year", true, "ST-2026-00001"},
		{"never", "never", false, "ST-00001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &mockQuerier{}
			svc := New(q)
			cfg := corenumerator.Config{
				Prefix:      "ST",
				IncludeYear: tt.includeYear,
				PadWidth:    5,
				ResetPeriod: tt.resetPeriod,
			}

			num, err := svc.GetNextNumber(context.Background(), cfg, nil, testPeriod)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if num != tt.want {
				t.Errorf("expected %s, got %s", tt.want, num)
			}
		})
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		formatted string
		want      int64
	}{
		{"SALE-2026-00042", 42},
		{"ST-00007", 7},
		{"garbage", -1},
	}

	for _, tt := range tests {
		if got := ParseNumber(tt.formatted); got != tt.want {
			t.Errorf("ParseNumber(%q) = %d, want %d", tt.formatted, got, tt.want)
		}
	}
}
