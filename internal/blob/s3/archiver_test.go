package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/updown/internal/domain"
	"github.com/alanyoungcy/updown/internal/store/memory"
)

type fakeBlobs struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newFakeBlobs() *fakeBlobs { return &fakeBlobs{objects: make(map[string][]byte)} }

func (f *fakeBlobs) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = b
	f.puts++
	return nil
}

func (f *fakeBlobs) Exists(ctx context.Context, path string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[path]
	return ok, nil
}

type fakeAudit struct{ events []string }

func (f *fakeAudit) Log(ctx context.Context, event string, detail map[string]any) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAudit) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

var t0 = time.Unix(1_700_000_000, 0).UTC()

func seedLedger(t *testing.T) *memory.Ledger {
	t.Helper()
	l := memory.NewLedger()
	err := l.Atomic(context.Background(), func(ctx context.Context, tx domain.LedgerTx) error {
		if err := tx.SaveState(ctx, domain.State{CurrentEpoch: 3, Params: domain.Params{Buffer: 30 * time.Second}}); err != nil {
			return err
		}
		rounds := []domain.Round{
			// settled
			{Epoch: 1, StartTime: t0, CloseTime: t0.Add(10 * time.Minute), OracleCalled: true, RewardsCalculated: true},
			// expired without an oracle report
			{Epoch: 2, StartTime: t0.Add(5 * time.Minute), CloseTime: t0.Add(15 * time.Minute)},
			// live
			{Epoch: 3, StartTime: t0.Add(10 * time.Minute)},
		}
		for _, r := range rounds {
			if err := tx.CreateRound(ctx, r); err != nil {
				return err
			}
		}
		return tx.RecordBet(ctx, domain.BetInfo{Epoch: 1, User: "alice", Position: domain.PositionBull, Amount: 100})
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return l
}

func TestArchiveRounds(t *testing.T) {
	blobs := newFakeBlobs()
	audit := &fakeAudit{}
	a := NewArchiver(blobs, seedLedger(t), audit)
	a.now = func() time.Time { return t0.Add(20 * time.Minute) }

	n, err := a.ArchiveRounds(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if n != 2 {
		t.Fatalf("archived %d rounds, want 2", n)
	}
	if _, ok := blobs.objects[RoundPath(3)]; ok {
		t.Fatal("live round was archived")
	}

	var got domain.RoundArchive
	if err := json.Unmarshal(blobs.objects[RoundPath(1)], &got); err != nil {
		t.Fatalf("decode archive: %v", err)
	}
	if got.Round.Epoch != 1 || len(got.Bets) != 1 || got.Bets[0].User != "alice" {
		t.Fatalf("archive = %+v", got)
	}
	if len(audit.events) != 1 || audit.events[0] != "archive.rounds" {
		t.Fatalf("audit events = %v", audit.events)
	}

	// A second pass over the same range writes nothing.
	n, err = a.ArchiveRounds(context.Background(), 1, 10)
	if err != nil || n != 0 {
		t.Fatalf("rerun: n=%d err=%v", n, err)
	}
	if blobs.puts != 2 {
		t.Fatalf("puts = %d, want 2", blobs.puts)
	}
	if len(audit.events) != 1 {
		t.Fatalf("empty run was audited: %v", audit.events)
	}
}

func TestArchiveWaitsForBuffer(t *testing.T) {
	blobs := newFakeBlobs()
	a := NewArchiver(blobs, seedLedger(t), nil)
	// Round 2 closes at +15m; with a 30s buffer it is not final at +15m20s.
	a.now = func() time.Time { return t0.Add(15*time.Minute + 20*time.Second) }

	if _, err := a.ArchiveRounds(context.Background(), 1, 10); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if _, ok := blobs.objects[RoundPath(2)]; ok {
		t.Fatal("round 2 archived inside its buffer")
	}
	if !bytes.Contains(blobs.objects[RoundPath(1)], []byte(`"epoch":1`)) {
		t.Fatal("round 1 missing")
	}
}

func TestRoundPath(t *testing.T) {
	if got := RoundPath(42); got != "archive/rounds/epoch-000042.json" {
		t.Fatalf("path = %q", got)
	}
	if e, ok := EpochFromPath(RoundPath(1234567)); !ok || e != 1234567 {
		t.Fatalf("EpochFromPath = %d, %v", e, ok)
	}
	for _, p := range []string{"archive/rounds/epoch-42.json", "archive/rounds/notes.txt", "other/epoch-000001.json", "archive/rounds/epoch-000000.json"} {
		if _, ok := EpochFromPath(p); ok {
			t.Fatalf("EpochFromPath(%q) accepted", p)
		}
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := []struct {
		in     string
		ssl    bool
		expect string
	}{
		{"minio:9000", false, "http://minio:9000"},
		{"localhost:9000", true, "https://localhost:9000"},
		{"127.0.0.1:9000", false, "http://127.0.0.1:9000"},
		{"http://localhost:9000", true, "http://localhost:9000"},
		{"e2.example.com", true, "https://e2.example.com"},
		{"https://s3.example.com", false, "https://s3.example.com"},
	}
	for _, tt := range tests {
		if got := normaliseEndpoint(tt.in, tt.ssl); got != tt.expect {
			t.Errorf("normaliseEndpoint(%q, %v) = %q, want %q", tt.in, tt.ssl, got, tt.expect)
		}
	}
}
