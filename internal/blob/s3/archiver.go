package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/updown/internal/domain"
)

// RoundSource is the read side of the ledger the archiver needs.
type RoundSource interface {
	GetState(ctx context.Context) (domain.State, error)
	ListRounds(ctx context.Context, from, to int64) ([]domain.Round, error)
	ListBets(ctx context.Context, epoch int64) ([]domain.BetInfo, error)
}

// BlobStore is the subset of blob storage the archiver writes through.
type BlobStore interface {
	domain.BlobWriter
	Exists(ctx context.Context, path string) (bool, error)
}

// RoundArchiver implements domain.Archiver. Each finished round becomes one
// JSON object holding the round and all of its bets. Rounds already present
// in the bucket are skipped, so repeated runs over the same range are safe.
//
// Nothing is removed from the ledger; pruning is a separate decision.
type RoundArchiver struct {
	blobs  BlobStore
	rounds RoundSource
	audit  domain.AuditStore
	now    func() time.Time
}

// NewArchiver creates a RoundArchiver. audit may be nil.
func NewArchiver(blobs BlobStore, rounds RoundSource, audit domain.AuditStore) *RoundArchiver {
	return &RoundArchiver{
		blobs:  blobs,
		rounds: rounds,
		audit:  audit,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ArchiveRounds implements domain.Archiver.
func (a *RoundArchiver) ArchiveRounds(ctx context.Context, from, to int64) (int64, error) {
	st, err := a.rounds.GetState(ctx)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive state: %w", err)
	}
	rounds, err := a.rounds.ListRounds(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive list rounds: %w", err)
	}

	now := a.now()
	var written int64
	for _, r := range rounds {
		if !finished(r, st.Params.Buffer, now) {
			continue
		}
		path := RoundPath(r.Epoch)
		ok, err := a.blobs.Exists(ctx, path)
		if err != nil {
			return written, fmt.Errorf("s3blob: archive epoch %d: %w", r.Epoch, err)
		}
		if ok {
			continue
		}

		bets, err := a.rounds.ListBets(ctx, r.Epoch)
		if err != nil {
			return written, fmt.Errorf("s3blob: archive epoch %d bets: %w", r.Epoch, err)
		}
		buf, err := json.Marshal(domain.RoundArchive{Round: r, Bets: bets})
		if err != nil {
			return written, fmt.Errorf("s3blob: archive epoch %d marshal: %w", r.Epoch, err)
		}
		if err := a.blobs.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
			return written, fmt.Errorf("s3blob: archive epoch %d upload: %w", r.Epoch, err)
		}
		written++
	}

	if written > 0 && a.audit != nil {
		if err := a.audit.Log(ctx, "archive.rounds", map[string]any{
			"from":  from,
			"to":    to,
			"count": written,
		}); err != nil {
			return written, fmt.Errorf("s3blob: archive audit log: %w", err)
		}
	}
	return written, nil
}

// finished reports whether a round can no longer change other than through
// claims: either settled, or past the point where it can only be refunded.
func finished(r domain.Round, buffer time.Duration, now time.Time) bool {
	if r.OracleCalled {
		return true
	}
	return !r.CloseTime.IsZero() && now.After(r.CloseTime.Add(buffer))
}

// RoundPrefix is the key prefix shared by every archived round.
const RoundPrefix = "archive/rounds/"

// RoundPath is the object key of an archived epoch.
//
//	archive/rounds/epoch-000042.json
func RoundPath(epoch int64) string {
	return fmt.Sprintf(RoundPrefix+"epoch-%06d.json", epoch)
}

// EpochFromPath reverses RoundPath. ok is false for keys it did not produce.
func EpochFromPath(path string) (epoch int64, ok bool) {
	if _, err := fmt.Sscanf(path, RoundPrefix+"epoch-%d.json", &epoch); err != nil || epoch <= 0 {
		return 0, false
	}
	return epoch, RoundPath(epoch) == path
}

// Compile-time interface check.
var _ domain.Archiver = (*RoundArchiver)(nil)
