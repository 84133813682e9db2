package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
)

func sampleEntry() schemas.AuditEntry {
	return schemas.AuditEntry{
		Seq:           42,
		Timestamp:     time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
		Action:        schemas.ActionScored,
		Actor:         schemas.ActorSystem,
		CorrelationID: "corr-pg",
		CandidateID:   "cand-1",
		SandboxID:     "sb-1",
		Before:        "validated",
		After:         "scored",
		Detail:        "score 0.9100",
	}
}

func TestPostgresSinkWrite(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	entry := sampleEntry()
	mock.ExpectExec("INSERT INTO audit_entries").
		WithArgs(
			int64(entry.Seq), entry.Timestamp, string(entry.Action), string(entry.Actor),
			entry.CorrelationID, entry.CandidateID, entry.SandboxID,
			entry.Before, entry.After, entry.Detail,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	sink := NewPostgresSinkWithDB(mock)
	require.NoError(t, sink.Write(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSinkWriteErrorWrapsAuditPersistence(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("INSERT INTO audit_entries").
		WillReturnError(errors.New("connection refused"))

	sink := NewPostgresSinkWithDB(mock)
	err = sink.Write(context.Background(), sampleEntry())
	assert.ErrorIs(t, err, schemas.ErrAuditPersistence)
}

func TestPostgresSinkFailureDoesNotFailTrailCaller(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO audit_entries").
		WillReturnError(errors.New("connection refused"))
	mock.ExpectClose()

	trail := NewTrail(zaptest.NewLogger(t), NewPostgresSinkWithDB(mock))
	trail.Record(sampleEntry())

	assert.Equal(t, uint64(1), trail.Dropped())
	assert.Equal(t, 1, trail.Len())
	require.NoError(t, trail.Close())
}
