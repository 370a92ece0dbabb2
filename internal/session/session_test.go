package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"legal-ai-cuda/internal/domain"
	"legal-ai-cuda/internal/session/memory"
)

func TestMemoryStore_SaveAndGetRoundTrips(t *testing.T) {
	store := memory.New(time.Minute)
	defer store.Close()

	sess := New("sess-1", time.Now())
	sess.LastSuccessfulCollection = "ho_tich"
	require.NoError(t, store.Save(context.Background(), sess))

	got, err := store.Get(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, "ho_tich", got.LastSuccessfulCollection)
}

func TestMemoryStore_MissingSessionReturnsErrSessionMiss(t *testing.T) {
	store := memory.New(time.Minute)
	defer store.Close()

	_, err := store.Get(context.Background(), "nope")
	require.Error(t, err)
}

func TestRecordSuccess_UpdatesOnlyAboveThreshold(t *testing.T) {
	sess := New("s", time.Now())
	RecordSuccess(sess, "ho_tich", "khai_sinh", 0.9, nil, 0.78)
	require.Equal(t, "ho_tich", sess.LastSuccessfulCollection)
	require.Equal(t, 0, sess.ConsecutiveLowConfidenceCount)

	RecordSuccess(sess, "ket_hon", "dk", 0.5, nil, 0.78)
	require.Equal(t, "ho_tich", sess.LastSuccessfulCollection, "low confidence turn must not overwrite last success")
	require.Equal(t, 1, sess.ConsecutiveLowConfidenceCount)
}

func TestRecordSuccess_ClearsRoutingStateAfterThreeLowConfidenceTurns(t *testing.T) {
	sess := New("s", time.Now())
	sess.LastSuccessfulCollection = "ho_tich"

	for i := 0; i < 3; i++ {
		RecordSuccess(sess, "", "", 0.3, nil, 0.78)
	}
	require.Empty(t, sess.LastSuccessfulCollection)
	require.Equal(t, 0, sess.ConsecutiveLowConfidenceCount)
}

func TestSession_AppendHistoryTrimsToLimit(t *testing.T) {
	sess := &domain.Session{HistoryLimit: 2}
	sess.AppendHistory(domain.Turn{Query: "a"})
	sess.AppendHistory(domain.Turn{Query: "b"})
	sess.AppendHistory(domain.Turn{Query: "c"})
	require.Len(t, sess.History, 2)
	require.Equal(t, "b", sess.History[0].Query)
}
