package checkpoint

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/custody/internal/identity"
	"github.com/congo-pay/custody/internal/ledger"
)

func TestStepTransitions(t *testing.T) {
	tests := []struct {
		from, to Step
		ok       bool
	}{
		{Built, AwaitingCounterpartyValidation, true},
		{Built, Signed, true},
		{AwaitingCounterpartyValidation, AwaitingCosignatures, true},
		{AwaitingCosignatures, Signed, true},
		{Signed, AwaitingNotarization, true},
		{AwaitingNotarization, Committed, true},
		{AwaitingNotarization, Rejected, true},
		{AwaitingCosignatures, Aborted, true},
		{Built, Committed, false},
		{Signed, Built, false},
		{AwaitingNotarization, Signed, false},
		{Committed, Rejected, false},
		{Aborted, Built, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanAdvanceTo(tt.to))
		})
	}
}

func TestAdvance(t *testing.T) {
	now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	cp := Checkpoint{FlowID: "f1", Step: Built}
	require.NoError(t, cp.Advance(Signed, now))
	assert.Equal(t, now, cp.UpdatedAt)

	err := cp.Advance(Committed, now)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.Equal(t, Signed, cp.Step)
}

func TestPebbleStoreRoundTrip(t *testing.T) {
	store, err := OpenPebble("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	ctx := context.Background()

	party := identity.DeriveKeyPair("gateway", "checkpoint-test").Party()
	saved := Checkpoint{
		FlowID:         "flow-b",
		Protocol:       "funds.issue",
		Role:           Initiator,
		Step:           AwaitingCosignatures,
		Counterparties: []identity.Party{party},
		Reserved:       []ledger.StateRef{{TxID: "tx", Index: 2}},
		StartedAt:      time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.Save(ctx, saved))
	require.NoError(t, store.Save(ctx, Checkpoint{FlowID: "flow-a", Step: Built}))

	got, err := store.Load(ctx, "flow-b")
	require.NoError(t, err)
	assert.Equal(t, saved.Step, got.Step)
	assert.Equal(t, saved.Reserved, got.Reserved)
	assert.True(t, got.Counterparties[0].Equal(party))

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "flow-a", all[0].FlowID)

	require.NoError(t, store.Delete(ctx, "flow-b"))
	_, err = store.Load(ctx, "flow-b")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Close())
	assert.ErrorIs(t, store.Save(ctx, saved), ErrClosed)
}
