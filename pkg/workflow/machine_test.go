package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/campus/pkg/rbac"
)

func TestAdmissionMachine_Edges(t *testing.T) {
	tests := []struct {
		from AdmissionStatus
		to   AdmissionStatus
		ok   bool
	}{
		{AdmissionDraft, AdmissionSubmitted, true},
		{AdmissionDraft, AdmissionCancelled, true},
		{AdmissionDraft, AdmissionApproved, false},
		{AdmissionSubmitted, AdmissionUnderReview, true},
		{AdmissionSubmitted, AdmissionWaitlisted, true},
		{AdmissionUnderReview, AdmissionApproved, true},
		{AdmissionUnderReview, AdmissionSubmitted, false},
		{AdmissionWaitlisted, AdmissionWithdrawn, true},
		{AdmissionApproved, AdmissionEnrolled, true},
		{AdmissionApproved, AdmissionRejected, false},
		{AdmissionRejected, AdmissionApproved, false},
		{AdmissionEnrolled, AdmissionWithdrawn, false},
		{AdmissionSubmitted, AdmissionSubmitted, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, AdmissionMachine.Can(tt.from, tt.to))

			err := AdmissionMachine.Transition(tt.from, tt.to)
			if tt.ok {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidStateTransition))

			var te *TransitionError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, "admission", te.Workflow)
			assert.Equal(t, string(tt.from), te.From)
			assert.Equal(t, string(tt.to), te.To)
		})
	}
}

func TestAdmissionMachine_Terminal(t *testing.T) {
	for _, s := range []AdmissionStatus{AdmissionRejected, AdmissionEnrolled, AdmissionWithdrawn, AdmissionCancelled} {
		assert.True(t, AdmissionMachine.Terminal(s), s)
		assert.Empty(t, AdmissionMachine.Next(s), s)
	}
	assert.False(t, AdmissionMachine.Terminal(AdmissionDraft))
	assert.Equal(t, AdmissionDraft, AdmissionMachine.Initial())
}

// From submitted only the listed targets are accepted and everything else fails
// leaving the caller's state untouched.
func TestAdmissionMachine_FromSubmitted(t *testing.T) {
	allowed := map[AdmissionStatus]bool{
		AdmissionUnderReview: true,
		AdmissionApproved:    true,
		AdmissionRejected:    true,
		AdmissionWaitlisted:  true,
		AdmissionCancelled:   true,
	}
	for _, to := range AdmissionMachine.States() {
		err := AdmissionMachine.Transition(AdmissionSubmitted, to)
		if allowed[to] {
			assert.NoError(t, err, to)
		} else {
			assert.ErrorIs(t, err, ErrInvalidStateTransition, to)
		}
	}
}

func TestAdmissionMachine_UnknownState(t *testing.T) {
	assert.False(t, AdmissionMachine.Valid("archived"))
	assert.ErrorIs(t, AdmissionMachine.Transition(AdmissionDraft, "archived"), ErrInvalidStateTransition)
	assert.ErrorIs(t, AdmissionMachine.Transition("archived", AdmissionSubmitted), ErrInvalidStateTransition)
}

func TestTransferMachine_HappyPath(t *testing.T) {
	path := []TransferStatus{
		TransferDraft, TransferPendingSource, TransferApprovedSource,
		TransferPendingDestination, TransferAccepted, TransferCompleted,
	}
	for i := 0; i < len(path)-1; i++ {
		assert.NoError(t, TransferMachine.Transition(path[i], path[i+1]), "%s -> %s", path[i], path[i+1])
	}
	assert.True(t, TransferMachine.Terminal(TransferCompleted))
}

func TestTransferMachine_RejectAndCancelBeforeCompletion(t *testing.T) {
	for _, from := range TransferMachine.States() {
		if TransferMachine.Terminal(from) {
			assert.ErrorIs(t, TransferMachine.Transition(from, TransferCancelled), ErrInvalidStateTransition, from)
			assert.ErrorIs(t, TransferMachine.Transition(from, TransferRejected), ErrInvalidStateTransition, from)
			continue
		}
		assert.NoError(t, TransferMachine.Transition(from, TransferCancelled), from)
		assert.NoError(t, TransferMachine.Transition(from, TransferRejected), from)
	}
}

func TestTransferMachine_NoSkipping(t *testing.T) {
	assert.ErrorIs(t, TransferMachine.Transition(TransferDraft, TransferApprovedSource), ErrInvalidStateTransition)
	assert.ErrorIs(t, TransferMachine.Transition(TransferPendingSource, TransferAccepted), ErrInvalidStateTransition)
	assert.ErrorIs(t, TransferMachine.Transition(TransferApprovedSource, TransferCompleted), ErrInvalidStateTransition)
}

func TestMachine_NextIsSorted(t *testing.T) {
	assert.Equal(t,
		[]AdmissionStatus{AdmissionApproved, AdmissionCancelled, AdmissionRejected, AdmissionUnderReview, AdmissionWaitlisted},
		AdmissionMachine.Next(AdmissionSubmitted))
}

func TestAdmissionAction(t *testing.T) {
	assert.Equal(t, rbac.OpChange, AdmissionAction(AdmissionSubmitted))
	assert.Equal(t, rbac.OpChange, AdmissionAction(AdmissionWithdrawn))
	assert.Equal(t, rbac.OpChange, AdmissionAction(AdmissionCancelled))
	assert.Equal(t, rbac.OpPublish, AdmissionAction(AdmissionApproved))
	assert.Equal(t, rbac.OpPublish, AdmissionAction(AdmissionRejected))
	assert.Equal(t, rbac.OpPublish, AdmissionAction(AdmissionEnrolled))
}

func TestTransferStep(t *testing.T) {
	tests := []struct {
		from TransferStatus
		to   TransferStatus
		side Side
		op   rbac.Operation
	}{
		{TransferDraft, TransferPendingSource, SideSource, rbac.OpChange},
		{TransferPendingSource, TransferApprovedSource, SideSource, rbac.OpPublish},
		{TransferApprovedSource, TransferPendingDestination, SideSource, rbac.OpChange},
		{TransferPendingDestination, TransferAccepted, SideDestination, rbac.OpPublish},
		{TransferAccepted, TransferCompleted, SideDestination, rbac.OpPublish},
		{TransferPendingSource, TransferRejected, SideSource, rbac.OpPublish},
		{TransferPendingDestination, TransferRejected, SideDestination, rbac.OpPublish},
		{TransferAccepted, TransferRejected, SideDestination, rbac.OpPublish},
		{TransferAccepted, TransferCancelled, SideSource, rbac.OpChange},
	}
	for _, tt := range tests {
		side, op := TransferStep(tt.from, tt.to)
		assert.Equal(t, tt.side, side, "%s -> %s", tt.from, tt.to)
		assert.Equal(t, tt.op, op, "%s -> %s", tt.from, tt.to)
	}
}
