package domain

import (
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransition_Table(t *testing.T) {
	tests := []struct {
		name      string
		from      Status
		trigger   Trigger
		actor     Role
		requested Status
		want      Status
		wantErr   error
	}{
		{"upload proof", StatusAwaitingProof, TriggerUploadProof, RoleBuyer, "", StatusAwaitingCS1Verification, nil},
		{"upload proof twice", StatusAwaitingCS1Verification, TriggerUploadProof, RoleBuyer, "", "", ErrInvalidTransition},
		{"approve", StatusAwaitingCS1Verification, TriggerApprove, RoleCS1, "", StatusAwaitingCS2Processing, nil},
		{"approve before proof", StatusAwaitingProof, TriggerApprove, RoleCS1, "", "", ErrInvalidTransition},
		{"approve by buyer", StatusAwaitingCS1Verification, TriggerApprove, RoleBuyer, "", "", ErrActorNotAllowed},
		{"reject", StatusAwaitingCS1Verification, TriggerReject, RoleCS1, "", StatusCancelled, nil},
		{"reject after approval", StatusAwaitingCS2Processing, TriggerReject, RoleCS1, "", "", ErrInvalidTransition},
		{"cs2 start processing", StatusAwaitingCS2Processing, TriggerSetStatus, RoleCS2, StatusProcessing, StatusProcessing, nil},
		{"cs2 ship directly", StatusAwaitingCS2Processing, TriggerSetStatus, RoleCS2, StatusShipped, StatusShipped, nil},
		{"cs2 ship", StatusProcessing, TriggerSetStatus, RoleCS2, StatusShipped, StatusShipped, nil},
		{"cs2 cannot complete", StatusShipped, TriggerSetStatus, RoleCS2, StatusCompleted, "", ErrInvalidTransition},
		{"cs2 same status", StatusShipped, TriggerSetStatus, RoleCS2, StatusShipped, "", ErrInvalidTransition},
		{"cs2 without target", StatusProcessing, TriggerSetStatus, RoleCS2, "", "", ErrInvalidTransition},
		{"cs2 on unpaid order", StatusAwaitingProof, TriggerSetStatus, RoleCS2, StatusProcessing, "", ErrInvalidTransition},
		{"confirm receipt", StatusShipped, TriggerConfirmReceipt, RoleBuyer, "", StatusCompleted, nil},
		{"confirm before shipping", StatusProcessing, TriggerConfirmReceipt, RoleBuyer, "", "", ErrInvalidTransition},
		{"expire unpaid", StatusAwaitingProof, TriggerExpire, RoleSystem, "", StatusCancelled, nil},
		{"expire unverified", StatusAwaitingCS1Verification, TriggerExpire, RoleSystem, "", StatusCancelled, nil},
		{"expire approved", StatusAwaitingCS2Processing, TriggerExpire, RoleSystem, "", "", ErrInvalidTransition},
		{"expire by buyer", StatusAwaitingProof, TriggerExpire, RoleBuyer, "", "", ErrActorNotAllowed},
		{"unknown trigger", StatusAwaitingProof, Trigger("teleport"), RoleBuyer, "", "", ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.from, tt.trigger, tt.actor, tt.requested)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Empty(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTransition_TerminalStatesHaveNoExit(t *testing.T) {
	for _, from := range []Status{StatusCompleted, StatusCancelled} {
		for _, trigger := range AllTriggers {
			for _, to := range AllStatuses {
				_, err := Transition(from, trigger, TriggerActor(trigger), to)
				assert.Error(t, err, "%s --%s--> %s", from, trigger, to)
			}
		}
	}
}

func TestQueueRoleFor(t *testing.T) {
	role, ok := QueueRoleFor(StatusAwaitingCS1Verification)
	assert.True(t, ok)
	assert.Equal(t, RoleCS1, role)

	role, ok = QueueRoleFor(StatusAwaitingCS2Processing)
	assert.True(t, ok)
	assert.Equal(t, RoleCS2, role)

	_, ok = QueueRoleFor(StatusShipped)
	assert.False(t, ok)
}

type step struct {
	Trigger   Trigger
	Requested Status
}

func genStep() gopter.Gen {
	return gopter.CombineGens(
		gen.OneConstOf(toAny(AllTriggers)...),
		gen.OneConstOf(toAnyStatus(AllStatuses)...),
	).Map(func(v []interface{}) step {
		return step{Trigger: v[0].(Trigger), Requested: v[1].(Status)}
	})
}

func toAny(ts []Trigger) []interface{} {
	out := make([]interface{}, len(ts))
	for i, t := range ts {
		out[i] = t
	}
	return out
}

func toAnyStatus(ss []Status) []interface{} {
	out := make([]interface{}, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// Feature: order-fulfillment, Property 1: Random trigger walks only follow table edges
func TestProperty_RandomWalkFollowsEdges(t *testing.T) {
	properties := gopter.NewProperties(nil)
	edges := Edges()

	properties.Property("every accepted transition is a listed edge", prop.ForAll(
		func(steps []step) bool {
			current := StatusAwaitingProof
			for _, s := range steps {
				next, err := Transition(current, s.Trigger, TriggerActor(s.Trigger), s.Requested)
				if err != nil {
					if !errors.Is(err, ErrInvalidTransition) {
						t.Logf("FAIL: unexpected error kind %v", err)
						return false
					}
					continue
				}
				if !containsStatus(edges[current], next) {
					t.Logf("FAIL: %s --%s--> %s is not an edge", current, s.Trigger, next)
					return false
				}
				if current.Terminal() {
					t.Logf("FAIL: left terminal state %s", current)
					return false
				}
				current = next
			}
			return current.Valid()
		},
		gen.SliceOf(genStep()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: order-fulfillment, Property 2: Only buyer confirmation reaches Completed
func TestProperty_CompletedOnlyViaConfirmReceipt(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("no trigger other than confirm receipt yields COMPLETED", prop.ForAll(
		func(from Status, s step) bool {
			next, err := Transition(from, s.Trigger, TriggerActor(s.Trigger), s.Requested)
			if err != nil {
				return true
			}
			return next != StatusCompleted || s.Trigger == TriggerConfirmReceipt
		},
		gen.OneConstOf(toAnyStatus(AllStatuses)...),
		genStep(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

func containsStatus(set []Status, s Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
