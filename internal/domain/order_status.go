package domain

import "fmt"

// Status is the closed set of order states.
type Status string

const (
	StatusAwaitingProof           Status = "AWAITING_PROOF"
	StatusAwaitingCS1Verification Status = "AWAITING_CS1_VERIFICATION"
	StatusAwaitingCS2Processing   Status = "AWAITING_CS2_PROCESSING"
	StatusProcessing              Status = "PROCESSING"
	StatusShipped                 Status = "SHIPPED"
	StatusCompleted               Status = "COMPLETED"
	StatusCancelled               Status = "CANCELLED"
)

// AllStatuses lists every state in lifecycle order.
var AllStatuses = []Status{
	StatusAwaitingProof,
	StatusAwaitingCS1Verification,
	StatusAwaitingCS2Processing,
	StatusProcessing,
	StatusShipped,
	StatusCompleted,
	StatusCancelled,
}

func (s Status) Valid() bool {
	for _, v := range AllStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// Terminal reports whether no trigger can move the order out of s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Trigger names an operation that may move an order between states.
type Trigger string

const (
	TriggerUploadProof    Trigger = "upload_proof"
	TriggerApprove        Trigger = "approve"
	TriggerReject         Trigger = "reject"
	TriggerSetStatus      Trigger = "set_status"
	TriggerConfirmReceipt Trigger = "confirm_receipt"
	TriggerExpire         Trigger = "expire"
)

// AllTriggers lists every trigger.
var AllTriggers = []Trigger{
	TriggerUploadProof,
	TriggerApprove,
	TriggerReject,
	TriggerSetStatus,
	TriggerConfirmReceipt,
	TriggerExpire,
}

type rule struct {
	actor   Role
	from    []Status
	targets []Status
}

// transitions is the complete edge table. Any pair not listed here is illegal.
var transitions = map[Trigger]rule{
	TriggerUploadProof: {
		actor:   RoleBuyer,
		from:    []Status{StatusAwaitingProof},
		targets: []Status{StatusAwaitingCS1Verification},
	},
	TriggerApprove: {
		actor:   RoleCS1,
		from:    []Status{StatusAwaitingCS1Verification},
		targets: []Status{StatusAwaitingCS2Processing},
	},
	TriggerReject: {
		actor:   RoleCS1,
		from:    []Status{StatusAwaitingCS1Verification},
		targets: []Status{StatusCancelled},
	},
	TriggerSetStatus: {
		actor:   RoleCS2,
		from:    []Status{StatusAwaitingCS2Processing, StatusProcessing, StatusShipped},
		targets: []Status{StatusProcessing, StatusShipped},
	},
	TriggerConfirmReceipt: {
		actor:   RoleBuyer,
		from:    []Status{StatusShipped},
		targets: []Status{StatusCompleted},
	},
	TriggerExpire: {
		actor:   RoleSystem,
		from:    []Status{StatusAwaitingProof, StatusAwaitingCS1Verification},
		targets: []Status{StatusCancelled},
	},
}

// Transition computes the next state of an order. requested is only
// consulted for TriggerSetStatus, where the caller picks the target; for
// every other trigger the target is fixed and requested may be empty.
func Transition(from Status, trigger Trigger, actor Role, requested Status) (Status, error) {
	r, ok := transitions[trigger]
	if !ok {
		return "", fmt.Errorf("%w: unknown trigger %q", ErrInvalidTransition, trigger)
	}
	if actor != r.actor {
		return "", fmt.Errorf("%w: %s cannot %s", ErrActorNotAllowed, actor, trigger)
	}
	if !contains(r.from, from) {
		return "", &TransitionError{From: from, Trigger: trigger}
	}

	to := r.targets[0]
	if len(r.targets) > 1 || requested != "" {
		if !contains(r.targets, requested) || requested == from {
			return "", &TransitionError{From: from, To: requested, Trigger: trigger}
		}
		to = requested
	}
	return to, nil
}

// Edges returns every (from, to) pair reachable by some trigger.
func Edges() map[Status][]Status {
	edges := make(map[Status][]Status)
	for _, r := range transitions {
		for _, f := range r.from {
			for _, t := range r.targets {
				if f != t {
					edges[f] = append(edges[f], t)
				}
			}
		}
	}
	return edges
}

// TriggerActor returns the role permitted to fire trigger.
func TriggerActor(trigger Trigger) Role {
	return transitions[trigger].actor
}

func contains(set []Status, s Status) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
