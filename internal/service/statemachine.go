package service

import "swiftdrop/internal/domain"

// RideRole is the relationship of an actor to a particular ride.
type RideRole string

const (
	RideRoleRequester RideRole = "requester"
	RideRoleDriver    RideRole = "driver"
	RideRoleNone      RideRole = ""
)

type statusSet map[domain.RideStatus]struct{}

func setOf(statuses ...domain.RideStatus) statusSet {
	s := make(statusSet, len(statuses))
	for _, st := range statuses {
		s[st] = struct{}{}
	}
	return s
}

func (s statusSet) has(st domain.RideStatus) bool {
	_, ok := s[st]
	return ok
}

// roleTargets lists every status a role may ever set through UpdateStatus.
var roleTargets = map[RideRole]statusSet{
	RideRoleDriver: setOf(
		domain.RideStatusRiderArrived,
		domain.RideStatusDriverArrived,
		domain.RideStatusInProgress,
		domain.RideStatusAssigned,
		domain.RideStatusCompleted,
		domain.RideStatusCancelled,
	),
	RideRoleRequester: setOf(
		domain.RideStatusCompleted,
		domain.RideStatusCancelled,
	),
}

// transitions is keyed by (role, current status). A missing entry allows nothing.
var transitions = map[RideRole]map[domain.RideStatus]statusSet{
	RideRoleDriver: {
		domain.RideStatusAccepted: setOf(
			domain.RideStatusAssigned,
			domain.RideStatusRiderArrived,
			domain.RideStatusDriverArrived,
			domain.RideStatusInProgress,
			domain.RideStatusCancelled,
		),
		domain.RideStatusAssigned: setOf(
			domain.RideStatusRiderArrived,
			domain.RideStatusDriverArrived,
			domain.RideStatusInProgress,
			domain.RideStatusCancelled,
		),
		domain.RideStatusRiderArrived: setOf(
			domain.RideStatusDriverArrived,
			domain.RideStatusInProgress,
			domain.RideStatusCancelled,
		),
		domain.RideStatusDriverArrived: setOf(
			domain.RideStatusInProgress,
			domain.RideStatusCancelled,
		),
		domain.RideStatusInProgress: setOf(
			domain.RideStatusCompleted,
			domain.RideStatusCancelled,
		),
	},
	RideRoleRequester: {
		domain.RideStatusRequested:     setOf(domain.RideStatusCancelled),
		domain.RideStatusAssigned:      setOf(domain.RideStatusCancelled),
		domain.RideStatusAccepted:      setOf(domain.RideStatusCancelled),
		domain.RideStatusRiderArrived:  setOf(domain.RideStatusCancelled),
		domain.RideStatusDriverArrived: setOf(domain.RideStatusCancelled),
		domain.RideStatusInProgress:    setOf(domain.RideStatusCompleted, domain.RideStatusCancelled),
	},
}

// RoleFor resolves the actor's relationship to the ride. The bound driver
// wins if the same user somehow holds both roles.
func RoleFor(ride *domain.Ride, actorID string) RideRole {
	switch {
	case actorID == "":
		return RideRoleNone
	case ride.DriverID != "" && ride.DriverID == actorID:
		return RideRoleDriver
	case ride.RequesterID == actorID:
		return RideRoleRequester
	default:
		return RideRoleNone
	}
}

// CheckTransition validates moving a ride from current to target on behalf
// of role. It returns nil, an authorization error or a transition error.
func CheckTransition(role RideRole, current, target domain.RideStatus) error {
	allowed, ok := roleTargets[role]
	if !ok {
		return ErrNotRideParty
	}
	if !allowed.has(target) {
		return ErrStatusNotAllowed
	}
	if current.IsTerminal() {
		return ErrRideTerminal
	}
	if !transitions[role][current].has(target) {
		return ErrInvalidTransition
	}
	return nil
}
