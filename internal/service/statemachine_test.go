package service_test

import (
	"errors"
	"testing"

	"swiftdrop/internal/domain"
	"swiftdrop/internal/service"
)

var allStatuses = []domain.RideStatus{
	domain.RideStatusRequested,
	domain.RideStatusAssigned,
	domain.RideStatusAccepted,
	domain.RideStatusRiderArrived,
	domain.RideStatusDriverArrived,
	domain.RideStatusInProgress,
	domain.RideStatusCompleted,
	domain.RideStatusCancelled,
	domain.RideStatusTimeout,
	domain.RideStatusUncompleted,
}

var allRoles = []service.RideRole{
	service.RideRoleDriver,
	service.RideRoleRequester,
	service.RideRoleNone,
}

func TestCheckTransition_Cases(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		role    service.RideRole
		current domain.RideStatus
		target  domain.RideStatus
		wantErr error
	}{
		{"driver starts accepted trip", service.RideRoleDriver, domain.RideStatusAccepted, domain.RideStatusInProgress, nil},
		{"driver marks arrival", service.RideRoleDriver, domain.RideStatusAccepted, domain.RideStatusDriverArrived, nil},
		{"driver completes trip", service.RideRoleDriver, domain.RideStatusInProgress, domain.RideStatusCompleted, nil},
		{"driver cancels accepted ride", service.RideRoleDriver, domain.RideStatusAccepted, domain.RideStatusCancelled, nil},
		{"requester cancels open ride", service.RideRoleRequester, domain.RideStatusRequested, domain.RideStatusCancelled, nil},
		{"requester completes trip", service.RideRoleRequester, domain.RideStatusInProgress, domain.RideStatusCompleted, nil},
		{"driver skips to completed", service.RideRoleDriver, domain.RideStatusAccepted, domain.RideStatusCompleted, service.ErrInvalidTransition},
		{"driver moves requested ride", service.RideRoleDriver, domain.RideStatusRequested, domain.RideStatusInProgress, service.ErrInvalidTransition},
		{"driver goes backwards", service.RideRoleDriver, domain.RideStatusInProgress, domain.RideStatusDriverArrived, service.ErrInvalidTransition},
		{"requester starts trip", service.RideRoleRequester, domain.RideStatusAccepted, domain.RideStatusInProgress, service.ErrStatusNotAllowed},
		{"driver sets accepted", service.RideRoleDriver, domain.RideStatusRequested, domain.RideStatusAccepted, service.ErrStatusNotAllowed},
		{"stranger cancels", service.RideRoleNone, domain.RideStatusRequested, domain.RideStatusCancelled, service.ErrNotRideParty},
		{"cancel after completion", service.RideRoleDriver, domain.RideStatusCompleted, domain.RideStatusCancelled, service.ErrRideTerminal},
		{"requester cancels timed out ride", service.RideRoleRequester, domain.RideStatusTimeout, domain.RideStatusCancelled, service.ErrRideTerminal},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := service.CheckTransition(tc.role, tc.current, tc.target)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("expected no error, got: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got: %v", tc.wantErr, err)
			}
		})
	}
}

func TestCheckTransition_NothingLeavesTerminalState(t *testing.T) {
	t.Parallel()

	for _, role := range allRoles {
		for _, current := range allStatuses {
			if !current.IsTerminal() {
				continue
			}
			for _, target := range allStatuses {
				if err := service.CheckTransition(role, current, target); err == nil {
					t.Errorf("role %q moved terminal ride %s to %s", role, current, target)
				}
			}
		}
	}
}

func TestCheckTransition_NothingReturnsToRequested(t *testing.T) {
	t.Parallel()

	for _, role := range allRoles {
		for _, current := range allStatuses {
			if err := service.CheckTransition(role, current, domain.RideStatusRequested); err == nil {
				t.Errorf("role %q moved %s back to requested", role, current)
			}
		}
	}
}

func TestCheckTransition_ErrorKinds(t *testing.T) {
	t.Parallel()

	for _, role := range allRoles {
		for _, current := range allStatuses {
			for _, target := range allStatuses {
				err := service.CheckTransition(role, current, target)
				if err == nil {
					continue
				}
				if !errors.Is(err, service.ErrAuthorization) && !errors.Is(err, service.ErrInvalidTransition) {
					t.Errorf("%q %s -> %s: unexpected error kind: %v", role, current, target, err)
				}
			}
		}
	}
}

func TestRoleFor(t *testing.T) {
	t.Parallel()

	ride := &domain.Ride{RequesterID: "rider-1", DriverID: "driver-1"}

	if got := service.RoleFor(ride, "rider-1"); got != service.RideRoleRequester {
		t.Errorf("expected requester, got %q", got)
	}
	if got := service.RoleFor(ride, "driver-1"); got != service.RideRoleDriver {
		t.Errorf("expected driver, got %q", got)
	}
	if got := service.RoleFor(ride, "someone"); got != service.RideRoleNone {
		t.Errorf("expected none, got %q", got)
	}
	if got := service.RoleFor(ride, ""); got != service.RideRoleNone {
		t.Errorf("expected none for empty actor, got %q", got)
	}

	self := &domain.Ride{RequesterID: "user-1", DriverID: "user-1"}
	if got := service.RoleFor(self, "user-1"); got != service.RideRoleDriver {
		t.Errorf("expected bound driver to win, got %q", got)
	}

	open := &domain.Ride{RequesterID: "rider-1"}
	if got := service.RoleFor(open, ""); got != service.RideRoleNone {
		t.Errorf("expected none on unbound ride, got %q", got)
	}
}
