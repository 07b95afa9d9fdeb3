package model

import "testing"

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusScheduled, StatusCompleted, true},
		{StatusScheduled, StatusCancelled, true},
		{StatusScheduled, StatusNoShow, true},
		{StatusScheduled, StatusScheduled, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusScheduled, false},
		{StatusNoShow, StatusCompleted, false},
		{StatusScheduled, Status("pending"), false},
	}
	for _, tc := range cases {
		if got := tc.from.CanTransition(tc.to); got != tc.ok {
			t.Fatalf("%s -> %s: expected %v, got %v", tc.from, tc.to, tc.ok, got)
		}
	}
}

func TestActiveStatuses(t *testing.T) {
	for _, s := range []Status{StatusScheduled, StatusCompleted} {
		if !s.Active() {
			t.Fatalf("%s should occupy the slot", s)
		}
	}
	for _, s := range []Status{StatusCancelled, StatusNoShow} {
		if s.Active() {
			t.Fatalf("%s should free the slot", s)
		}
	}
}
