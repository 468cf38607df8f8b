// internal/application/transitions.go
package application

import (
	"freelance-lifecycle/internal/common/errors"
	"freelance-lifecycle/internal/models"
)

type statusSet map[models.ApplicationStatus]struct{}

func setOf(statuses ...models.ApplicationStatus) statusSet {
	s := make(statusSet, len(statuses))
	for _, st := range statuses {
		s[st] = struct{}{}
	}
	return s
}

// transitions lists every allowed (current -> next) edge. Terminal states
// map to an empty set.
var transitions = map[models.ApplicationStatus]statusSet{
	models.StatusPending:  setOf(models.StatusViewed, models.StatusAccepted, models.StatusRejected),
	models.StatusViewed:   setOf(models.StatusAccepted, models.StatusRejected),
	models.StatusAccepted: setOf(),
	models.StatusRejected: setOf(),
}

func CanTransition(from, to models.ApplicationStatus) bool {
	_, ok := transitions[from][to]
	return ok
}

// ValidateTransition returns INVALID_STATUS_TRANSITION for any edge not in
// the table, self-transitions included.
func ValidateTransition(from, to models.ApplicationStatus) error {
	if !CanTransition(from, to) {
		return errors.NewInvalidStatusTransitionError(string(from), string(to))
	}
	return nil
}

// AllowedNext returns the reachable statuses in lifecycle order.
func AllowedNext(from models.ApplicationStatus) []models.ApplicationStatus {
	next := []models.ApplicationStatus{}
	for _, st := range models.AllStatuses {
		if CanTransition(from, st) {
			next = append(next, st)
		}
	}
	return next
}

func IsTerminal(s models.ApplicationStatus) bool {
	return len(transitions[s]) == 0
}
