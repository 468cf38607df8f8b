// internal/models/application.go
package models

import "time"

type ApplicationStatus string

const (
	StatusPending  ApplicationStatus = "PENDING"
	StatusViewed   ApplicationStatus = "VIEWED"
	StatusAccepted ApplicationStatus = "ACCEPTED"
	StatusRejected ApplicationStatus = "REJECTED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []ApplicationStatus{StatusPending, StatusViewed, StatusAccepted, StatusRejected}

func ParseApplicationStatus(s string) (ApplicationStatus, bool) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

type Application struct {
	ID           int64             `json:"id"`
	ProjectID    int64             `json:"projectId"`
	FreelancerID int64             `json:"freelancerId"`
	EmployerID   int64             `json:"employerId"`
	Message      string            `json:"message,omitempty"`
	Status       ApplicationStatus `json:"status"`
	CreatedAt    time.Time         `json:"createdAt"`
	UpdatedAt    time.Time         `json:"updatedAt"`
}

// CreateApplicationRequest is the body of POST /api/v1/applications.
// Ids are pointers so a missing id and an explicit zero fail different
// schema rules.
type CreateApplicationRequest struct {
	ProjectID    *int64 `json:"projectId,omitempty"`
	FreelancerID *int64 `json:"freelancerId,omitempty"`
	Message      string `json:"message,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}
