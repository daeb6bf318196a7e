package dashboard

import (
	"fmt"
	"time"

	"lmsportal/internal/model"
)

// UpcomingWindow is how far ahead a pending assignment counts as upcoming.
const UpcomingWindow = 72 * time.Hour

// DeadlineTitle is the title of every synthesized deadline notification.
const DeadlineTitle = "Upcoming Assignment"

// Pending returns the assignments userID has not submitted.
func Pending(assignments []model.Assignment, userID string) []model.Assignment {
	out := make([]model.Assignment, 0, len(assignments))
	for _, a := range assignments {
		if _, ok := a.SubmissionBy(userID); !ok {
			out = append(out, a)
		}
	}
	return out
}

// Upcoming returns the pending assignments due within UpcomingWindow of now.
// The boundary is inclusive and overdue assignments are kept.
func Upcoming(pending []model.Assignment, now time.Time) []model.Assignment {
	out := make([]model.Assignment, 0, len(pending))
	for _, a := range pending {
		if a.DueDate.Sub(now) <= UpcomingWindow {
			out = append(out, a)
		}
	}
	return out
}

// Deadline builds the reminder shown for an upcoming assignment.
func Deadline(a model.Assignment) model.Notification {
	return model.Notification{
		ID:      a.ID,
		Title:   DeadlineTitle,
		Message: fmt.Sprintf("Your assignment \"%s\" is due on %s", a.Title, a.DueDate.Format("Jan 2, 2006")),
		Type:    model.NotificationDeadline,
	}
}

// Feed is the server notifications followed by one deadline entry per
// upcoming assignment. Nothing is de-duplicated.
func Feed(notifications []model.Notification, upcoming []model.Assignment) []model.Notification {
	out := make([]model.Notification, 0, len(notifications)+len(upcoming))
	out = append(out, notifications...)
	for _, a := range upcoming {
		out = append(out, Deadline(a))
	}
	return out
}
