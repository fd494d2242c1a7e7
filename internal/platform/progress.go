package platform

import "time"

// CourseOverview is the LMS summary of a course run
type CourseOverview struct {
	ID    string     `json:"id"`
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// Certificate is a learner's certificate record for a course run
type Certificate struct {
	Username    string `json:"username"`
	CourseID    string `json:"course_id"`
	Status      string `json:"status"`
	Grade       string `json:"grade"`
	IsPassing   bool   `json:"is_passing"`
	DownloadURL string `json:"download_url"`
}

// ProgressStatus is a learner's progress through a course run
type ProgressStatus string

const (
	StatusInProgress    ProgressStatus = "in_progress"
	StatusUpcoming      ProgressStatus = "upcoming"
	StatusCompleted     ProgressStatus = "completed"
	StatusSavedForLater ProgressStatus = "saved_for_later"
)

// CourseRunStatus derives the progress status of an enrollment.
//
// Saved-for-later enrollments report StatusSavedForLater regardless of
// dates. Otherwise the run is completed when it has ended or the learner
// holds a passing certificate; a missing start date counts as started and
// a missing end date as not ended.
func CourseRunStatus(overview *CourseOverview, cert *Certificate, savedForLater bool, now time.Time) ProgressStatus {
	if savedForLater {
		return StatusSavedForLater
	}

	passing := cert != nil && cert.IsPassing

	hasStarted, hasEnded := true, false
	if overview != nil {
		if overview.Start != nil {
			hasStarted = now.After(*overview.Start)
		}
		if overview.End != nil {
			hasEnded = now.After(*overview.End)
		}
	}

	switch {
	case hasEnded || passing:
		return StatusCompleted
	case hasStarted:
		return StatusInProgress
	default:
		return StatusUpcoming
	}
}
