package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opentrusty/enterprise/internal/enrollment"
)

// Subject suffixes appended to the configured prefix
const (
	SubjectEnrollmentTracked  = "enrollment.tracked"
	SubjectLearnersNotified   = "enrollment.notify"
	SubjectContentTransmitted = "integration.transmitted"
)

// EnrollmentTracked is the payload of an enrollment tracking event
type EnrollmentTracked struct {
	Pathway      string    `json:"pathway"`
	ActorID      int64     `json:"actor_id"`
	CourseRunKey string    `json:"course_run_key"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Emitter turns enrollment side effects into published events. It
// implements enrollment.Tracker and enrollment.Notifier.
type Emitter struct {
	pub    Publisher
	prefix string
	now    func() time.Time
}

// NewEmitter creates an emitter publishing under prefix
func NewEmitter(pub Publisher, prefix string) *Emitter {
	return &Emitter{pub: pub, prefix: prefix, now: time.Now}
}

// TrackEnrollment implements enrollment.Tracker
func (e *Emitter) TrackEnrollment(ctx context.Context, pathway string, actorID int64, courseRunKey string) error {
	return e.publish(ctx, SubjectEnrollmentTracked, EnrollmentTracked{
		Pathway:      pathway,
		ActorID:      actorID,
		CourseRunKey: courseRunKey,
		OccurredAt:   e.now().UTC(),
	})
}

// NotifyEnrolledLearners implements enrollment.Notifier
func (e *Emitter) NotifyEnrolledLearners(ctx context.Context, n enrollment.Notification) error {
	return e.publish(ctx, SubjectLearnersNotified, n)
}

// Publish sends v as JSON to the prefixed subject
func (e *Emitter) Publish(ctx context.Context, suffix string, v any) error {
	return e.publish(ctx, suffix, v)
}

func (e *Emitter) publish(ctx context.Context, suffix string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s event: %w", suffix, err)
	}
	return e.pub.Publish(ctx, e.subject(suffix), payload)
}

func (e *Emitter) subject(suffix string) string {
	if e.prefix == "" {
		return suffix
	}
	return e.prefix + "." + suffix
}
