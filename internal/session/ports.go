package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// DataStore is the persistence capability consumed by a session.
type DataStore interface {
	GetExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error)
	GetQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error)
	HasAttempted(ctx context.Context, userID int, examID uuid.UUID) (bool, error)
	SaveResult(ctx context.Context, rec *model.ResultRecord) (uuid.UUID, error)
}

// AuthService resolves the user behind a request context.
type AuthService interface {
	CurrentUser(ctx context.Context) (*model.User, error)
}

// Capture is the part of the capture manager a session drives.
type Capture interface {
	Acquire(ctx context.Context) (capture.Permission, error)
	Granted() bool
	Release()
}

// Observer receives session events. Calls are made from the session event
// loop and must not block on the controller.
type Observer interface {
	PhaseChanged(snap Snapshot)
	Tick(remaining int)
	Violation(ev model.ViolationEvent, final bool)
	PermissionDenied(err error)
	RequestFullscreen()
	SubmitFailed(err error)
	Submitted(resultID uuid.UUID, rec model.ResultRecord)
}

// NopObserver ignores every event. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) PhaseChanged(Snapshot)                   {}
func (NopObserver) Tick(int)                                {}
func (NopObserver) Violation(model.ViolationEvent, bool)    {}
func (NopObserver) PermissionDenied(error)                  {}
func (NopObserver) RequestFullscreen()                      {}
func (NopObserver) SubmitFailed(error)                      {}
func (NopObserver) Submitted(uuid.UUID, model.ResultRecord) {}
