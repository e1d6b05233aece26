package dispatch

import (
	"errors"
	"fmt"

	"github.com/noperle/bsides-ldn-2019/pkg/models"
)

var ErrNoRat = errors.New("rat no longer exists")
var ErrAgentException = errors.New("agent raised an exception")
var ErrNotRatJob = errors.New("not a rat job")
var ErrUnknownStatus = errors.New("unrecognized job status")

// JobError reports a job that reached the failed state. Kind carries the
// matching sentinel when the job's error field was recognized, and is nil
// otherwise; errors.Is sees it through Unwrap.
type JobError struct {
	Kind    error
	Message string
	Job     *models.Job
}

func (e *JobError) Error() string {
	return e.Message
}

func (e *JobError) Unwrap() error {
	return e.Kind
}

// classifyFailure maps a failed job's action.error field onto a JobError.
func classifyFailure(job *models.Job) *JobError {
	switch errText := job.Action.ErrorText(); errText {
	case "no client":
		return &JobError{Kind: ErrNoRat, Message: "Job failed because the rat was killed", Job: job}
	case "agents exception":
		return &JobError{Kind: ErrAgentException, Message: job.Action.Exception(), Job: job}
	case "":
		return &JobError{Message: "job failed without an error field", Job: job}
	default:
		return &JobError{Message: fmt.Sprintf("job failed with unrecognized error %q", errText), Job: job}
	}
}
