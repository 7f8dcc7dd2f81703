package executor

import (
	"encoding/json"
	"errors"

	"FMPull/internal/domain/models"
	"FMPull/internal/service/fmp"
	"FMPull/pkg/queue"
	"FMPull/pkg/util"
)

// outcomeOf turns a fetch result into an Outcome. It never fails: every
// error becomes a classified JobError.
func outcomeOf(job models.Job, payload json.RawMessage, err error) models.Outcome {
	if err != nil {
		return models.Failed(asJobError(job, err))
	}
	rec, err := fmp.DecodeJob(job, payload)
	if err != nil {
		return models.Failed(asJobError(job, err))
	}
	return models.Succeeded(rec)
}

func asJobError(job models.Job, err error) *models.JobError {
	var inner *models.JobError
	if errors.As(err, &inner) {
		cp := *inner
		if cp.URL == "" {
			cp.URL = util.RedactURL(job.URL)
		}
		return &cp
	}
	return models.NewJobError(models.KindOf(err), util.RedactURL(job.URL), err.Error(), err)
}

// outcomeFromResult maps a queue Result onto the same taxonomy as direct fetches.
func outcomeFromResult(job models.Job, res *queue.Result) models.Outcome {
	if res == nil {
		return models.Failed(models.NewJobError(models.FailureTransport, util.RedactURL(job.URL), "no result", nil))
	}
	if !res.Failed() {
		var payload json.RawMessage = res.Payload
		return outcomeOf(job, payload, nil)
	}
	return models.Failed(models.NewJobError(kindFromCode(res.Code), util.RedactURL(job.URL), res.Error, nil))
}

func kindFromCode(code string) models.FailureKind {
	switch code {
	case queue.CodeRetriesExhausted:
		return models.FailureExhausted
	}
	if k, err := models.ParseFailureKind(code); err == nil {
		return k
	}
	return models.FailureTransport
}
