package fmp

import (
	"encoding/json"
	"fmt"

	"FMPull/internal/domain/models"
)

// Decode turns a classified payload into a Record for the given shape.
// A payload that does not fit the shape is an upstream failure.
func Decode(shape models.RecordShape, payload []byte) (*models.Record, error) {
	switch shape {
	case models.ShapeObject:
		return decodeObject(payload)
	case models.ShapeHistorical:
		return decodeHistorical(payload)
	default:
		rows, err := decodeRows(payload)
		if err != nil {
			return nil, err
		}
		return &models.Record{Frame: models.NewFrame(rows)}, nil
	}
}

// DecodeJob decodes payload for job. Rows without a "date" take it from
// job.DateField when that is set.
func DecodeJob(job models.Job, payload []byte) (*models.Record, error) {
	rec, err := Decode(job.Shape, payload)
	if err != nil || job.DateField == "" || rec.Frame == nil {
		return rec, err
	}
	for _, r := range rec.Frame.Rows {
		if _, ok := r["date"]; ok {
			continue
		}
		if v, ok := r[job.DateField]; ok {
			r["date"] = v
		}
	}
	rec.Frame = models.NewFrame(rec.Frame.Rows)
	return rec, nil
}

func decodeRows(payload []byte) ([]models.Row, error) {
	var rows []models.Row
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, models.NewJobError(models.FailureUpstream, "", "expected an array of rows", err)
	}
	if len(rows) == 0 {
		return nil, models.NewJobError(models.FailureEmpty, "", "no rows", nil)
	}
	return rows, nil
}

func decodeObject(payload []byte) (*models.Record, error) {
	var rows []models.Row
	if err := json.Unmarshal(payload, &rows); err == nil {
		if len(rows) == 0 {
			return nil, models.NewJobError(models.FailureEmpty, "", "no rows", nil)
		}
		return &models.Record{Object: rows[0]}, nil
	}

	var obj models.Row
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil, models.NewJobError(models.FailureUpstream, "", "expected an object", err)
	}
	return &models.Record{Object: obj}, nil
}

func decodeHistorical(payload []byte) (*models.Record, error) {
	var body struct {
		Symbol     string       `json:"symbol"`
		Historical []models.Row `json:"historical"`
	}
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, models.NewJobError(models.FailureUpstream, "", "expected a historical envelope", err)
	}
	if body.Historical == nil {
		return nil, models.NewJobError(models.FailureUpstream, "", fmt.Sprintf("no historical key for %q", body.Symbol), nil)
	}
	if len(body.Historical) == 0 {
		return nil, models.NewJobError(models.FailureEmpty, "", "no rows", nil)
	}
	return &models.Record{Frame: models.NewFrame(body.Historical)}, nil
}
