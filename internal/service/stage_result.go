package service

import (
	"time"

	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/logging"
	"github.com/whale-tracker/internal/types"
	"github.com/whale-tracker/internal/worker"
)

// StageResult summarizes one pipeline stage across wallets
type StageResult struct {
	Stage      types.Stage       `json:"stage"`
	Processed  []string          `json:"processed"`
	Skipped    map[string]string `json:"skipped,omitempty"`
	Failed     map[string]string `json:"failed,omitempty"`
	NotStarted []string          `json:"notStarted,omitempty"`
	Duration   time.Duration     `json:"duration"`
}

// HasFailures reports whether any wallet failed
func (r *StageResult) HasFailures() bool {
	return len(r.Failed) > 0
}

// newStageResult classifies pool outcomes. Missing data is a skip, anything else a failure.
func newStageResult(stage types.Stage, report *worker.Report, logger *logging.Logger) *StageResult {
	result := &StageResult{
		Stage:      stage,
		Processed:  []string{},
		Skipped:    map[string]string{},
		Failed:     map[string]string{},
		NotStarted: report.NotStarted,
	}

	for _, o := range report.Outcomes {
		result.Duration += o.Duration
		switch {
		case o.Err == nil:
			result.Processed = append(result.Processed, o.Wallet)
		case apperrors.Is(o.Err, apperrors.CategoryMissingData):
			result.Skipped[o.Wallet] = o.Err.Error()
			logger.WithField("wallet", o.Wallet).Warn(o.Err.Error())
		default:
			result.Failed[o.Wallet] = o.Err.Error()
			logger.WithField("wallet", o.Wallet).WithError(o.Err).Error("Wallet failed")
		}
	}

	logger.WithFields(map[string]interface{}{
		"processed":  len(result.Processed),
		"skipped":    len(result.Skipped),
		"failed":     len(result.Failed),
		"notStarted": len(result.NotStarted),
	}).Info("Stage finished")
	return result
}
