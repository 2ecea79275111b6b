package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Alfahan/sso-sub000/internal/core/domain"
	"github.com/Alfahan/sso-sub000/internal/core/port"
	"github.com/Alfahan/sso-sub000/internal/repository"
)

// AnomalyDetector compares a login fingerprint against the most recent auth
// history row. It reports facts only; the login orchestrator decides whether
// a mismatch rejects the attempt or escalates to an OTP step.
type AnomalyDetector struct {
	history port.AuthHistoryRepository
	logger  *zap.Logger
}

// NewAnomalyDetector constructs a detector over the auth history repository.
func NewAnomalyDetector(history port.AuthHistoryRepository, logger *zap.Logger) *AnomalyDetector {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AnomalyDetector{history: history, logger: logger}
}

// Evaluate returns the fingerprint dimensions that deviate from the user's
// latest recorded attempt. A user with no history raises nothing: the first
// login establishes the baseline.
func (d *AnomalyDetector) Evaluate(ctx context.Context, userID string, fp domain.Fingerprint) ([]domain.AnomalyKind, error) {
	latest, err := d.history.Latest(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load latest auth history: %w", err)
	}

	kinds := latest.Fingerprint.Diff(fp)
	if len(kinds) > 0 {
		d.logger.Info("fingerprint deviation detected",
			zap.String("user_id", userID),
			zap.Int("dimensions", len(kinds)),
		)
	}

	return kinds, nil
}
