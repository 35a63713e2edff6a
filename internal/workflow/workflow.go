package workflow

import (
	"errors"
	"fmt"
	"time"
)

// Validation errors are terminal: the dispatcher drops the event instead of
// retrying, because re-running the workflow cannot fix the underlying state.
var (
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrInvalidStatus    = errors.New("campaign is not in a valid status for this workflow")
)

// QuotaExceededError halts a send workflow run before any delivery work.
// No batch is attempted and no state changes when this is returned.
type QuotaExceededError struct {
	CampaignID string
	Reason     string
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota check failed for campaign %s: %s", e.CampaignID, e.Reason)
}

// IsTerminal reports whether a workflow error should not be retried.
func IsTerminal(err error) bool {
	var qe *QuotaExceededError
	return errors.Is(err, ErrCampaignNotFound) || errors.Is(err, ErrInvalidStatus) || errors.As(err, &qe)
}

// Config carries the tunable parameters of both workflows. Zero values are
// replaced with production defaults by the constructors.
type Config struct {
	GenerateBatchSize int
	SendBatchSize     int
	SendInterval      time.Duration
	MaxTokens         int
	AppBaseURL        string
}

func (c Config) withDefaults() Config {
	if c.GenerateBatchSize <= 0 {
		c.GenerateBatchSize = 20
	}
	if c.SendBatchSize <= 0 {
		c.SendBatchSize = 10
	}
	if c.SendInterval <= 0 {
		c.SendInterval = time.Second
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 500
	}
	if c.AppBaseURL == "" {
		c.AppBaseURL = "http://localhost:8080"
	}
	return c
}
