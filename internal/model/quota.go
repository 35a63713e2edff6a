package model

import (
	"time"
)

// OrganizationQuota is the tenant's monthly send ledger. monthly_used is
// incremented only after confirmed dispatches and reset to zero when the
// period identified by monthly_reset rolls over.
type OrganizationQuota struct {
	Base
	OrganizationID string    `json:"organization_id" db:"organization_id"`
	MonthlyQuota   int       `json:"monthly_quota" db:"monthly_quota"`
	MonthlyUsed    int       `json:"monthly_used" db:"monthly_used"`
	MonthlyReset   time.Time `json:"monthly_reset" db:"monthly_reset"`
}

// QuotaInfo is the read model returned to callers and the dashboard.
type QuotaInfo struct {
	MonthlyQuota     int       `json:"monthly_quota"`
	MonthlyUsed      int       `json:"monthly_used"`
	EmailsRemaining  int       `json:"emails_remaining"`
	QuotaPercentage  float64   `json:"quota_percentage"`
	MonthlyReset     time.Time `json:"monthly_reset"`
	IsOverQuota      bool      `json:"is_over_quota"`
	WarningThreshold float64   `json:"warning_threshold"`
}

// QuotaCheckResult reports whether a requested batch may proceed. Partial
// fulfillment is reported as a rejection; the caller decides whether to
// proceed with CanSend.
type QuotaCheckResult struct {
	Allowed        bool       `json:"allowed"`
	Reason         string     `json:"reason,omitempty"`
	QuotaInfo      *QuotaInfo `json:"quota_info"`
	RequestedCount int        `json:"requested_count"`
	CanSend        int        `json:"can_send"`
}
