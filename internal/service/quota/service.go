package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	"github.com/Xianghbb/au-email-marketing-saas/internal/repository"
)

const (
	DefaultMonthlyQuota = 1000
	WarningThreshold    = 0.8
)

// Service is the tenant-scoped monthly send ledger. Period rollover is
// self-healing: any read past the reset timestamp resets the counter, so no
// scheduled job is required for correctness.
type Service interface {
	GetQuotaInfo(ctx context.Context, orgID string) (*model.QuotaInfo, error)
	CheckQuota(ctx context.Context, orgID string, requestedCount int) (*model.QuotaCheckResult, error)
	IncrementEmailCount(ctx context.Context, orgID string, count int) error
	UpdateMonthlyQuota(ctx context.Context, orgID string, newQuota int) error
	ResetDueQuotas(ctx context.Context) (int64, error)
	OrganizationsNearQuota(ctx context.Context) ([]*model.OrganizationQuota, error)
}

type service struct {
	repo         repository.QuotaRepository
	defaultQuota int
	now          func() time.Time
}

func NewService(repo repository.QuotaRepository) Service {
	return &service{
		repo:         repo,
		defaultQuota: DefaultMonthlyQuota,
		now:          time.Now,
	}
}

// NewServiceWithClock is used by tests to control period rollover.
func NewServiceWithClock(repo repository.QuotaRepository, now func() time.Time) Service {
	return &service{
		repo:         repo,
		defaultQuota: DefaultMonthlyQuota,
		now:          now,
	}
}

func (s *service) GetQuotaInfo(ctx context.Context, orgID string) (*model.QuotaInfo, error) {
	quota, err := s.loadOrCreate(ctx, orgID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !now.Before(quota.MonthlyReset) {
		if err := s.repo.ResetIfDue(ctx, orgID, now, nextResetDate(now)); err != nil {
			return nil, err
		}
		quota, err = s.repo.Get(ctx, orgID)
		if err != nil {
			return nil, err
		}
		if quota == nil {
			return nil, fmt.Errorf("quota record disappeared for organization %s", orgID)
		}
	}

	remaining := quota.MonthlyQuota - quota.MonthlyUsed
	if remaining < 0 {
		remaining = 0
	}
	percentage := 0.0
	if quota.MonthlyQuota > 0 {
		percentage = float64(quota.MonthlyUsed) / float64(quota.MonthlyQuota)
	}

	return &model.QuotaInfo{
		MonthlyQuota:     quota.MonthlyQuota,
		MonthlyUsed:      quota.MonthlyUsed,
		EmailsRemaining:  remaining,
		QuotaPercentage:  percentage,
		MonthlyReset:     quota.MonthlyReset,
		IsOverQuota:      quota.MonthlyUsed >= quota.MonthlyQuota,
		WarningThreshold: WarningThreshold,
	}, nil
}

func (s *service) CheckQuota(ctx context.Context, orgID string, requestedCount int) (*model.QuotaCheckResult, error) {
	info, err := s.GetQuotaInfo(ctx, orgID)
	if err != nil {
		return nil, err
	}

	if info.IsOverQuota {
		return &model.QuotaCheckResult{
			Allowed:        false,
			Reason:         "monthly quota exceeded",
			QuotaInfo:      info,
			RequestedCount: requestedCount,
			CanSend:        0,
		}, nil
	}

	canSend := requestedCount
	if info.EmailsRemaining < canSend {
		canSend = info.EmailsRemaining
	}

	if canSend < requestedCount {
		return &model.QuotaCheckResult{
			Allowed:        false,
			Reason:         fmt.Sprintf("only %d emails remaining out of %d requested", canSend, requestedCount),
			QuotaInfo:      info,
			RequestedCount: requestedCount,
			CanSend:        canSend,
		}, nil
	}

	return &model.QuotaCheckResult{
		Allowed:        true,
		QuotaInfo:      info,
		RequestedCount: requestedCount,
		CanSend:        canSend,
	}, nil
}

func (s *service) IncrementEmailCount(ctx context.Context, orgID string, count int) error {
	if count <= 0 {
		return nil
	}
	return s.repo.IncrementUsed(ctx, orgID, count)
}

func (s *service) UpdateMonthlyQuota(ctx context.Context, orgID string, newQuota int) error {
	if newQuota < 0 {
		return fmt.Errorf("monthly quota cannot be negative")
	}
	if _, err := s.loadOrCreate(ctx, orgID); err != nil {
		return err
	}
	return s.repo.SetMonthlyQuota(ctx, orgID, newQuota)
}

// ResetDueQuotas bulk-rolls every ledger whose period has passed. An
// optimization for the scheduled job; individual reads stay correct without it.
func (s *service) ResetDueQuotas(ctx context.Context) (int64, error) {
	now := s.now()
	return s.repo.ResetAllDue(ctx, now, nextResetDate(now))
}

func (s *service) OrganizationsNearQuota(ctx context.Context) ([]*model.OrganizationQuota, error) {
	return s.repo.ListNearThreshold(ctx, WarningThreshold)
}

func (s *service) loadOrCreate(ctx context.Context, orgID string) (*model.OrganizationQuota, error) {
	quota, err := s.repo.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if quota != nil {
		return quota, nil
	}

	if err := s.repo.CreateDefault(ctx, orgID, s.defaultQuota, nextResetDate(s.now())); err != nil {
		return nil, err
	}
	quota, err = s.repo.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if quota == nil {
		return nil, fmt.Errorf("failed to provision quota for organization %s", orgID)
	}
	return quota, nil
}

// nextResetDate returns midnight UTC on the 1st of the following month.
func nextResetDate(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
