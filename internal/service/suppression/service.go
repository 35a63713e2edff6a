package suppression

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Xianghbb/au-email-marketing-saas/internal/model"
	"github.com/Xianghbb/au-email-marketing-saas/internal/repository"
)

type BounceType string

const (
	BounceHard BounceType = "hard"
	BounceSoft BounceType = "soft"
)

// Service is the tenant-scoped exclusion set consulted before every send.
// All lookups and inserts normalize emails to lower case so casing can never
// bypass a suppression.
type Service interface {
	IsSuppressed(ctx context.Context, orgID, email string) (bool, error)
	GetSuppressedEmails(ctx context.Context, orgID string, emails []string) (map[string]struct{}, error)
	Add(ctx context.Context, orgID, email string, sType model.SuppressionType, reason string, campaignID *uuid.UUID) (*model.Suppression, error)
	BulkSuppress(ctx context.Context, orgID string, emails []string, sType model.SuppressionType, reason string, campaignID *uuid.UUID) (int, error)
	Remove(ctx context.Context, orgID, email string) error
	List(ctx context.Context, orgID string, p model.Pagination) ([]*model.Suppression, int, error)
	Stats(ctx context.Context, orgID string) (*model.SuppressionStats, error)
	ProcessBounce(ctx context.Context, orgID, email string, bounceType BounceType, reason string, campaignID *uuid.UUID) error
	ProcessComplaint(ctx context.Context, orgID, email, reason string, campaignID *uuid.UUID) error
	FilterSuppressed(ctx context.Context, orgID string, emails []string) (allowed []string, suppressed []string, err error)
}

type service struct {
	repo repository.SuppressionRepository
}

func NewService(repo repository.SuppressionRepository) Service {
	return &service{repo: repo}
}

func (s *service) IsSuppressed(ctx context.Context, orgID, email string) (bool, error) {
	record, err := s.repo.Get(ctx, orgID, normalize(email))
	if err != nil {
		return false, err
	}
	return record != nil, nil
}

func (s *service) GetSuppressedEmails(ctx context.Context, orgID string, emails []string) (map[string]struct{}, error) {
	if len(emails) == 0 {
		return map[string]struct{}{}, nil
	}

	normalized := make([]string, 0, len(emails))
	for _, email := range emails {
		normalized = append(normalized, normalize(email))
	}

	suppressed, err := s.repo.GetByEmails(ctx, orgID, normalized)
	if err != nil {
		return nil, err
	}

	set := make(map[string]struct{}, len(suppressed))
	for _, email := range suppressed {
		set[email] = struct{}{}
	}
	return set, nil
}

// Add is insert-or-ignore: suppressing an already-suppressed address returns
// the existing record instead of erroring.
func (s *service) Add(ctx context.Context, orgID, email string, sType model.SuppressionType, reason string, campaignID *uuid.UUID) (*model.Suppression, error) {
	record := &model.Suppression{
		OrganizationID: orgID,
		Email:          normalize(email),
		Type:           sType,
		CampaignID:     campaignID,
	}
	if reason != "" {
		record.Reason = &reason
	}

	inserted, err := s.repo.Insert(ctx, record)
	if err != nil {
		return nil, err
	}
	if inserted {
		return record, nil
	}

	existing, err := s.repo.Get(ctx, orgID, record.Email)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("failed to add %s to suppression list", record.Email)
	}
	return existing, nil
}

func (s *service) BulkSuppress(ctx context.Context, orgID string, emails []string, sType model.SuppressionType, reason string, campaignID *uuid.UUID) (int, error) {
	if len(emails) == 0 {
		return 0, nil
	}

	records := make([]*model.Suppression, 0, len(emails))
	for _, email := range emails {
		record := &model.Suppression{
			OrganizationID: orgID,
			Email:          normalize(email),
			Type:           sType,
			CampaignID:     campaignID,
		}
		if reason != "" {
			record.Reason = &reason
		}
		records = append(records, record)
	}

	return s.repo.BulkInsert(ctx, records)
}

func (s *service) Remove(ctx context.Context, orgID, email string) error {
	return s.repo.Delete(ctx, orgID, normalize(email))
}

func (s *service) List(ctx context.Context, orgID string, p model.Pagination) ([]*model.Suppression, int, error) {
	return s.repo.List(ctx, orgID, p)
}

func (s *service) Stats(ctx context.Context, orgID string) (*model.SuppressionStats, error) {
	counts, err := s.repo.CountByType(ctx, orgID)
	if err != nil {
		return nil, err
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	return &model.SuppressionStats{Total: total, ByType: counts}, nil
}

// ProcessBounce suppresses on the first bounce regardless of type. Treating
// soft bounces the same as hard ones is a deliberate policy point; a
// retry-count threshold for soft bounces would slot in here.
func (s *service) ProcessBounce(ctx context.Context, orgID, email string, bounceType BounceType, reason string, campaignID *uuid.UUID) error {
	if reason == "" {
		reason = "unknown reason"
	}
	_, err := s.Add(ctx, orgID, email, model.SuppressionBounced,
		fmt.Sprintf("%s bounce: %s", bounceType, reason), campaignID)
	return err
}

func (s *service) ProcessComplaint(ctx context.Context, orgID, email, reason string, campaignID *uuid.UUID) error {
	if reason == "" {
		reason = "spam complaint"
	}
	_, err := s.Add(ctx, orgID, email, model.SuppressionComplained, reason, campaignID)
	return err
}

func (s *service) FilterSuppressed(ctx context.Context, orgID string, emails []string) ([]string, []string, error) {
	set, err := s.GetSuppressedEmails(ctx, orgID, emails)
	if err != nil {
		return nil, nil, err
	}

	var allowed, suppressed []string
	for _, email := range emails {
		if _, ok := set[normalize(email)]; ok {
			suppressed = append(suppressed, email)
		} else {
			allowed = append(allowed, email)
		}
	}
	return allowed, suppressed, nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
