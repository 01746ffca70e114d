package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/seat-booking/internal/core/domain"
	"github.com/rl1809/seat-booking/internal/port"
)

// ReconciliationService cross-checks inventory counters against the ledger.
// It only reports; repairing a violation is an operator decision.
type ReconciliationService struct {
	inventory port.InventoryRepository
	ledger    port.BookingRepository
	logger    *zap.Logger
	now       func() time.Time
}

func NewReconciliationService(inventory port.InventoryRepository, ledger port.BookingRepository, logger *zap.Logger) *ReconciliationService {
	return &ReconciliationService{
		inventory: inventory,
		ledger:    ledger,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *ReconciliationService) Check(ctx context.Context) (*domain.ReconciliationReport, error) {
	resources, err := s.inventory.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	confirmed, err := s.ledger.ConfirmedUnitsByResource(ctx)
	if err != nil {
		return nil, fmt.Errorf("sum confirmed bookings: %w", err)
	}

	report := &domain.ReconciliationReport{
		CheckedAt:  s.now().UTC(),
		Resources:  len(resources),
		Violations: []domain.Violation{},
	}

	seen := make(map[string]bool, len(resources))
	for i := range resources {
		r := &resources[i]
		seen[r.ID] = true

		v := domain.Violation{
			ResourceID:     r.ID,
			TotalUnits:     r.TotalUnits,
			AvailableUnits: r.AvailableUnits,
			BookedUnits:    r.BookedUnits(),
			ConfirmedUnits: confirmed[r.ID],
		}
		switch {
		case r.AvailableUnits < 0:
			v.Kind = domain.ViolationNegativeAvailable
		case r.AvailableUnits > r.TotalUnits:
			v.Kind = domain.ViolationExceedsTotal
		case v.BookedUnits != v.ConfirmedUnits:
			v.Kind = domain.ViolationBookedMismatch
		default:
			continue
		}
		report.Violations = append(report.Violations, v)
	}

	// bookings pointing at a resource the inventory does not know
	orphans := make([]string, 0)
	for id := range confirmed {
		if !seen[id] {
			orphans = append(orphans, id)
		}
	}
	sort.Strings(orphans)
	for _, id := range orphans {
		report.Violations = append(report.Violations, domain.Violation{
			ResourceID:     id,
			Kind:           domain.ViolationBookedMismatch,
			ConfirmedUnits: confirmed[id],
		})
	}

	for _, v := range report.Violations {
		s.logger.Error("inventory violation",
			zap.String("resource_id", v.ResourceID),
			zap.String("kind", string(v.Kind)),
			zap.Int("total_units", v.TotalUnits),
			zap.Int("available_units", v.AvailableUnits),
			zap.Int("confirmed_units", v.ConfirmedUnits),
			zap.Bool("reconciliation_required", true))
	}
	s.logger.Info("reconciliation finished",
		zap.Int("resources", report.Resources),
		zap.Int("violations", len(report.Violations)))

	return report, nil
}
