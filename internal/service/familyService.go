package service

import (
	"context"
	"fmt"

	"github.com/hlachaal/24hkids-platform/internal/clock"
	"github.com/hlachaal/24hkids-platform/internal/database/repository"
	"github.com/hlachaal/24hkids-platform/internal/entity"

	"github.com/sirupsen/logrus"
)

type familyService struct {
	guardians repository.GuardianRepository
	children  repository.ChildRepository
	runner    *txRunner
	clock     clock.Clock
	audit     AuditSink
}

func NewFamilyService(store repository.Store, clk clock.Clock, audit AuditSink, opts Options) FamilyService {
	if audit == nil {
		audit = NopAuditSink{}
	}
	return &familyService{
		guardians: store.Guardians(),
		children:  store.Children(),
		runner:    newTxRunner(store, opts),
		clock:     clk,
		audit:     audit,
	}
}

func (s *familyService) RegisterGuardian(ctx context.Context, req *RegisterGuardianRequest) (*entity.Guardian, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	guardian := &entity.Guardian{
		Email:      req.Email,
		Name:       req.Name,
		TelegramID: req.TelegramID,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.guardians.Create(ctx, guardian); err != nil {
		return nil, err
	}

	logrus.WithField("guardian_id", guardian.ID).Info("Guardian registered")
	s.audit.Record(ctx, entity.AuditParentCreated, req.Actor, guardian.ID, map[string]interface{}{
		"email": guardian.Email,
	})
	return guardian, nil
}

func (s *familyService) GetGuardian(ctx context.Context, id int64) (*entity.Guardian, error) {
	return s.guardians.GetByID(ctx, id)
}

func (s *familyService) UpdateGuardian(ctx context.Context, req *UpdateGuardianRequest) (*entity.Guardian, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	previous, err := s.guardians.GetByID(ctx, req.GuardianID)
	if err != nil {
		return nil, err
	}

	guardian := &entity.Guardian{
		ID:         req.GuardianID,
		Email:      req.Email,
		Name:       req.Name,
		TelegramID: req.TelegramID,
		CreatedAt:  previous.CreatedAt,
	}
	if err := s.guardians.Update(ctx, guardian); err != nil {
		return nil, fmt.Errorf("failed to update guardian %d: %w", req.GuardianID, err)
	}

	logrus.WithField("guardian_id", guardian.ID).Info("Guardian updated")
	s.audit.Record(ctx, entity.AuditParentUpdated, req.Actor, guardian.ID, map[string]interface{}{
		"email": map[string]interface{}{"from": previous.Email, "to": guardian.Email},
		"name":  map[string]interface{}{"from": previous.Name, "to": guardian.Name},
	})
	return guardian, nil
}

// DeleteGuardian removes a guardian without children.
func (s *familyService) DeleteGuardian(ctx context.Context, id int64, actor string) error {
	if err := s.guardians.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete guardian %d: %w", id, err)
	}

	logrus.WithField("guardian_id", id).Info("Guardian deleted")
	s.audit.Record(ctx, entity.AuditParentDeleted, actor, id, nil)
	return nil
}

func (s *familyService) CreateChild(ctx context.Context, req *CreateChildRequest) (*entity.Child, error) {
	now := s.clock.Now()
	if err := req.Validate(now); err != nil {
		return nil, err
	}

	child := &entity.Child{
		GuardianID: req.GuardianID,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		BirthDate:  req.BirthDate,
		CreatedAt:  now,
	}
	if err := s.children.Create(ctx, child); err != nil {
		return nil, fmt.Errorf("failed to create child: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"child_id":    child.ID,
		"guardian_id": child.GuardianID,
	}).Info("Child registered")
	s.audit.Record(ctx, entity.AuditChildCreated, req.Actor, child.ID, map[string]interface{}{
		"guardian_id": child.GuardianID,
	})
	return child, nil
}

func (s *familyService) GetChild(ctx context.Context, id int64) (*entity.Child, error) {
	return s.children.GetByID(ctx, id)
}

// UpdateChild runs under the child's lock, so no booking for the child can be
// confirmed between the age re-check and the write.
func (s *familyService) UpdateChild(ctx context.Context, req *UpdateChildRequest) (*entity.Child, error) {
	if err := req.Validate(s.clock.Now()); err != nil {
		return nil, err
	}

	var previous, child *entity.Child
	err := s.runner.runChild(ctx, req.ChildID, func(ctx context.Context, tx repository.ChildTx) error {
		previous = tx.Child()

		events, err := tx.ConfirmedEvents(ctx)
		if err != nil {
			return err
		}
		for _, e := range events {
			ok, err := entity.IsEligible(req.BirthDate.Time, e.StartsAt, e.MinAge, e.MaxAge)
			if err != nil {
				return err
			}
			if !ok {
				age, _ := entity.AgeAt(req.BirthDate.Time, e.StartsAt)
				return fmt.Errorf("%w: child %d would be %d at confirmed event %d, which accepts %d-%d",
					entity.ErrIneligibleAge, req.ChildID, age, e.ID, e.MinAge, e.MaxAge)
			}
		}

		child = &entity.Child{
			GuardianID: req.GuardianID,
			FirstName:  req.FirstName,
			LastName:   req.LastName,
			BirthDate:  req.BirthDate,
		}
		return tx.UpdateChild(ctx, child)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update child %d: %w", req.ChildID, err)
	}

	logrus.WithField("child_id", child.ID).Info("Child updated")
	s.audit.Record(ctx, entity.AuditChildUpdated, req.Actor, child.ID, map[string]interface{}{
		"guardian_id": map[string]interface{}{"from": previous.GuardianID, "to": child.GuardianID},
		"birth_date":  map[string]interface{}{"from": previous.BirthDate.String(), "to": child.BirthDate.String()},
	})
	return child, nil
}

func (s *familyService) DeleteChild(ctx context.Context, id int64, actor string) error {
	err := s.runner.runChild(ctx, id, func(ctx context.Context, tx repository.ChildTx) error {
		events, err := tx.ConfirmedEvents(ctx)
		if err != nil {
			return err
		}
		if len(events) > 0 {
			return fmt.Errorf("%w: child %d is confirmed for %d events", entity.ErrValidation, id, len(events))
		}
		return tx.DeleteChild(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to delete child %d: %w", id, err)
	}

	logrus.WithField("child_id", id).Info("Child deleted")
	s.audit.Record(ctx, entity.AuditChildDeleted, actor, id, nil)
	return nil
}
