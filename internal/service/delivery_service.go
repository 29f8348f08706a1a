package service

import (
	"context"

	"companion/internal/domain"
	"companion/internal/models"

	"github.com/rs/zerolog"
)

// DeliveryService exposes notification delivery state to admins.
type DeliveryService struct {
	tasks  domain.DeliveryTaskRepository
	gate   domain.AuthorizationGate
	logger *zerolog.Logger
}

func NewDeliveryService(tasks domain.DeliveryTaskRepository, gate domain.AuthorizationGate, logger *zerolog.Logger) *DeliveryService {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &DeliveryService{tasks: tasks, gate: gate, logger: logger}
}

// FailedDeliveries lists tasks that exhausted their retries, newest first.
func (s *DeliveryService) FailedDeliveries(ctx context.Context, actor models.Actor) ([]models.DeliveryTask, error) {
	if !s.gate.IsAdmin(ctx, actor.UserID) {
		return nil, domain.ErrUnauthorized
	}
	tasks, err := s.tasks.GetFailedDeliveryTasks(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return tasks, nil
}
