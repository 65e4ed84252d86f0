package subscription

import (
	"context"
	"fmt"

	"github.com/brackenhill/eventflow/pkg/runner"
)

// Registrar subscribes whatever handlers a caller needs against consumer,
// using ctx as the lifetime for every job Subscribe schedules. It runs once,
// during Service.Start.
type Registrar func(ctx context.Context, consumer *Consumer) error

// Service adapts a Consumer to the runner.Service lifecycle (Name/Start/
// Stop): Start runs register to subscribe every handler against a context
// scoped to the service's own lifetime, and Stop cancels that context so
// every subscription's polling loop exits.
type Service struct {
	serviceName string
	consumer    *Consumer
	register    Registrar
	cancel      context.CancelFunc
}

// NewService builds a Service named serviceName that, on Start, runs
// register against consumer and keeps every job it schedules alive until
// Stop is called.
func NewService(serviceName string, consumer *Consumer, register Registrar) *Service {
	return &Service{serviceName: serviceName, consumer: consumer, register: register}
}

func (s *Service) Name() string { return s.serviceName }

// Start registers every subscription and returns immediately; polling jobs
// run on their own goroutines until Stop is called.
func (s *Service) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if err := s.register(runCtx, s.consumer); err != nil {
		cancel()
		s.cancel = nil
		return fmt.Errorf("register subscriptions: %w", err)
	}
	return nil
}

// Stop cancels the context every subscribed job runs under, ending their
// polling loops.
func (s *Service) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	return nil
}

var _ runner.Service = (*Service)(nil)
