// Package pipeline chains translation and dispatch: one user utterance in,
// one executed Salesforce operation out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/crmchat/crmchat/internal/descriptor"
	"github.com/crmchat/crmchat/internal/observability"
	"github.com/crmchat/crmchat/internal/translate"
)

// Executor runs a validated descriptor against the CRM.
type Executor interface {
	Execute(ctx context.Context, desc descriptor.Descriptor) (any, error)
}

// Outcome is the success envelope for a completed pipeline run.
type Outcome struct {
	Operation descriptor.Operation `json:"operation"`
	Data      any                  `json:"data"`
	Message   string               `json:"message"`
	Success   bool                 `json:"success"`
}

type Service struct {
	translator translate.Translator
	executor   Executor
	logger     *slog.Logger
}

func NewService(translator translate.Translator, executor Executor, logger *slog.Logger) (*Service, error) {
	if translator == nil {
		return nil, fmt.Errorf("translator is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("executor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{translator: translator, executor: executor, logger: logger}, nil
}

// Run translates the utterance and executes the resulting operation. The
// context is threaded through both stages; a caller disconnect aborts
// whichever stage is in flight.
func (s *Service) Run(ctx context.Context, userQuery string) (Outcome, error) {
	start := time.Now()

	desc, err := s.translator.Translate(ctx, userQuery)
	if err != nil {
		s.noteFailure("translate", err, start)
		return Outcome{}, err
	}
	s.logger.Debug("utterance translated",
		"operation", desc.Operation,
		"object_type", desc.ObjectType)

	data, err := s.executor.Execute(ctx, desc)
	if err != nil {
		s.noteFailure("dispatch", err, start)
		return Outcome{}, err
	}

	observability.ObservePipeline(time.Since(start))
	return Outcome{
		Operation: desc.Operation,
		Data:      data,
		Message:   fmt.Sprintf("Successfully executed %s operation", desc.Operation),
		Success:   true,
	}, nil
}

func (s *Service) noteFailure(stage string, err error, start time.Time) {
	if IsCancellation(err) {
		observability.IncrementCancellation()
		s.logger.Info("pipeline cancelled", "stage", stage)
		return
	}
	observability.ObservePipeline(time.Since(start))
	s.logger.Warn("pipeline failed", "stage", stage, "error", err)
}

// IsCancellation reports whether err stems from the caller abandoning the
// request rather than a pipeline failure.
func IsCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
