package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/congo-pay/custody/internal/checkpoint"
	"github.com/congo-pay/custody/internal/ledger"
	"github.com/congo-pay/custody/internal/notification"
)

// InFlight lists the checkpoints of flows that have not reached a terminal step.
func (s *Service) InFlight(ctx context.Context) ([]checkpoint.Checkpoint, error) {
	return s.checkpoints.List(ctx)
}

// Cancel aborts a flow. A running flow is interrupted and cleans up after
// itself; a suspended one is marked Aborted, its reservations released and its
// checkpoint dropped. A transition already submitted for notarization cannot be
// cancelled.
func (s *Service) Cancel(ctx context.Context, flowID string) error {
	if s.interrupt(flowID) {
		s.logger.Info("flow cancelled", slog.String("flow_id", flowID))
		return nil
	}

	cp, err := s.checkpoints.Load(ctx, flowID)
	if errors.Is(err, checkpoint.ErrNotFound) {
		return fmt.Errorf("%w: flow %s", ledger.ErrNotFound, flowID)
	}
	if err != nil {
		return err
	}
	if cp.Assembler && cp.Step == checkpoint.AwaitingNotarization {
		return fmt.Errorf("%w: flow %s is being finalized", ledger.ErrInvalidRequest, flowID)
	}
	s.abandon(ctx, cp, checkpoint.Aborted, context.Canceled)
	return nil
}

// Resume drives suspended flows found in the checkpoint store. Transitions this
// party was finalizing are notarized if needed and committed; every other
// suspended flow is aborted because its sessions did not survive. It returns the
// number of transitions committed.
func (s *Service) Resume(ctx context.Context) (int, error) {
	cps, err := s.checkpoints.List(ctx)
	if err != nil {
		return 0, err
	}

	resumed := 0
	for _, cp := range cps {
		if s.isRunning(cp.FlowID) {
			continue
		}
		if !cp.Assembler || cp.Step != checkpoint.AwaitingNotarization || cp.Tx == nil {
			s.abandon(ctx, cp, checkpoint.Aborted, errors.New("flow interrupted before finalization"))
			continue
		}
		ok, err := s.refinalize(ctx, cp)
		if err != nil {
			return resumed, err
		}
		if ok {
			resumed++
		}
	}
	return resumed, nil
}

func (s *Service) refinalize(ctx context.Context, cp checkpoint.Checkpoint) (bool, error) {
	log := s.logger.With(slog.String("flow_id", cp.FlowID), slog.String("protocol", cp.Protocol), slog.String("tx_id", cp.Tx.ID))
	stx := *cp.Tx

	if stx.NotarySignature == nil {
		notarized, err := s.notary.Notarize(ctx, stx)
		if err != nil {
			log.Warn("resumed transition rejected by notary", slog.Any("error", err))
			s.abandon(ctx, cp, checkpoint.Rejected, err)
			return false, nil
		}
		stx = notarized
		cp.Tx = &stx
		if err := s.checkpoints.Save(ctx, cp); err != nil {
			return false, fmt.Errorf("checkpoint %s: %w", cp.FlowID, err)
		}
	} else if err := stx.VerifyNotarized(s.notary.Party()); err != nil {
		s.abandon(ctx, cp, checkpoint.Rejected, err)
		return false, nil
	}

	if err := s.commit(ctx, cp.FlowID, stx, nil); err != nil {
		return false, err
	}
	s.reservations.Release(ctx, cp.FlowID)
	if err := s.checkpoints.Delete(ctx, cp.FlowID); err != nil {
		log.Error("delete checkpoint failed", slog.Any("error", err))
	}
	log.Info("resumed flow committed")
	return true, nil
}

// abandon ends a suspended flow in step, which must be Rejected or Aborted.
func (s *Service) abandon(ctx context.Context, cp checkpoint.Checkpoint, step checkpoint.Step, cause error) {
	_ = cp.Advance(step, s.clock())
	s.logger.Warn("flow abandoned",
		slog.String("flow_id", cp.FlowID), slog.String("protocol", cp.Protocol), slog.String("step", string(step)), slog.Any("error", cause))

	s.reservations.Release(ctx, cp.FlowID)
	if err := s.checkpoints.Delete(ctx, cp.FlowID); err != nil {
		s.logger.Error("delete checkpoint failed", slog.String("flow_id", cp.FlowID), slog.Any("error", err))
	}
	s.notify(ctx, notification.Message{
		Kind:        notification.KindFlowFailed,
		Destination: s.self.Name,
		FlowID:      cp.FlowID,
		Body:        fmt.Sprintf("%s %s: %v", cp.Protocol, step, cause),
	})
}

func (s *Service) interrupt(flowID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.running[flowID]
	if ok {
		cancel()
	}
	return ok
}
