package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/qmuntal/stateless"

	"github.com/comigor/twin/internal/history"
	"github.com/comigor/twin/internal/llm"
	"github.com/comigor/twin/internal/logger"
	"github.com/comigor/twin/internal/prompt"
)

// Turn states.
const (
	StateIdle       = "Idle"
	StateLoading    = "LoadingHistory"
	StateInferring  = "Inferring"
	StatePersisting = "Persisting"
	StateDone       = "Done"   // terminal: reply returned and transcript saved
	StateFailed     = "Failed" // terminal: nothing returned
)

// Turn triggers.
const (
	TriggerStart    = "Start"
	TriggerLoaded   = "HistoryLoaded"
	TriggerAnswered = "ModelAnswered"
	TriggerSaved    = "TranscriptSaved"
	TriggerFail     = "Fail"
)

// Outcomes reported to metrics.
const (
	outcomeOK             = "ok"
	outcomeLoadError      = "load_error"
	outcomeInferenceError = "inference_error"
	outcomeCancelled      = "cancelled"
	outcomeSaveError      = "save_error"
)

// turn is the data carried through one run of the state machine.
type turn struct {
	sessionID string
	message   string
	log       []history.Message
	prompt    []llm.Message
	reply     string
	outcome   string
	err       error
}

// run drives t from Idle to Done or Failed. Each state's entry action does
// its step and fires the next trigger.
func (s *Service) run(ctx context.Context, t *turn) error {
	fsm := stateless.NewStateMachine(StateIdle)

	fail := func(ctx context.Context, outcome string, err error) error {
		t.outcome = outcome
		t.err = err
		return fsm.FireCtx(ctx, TriggerFail)
	}

	fsm.Configure(StateIdle).
		Permit(TriggerStart, StateLoading)

	fsm.Configure(StateLoading).
		OnEntry(func(ctx context.Context, _ ...any) error {
			msgs, err := s.store.Load(ctx, t.sessionID)
			if err != nil {
				return fail(ctx, outcomeLoadError, fmt.Errorf("load history: %w", err))
			}
			t.log = msgs
			return fsm.FireCtx(ctx, TriggerLoaded)
		}).
		Permit(TriggerLoaded, StateInferring).
		Permit(TriggerFail, StateFailed)

	fsm.Configure(StateInferring).
		OnEntry(func(ctx context.Context, _ ...any) error {
			t.prompt = prompt.Build(t.log, s.system, t.message, s.window)
			logger.L.Debug("calling model", "session_id", t.sessionID, "model", s.model, "prompt_messages", len(t.prompt), "stored_messages", len(t.log))

			start := time.Now()
			reply, err := s.llm.Complete(ctx, t.prompt, s.model, s.sampling)
			s.metrics.ObserveInference(s.provider, time.Since(start), err)
			if err != nil {
				return fail(ctx, outcomeInferenceError, err)
			}
			t.reply = reply
			return fsm.FireCtx(ctx, TriggerAnswered)
		}).
		Permit(TriggerAnswered, StatePersisting).
		Permit(TriggerFail, StateFailed)

	fsm.Configure(StatePersisting).
		OnEntry(func(ctx context.Context, _ ...any) error {
			if err := ctx.Err(); err != nil {
				return fail(ctx, outcomeCancelled, fmt.Errorf("request cancelled before saving transcript: %w", err))
			}

			userAt := s.now()
			assistantAt := s.now()
			if assistantAt.Before(userAt) {
				assistantAt = userAt
			}
			t.log = append(t.log,
				history.NewMessage(history.RoleUser, t.message, userAt),
				history.NewMessage(history.RoleAssistant, t.reply, assistantAt),
			)

			if err := s.store.Save(ctx, t.sessionID, t.log); err != nil {
				logger.L.Error("model answered but transcript was not saved", "session_id", t.sessionID, "error", err)
				return fail(ctx, outcomeSaveError, fmt.Errorf("save history: %w", err))
			}
			return fsm.FireCtx(ctx, TriggerSaved)
		}).
		Permit(TriggerSaved, StateDone).
		Permit(TriggerFail, StateFailed)

	fsm.Configure(StateDone).
		OnEntry(func(context.Context, ...any) error {
			t.outcome = outcomeOK
			s.metrics.ObserveTurn(outcomeOK)
			logger.L.Info("chat turn completed", "session_id", t.sessionID, "messages", len(t.log))
			return nil
		})

	fsm.Configure(StateFailed).
		OnEntry(func(context.Context, ...any) error {
			s.metrics.ObserveTurn(t.outcome)
			logger.L.Warn("chat turn failed", "session_id", t.sessionID, "outcome", t.outcome, "error", t.err)
			return nil
		})

	if err := fsm.FireCtx(ctx, TriggerStart); err != nil {
		return fmt.Errorf("chat turn state machine: %w", err)
	}

	switch state := fsm.MustState(); state {
	case StateDone:
		return nil
	case StateFailed:
		return t.err
	default:
		return fmt.Errorf("chat turn ended in unexpected state %v", state)
	}
}
