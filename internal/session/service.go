// Package session runs play sessions: it loads a session's state, applies
// one action through the engine, narrates the result and saves it back.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/situation-engine/internal/services"
	"github.com/jwebster45206/situation-engine/internal/services/events"
	"github.com/jwebster45206/situation-engine/internal/transcript"
	"github.com/jwebster45206/situation-engine/pkg/engine"
	"github.com/jwebster45206/situation-engine/pkg/prompts"
	"github.com/jwebster45206/situation-engine/pkg/rules"
	"github.com/jwebster45206/situation-engine/pkg/state"
	"github.com/jwebster45206/situation-engine/pkg/storage"
	"github.com/jwebster45206/situation-engine/pkg/textfilter"
	"github.com/jwebster45206/situation-engine/pkg/validate"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionBusy     = errors.New("session is processing another action")
	ErrInvalidRuleSet  = errors.New("rule set has validation errors")
	ErrInvalidAction   = errors.New("invalid action")
	ErrIncompatible    = errors.New("save does not fit its rule set")
)

const (
	narrationTimeout   = 30 * time.Second
	promptHistoryLimit = 6
)

// RuleSetError carries the validation issues that rejected a rule set.
type RuleSetError struct {
	File   string
	Issues []validate.Issue
}

func (e *RuleSetError) Error() string {
	return fmt.Sprintf("rule set %s has %d validation errors", e.File, validate.Count(e.Issues, validate.SeverityError))
}

func (e *RuleSetError) Unwrap() error { return ErrInvalidRuleSet }

// SituationView describes the current situation to clients.
type SituationView struct {
	ID      string   `json:"id"`
	Label   string   `json:"label"`
	Scene   string   `json:"scene,omitempty"`
	Targets []string `json:"targets,omitempty"`
	Ending  bool     `json:"ending"`
}

// View is a session as clients see it.
type View struct {
	State            *state.GameState `json:"state"`
	Situation        SituationView    `json:"situation"`
	AvailableActions []string         `json:"available_actions"`
}

// Outcome is the result of one Act call.
type Outcome struct {
	View
	Logs        []engine.ProceduralLog `json:"logs"`
	Rule        *engine.MatchedRule    `json:"rule,omitempty"`
	Transition  *engine.Transition     `json:"transition,omitempty"`
	Narration   string                 `json:"narration,omitempty"`
	Diagnostics []engine.Diagnostic    `json:"diagnostics,omitempty"`
}

// Service coordinates storage, the engine, narration and event publishing.
type Service struct {
	storage   storage.Storage
	narrator  services.Narrator
	publisher events.Publisher
	filter    *textfilter.Filter
	logger    *slog.Logger
}

// NewService creates a session service. narrator and publisher may be nil.
func NewService(s storage.Storage, narrator services.Narrator, publisher events.Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		storage:   s,
		narrator:  narrator,
		publisher: publisher,
		filter:    textfilter.New(),
		logger:    logger,
	}
}

// Create starts a new session on a rule file.
func (s *Service) Create(ctx context.Context, file string) (*View, error) {
	r, err := s.loadRules(ctx, file)
	if err != nil {
		return nil, err
	}

	gs := state.New(r)
	gs.RuleSet = file
	if err := s.storage.SaveGameState(ctx, gs.ID, gs); err != nil {
		return nil, fmt.Errorf("failed to save new session: %w", err)
	}
	s.logger.Info("Session created", "session_id", gs.ID.String(), "ruleset", file, "situation", gs.Situation)
	return s.view(r, gs), nil
}

// Get returns a session.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*View, error) {
	gs, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := s.storage.GetRuleSet(ctx, gs.RuleSet)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule set %s: %w", gs.RuleSet, err)
	}
	return s.view(r, gs), nil
}

// Transcript renders a session's log as a PDF.
func (s *Service) Transcript(ctx context.Context, id uuid.UUID, w io.Writer) error {
	gs, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	r, err := s.storage.GetRuleSet(ctx, gs.RuleSet)
	if err != nil {
		return fmt.Errorf("failed to load rule set %s: %w", gs.RuleSet, err)
	}
	return transcript.Write(w, r, gs)
}

// Delete removes a session.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.storage.DeleteGameState(ctx, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if s.publisher != nil {
		if err := s.publisher.PublishSessionDeleted(ctx, id); err != nil {
			s.logger.Warn("Failed to publish session deletion", "session_id", id.String(), "error", err)
		}
	}
	s.logger.Info("Session deleted", "session_id", id.String())
	return nil
}

// Import stores an exported save under a fresh id.
func (s *Service) Import(ctx context.Context, data []byte) (*View, error) {
	gs, err := state.Load(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}
	if gs.RuleSet == "" {
		return nil, fmt.Errorf("%w: save names no rule set", ErrIncompatible)
	}
	r, err := s.loadRules(ctx, gs.RuleSet)
	if err != nil {
		return nil, err
	}
	if err := gs.Compatible(r); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIncompatible, err)
	}

	gs.ID = uuid.New()
	gs.RulesID = r.ID
	gs.UpdatedAt = time.Now()
	if err := s.storage.SaveGameState(ctx, gs.ID, gs); err != nil {
		return nil, fmt.Errorf("failed to save imported session: %w", err)
	}
	s.logger.Info("Session imported", "session_id", gs.ID.String(), "ruleset", gs.RuleSet, "turn", gs.Turn)
	return s.view(r, gs), nil
}

// Act applies one action to a session under the session lock.
func (s *Service) Act(ctx context.Context, id uuid.UUID, req engine.ActionRequest) (*Outcome, error) {
	scripted := len(req.Overrides) > 0
	if req.ActionID == "" && !scripted {
		return nil, fmt.Errorf("%w: action_id is required", ErrInvalidAction)
	}

	owner := uuid.New().String()
	ok, err := s.storage.AcquireLock(ctx, id, owner)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	if !ok {
		return nil, ErrSessionBusy
	}
	defer func() {
		// Release even if the request context is already done.
		if err := s.storage.ReleaseLock(context.WithoutCancel(ctx), id, owner); err != nil {
			s.logger.Warn("Failed to release session lock", "session_id", id.String(), "error", err)
		}
	}()

	gs, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := s.storage.GetRuleSet(ctx, gs.RuleSet)
	if err != nil {
		return nil, fmt.Errorf("failed to load rule set %s: %w", gs.RuleSet, err)
	}
	if req.ActionID != "" && !scripted {
		if _, ok := r.Actions[req.ActionID]; !ok {
			return nil, fmt.Errorf("%w: unknown action %q", ErrInvalidAction, req.ActionID)
		}
	}

	log := s.logger.With("session_id", id.String(), "action", req.ActionID)
	res := engine.New(r, log).ProcessAction(gs, req)
	next := res.State
	next.Turn++
	next.UpdatedAt = time.Now()

	if req.ActionID != "" {
		text := prompts.ActionLabel(r, req.ActionID)
		if req.Target != "" {
			text += " " + req.Target
		}
		next.AppendLogAt(state.LogAction, gs.Situation, text)
	}
	for _, l := range res.Logs {
		next.AppendLogAt(state.LogProcedural, l.Situation, l.Message)
	}

	out := &Outcome{
		Logs:        res.Logs,
		Rule:        res.Rule,
		Transition:  res.Transition,
		Diagnostics: res.Diagnostics,
	}
	if !scripted {
		out.Narration = s.narrate(ctx, log, r, gs.Situation, next, req, res)
		if out.Narration != "" {
			next.AppendLog(state.LogNarration, out.Narration)
		}
	}

	if err := s.storage.SaveGameState(ctx, id, next); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	s.publish(ctx, log, next, req, res)

	log.Info("Action processed",
		"turn", next.Turn,
		"situation", next.Situation,
		"logs", len(res.Logs),
		"diagnostics", len(res.Diagnostics))
	out.View = *s.view(r, next)
	return out, nil
}

// narrate asks the narrator for prose. Failures are logged and the turn
// proceeds without narration.
func (s *Service) narrate(ctx context.Context, log *slog.Logger, r *rules.GameRules, from string, next *state.GameState, req engine.ActionRequest, res engine.Result) string {
	if s.narrator == nil {
		return ""
	}
	turn := prompts.Turn{
		ActionID: req.ActionID,
		Target:   req.Target,
		Success:  req.Success,
		Facts:    res.Messages(),
		FromID:   from,
	}
	for _, c := range res.Cues {
		switch c.Kind {
		case rules.KindSecret:
			turn.Secrets = append(turn.Secrets, c.Text)
		case rules.KindAgreement:
			turn.Agreed = append(turn.Agreed, c.Text)
		}
	}
	msgs, err := prompts.New().
		WithRules(r).
		WithGameState(next).
		WithTurn(turn).
		WithHistoryLimit(promptHistoryLimit).
		Build()
	if err != nil {
		log.Warn("Failed to build narration prompt", "error", err)
		return ""
	}

	nctx, cancel := context.WithTimeout(ctx, narrationTimeout)
	defer cancel()
	text, err := s.narrator.Narrate(nctx, msgs)
	if err != nil {
		log.Warn("Narration failed", "error", err)
		return ""
	}
	if textfilter.AppliesTo(r.Rating) && s.filter.Contains(text) {
		log.Debug("Filtered narration", "rating", r.Rating)
		text = s.filter.Clean(text)
	}
	return text
}

func (s *Service) publish(ctx context.Context, log *slog.Logger, next *state.GameState, req engine.ActionRequest, res engine.Result) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishActionProcessed(ctx, next.ID, next.Turn, req.ActionID, res.Messages()); err != nil {
		log.Warn("Failed to publish action event", "error", err)
	}
	if t := res.Transition; t != nil {
		if err := s.publisher.PublishSituationChanged(ctx, next.ID, next.Turn, t.From, t.To, t.Auto); err != nil {
			log.Warn("Failed to publish situation change", "error", err)
		}
	}
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (*state.GameState, error) {
	gs, err := s.storage.LoadGameState(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	if gs == nil {
		return nil, ErrSessionNotFound
	}
	return gs, nil
}

// loadRules fetches a rule file and refuses it if validation reports errors.
func (s *Service) loadRules(ctx context.Context, file string) (*rules.GameRules, error) {
	r, err := s.storage.GetRuleSet(ctx, file)
	if err != nil {
		return nil, err
	}
	issues, err := validate.Rules(r)
	if err != nil {
		return nil, fmt.Errorf("failed to validate rule set %s: %w", file, err)
	}
	if validate.HasErrors(issues) {
		return nil, &RuleSetError{File: file, Issues: issues}
	}
	for _, issue := range issues {
		s.logger.Debug("Rule set warning", "ruleset", file, "issue", issue.String())
	}
	return r, nil
}

func (s *Service) view(r *rules.GameRules, gs *state.GameState) *View {
	v := &View{
		State:            gs,
		Situation:        SituationView{ID: gs.Situation},
		AvailableActions: engine.New(r, s.logger).Available(gs),
	}
	if sit, ok := r.Situations.Get(gs.Situation); ok {
		v.Situation.Label = sit.Label
		v.Situation.Scene = sit.Scene
		v.Situation.Targets = sit.Targets
		v.Situation.Ending = sit.Ending
	}
	if v.AvailableActions == nil {
		v.AvailableActions = []string{}
	}
	return v
}
