package supervisor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/agentloop/agentloop/agent"
	"github.com/agentloop/agentloop/checkpoint"
	"github.com/agentloop/agentloop/core"
	"github.com/agentloop/agentloop/gateway"
	"github.com/agentloop/agentloop/logging"
)

// RouteFinish is the classifier's terminal verdict: stop routing and surface
// the last sub-agent's answer.
const RouteFinish = "FINISH"

// Failure reasons specific to routing.
const (
	ReasonHopLimit        = "hop limit reached"
	ReasonRoutingDeadlock = "routing deadlock"
)

// Config describes a supervisor: its classifier gateway and the sub-agents it
// routes between.
type Config struct {
	// Name identifies the supervisor in logs.
	Name string
	// Gateway is the classifier endpoint. It only ever answers with a route,
	// so a small, fast model is the usual choice.
	Gateway gateway.Gateway
	// SubAgents are the loops available for routing. Names must be unique.
	SubAgents []*agent.Loop
	// Checkpoints resolves suspension tokens back to their owning sub-agent.
	// It MUST be the same store the sub-agents save to; defaults to a fresh
	// in-process store when nil, which only works if the sub-agents were
	// built with their Checkpoints left nil and share it via this config.
	Checkpoints core.CheckpointStore
	// MaxHops bounds classification steps per invocation. Required.
	MaxHops int
	// Logger receives structured log lines. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Validate reports configuration errors that would make routing inoperable.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("supervisor config: Name is required")
	}
	if c.Gateway == nil {
		return fmt.Errorf("supervisor config %q: Gateway is required", c.Name)
	}
	if len(c.SubAgents) == 0 {
		return fmt.Errorf("supervisor config %q: at least one sub-agent is required", c.Name)
	}
	if c.MaxHops <= 0 {
		return fmt.Errorf("supervisor config %q: MaxHops must be positive", c.Name)
	}
	seen := map[string]bool{}
	for _, sub := range c.SubAgents {
		if sub.Name() == RouteFinish {
			return fmt.Errorf("supervisor config %q: sub-agent name %q is reserved", c.Name, RouteFinish)
		}
		if seen[sub.Name()] {
			return fmt.Errorf("supervisor config %q: duplicate sub-agent %q", c.Name, sub.Name())
		}
		seen[sub.Name()] = true
	}
	return nil
}

// Supervisor routes user turns across sub-agents until the classifier says
// FINISH. It shares one Conversation with all sub-agents, so each agent sees
// the full history including the others' answers.
type Supervisor struct {
	cfg    Config
	byName map[string]*agent.Loop
	logger logging.Logger
}

// New validates the config and constructs a Supervisor.
func New(cfg Config) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Checkpoints == nil {
		cfg.Checkpoints = checkpoint.NewInMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NoOpLogger{}
	}

	byName := make(map[string]*agent.Loop, len(cfg.SubAgents))
	for _, sub := range cfg.SubAgents {
		byName[sub.Name()] = sub
	}

	return &Supervisor{cfg: cfg, byName: byName, logger: cfg.Logger}, nil
}

// Name returns the supervisor's identity.
func (s *Supervisor) Name() string { return s.cfg.Name }

// Owns reports whether name is one of this supervisor's sub-agents.
func (s *Supervisor) Owns(name string) bool {
	_, ok := s.byName[name]
	return ok
}

// Run starts (or extends) a conversation with a new user message and routes
// it to convergence.
func (s *Supervisor) Run(ctx context.Context, conv *core.Conversation, input string) (*agent.Result, error) {
	if conv == nil {
		conv = core.NewConversation("")
	}
	conv.Append(core.NewUserTurn(input))
	return s.route(ctx, conv, "")
}

// Resume consumes the checkpoint for token and dispatches the human's answer
// directly to the sub-agent that asked, bypassing classification. When that
// agent completes, routing continues from where it left off.
func (s *Supervisor) Resume(ctx context.Context, token, answer string) (*agent.Result, error) {
	cp, err := s.cfg.Checkpoints.Load(token)
	if err != nil {
		if errors.Is(err, core.ErrStaleCheckpoint) {
			return nil, err
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	return s.ResumeFromCheckpoint(ctx, cp, answer)
}

// ResumeFromCheckpoint resumes from an already-loaded checkpoint. Callers
// that load checkpoints themselves (to pick the right supervisor) use this.
func (s *Supervisor) ResumeFromCheckpoint(ctx context.Context, cp *core.Checkpoint, answer string) (*agent.Result, error) {
	sub, ok := s.byName[cp.PendingAgent]
	if !ok {
		return nil, fmt.Errorf("checkpoint names unknown sub-agent %q", cp.PendingAgent)
	}

	s.logger.Info("supervisor.resume", "supervisor", s.cfg.Name, "agent", cp.PendingAgent, "conversation", cp.Conversation.ID)

	res, err := sub.ResumeFromCheckpoint(ctx, cp, answer)
	if err != nil || res.Status != core.StatusDone {
		return res, err
	}
	return s.route(ctx, res.Conversation, cp.PendingAgent)
}

// route is the supervisor's own loop: classify, dispatch, fold, repeat.
// lastAgent is the most recently dispatched sub-agent; routing to it again
// without new user input is a deadlock.
func (s *Supervisor) route(ctx context.Context, conv *core.Conversation, lastAgent string) (*agent.Result, error) {
	conv.SetStatus(core.StatusRunning)

	for hop := 0; hop < s.cfg.MaxHops; hop++ {
		next, err := s.classify(ctx, conv)
		if err != nil {
			s.logger.Error("supervisor.classify.failed", "supervisor", s.cfg.Name, "conversation", conv.ID, "error", err.Error())
			conv.Fail(agent.ReasonGatewayFailure)
			return &agent.Result{Status: core.StatusFailed, Reason: agent.ReasonGatewayFailure, Err: err, Conversation: conv}, nil
		}

		s.logger.Info("supervisor.route", "supervisor", s.cfg.Name, "conversation", conv.ID, "hop", hop+1, "next", next)

		if next == RouteFinish {
			answer := lastAnswer(conv)
			conv.SetStatus(core.StatusDone)
			return &agent.Result{Answer: answer, Status: core.StatusDone, Conversation: conv}, nil
		}

		if next == lastAgent {
			conv.Fail(ReasonRoutingDeadlock)
			s.logger.Warn("supervisor.deadlock", "supervisor", s.cfg.Name, "conversation", conv.ID, "agent", next)
			return &agent.Result{Status: core.StatusFailed, Reason: ReasonRoutingDeadlock, Conversation: conv}, nil
		}

		sub, ok := s.byName[next]
		if !ok {
			reason := fmt.Sprintf("classifier chose unknown route %q", next)
			conv.Fail(reason)
			return &agent.Result{Status: core.StatusFailed, Reason: reason, Conversation: conv}, nil
		}

		conv.Append(core.NewNoteTurn("Supervisor decided: " + next))

		res, err := sub.Continue(ctx, conv)
		if err != nil {
			return nil, err
		}
		if res.Status != core.StatusDone {
			// Suspensions and failures propagate to the caller unchanged;
			// the checkpoint already names the owning sub-agent.
			return res, nil
		}
		lastAgent = next
	}

	conv.Fail(ReasonHopLimit)
	s.logger.Warn("supervisor.hop_limit", "supervisor", s.cfg.Name, "conversation", conv.ID, "max_hops", s.cfg.MaxHops)
	return &agent.Result{Status: core.StatusFailed, Reason: ReasonHopLimit, Conversation: conv}, nil
}

// classify asks the gateway which sub-agent should act next, retrying a
// retryable failure exactly once, and parses the verdict.
func (s *Supervisor) classify(ctx context.Context, conv *core.Conversation) (string, error) {
	req := gateway.Request{
		Instructions: s.routingInstructions(),
		// AllTurns, not History: the "Supervisor decided" notes from prior
		// hops are part of what the classifier reasons over.
		Conversation: conv.AllTurns(),
	}

	decision, err := s.cfg.Gateway.Decide(ctx, req)
	if err != nil {
		var gwErr *gateway.Error
		if errors.As(err, &gwErr) && gwErr.Retryable() {
			s.logger.Warn("supervisor.classify.retry", "supervisor", s.cfg.Name, "conversation", conv.ID, "code", string(gwErr.Code))
			decision, err = s.cfg.Gateway.Decide(ctx, req)
		}
	}
	if err != nil {
		return "", err
	}

	return s.parseRoute(decision.Text)
}

// routingInstructions is the fixed classifier prompt: the closed vocabulary
// plus each sub-agent's capability summary.
func (s *Supervisor) routingInstructions() string {
	var b strings.Builder
	b.WriteString("You are a supervisor routing a conversation between specialized agents.\n")
	b.WriteString("Given the conversation so far, decide who should act next.\n\nAgents:\n")
	for _, sub := range s.cfg.SubAgents {
		fmt.Fprintf(&b, "- %s: %s\n", sub.Name(), sub.Description())
	}
	b.WriteString("\nRespond with JSON only: {\"next\": \"<agent name>\"} to delegate, ")
	b.WriteString("or {\"next\": \"FINISH\"} when the conversation already contains the answer.")
	return b.String()
}

// parseRoute extracts the verdict from classifier output. The primary form is
// JSON {"next": "..."}; bare agent names are tolerated because small models
// routinely drop the envelope.
func (s *Supervisor) parseRoute(text string) (string, error) {
	candidate := strings.TrimSpace(text)
	if v := gjson.Get(candidate, "next"); v.Exists() {
		candidate = strings.TrimSpace(v.String())
	}

	if candidate == RouteFinish {
		return RouteFinish, nil
	}
	if _, ok := s.byName[candidate]; ok {
		return candidate, nil
	}
	return "", gateway.NewError(
		gateway.ErrCodeMalformedResponse,
		fmt.Sprintf("unrecognized route %q", candidate),
		nil,
	)
}

// lastAnswer is the most recent sub-agent answer text in the conversation,
// used verbatim as the supervisor's final answer on FINISH.
func lastAnswer(conv *core.Conversation) string {
	turns := conv.AllTurns()
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Kind == core.TurnAssistant && turns[i].Text != "" {
			return turns[i].Text
		}
	}
	return ""
}
