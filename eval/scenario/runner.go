package scenario

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/weatherbot/eval/conversation"
	"github.com/BaSui01/weatherbot/eval/user"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// GeneratorFactory builds a fresh Generator (with its own harness and user)
// for each conversation.
type GeneratorFactory func() (*conversation.Generator, error)

// ProfileSourceFactory builds a profile source with the given overrides
// applied to the profile fields.
type ProfileSourceFactory func(overrides map[string]any) (user.ProfileSource, error)

// StandardProfiles is the default ProfileSourceFactory.
func StandardProfiles(overrides map[string]any) (user.ProfileSource, error) {
	g, err := user.NewStandardGenerator()
	if err != nil {
		return nil, err
	}
	if len(overrides) > 0 {
		g.ValidProfiles(overrides, nil)
	}
	return g, nil
}

// Record is one criterion paired with the conversation generated for its
// scenario.
type Record struct {
	Row
	ConversationID string                       `json:"conversation_id"`
	History        string                       `json:"conversation_history"`
	Profile        conversation.CustomerProfile `json:"customer_profile"`
	ExitReason     conversation.ExitReason      `json:"exit_reason"`
	ExitDetail     string                       `json:"exit_detail,omitempty"`
	// Retries is the number of regenerations, or -1 when every attempt
	// ended in error.
	Retries      int                        `json:"convo_gen_retry"`
	Conversation *conversation.Conversation `json:"-"`
}

// Result is the output of a Runner.
type Result struct {
	Records []Record `json:"records"`
	// Runtimes maps scenario description to seconds spent generating its
	// conversations, plus "total_runtime" for the whole run.
	Runtimes map[string]float64 `json:"runtimes"`
	// Conversations lists each generated conversation once.
	Conversations []*conversation.Conversation `json:"-"`
}

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	DefaultConversations int
	Concurrency          int
	RetryLimit           int
}

// DefaultRunnerConfig returns the sequential defaults.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{DefaultConversations: 3, Concurrency: 1, RetryLimit: 0}
}

// Runner generates conversations for every scenario group.
type Runner struct {
	cfg        RunnerConfig
	generators GeneratorFactory
	profiles   ProfileSourceFactory
	principles []Row
	logger     *zap.Logger
}

// NewRunner creates a runner. A nil profiles factory uses StandardProfiles.
func NewRunner(cfg RunnerConfig, generators GeneratorFactory, profiles ProfileSourceFactory, principles []Row, logger *zap.Logger) *Runner {
	if cfg.DefaultConversations <= 0 {
		cfg.DefaultConversations = DefaultRunnerConfig().DefaultConversations
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.RetryLimit < 0 {
		cfg.RetryLimit = 0
	}
	if profiles == nil {
		profiles = StandardProfiles
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		cfg:        cfg,
		generators: generators,
		profiles:   profiles,
		principles: principles,
		logger:     logger.With(zap.String("component", "scenario_runner")),
	}
}

type job struct {
	group int
	index int
}

type outcome struct {
	conv    *conversation.Conversation
	profile conversation.CustomerProfile
	retries int
	elapsed time.Duration
}

// Run generates every conversation and pairs it with its criteria. Records
// keep sheet order regardless of concurrency.
func (r *Runner) Run(ctx context.Context, rows []Row) (*Result, error) {
	groups := GroupRows(rows)
	start := time.Now()

	var jobs []job
	outcomes := make([][]outcome, len(groups))
	for gi, g := range groups {
		n := g.Conversations(r.cfg.DefaultConversations)
		outcomes[gi] = make([]outcome, n)
		for i := 0; i < n; i++ {
			jobs = append(jobs, job{group: gi, index: i})
		}
	}

	var mu sync.Mutex
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.Concurrency)
	for _, j := range jobs {
		eg.Go(func() error {
			out, err := r.generate(egctx, groups[j.group])
			if err != nil {
				return fmt.Errorf("scenario %q: %w", groups[j.group].ScenarioDesc, err)
			}
			mu.Lock()
			outcomes[j.group][j.index] = out
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	res := &Result{Runtimes: make(map[string]float64, len(groups)+1)}
	for gi, g := range groups {
		var spent time.Duration
		for _, out := range outcomes[gi] {
			spent += out.elapsed
			res.Conversations = append(res.Conversations, out.conv)
			res.Records = append(res.Records, r.records(g, out)...)
		}
		res.Runtimes[g.ScenarioDesc] += spent.Seconds()
		r.logger.Info("scenario generated",
			zap.Int("index", gi+1),
			zap.String("scenario", g.ScenarioDesc),
			zap.Int("conversations", len(outcomes[gi])),
			zap.Duration("runtime", spent))
	}
	total := time.Since(start)
	res.Runtimes["total_runtime"] = total.Seconds()
	r.logger.Info("generation finished",
		zap.Int("scenarios", len(groups)),
		zap.Int("conversations", len(jobs)),
		zap.Duration("total_runtime", total))
	return res, nil
}

// generate produces one conversation for g, regenerating conversations
// that end in error up to RetryLimit times.
func (r *Runner) generate(ctx context.Context, g Group) (outcome, error) {
	started := time.Now()

	var overrides map[string]any
	if g.ProfileOverrides != "" {
		if err := json.Unmarshal([]byte(g.ProfileOverrides), &overrides); err != nil {
			return outcome{}, fmt.Errorf("decode profile overrides: %w", err)
		}
	}
	source, err := r.profiles(overrides)
	if err != nil {
		return outcome{}, fmt.Errorf("profile source: %w", err)
	}
	profile, err := source.Next()
	if err != nil {
		return outcome{}, fmt.Errorf("next profile: %w", err)
	}
	if g.UserPrompt != "" {
		profile.UserPrompt = g.UserPrompt
	}

	var conv *conversation.Conversation
	retries := 0
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return outcome{}, err
		}
		gen, err := r.generators()
		if err != nil {
			return outcome{}, fmt.Errorf("build generator: %w", err)
		}
		conv = gen.GenerateConversation(ctx, profile, g.ScenarioDesc)
		if conv.ExitReason() != conversation.ExitError {
			break
		}
		if attempt >= r.cfg.RetryLimit {
			retries = -1
			r.logger.Warn("conversation failed after retries",
				zap.String("scenario", g.ScenarioDesc),
				zap.String("detail", conv.ExitDetail()))
			break
		}
		retries++
		r.logger.Info("retrying conversation",
			zap.String("scenario", g.ScenarioDesc),
			zap.Int("retry", retries),
			zap.String("detail", conv.ExitDetail()))
	}

	return outcome{conv: conv, profile: profile, retries: retries, elapsed: time.Since(started)}, nil
}

func (r *Runner) records(g Group, out outcome) []Record {
	history := Transcript(out.conv)
	base := Record{
		ConversationID: out.conv.ID(),
		History:        history,
		Profile:        out.profile,
		ExitReason:     out.conv.ExitReason(),
		ExitDetail:     out.conv.ExitDetail(),
		Retries:        out.retries,
		Conversation:   out.conv,
	}

	recs := make([]Record, 0, len(g.Rows)+len(r.principles))
	for _, row := range g.Rows {
		rec := base
		rec.Row = row
		recs = append(recs, rec)
	}
	for _, p := range r.principles {
		rec := base
		rec.Row = p
		rec.ScenarioID = g.ScenarioID()
		rec.ScenarioDesc = g.ScenarioDesc
		recs = append(recs, rec)
	}
	return recs
}

// Transcript renders conv as "ROLE: content" lines.
func Transcript(conv *conversation.Conversation) string {
	return conv.Transcript()
}
