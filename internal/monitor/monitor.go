// Package monitor polls the ticket tracker, classifies each changed ticket,
// asks a reviewer for a verdict, and announces the outcome.
package monitor

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"reviewbot/internal/domain"
	"reviewbot/internal/qa"
	"reviewbot/internal/review"
	"reviewbot/internal/storage/sqlite"
)

type Tracker interface {
	RecentIssues(ctx context.Context, limit int) ([]domain.IssueSummary, error)
	Issue(ctx context.Context, id string) (domain.TicketRecord, error)
	UpdateStatus(ctx context.Context, id string, statusID int, notes string) error
	IssueURL(id string) string
}

// Reviewer returns free-text judgment for a classified ticket.
type Reviewer interface {
	Review(ctx context.Context, ticket domain.TicketRecord, result qa.Result) (string, error)
}

type Announcer interface {
	Announce(ctx context.Context, card domain.Card) error
}

type StateStore interface {
	ProcessedUpdatedOn(issueID string) (string, error)
	SaveProcessedIssue(issueID, updatedOn string) error
	InsertReview(r sqlite.ReviewRecord) error
	LastAnnouncedFingerprint(issueID string) (string, error)
}

type CaseCleaner interface {
	Cleanup(caseID, ticketID string) (bool, error)
}

type Config struct {
	FetchLimit   int
	PollInterval time.Duration
	Policy       qa.Policy
	// RejectedStatusID moves rejected tickets to this status when positive.
	RejectedStatusID int
}

type Deps struct {
	Tracker   Tracker
	Reviewer  Reviewer
	Announcer Announcer
	Store     StateStore
	// Cleaner is optional. When set, approved cases have their directory removed.
	Cleaner CaseCleaner
}

type Service struct {
	cfg  Config
	deps Deps
	log  *zap.Logger
}

func New(cfg Config, deps Deps, log *zap.Logger) *Service {
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{cfg: cfg, deps: deps, log: log}
}

// CycleResult tracks what one polling cycle did.
type CycleResult struct {
	RunID       string
	Fetched     int
	Unchanged   int
	Classified  int
	Reviewed    int
	NoVerdict   int
	Announced   int
	Duplicates  int
	Interrupted bool
	Statuses    map[qa.Status]int
	Errors      []string
}

// Run polls until ctx is cancelled. Cancellation is observed between
// tickets and during the sleep, never in the middle of a ticket.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info("monitor started",
		zap.Int("fetch_limit", s.cfg.FetchLimit),
		zap.Duration("poll_interval", s.cfg.PollInterval))
	for {
		result, err := s.RunCycle(ctx)
		if err != nil {
			s.log.Warn("cycle skipped", zap.String("run_id", result.RunID), zap.Error(err))
		} else {
			s.log.Info("cycle complete", zap.String("run_id", result.RunID), zap.String("summary", FormatCycleSummary(result)))
		}

		timer := time.NewTimer(s.cfg.PollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.log.Info("monitor stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle processes one batch of recently updated issues.
func (s *Service) RunCycle(ctx context.Context) (CycleResult, error) {
	result := CycleResult{RunID: uuid.NewString(), Statuses: map[qa.Status]int{}}
	log := s.log.With(zap.String("run_id", result.RunID))

	issues, err := s.deps.Tracker.RecentIssues(ctx, s.cfg.FetchLimit)
	if err != nil {
		return result, fmt.Errorf("fetching recent issues: %w", err)
	}
	result.Fetched = len(issues)

	// A started ticket runs to completion; cancellation is only checked
	// before the next one.
	work := context.WithoutCancel(ctx)
	for _, issue := range issues {
		if ctx.Err() != nil {
			result.Interrupted = true
			log.Info("shutdown requested, stopping cycle early")
			break
		}
		s.processIssue(work, log, issue, &result)
	}
	return result, nil
}

func (s *Service) processIssue(ctx context.Context, log *zap.Logger, issue domain.IssueSummary, result *CycleResult) {
	log = log.With(zap.String("ticket_id", issue.ID))
	updatedOn := sqlite.NormalizeTimestamp(issue.UpdatedOn)

	stored, err := s.deps.Store.ProcessedUpdatedOn(issue.ID)
	if err != nil {
		log.Warn("state lookup failed, processing anyway", zap.Error(err))
	}
	if stored != "" && stored == updatedOn {
		result.Unchanged++
		return
	}

	ticket, err := s.deps.Tracker.Issue(ctx, issue.ID)
	if err != nil {
		log.Warn("ticket fetch failed", zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("#%s: %v", issue.ID, err))
		return
	}
	if ticket.Subject == "" {
		ticket.Subject = issue.Subject
	}

	qaResult, trace := qa.Classify(ticket, s.cfg.Policy)
	result.Classified++
	result.Statuses[qaResult.Status]++
	log.Debug("ticket classified", zap.String("status", string(qaResult.Status)), zap.Any("trace", trace))

	rec := sqlite.ReviewRecord{
		IssueID:   issue.ID,
		UpdatedOn: updatedOn,
		QAStatus:  string(qaResult.Status),
		RunID:     result.RunID,
	}

	undelivered := false
	switch qaResult.Status {
	case qa.StatusCaseIDMismatch:
		card := s.card(ticket, domain.OutcomeCaseIDMismatch, mismatchReason(trace))
		undelivered = s.announce(ctx, log, card, &rec, result) != nil

	case qa.StatusOK:
		text, err := s.deps.Reviewer.Review(ctx, ticket, qaResult)
		if err != nil && !errors.Is(err, review.ErrNoResult) {
			log.Warn("review failed, will retry next cycle", zap.Error(err))
			result.Errors = append(result.Errors, fmt.Sprintf("#%s: %v", issue.ID, err))
			return
		}
		result.Reviewed++
		verdict := review.Parse(text)
		outcome, ok := verdict.Outcome()
		if !ok {
			result.NoVerdict++
			log.Info("no usable verdict", zap.String("verdict_status", verdict.Status), zap.String("label", verdict.Label))
			break
		}
		card := s.card(ticket, outcome, verdict.Reason)
		if err := s.announce(ctx, log, card, &rec, result); err != nil {
			undelivered = true
		} else if rec.Announced {
			s.afterVerdict(ctx, log, ticket, outcome)
		}

	default:
		log.Info("ticket not eligible for review", zap.String("status", string(qaResult.Status)))
	}

	if err := s.deps.Store.InsertReview(rec); err != nil {
		log.Error("review history write failed", zap.Error(err))
	}
	if undelivered {
		log.Warn("announcement not delivered, will retry next cycle")
		return
	}
	if err := s.deps.Store.SaveProcessedIssue(issue.ID, updatedOn); err != nil {
		log.Error("state save failed", zap.Error(err))
	}
}

// announce sends card unless the same outcome was already announced for
// the issue. A suppressed duplicate returns nil with rec.Announced false.
func (s *Service) announce(ctx context.Context, log *zap.Logger, card domain.Card, rec *sqlite.ReviewRecord, result *CycleResult) error {
	rec.Outcome = string(card.Outcome)
	rec.Reason = card.Reason
	rec.Fingerprint = Fingerprint(card)

	last, err := s.deps.Store.LastAnnouncedFingerprint(card.TicketID)
	if err != nil {
		log.Warn("fingerprint lookup failed", zap.Error(err))
	}
	if last != "" && last == rec.Fingerprint {
		result.Duplicates++
		log.Info("duplicate announcement suppressed", zap.String("outcome", string(card.Outcome)))
		return nil
	}

	if err := s.deps.Announcer.Announce(ctx, card); err != nil {
		log.Warn("announcement failed", zap.String("outcome", string(card.Outcome)), zap.Error(err))
		result.Errors = append(result.Errors, fmt.Sprintf("#%s: %v", card.TicketID, err))
		return err
	}
	rec.Announced = true
	result.Announced++
	return nil
}

func (s *Service) afterVerdict(ctx context.Context, log *zap.Logger, ticket domain.TicketRecord, outcome domain.Outcome) {
	switch outcome {
	case domain.OutcomeRejected:
		if s.cfg.RejectedStatusID <= 0 {
			return
		}
		if err := s.deps.Tracker.UpdateStatus(ctx, ticket.ID, s.cfg.RejectedStatusID, ""); err != nil {
			log.Error("status update failed", zap.Int("status_id", s.cfg.RejectedStatusID), zap.Error(err))
			return
		}
		log.Info("ticket status updated", zap.Int("status_id", s.cfg.RejectedStatusID))
	case domain.OutcomeApproved:
		if s.deps.Cleaner == nil {
			return
		}
		caseID := qa.DeclaredCaseID(ticket, s.cfg.Policy)
		if _, err := s.deps.Cleaner.Cleanup(caseID, ticket.ID); err != nil {
			log.Error("case cleanup failed", zap.String("caseid", caseID), zap.Error(err))
		}
	}
}

func (s *Service) card(ticket domain.TicketRecord, outcome domain.Outcome, reason string) domain.Card {
	return domain.Card{
		TicketID:  ticket.ID,
		Subject:   ticket.Subject,
		TicketURL: s.deps.Tracker.IssueURL(ticket.ID),
		Outcome:   outcome,
		Reason:    reason,
		CaseID:    qa.DeclaredCaseID(ticket, s.cfg.Policy),
	}
}

func mismatchReason(trace qa.Trace) string {
	return fmt.Sprintf("The latest answer references case %s, but this ticket's caseid is %s.",
		strings.Join(trace.CaseIDCandidates, ", "), trace.DeclaredCaseID)
}

// Fingerprint identifies an announcement by ticket, outcome, and reason.
func Fingerprint(card domain.Card) string {
	sum := blake3.Sum256([]byte(card.TicketID + "\x00" + string(card.Outcome) + "\x00" + card.Reason))
	return hex.EncodeToString(sum[:])
}

// FormatCycleSummary returns a one-line summary of a CycleResult.
func FormatCycleSummary(r CycleResult) string {
	parts := []string{fmt.Sprintf("%d fetched", r.Fetched)}
	if r.Unchanged > 0 {
		parts = append(parts, fmt.Sprintf("%d unchanged", r.Unchanged))
	}
	if r.Classified > 0 {
		parts = append(parts, fmt.Sprintf("%d classified", r.Classified))
	}
	if r.Reviewed > 0 {
		parts = append(parts, fmt.Sprintf("%d reviewed", r.Reviewed))
	}
	if r.NoVerdict > 0 {
		parts = append(parts, fmt.Sprintf("%d without verdict", r.NoVerdict))
	}
	parts = append(parts, fmt.Sprintf("%d announced", r.Announced))
	if r.Duplicates > 0 {
		parts = append(parts, fmt.Sprintf("%d duplicates suppressed", r.Duplicates))
	}
	msg := strings.Join(parts, ", ")
	if r.Interrupted {
		msg += " (interrupted)"
	}
	if len(r.Errors) > 0 {
		msg += fmt.Sprintf("; %d errors: %s", len(r.Errors), strings.Join(r.Errors, "; "))
	}
	return msg
}
