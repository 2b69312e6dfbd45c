// Package notify announces review outcomes to chat destinations.
package notify

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"reviewbot/internal/domain"
)

// Sink delivers a card to one destination.
type Sink interface {
	Name() string
	Notify(ctx context.Context, card domain.Card) error
}

// Router sends every card to the primary sinks and escalating outcomes
// (rejections and caseid mismatches) to the secondary sinks as well.
type Router struct {
	primary   []Sink
	secondary []Sink
	log       *zap.Logger
}

func NewRouter(log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{log: log}
}

func (r *Router) AddPrimary(s Sink)   { r.primary = append(r.primary, s) }
func (r *Router) AddSecondary(s Sink) { r.secondary = append(r.secondary, s) }

// Destinations returns the number of primary and secondary sinks.
func (r *Router) Destinations() (primary, secondary int) {
	return len(r.primary), len(r.secondary)
}

// Announce delivers card to every applicable sink. A failing sink does not
// stop the others; all failures are returned joined.
func (r *Router) Announce(ctx context.Context, card domain.Card) error {
	targets := r.primary
	if card.Outcome.Escalates() {
		targets = append(append([]Sink{}, r.primary...), r.secondary...)
	}
	var errs []error
	for _, s := range targets {
		if err := s.Notify(ctx, card); err != nil {
			r.log.Error("notification failed",
				zap.String("sink", s.Name()),
				zap.String("ticket_id", card.TicketID),
				zap.String("outcome", string(card.Outcome)),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		r.log.Info("notification sent",
			zap.String("sink", s.Name()),
			zap.String("ticket_id", card.TicketID),
			zap.String("outcome", string(card.Outcome)))
	}
	return errors.Join(errs...)
}

type cardStyle struct {
	Title string
	Emoji string
	Color string
}

func styleFor(o domain.Outcome) cardStyle {
	switch o {
	case domain.OutcomeApproved:
		return cardStyle{Title: "Ticket approved", Emoji: "✅", Color: "Good"}
	case domain.OutcomeRejected:
		return cardStyle{Title: "Ticket rejected", Emoji: "❌", Color: "Attention"}
	case domain.OutcomeCaseIDMismatch:
		return cardStyle{Title: "Case ID mismatch", Emoji: "⚠️", Color: "Warning"}
	default:
		return cardStyle{Title: "Review result unknown", Emoji: "❔", Color: "Default"}
	}
}

func reasonHeading(o domain.Outcome) string {
	switch o {
	case domain.OutcomeRejected:
		return "Rejection reason"
	case domain.OutcomeCaseIDMismatch:
		return "Details"
	default:
		return "Reason"
	}
}
