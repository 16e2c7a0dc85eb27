// Package service provides business logic for the lead queue allocator.
package service

import (
	"context"
	"sort"
	"strings"

	"leaddesk_backend/internal/directory"
	"leaddesk_backend/internal/events"
	"leaddesk_backend/internal/matching"
	"leaddesk_backend/internal/queue/domain"
	"leaddesk_backend/internal/queue/repository"
	"leaddesk_backend/platform/apperr"
	"leaddesk_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// DirectoryReader is the slice of the company/handler directory the
// allocator needs. The directory itself is owned by an external subsystem.
type DirectoryReader interface {
	GetCompany(ctx context.Context, id uuid.UUID) (directory.Company, error)
	GetLead(ctx context.Context, id uuid.UUID) (directory.Lead, error)
	GetHandler(ctx context.Context, id uuid.UUID) (directory.Handler, error)
	GetHandlerByUser(ctx context.Context, companyID, userID uuid.UUID) (directory.Handler, error)
	ListAvailableHandlers(ctx context.Context, companyID uuid.UUID) ([]directory.Handler, error)
	GetDirector(ctx context.Context, companyID uuid.UUID) (directory.Handler, error)
}

// Service owns the per-company queue of unresolved leads.
type Service struct {
	repo     repository.EntryStore
	dir      DirectoryReader
	eventBus events.Bus
	log      *logger.Logger
}

// New creates a new queue service.
func New(repo repository.EntryStore, dir DirectoryReader, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{repo: repo, dir: dir, eventBus: eventBus, log: log}
}

// Enqueue places a lead in a company's internal queue and immediately
// attempts automatic assignment. Enqueue is idempotent per (lead, company):
// a second call returns the existing entry unchanged. A failed automatic
// assignment leaves the entry PENDING for manual handling and is never
// surfaced to the caller.
func (s *Service) Enqueue(ctx context.Context, leadID, companyID uuid.UUID) (repository.Entry, error) {
	company, err := s.dir.GetCompany(ctx, companyID)
	if err != nil {
		return repository.Entry{}, err
	}
	if !company.InternalLeadsEnabled {
		return repository.Entry{}, apperr.Forbidden("company is not eligible to receive internal leads")
	}

	lead, err := s.dir.GetLead(ctx, leadID)
	if err != nil {
		return repository.Entry{}, err
	}

	entry, created, err := s.repo.Insert(ctx, lead.ID, company.ID, "")
	if err != nil {
		return repository.Entry{}, err
	}
	if !created {
		return entry, nil
	}

	s.eventBus.Publish(ctx, events.LeadQueued{
		BaseEvent:    events.NewBaseEvent(),
		QueueEntryID: entry.ID,
		LeadID:       entry.LeadID,
		CompanyID:    entry.CompanyID,
		Position:     entry.Position,
	})

	assigned, err := s.AutoAssign(ctx, entry.ID)
	if err != nil {
		s.log.Warn("automatic assignment failed, entry stays pending",
			"entryId", entry.ID, "leadId", lead.ID, "error", err)
		return entry, nil
	}
	return assigned, nil
}

// AutoAssign scores every available handler of the company and assigns the
// best strictly-positive match. When nobody qualifies, the director is
// assigned and the entry is marked as a no-match fallback. Fails with a
// state conflict when the entry is not PENDING.
func (s *Service) AutoAssign(ctx context.Context, entryID uuid.UUID) (repository.Entry, error) {
	entry, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return repository.Entry{}, err
	}
	if entry.Status != domain.StatusPending {
		return repository.Entry{}, apperr.Conflict("queue entry is " + string(entry.Status) + ", expected PENDING")
	}

	lead, err := s.dir.GetLead(ctx, entry.LeadID)
	if err != nil {
		return repository.Entry{}, err
	}
	company, err := s.dir.GetCompany(ctx, entry.CompanyID)
	if err != nil {
		return repository.Entry{}, err
	}
	handlers, err := s.dir.ListAvailableHandlers(ctx, entry.CompanyID)
	if err != nil {
		return repository.Entry{}, err
	}

	leadCtx := matching.LeadContext{
		CategoryID:         lead.CategoryID,
		Urgency:            lead.Urgency,
		CompanyFeatured:    company.Featured,
		CompanyRatingCount: company.RatingCount,
	}

	type scored struct {
		handler directory.Handler
		score   float64
	}
	candidates := lo.FilterMap(handlers, func(h directory.Handler, _ int) (scored, bool) {
		score := matching.HandlerScore(candidateOf(h), leadCtx)
		return scored{handler: h, score: score}, score > 0
	})
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	params := repository.AssignParams{EntryID: entry.ID, Kind: domain.AssignmentAutomatic}
	if len(candidates) > 0 {
		best := candidates[0]
		params.HandlerID = best.handler.ID
		params.Score = &best.score
	} else {
		director, err := s.dir.GetDirector(ctx, entry.CompanyID)
		if err != nil {
			return repository.Entry{}, err
		}
		params.HandlerID = director.ID
		params.Fallback = true
	}

	updated, err := s.repo.Assign(ctx, params)
	if err != nil {
		return repository.Entry{}, err
	}

	s.publishAssigned(ctx, updated)
	return updated, nil
}

// ManualAssign assigns a handler chosen by the company's director. The
// acting user must be the director of the entry's company and the handler
// must belong to it.
func (s *Service) ManualAssign(ctx context.Context, entryID, handlerID, actingUserID uuid.UUID) (repository.Entry, error) {
	entry, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return repository.Entry{}, err
	}

	actor, err := s.dir.GetHandlerByUser(ctx, entry.CompanyID, actingUserID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return repository.Entry{}, apperr.Forbidden("only the company director may assign leads")
		}
		return repository.Entry{}, err
	}
	if !actor.IsDirector {
		return repository.Entry{}, apperr.Forbidden("only the company director may assign leads")
	}

	handler, err := s.dir.GetHandler(ctx, handlerID)
	if err != nil {
		return repository.Entry{}, err
	}
	if handler.CompanyID != entry.CompanyID {
		return repository.Entry{}, apperr.Validation("handler does not belong to this company")
	}

	updated, err := s.repo.Assign(ctx, repository.AssignParams{
		EntryID:   entry.ID,
		HandlerID: handler.ID,
		Kind:      domain.AssignmentManual,
	})
	if err != nil {
		return repository.Entry{}, err
	}

	s.publishAssigned(ctx, updated)
	return updated, nil
}

// Decline moves an entry to the terminal DECLINED state with the reason
// recorded. A declined lead does not re-enter the queue.
func (s *Service) Decline(ctx context.Context, entryID uuid.UUID, reason string) (repository.Entry, error) {
	if strings.TrimSpace(reason) == "" {
		return repository.Entry{}, apperr.Validation("decline reason is required")
	}

	updated, err := s.repo.Decline(ctx, entryID, reason)
	if err != nil {
		return repository.Entry{}, err
	}

	s.eventBus.Publish(ctx, events.LeadDeclined{
		BaseEvent:    events.NewBaseEvent(),
		QueueEntryID: updated.ID,
		LeadID:       updated.LeadID,
		CompanyID:    updated.CompanyID,
		Reason:       reason,
	})
	return updated, nil
}

// UpdateStatus applies an externally driven progression (IN_PROGRESS,
// COMPLETED). The transition table gates what the fulfillment subsystem
// may write; the conditional update gates concurrent writers.
func (s *Service) UpdateStatus(ctx context.Context, entryID uuid.UUID, to domain.Status) (repository.Entry, error) {
	if !domain.IsValid(to) {
		return repository.Entry{}, apperr.Validation("unknown queue status")
	}

	entry, err := s.repo.GetByID(ctx, entryID)
	if err != nil {
		return repository.Entry{}, err
	}
	if !domain.CanTransition(entry.Status, to) {
		return repository.Entry{}, apperr.Conflict("cannot transition from " + string(entry.Status) + " to " + string(to))
	}

	return s.repo.UpdateStatus(ctx, entryID, entry.Status, to)
}

// Get returns one queue entry.
func (s *Service) Get(ctx context.Context, entryID uuid.UUID) (repository.Entry, error) {
	return s.repo.GetByID(ctx, entryID)
}

// List returns a company's queue entries.
func (s *Service) List(ctx context.Context, params repository.ListParams) ([]repository.Entry, int, error) {
	return s.repo.List(ctx, params)
}

func (s *Service) publishAssigned(ctx context.Context, entry repository.Entry) {
	if entry.HandlerID == nil {
		return
	}

	handler, err := s.dir.GetHandler(ctx, *entry.HandlerID)
	if err != nil {
		s.log.Warn("assigned handler lookup failed for notification", "entryId", entry.ID, "error", err)
		return
	}

	kind := ""
	if entry.AssignmentKind != nil {
		kind = *entry.AssignmentKind
	}
	s.eventBus.Publish(ctx, events.LeadAssigned{
		BaseEvent:     events.NewBaseEvent(),
		QueueEntryID:  entry.ID,
		LeadID:        entry.LeadID,
		CompanyID:     entry.CompanyID,
		HandlerID:     handler.ID,
		HandlerUserID: handler.UserID,
		Kind:          kind,
		Fallback:      entry.Fallback,
		Score:         entry.Score,
	})
}

func candidateOf(handler directory.Handler) matching.Candidate {
	return matching.Candidate{
		CategoryIDs: handler.CategoryIDs,
		Reputation: matching.Reputation{
			RatingAvg:          handler.RatingAvg,
			RatingCount:        handler.RatingCount,
			AvgResponseMinutes: handler.AvgResponseMinutes,
			ConversionRate:     handler.ConversionRate,
		},
	}
}
