package mailsync

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/convention-registry/member-api/internal/domain"
	"github.com/convention-registry/member-api/internal/platform/metrics"
	"github.com/convention-registry/member-api/internal/ports/out/mailsync"
	"github.com/convention-registry/member-api/internal/ports/out/memberrepo"
)

const (
	opUpsert = "upsert"
	opRemove = "remove"
)

type job struct {
	op    string
	email string
}

// Service reconciles the external recipient list with the person records.
//
// Upsert and Remove only enqueue work; a single worker goroutine started by Start
// drains the queue so that requests for the same address are applied in order.
// When the queue is full the request is dropped and logged, and the next sweep repairs
// the list.
type Service struct {
	repo     memberrepo.Repository
	provider mailsync.Provider
	log      *zap.Logger
	met      *metrics.Metrics

	queue chan job

	mu      sync.Mutex
	stopped bool
	done    chan struct{}
}

func NewService(repo memberrepo.Repository, provider mailsync.Provider, queueSize int, log *zap.Logger, met *metrics.Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Service{
		repo:     repo,
		provider: provider,
		log:      log.Named("mailsync"),
		met:      met,
		queue:    make(chan job, queueSize),
	}
}

// Start launches the worker. It returns immediately.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil || s.stopped {
		return
	}
	s.done = make(chan struct{})
	go s.run(s.done)
}

// Stop stops accepting work, drains what is queued and waits for the worker or ctx.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	close(s.queue)
	done := s.done
	s.mu.Unlock()

	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Upsert(ctx context.Context, email string) {
	s.enqueue(ctx, job{op: opUpsert, email: email})
}

func (s *Service) Remove(ctx context.Context, email string) {
	s.enqueue(ctx, job{op: opRemove, email: email})
}

func (s *Service) enqueue(ctx context.Context, j job) {
	_ = ctx
	j.email = domain.NormalizeEmail(j.email)
	if j.email == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		s.met.ObserveMailSync(j.op, "dropped")
		s.log.Warn("mail sync request after stop", zap.String("op", j.op), zap.String("email", j.email))
		return
	}
	select {
	case s.queue <- j:
	default:
		s.met.ObserveMailSync(j.op, "dropped")
		s.log.Warn("mail sync queue full", zap.String("op", j.op), zap.String("email", j.email))
	}
}

func (s *Service) run(done chan struct{}) {
	defer close(done)
	ctx := context.Background()
	for j := range s.queue {
		// Both operations converge on the records: a removed address stays listed
		// while other members still share it.
		if err := s.Reconcile(ctx, j.email); err != nil {
			s.met.ObserveMailSync(j.op, "error")
			s.log.Warn("mail sync failed", zap.String("op", j.op), zap.String("email", j.email), zap.Error(err))
			continue
		}
		s.met.ObserveMailSync(j.op, "ok")
	}
}

// Reconcile makes the list entry for email match the person records that currently use
// it: members with that address are merged into one recipient, and the entry is deleted
// when none are left.
func (s *Service) Reconcile(ctx context.Context, email string) error {
	email = domain.NormalizeEmail(email)
	if email == "" {
		return nil
	}
	people, err := s.repo.ListByEmail(ctx, email)
	if err != nil {
		return err
	}
	r, ok := Resolve(email, people)
	if !ok {
		return s.provider.Delete(ctx, email)
	}
	return s.provider.Put(ctx, r)
}

// Sweep reconciles every address in use. It is safe to run next to the worker.
func (s *Service) Sweep(ctx context.Context) error {
	emails, err := s.repo.ListEmails(ctx)
	if err != nil {
		return err
	}
	var failed int
	for _, e := range emails {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Reconcile(ctx, e); err != nil {
			failed++
			s.met.ObserveMailSync("sweep", "error")
			s.log.Warn("sweep reconcile failed", zap.String("email", e), zap.Error(err))
			continue
		}
		s.met.ObserveMailSync("sweep", "ok")
	}
	s.log.Info("mail sync sweep done", zap.Int("emails", len(emails)), zap.Int("failed", failed))
	return nil
}

// Resolve merges the members sharing email into one recipient. NonMember rows never
// receive member mail; ok is false when no member is left.
func Resolve(email string, people []domain.Person) (mailsync.Recipient, bool) {
	r := mailsync.Recipient{Email: email}
	names := make([]string, 0, len(people))
	for _, p := range people {
		if p.Membership == domain.MembershipNonMember {
			continue
		}
		names = append(names, p.PreferredName())
		r.HugoNominator = r.HugoNominator || p.HugoNominator
		r.HugoVoter = r.HugoVoter || p.HugoVoter
	}
	if len(names) == 0 {
		return mailsync.Recipient{}, false
	}
	r.Name = domain.CombineNames(names)
	return r, true
}
