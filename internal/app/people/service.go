package people

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/convention-registry/member-api/internal/domain"
	"github.com/convention-registry/member-api/internal/platform/metrics"
	clockport "github.com/convention-registry/member-api/internal/ports/out/clock"
	"github.com/convention-registry/member-api/internal/ports/out/keyrepo"
	"github.com/convention-registry/member-api/internal/ports/out/mailsync"
	"github.com/convention-registry/member-api/internal/ports/out/memberrepo"
	"github.com/convention-registry/member-api/internal/ports/out/notifier"
)

const descAddPerson = "Add new person"

// Deps are the collaborators of the Service.
type Deps struct {
	Repo     memberrepo.Repository
	Keys     keyrepo.Store
	Notifier notifier.Notifier
	MailSync mailsync.Syncer
	Clock    clockport.Clock
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Options configure the Service.
type Options struct {
	// PaidPaperPubs enables consent gating of paper_pubs for non-admin updates.
	PaidPaperPubs bool
}

// Service creates and updates member records. Each mutation runs as one transaction
// together with its audit entry; credential, notification and mail-list work follows
// the commit and never fails the mutation.
type Service struct {
	repo   memberrepo.Repository
	keys   keyrepo.Store
	notify notifier.Notifier
	sync   mailsync.Syncer
	clk    clockport.Clock
	log    *zap.Logger
	met    *metrics.Metrics

	paidPaperPubs bool
}

func NewService(deps Deps, opts Options) *Service {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		repo:          deps.Repo,
		keys:          deps.Keys,
		notify:        deps.Notifier,
		sync:          deps.MailSync,
		clk:           deps.Clock,
		log:           log,
		met:           deps.Metrics,
		paidPaperPubs: opts.PaidPaperPubs,
	}
}

type createState struct {
	person    domain.Person
	requested domain.Membership
	days      []domain.Day
	params    map[string]any
	inserted  memberrepo.Inserted
}

// CreateMember inserts a person, its audit entry and, when days were requested, its
// day-pass grant. The caller is expected to be authorized already.
func (s *Service) CreateMember(ctx context.Context, in CreateMemberInput) (CreateMemberResult, error) {
	if err := validateNewPerson(in.Person); err != nil {
		return CreateMemberResult{}, err
	}
	days, err := domain.ParseDays(in.DayPassDays)
	if err != nil {
		return CreateMemberResult{}, inputError("invalid day pass", map[string]any{"daypass_days": err.Error()})
	}
	person, err := newPersonRecord(in.Person)
	if err != nil {
		return CreateMemberResult{}, err
	}

	st := &createState{
		person:    person,
		requested: person.Membership,
		days:      days,
		params:    personParameters(person, days),
	}
	if len(days) > 0 {
		// Day-pass holders are stored as NonMember rows; the grant keeps the requested tier.
		st.person.Membership = domain.MembershipNonMember
		st.person.MemberNumber = nil
	}

	err = newTxScript[createState]().
		step("insert person", func(ctx context.Context, tx memberrepo.Tx, st *createState) error {
			ins, err := tx.InsertPerson(ctx, st.person)
			if err != nil {
				return memberNumberError(err)
			}
			st.inserted = ins
			st.person.ID = ins.ID
			st.person.MemberNumber = ins.MemberNumber
			return nil
		}).
		step("append log", func(ctx context.Context, tx memberrepo.Tx, st *createState) error {
			return tx.AppendLog(ctx, memberrepo.LogEntry{
				Subject:     st.inserted.ID,
				Actor:       in.Actor,
				Description: descAddPerson,
				Parameters:  st.params,
				Timestamp:   s.clk.Now(),
			})
		}).
		step("insert day pass", func(ctx context.Context, tx memberrepo.Tx, st *createState) error {
			if len(st.days) == 0 {
				return nil
			}
			return tx.InsertDayPass(ctx, domain.DayPass{
				PersonID: st.inserted.ID,
				Status:   st.requested,
				Days:     st.days,
			})
		}).
		run(ctx, s.repo, st)
	if err != nil {
		return CreateMemberResult{}, transactionFailed(err)
	}

	s.met.IncPeopleCreated()
	s.log.Info("person created",
		zap.Int64("person_id", int64(st.inserted.ID)),
		zap.Bool("daypass", len(days) > 0),
		zap.String("author", in.Actor.Author),
	)
	return CreateMemberResult{ID: st.inserted.ID, MemberNumber: st.inserted.MemberNumber}, nil
}

type updateState struct {
	fields  []string
	guarded bool
	updated memberrepo.Updated
	key     *keyrepo.Key
}

// UpdateMember applies the permitted fields of a patch to one person.
func (s *Service) UpdateMember(ctx context.Context, in UpdateMemberInput) (UpdateMemberResult, error) {
	allowed := domain.SelfServiceFields
	if in.Admin {
		allowed = domain.AdminFields
	}
	fields := make([]string, 0, len(allowed))
	for _, f := range allowed {
		if in.Patch.IsSpecified(f) {
			fields = append(fields, f)
		}
	}
	if len(fields) == 0 {
		return UpdateMemberResult{}, inputError("No valid parameters", nil)
	}

	patch := in.Patch
	fields, err := checkPatch(&patch, fields)
	if err != nil {
		return UpdateMemberResult{}, err
	}

	st := &updateState{fields: fields}
	if contains(fields, domain.FieldPaperPubs) {
		raw, _ := patch.PaperPubs.Get()
		pp, err := domain.CleanPaperPubs(raw)
		if err != nil {
			return UpdateMemberResult{}, inputError("paper_pubs: "+err.Error(), nil)
		}
		patch.CleanPaperPubs = pp
		if s.paidPaperPubs && !in.Admin {
			if pp != nil {
				st.guarded = true
			} else {
				st.fields = remove(st.fields, domain.FieldPaperPubs)
			}
		}
	}
	if len(st.fields) == 0 {
		return UpdateMemberResult{}, inputError("No valid parameters", nil)
	}

	newEmail := ""
	if contains(st.fields, domain.FieldEmail) {
		newEmail = patch.Email.MustGet()
	}

	err = newTxScript[updateState]().
		step("update person", func(ctx context.Context, tx memberrepo.Tx, st *updateState) error {
			u, err := tx.UpdatePerson(ctx, memberrepo.Update{
				ID:               in.ID,
				Patch:            patch,
				Fields:           st.fields,
				RequirePaperPubs: st.guarded,
			})
			switch {
			case err == nil:
				st.updated = u
				return nil
			case errors.Is(err, memberrepo.ErrGuardRejected) && st.guarded:
				return consentRequired()
			case errors.Is(err, memberrepo.ErrNotFound):
				return notFound(err)
			}
			return memberNumberError(err)
		}).
		step("find key", func(ctx context.Context, tx memberrepo.Tx, st *updateState) error {
			if newEmail == "" {
				return nil
			}
			k, err := s.keys.FindByEmail(ctx, newEmail)
			if errors.Is(err, keyrepo.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			st.key = &k
			return nil
		}).
		step("append log", func(ctx context.Context, tx memberrepo.Tx, st *updateState) error {
			return tx.AppendLog(ctx, memberrepo.LogEntry{
				Subject:     in.ID,
				Actor:       in.Actor,
				Description: "Update fields: " + strings.Join(st.fields, ", "),
				Parameters:  patch.Parameters(st.fields),
				Timestamp:   s.clk.Now(),
			})
		}).
		run(ctx, s.repo, st)
	if err != nil {
		if IsCode(err, CodeConsentRequired) {
			s.met.IncConsentRejections()
		}
		return UpdateMemberResult{}, transactionFailed(err)
	}
	s.met.IncPeopleUpdated()

	keySent := s.reconcile(context.WithoutCancel(ctx), in.ID, st)
	return UpdateMemberResult{Updated: st.fields, KeySent: keySent}, nil
}

// reconcile runs the post-commit steps of an update and reports whether an account
// message carrying the member's key was sent.
func (s *Service) reconcile(ctx context.Context, id domain.PersonID, st *updateState) bool {
	u := st.updated
	log := s.log.With(zap.Int64("person_id", int64(id)))

	emailChanged := u.NextEmail != u.PrevEmail
	if emailChanged {
		s.sync.Remove(ctx, u.PrevEmail)
	}

	var key string
	if emailChanged && (u.HugoNominator || u.HugoVoter) && u.NextEmail != "" {
		if st.key != nil {
			key = st.key.Key
		} else {
			key = s.issueKey(ctx, log, u.NextEmail)
		}
	}

	keySent := false
	if key != "" && emailChanged {
		err := s.notify.SendAccountMessage(ctx, notifier.AccountMessage{
			Email:    u.NextEmail,
			Key:      key,
			MemberID: id,
			Name:     u.Name,
		})
		if err != nil {
			s.met.ObserveAccountMessage("error")
			log.Warn("account message not sent", zap.String("email", u.NextEmail), zap.Error(err))
		} else {
			s.met.ObserveAccountMessage("sent")
			keySent = true
		}
	}

	s.sync.Upsert(ctx, u.NextEmail)
	return keySent
}

// issueKey issues a key for email once. A concurrent issuer winning the race is not an
// error: the key it stored is used instead.
func (s *Service) issueKey(ctx context.Context, log *zap.Logger, email string) string {
	k, err := s.keys.Issue(ctx, email)
	if errors.Is(err, keyrepo.ErrKeyExists) {
		k, err = s.keys.FindByEmail(ctx, email)
	} else if err == nil {
		s.met.IncKeysIssued()
	}
	if err != nil {
		log.Warn("key not issued", zap.String("email", email), zap.Error(err))
		return ""
	}
	return k.Key
}

// checkPatch rejects null values for required columns and keeps the member number
// consistent with a membership change to NonMember.
func checkPatch(p *domain.PersonPatch, fields []string) ([]string, error) {
	for _, f := range []string{domain.FieldMembership, domain.FieldLegalName, domain.FieldEmail, domain.FieldHugoNominator, domain.FieldHugoVoter} {
		if contains(fields, f) {
			if v, _ := p.Value(f); v == nil {
				return nil, inputError("invalid "+f, map[string]any{f: "cannot be null"})
			}
		}
	}
	if contains(fields, domain.FieldLegalName) {
		name := domain.NormalizeHumanName(p.LegalName.MustGet())
		if name == "" {
			return nil, inputError("invalid legal_name", map[string]any{domain.FieldLegalName: "must be non-empty"})
		}
		p.LegalName.Set(name)
	}
	if contains(fields, domain.FieldEmail) {
		p.Email.Set(strings.TrimSpace(p.Email.MustGet()))
	}
	if !contains(fields, domain.FieldMembership) {
		return fields, nil
	}
	m := p.Membership.MustGet()
	if !m.Valid() {
		return nil, inputError("invalid membership", map[string]any{domain.FieldMembership: "unknown membership " + string(m)})
	}
	if m != domain.MembershipNonMember {
		return fields, nil
	}
	if contains(fields, domain.FieldMemberNumber) {
		if v, _ := p.Value(domain.FieldMemberNumber); v != nil {
			return nil, inputError("invalid member_number", map[string]any{domain.FieldMemberNumber: "must be null for NonMember"})
		}
		return fields, nil
	}
	p.MemberNumber.SetNull()
	out := make([]string, 0, len(fields)+1)
	for _, f := range domain.AdminFields {
		if contains(fields, f) || f == domain.FieldMemberNumber {
			out = append(out, f)
		}
	}
	return out, nil
}

// memberNumberError turns member-number constraint failures into input errors.
func memberNumberError(err error) error {
	switch {
	case errors.Is(err, memberrepo.ErrNonMemberNumber):
		return inputError("invalid member_number", map[string]any{domain.FieldMemberNumber: "must be null for NonMember"})
	case errors.Is(err, memberrepo.ErrMemberNumberTaken):
		return inputError("invalid member_number", map[string]any{domain.FieldMemberNumber: "already assigned"})
	}
	return err
}

func newPersonRecord(np NewPerson) (domain.Person, error) {
	if np.Membership == domain.MembershipNonMember && np.MemberNumber != nil {
		return domain.Person{}, inputError("invalid member_number", map[string]any{domain.FieldMemberNumber: "must be null for NonMember"})
	}
	legal := domain.NormalizeHumanName(np.LegalName)
	if legal == "" {
		return domain.Person{}, inputError("invalid legal_name", map[string]any{domain.FieldLegalName: "must be non-empty"})
	}
	pp, err := domain.CleanPaperPubs(np.PaperPubs)
	if err != nil {
		return domain.Person{}, inputError("paper_pubs: "+err.Error(), nil)
	}
	return domain.Person{
		Membership:      np.Membership,
		MemberNumber:    np.MemberNumber,
		LegalName:       legal,
		PublicFirstName: np.PublicFirstName,
		PublicLastName:  np.PublicLastName,
		Email:           strings.TrimSpace(np.Email),
		City:            np.City,
		State:           np.State,
		Country:         np.Country,
		BadgeName:       np.BadgeName,
		BadgeSubtitle:   np.BadgeSubtitle,
		PaperPubs:       pp,
		HugoNominator:   np.HugoNominator,
		HugoVoter:       np.HugoVoter,
	}, nil
}

func personParameters(p domain.Person, days []domain.Day) map[string]any {
	out := map[string]any{
		domain.FieldMembership:    p.Membership,
		domain.FieldLegalName:     p.LegalName,
		domain.FieldEmail:         p.Email,
		domain.FieldHugoNominator: p.HugoNominator,
		domain.FieldHugoVoter:     p.HugoVoter,
	}
	if p.MemberNumber != nil {
		out[domain.FieldMemberNumber] = *p.MemberNumber
	}
	optional := map[string]*string{
		domain.FieldPublicFirstName: p.PublicFirstName,
		domain.FieldPublicLastName:  p.PublicLastName,
		domain.FieldCity:            p.City,
		domain.FieldState:           p.State,
		domain.FieldCountry:         p.Country,
		domain.FieldBadgeName:       p.BadgeName,
		domain.FieldBadgeSubtitle:   p.BadgeSubtitle,
	}
	for k, v := range optional {
		if v != nil {
			out[k] = *v
		}
	}
	if p.PaperPubs != nil {
		out[domain.FieldPaperPubs] = *p.PaperPubs
	}
	if len(days) > 0 {
		out["daypass_days"] = days
	}
	return out
}

func contains(fields []string, f string) bool {
	for _, v := range fields {
		if v == f {
			return true
		}
	}
	return false
}

func remove(fields []string, f string) []string {
	out := make([]string, 0, len(fields))
	for _, v := range fields {
		if v != f {
			out = append(out, v)
		}
	}
	return out
}
