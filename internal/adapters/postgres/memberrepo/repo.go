package memberrepo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	postgres "github.com/convention-registry/member-api/internal/adapters/postgres"
	"github.com/convention-registry/member-api/internal/domain"
	"github.com/convention-registry/member-api/internal/ports/out/memberrepo"
)

const personColumns = `
	id,
	membership,
	member_number,
	legal_name,
	public_first_name,
	public_last_name,
	email,
	city,
	state,
	country,
	badge_name,
	badge_subtitle,
	paper_pubs,
	hugo_nominator,
	hugo_voter,
	last_modified
`

// Repo is a Postgres implementation of memberrepo.Repository.
type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo {
	return &Repo{pool: pool}
}

func (r *Repo) RunInTx(ctx context.Context, fn func(ctx context.Context, tx memberrepo.Tx) error) error {
	if r.pool == nil {
		return errors.New("nil postgres pool")
	}
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(postgres.WithTx(ctx, tx), &txWriter{tx: tx})
	})
}

func (r *Repo) GetByID(ctx context.Context, id domain.PersonID) (domain.Person, error) {
	if r.pool == nil {
		return domain.Person{}, errors.New("nil postgres pool")
	}
	row := postgres.GetExecutor(ctx, r.pool).QueryRow(ctx, `SELECT `+personColumns+` FROM people WHERE id = $1`, int64(id))
	return scanPerson(row)
}

func (r *Repo) GetDayPass(ctx context.Context, id domain.PersonID) (domain.DayPass, bool, error) {
	if r.pool == nil {
		return domain.DayPass{}, false, errors.New("nil postgres pool")
	}
	var (
		status                  string
		wed, thu, fri, sat, sun bool
	)
	err := postgres.GetExecutor(ctx, r.pool).QueryRow(ctx, `
		SELECT status, d_wed, d_thu, d_fri, d_sat, d_sun
		FROM daypasses
		WHERE person_id = $1
	`, int64(id)).Scan(&status, &wed, &thu, &fri, &sat, &sun)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.DayPass{}, false, nil
		}
		return domain.DayPass{}, false, err
	}
	d := domain.DayPass{PersonID: id, Status: domain.Membership(status)}
	for i, on := range []bool{wed, thu, fri, sat, sun} {
		if on {
			d.Days = append(d.Days, domain.Days[i])
		}
	}
	return d, true, nil
}

func (r *Repo) ListByEmail(ctx context.Context, email string) ([]domain.Person, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	want := domain.NormalizeEmail(email)
	if want == "" {
		return []domain.Person{}, nil
	}
	rows, err := postgres.GetExecutor(ctx, r.pool).Query(ctx, `
		SELECT `+personColumns+`
		FROM people
		WHERE lower(email) = $1
		ORDER BY id ASC
	`, want)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]domain.Person, 0)
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) ListEmails(ctx context.Context) ([]string, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := postgres.GetExecutor(ctx, r.pool).Query(ctx, `
		SELECT DISTINCT lower(trim(email)) AS e
		FROM people
		WHERE trim(email) <> ''
		ORDER BY e ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) ListLog(ctx context.Context, subject domain.PersonID) ([]memberrepo.LogEntry, error) {
	if r.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := postgres.GetExecutor(ctx, r.pool).Query(ctx, `
		SELECT "timestamp", author, client_ip, client_info, description, parameters
		FROM log
		WHERE subject = $1
		ORDER BY "timestamp" ASC, id ASC
	`, int64(subject))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]memberrepo.LogEntry, 0)
	for rows.Next() {
		var (
			e                            memberrepo.LogEntry
			author, clientIP, clientInfo *string
			params                       []byte
		)
		if err := rows.Scan(&e.Timestamp, &author, &clientIP, &clientInfo, &e.Description, &params); err != nil {
			return nil, err
		}
		e.Subject = subject
		e.Timestamp = e.Timestamp.UTC()
		e.Actor = memberrepo.Actor{Author: deref(author), ClientIP: deref(clientIP), ClientInfo: deref(clientInfo)}
		if len(params) > 0 {
			if err := json.Unmarshal(params, &e.Parameters); err != nil {
				return nil, fmt.Errorf("decode log parameters: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type txWriter struct {
	tx pgx.Tx
}

func (w *txWriter) InsertPerson(ctx context.Context, p domain.Person) (memberrepo.Inserted, error) {
	paperPubs, err := encodePaperPubs(p.PaperPubs)
	if err != nil {
		return memberrepo.Inserted{}, err
	}

	number := p.MemberNumber
	switch {
	case p.Membership == domain.MembershipNonMember:
		number = nil
	case number == nil:
		var n int64
		if err := w.tx.QueryRow(ctx, `SELECT nextval('member_number_seq')`).Scan(&n); err != nil {
			return memberrepo.Inserted{}, fmt.Errorf("next member number: %w", err)
		}
		number = &n
	default:
		if err := w.advanceMemberNumber(ctx, *number); err != nil {
			return memberrepo.Inserted{}, err
		}
	}

	var id int64
	err = w.tx.QueryRow(ctx, `
		INSERT INTO people (
			membership,
			member_number,
			legal_name,
			public_first_name,
			public_last_name,
			email,
			city,
			state,
			country,
			badge_name,
			badge_subtitle,
			paper_pubs,
			hugo_nominator,
			hugo_voter
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id
	`,
		string(p.Membership),
		number,
		p.LegalName,
		p.PublicFirstName,
		p.PublicLastName,
		p.Email,
		p.City,
		p.State,
		p.Country,
		p.BadgeName,
		p.BadgeSubtitle,
		paperPubs,
		p.HugoNominator,
		p.HugoVoter,
	).Scan(&id)
	if err != nil {
		return memberrepo.Inserted{}, mapPersonWriteError(err)
	}
	return memberrepo.Inserted{ID: domain.PersonID(id), MemberNumber: number}, nil
}

func (w *txWriter) InsertDayPass(ctx context.Context, d domain.DayPass) error {
	_, err := w.tx.Exec(ctx, `
		INSERT INTO daypasses (person_id, status, d_wed, d_thu, d_fri, d_sat, d_sun)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		int64(d.PersonID),
		string(d.Status),
		d.Has(domain.DayWed),
		d.Has(domain.DayThu),
		d.Has(domain.DayFri),
		d.Has(domain.DaySat),
		d.Has(domain.DaySun),
	)
	if pe, ok := postgres.AsPgError(err); ok {
		switch pe.Code {
		case postgres.UniqueViolationCode:
			return memberrepo.ErrDayPassExists
		case postgres.ForeignKeyViolationCode:
			return memberrepo.ErrNotFound
		}
	}
	return err
}

func (w *txWriter) UpdatePerson(ctx context.Context, u memberrepo.Update) (memberrepo.Updated, error) {
	if len(u.Fields) == 0 {
		return memberrepo.Updated{}, errors.New("no fields to update")
	}

	// The previous email is read by the same statement that writes the new one.
	var sb strings.Builder
	sb.WriteString(`
		WITH prev AS (
			SELECT id, email FROM people WHERE id = $1 FOR UPDATE
		)
		UPDATE people p SET last_modified = now()`)
	args := []any{int64(u.ID)}
	for _, f := range u.Fields {
		col, ok := updatableColumns[f]
		if !ok {
			return memberrepo.Updated{}, fmt.Errorf("field %q is not updatable", f)
		}
		v, err := columnValue(u.Patch, f)
		if err != nil {
			return memberrepo.Updated{}, err
		}
		args = append(args, v)
		fmt.Fprintf(&sb, ", %s = $%d", col, len(args))
	}
	sb.WriteString(` FROM prev WHERE p.id = prev.id`)
	if u.RequirePaperPubs {
		sb.WriteString(` AND p.paper_pubs IS NOT NULL`)
	}
	sb.WriteString(`
		RETURNING prev.email, p.email, p.hugo_nominator, p.hugo_voter,
			p.legal_name, p.public_first_name, p.public_last_name`)

	var (
		out      memberrepo.Updated
		legal    string
		pfn, pln *string
	)
	err := w.tx.QueryRow(ctx, sb.String(), args...).Scan(
		&out.PrevEmail,
		&out.NextEmail,
		&out.HugoNominator,
		&out.HugoVoter,
		&legal,
		&pfn,
		&pln,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		if !u.RequirePaperPubs {
			return memberrepo.Updated{}, memberrepo.ErrNotFound
		}
		var exists bool
		if err := w.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM people WHERE id = $1)`, int64(u.ID)).Scan(&exists); err != nil {
			return memberrepo.Updated{}, err
		}
		if exists {
			return memberrepo.Updated{}, memberrepo.ErrGuardRejected
		}
		return memberrepo.Updated{}, memberrepo.ErrNotFound
	}
	if err != nil {
		return memberrepo.Updated{}, mapPersonWriteError(err)
	}
	if n, err := u.Patch.MemberNumber.Get(); err == nil && contains(u.Fields, domain.FieldMemberNumber) {
		if err := w.advanceMemberNumber(ctx, n); err != nil {
			return memberrepo.Updated{}, err
		}
	}
	out.Name = domain.PreferredName(legal, pfn, pln)
	return out, nil
}

func (w *txWriter) AppendLog(ctx context.Context, e memberrepo.LogEntry) error {
	params := e.Parameters
	if params == nil {
		params = map[string]any{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode log parameters: %w", err)
	}
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err = w.tx.Exec(ctx, `
		INSERT INTO log ("timestamp", subject, author, client_ip, client_info, description, parameters)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		ts.UTC(),
		int64(e.Subject),
		nullIfEmpty(e.Actor.Author),
		nullIfEmpty(e.Actor.ClientIP),
		nullIfEmpty(e.Actor.ClientInfo),
		e.Description,
		string(body),
	)
	if pe, ok := postgres.AsPgError(err); ok && pe.Code == postgres.ForeignKeyViolationCode {
		return memberrepo.ErrNotFound
	}
	return err
}

// advanceMemberNumber keeps generated numbers above an explicitly assigned one.
func (w *txWriter) advanceMemberNumber(ctx context.Context, n int64) error {
	if _, err := w.tx.Exec(ctx, `
		SELECT setval('member_number_seq', $1)
		WHERE $1 > (SELECT CASE WHEN is_called THEN last_value ELSE 0 END FROM member_number_seq)
	`, n); err != nil {
		return fmt.Errorf("advance member number: %w", err)
	}
	return nil
}

// --- helpers ---

func mapPersonWriteError(err error) error {
	pe, ok := postgres.AsPgError(err)
	if !ok {
		return err
	}
	switch {
	case pe.Code == postgres.UniqueViolationCode:
		return fmt.Errorf("%w: %s", memberrepo.ErrMemberNumberTaken, pe.Detail)
	case pe.Code == postgres.CheckViolationCode && pe.ConstraintName == "people_nonmember_number":
		return memberrepo.ErrNonMemberNumber
	}
	return err
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

var updatableColumns = map[string]string{
	domain.FieldMembership:      "membership",
	domain.FieldMemberNumber:    "member_number",
	domain.FieldLegalName:       "legal_name",
	domain.FieldPublicFirstName: "public_first_name",
	domain.FieldPublicLastName:  "public_last_name",
	domain.FieldEmail:           "email",
	domain.FieldCity:            "city",
	domain.FieldState:           "state",
	domain.FieldCountry:         "country",
	domain.FieldBadgeName:       "badge_name",
	domain.FieldBadgeSubtitle:   "badge_subtitle",
	domain.FieldPaperPubs:       "paper_pubs",
	domain.FieldHugoNominator:   "hugo_nominator",
	domain.FieldHugoVoter:       "hugo_voter",
}

func columnValue(p domain.PersonPatch, field string) (any, error) {
	v, _ := p.Value(field)
	switch tv := v.(type) {
	case domain.Membership:
		return string(tv), nil
	case *domain.PaperPubs:
		return encodePaperPubs(tv)
	}
	return v, nil
}

func encodePaperPubs(pp *domain.PaperPubs) (any, error) {
	if pp == nil {
		return nil, nil
	}
	b, err := json.Marshal(pp)
	if err != nil {
		return nil, fmt.Errorf("encode paper_pubs: %w", err)
	}
	return string(b), nil
}

func scanPerson(row pgx.Row) (domain.Person, error) {
	var (
		p          domain.Person
		id         int64
		membership string
		paperPubs  []byte
	)
	if err := row.Scan(
		&id,
		&membership,
		&p.MemberNumber,
		&p.LegalName,
		&p.PublicFirstName,
		&p.PublicLastName,
		&p.Email,
		&p.City,
		&p.State,
		&p.Country,
		&p.BadgeName,
		&p.BadgeSubtitle,
		&paperPubs,
		&p.HugoNominator,
		&p.HugoVoter,
		&p.LastModified,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Person{}, memberrepo.ErrNotFound
		}
		return domain.Person{}, err
	}
	p.ID = domain.PersonID(id)
	p.Membership = domain.Membership(membership)
	p.LastModified = p.LastModified.UTC()
	if len(paperPubs) > 0 {
		var pp domain.PaperPubs
		if err := json.Unmarshal(paperPubs, &pp); err != nil {
			return domain.Person{}, fmt.Errorf("decode paper_pubs: %w", err)
		}
		p.PaperPubs = &pp
	}
	return p, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
