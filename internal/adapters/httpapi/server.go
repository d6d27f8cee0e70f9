package httpapi

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/convention-registry/member-api/internal/app/people"
	"github.com/convention-registry/member-api/internal/domain"
	"github.com/convention-registry/member-api/internal/platform/auth/sessiontoken"
	"github.com/convention-registry/member-api/internal/ports/out/idempotency"
	"github.com/convention-registry/member-api/internal/ports/out/memberrepo"
)

const maxBodyBytes = 1 << 20

// Server adapts HTTP requests onto the people service. It authorizes the session
// against the target person before delegating.
type Server struct {
	People *people.Service
	Idem   idempotency.Store
	Log    *zap.Logger
}

func NewServer(peopleSvc *people.Service, idem idempotency.Store, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{People: peopleSvc, Idem: idem, Log: log}
}

type createPersonRequest struct {
	people.NewPerson
	DaypassDays []string `json:"daypass_days,omitempty"`
}

type createPersonResponse struct {
	Status       string `json:"status"`
	ID           int64  `json:"id"`
	MemberNumber *int64 `json:"member_number"`
}

type updatePersonResponse struct {
	Status  string   `json:"status"`
	Updated []string `json:"updated"`
	KeySent bool     `json:"key_sent"`
}

type dayPassResponse struct {
	Status string   `json:"status"`
	Days   []string `json:"days"`
}

type personResponse struct {
	ID              int64             `json:"id"`
	Membership      string            `json:"membership"`
	MemberNumber    *int64            `json:"member_number"`
	LegalName       string            `json:"legal_name"`
	PublicFirstName *string           `json:"public_first_name"`
	PublicLastName  *string           `json:"public_last_name"`
	Email           string            `json:"email"`
	City            *string           `json:"city"`
	State           *string           `json:"state"`
	Country         *string           `json:"country"`
	BadgeName       *string           `json:"badge_name"`
	BadgeSubtitle   *string           `json:"badge_subtitle"`
	PaperPubs       *domain.PaperPubs `json:"paper_pubs"`
	HugoNominator   bool              `json:"hugo_nominator"`
	HugoVoter       bool              `json:"hugo_voter"`
	LastModified    time.Time         `json:"last_modified"`
	DayPass         *dayPassResponse  `json:"daypass,omitempty"`
}

type prevNameResponse struct {
	Name string    `json:"name"`
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (s *Server) CreatePerson(w http.ResponseWriter, r *http.Request) {
	sess, ok := SessionFromContext(r.Context())
	if !ok || !sess.MemberAdmin {
		writeError(w, r, http.StatusUnauthorized, people.CodeUnauthorized, "unauthorized", nil)
		return
	}
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, people.CodeInputError, "unreadable request body", nil)
		return
	}
	var req createPersonRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, people.CodeInputError, "malformed JSON body", nil)
		return
	}
	if req.MemberNumber != nil && !sess.AdminAdmin {
		writeError(w, r, http.StatusUnauthorized, people.CodeUnauthorized, "setting member_number requires admin_admin", nil)
		return
	}

	// Idempotency handling:
	// - Replay if same actor+key+route+bodyHash
	// - Reject if same actor+key+route with different bodyHash (409)
	idemKey := strings.TrimSpace(r.Header.Get("Idempotency-Key"))
	var respFP idempotency.Fingerprint
	if s.Idem != nil && idemKey != "" {
		bodyHash := hashBody(raw)
		metaFP := idempotency.Fingerprint{
			Key:    idempotency.Key(idemKey),
			Actor:  domain.NormalizeEmail(sess.Email),
			Method: http.MethodPost,
			Route:  "/people",
		}
		if meta, ok, err := s.Idem.Get(r.Context(), metaFP); err != nil {
			writeAppError(w, r, s.Log, err)
			return
		} else if ok {
			if string(meta.Body) != bodyHash {
				writeError(w, r, http.StatusConflict, "IDEMPOTENCY_KEY_REUSE", "idempotency key reuse with different payload", nil)
				return
			}
		} else {
			_ = s.Idem.Put(r.Context(), metaFP, idempotency.Record{
				StatusCode:  0,
				ContentType: "text/plain",
				Body:        []byte(bodyHash),
				CreatedAt:   time.Now().UTC(),
			})
		}

		respFP = metaFP
		respFP.BodyHash = bodyHash
		if rec, ok, err := s.Idem.Get(r.Context(), respFP); err != nil {
			writeAppError(w, r, s.Log, err)
			return
		} else if ok && rec.StatusCode == http.StatusOK {
			w.Header().Set("Content-Type", rec.ContentType)
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(rec.StatusCode)
			_, _ = w.Write(rec.Body)
			return
		}
	}

	res, err := s.People.CreateMember(r.Context(), people.CreateMemberInput{
		Person:      req.NewPerson,
		DayPassDays: req.DaypassDays,
		Actor:       actorFromRequest(r, sess),
	})
	if err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}

	resp := createPersonResponse{Status: "success", ID: int64(res.ID), MemberNumber: res.MemberNumber}
	if respFP.Key != "" {
		if b, err := json.Marshal(resp); err == nil {
			_ = s.Idem.Put(r.Context(), respFP, idempotency.Record{
				StatusCode:  http.StatusOK,
				ContentType: "application/json",
				Body:        append(b, '\n'),
				CreatedAt:   time.Now().UTC(),
			})
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) GetPerson(w http.ResponseWriter, r *http.Request) {
	id, ok := s.personIDParam(w, r)
	if !ok {
		return
	}
	p, ok := s.authorizedRead(w, r, id)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, personFromDomain(p))
}

func (s *Server) UpdatePerson(w http.ResponseWriter, r *http.Request) {
	id, ok := s.personIDParam(w, r)
	if !ok {
		return
	}
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, people.CodeUnauthorized, "unauthorized", nil)
		return
	}
	if !sess.MemberAdmin {
		// Self-service: the session must own the person's email.
		p, err := s.People.GetPerson(r.Context(), id)
		if err != nil && !people.IsCode(err, people.CodeNotFound) {
			writeAppError(w, r, s.Log, err)
			return
		}
		if err != nil || !sameEmail(p.Email, sess.Email) {
			writeError(w, r, http.StatusUnauthorized, people.CodeUnauthorized, "unauthorized", nil)
			return
		}
	}

	var patch domain.PersonPatch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&patch); err != nil {
		writeError(w, r, http.StatusBadRequest, people.CodeInputError, "malformed JSON body", nil)
		return
	}

	res, err := s.People.UpdateMember(r.Context(), people.UpdateMemberInput{
		ID:    id,
		Patch: patch,
		Admin: sess.MemberAdmin,
		Actor: actorFromRequest(r, sess),
	})
	if err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, updatePersonResponse{Status: "success", Updated: res.Updated, KeySent: res.KeySent})
}

func (s *Server) PrevNames(w http.ResponseWriter, r *http.Request) {
	id, ok := s.personIDParam(w, r)
	if !ok {
		return
	}
	if _, ok := s.authorizedRead(w, r, id); !ok {
		return
	}
	names, err := s.People.PrevNames(r.Context(), id)
	if err != nil {
		writeAppError(w, r, s.Log, err)
		return
	}
	out := make([]prevNameResponse, 0, len(names))
	for _, n := range names {
		out = append(out, prevNameResponse{Name: n.Name, From: n.From.UTC(), To: n.To.UTC()})
	}
	writeJSON(w, http.StatusOK, out)
}

// authorizedRead loads a person for a session holding a member admin or list role, or
// owning the person's email. It writes the error response itself.
func (s *Server) authorizedRead(w http.ResponseWriter, r *http.Request, id domain.PersonID) (domain.PersonDetails, bool) {
	sess, ok := SessionFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, people.CodeUnauthorized, "unauthorized", nil)
		return domain.PersonDetails{}, false
	}
	privileged := sess.MemberAdmin || sess.MemberList
	p, err := s.People.GetPerson(r.Context(), id)
	if err != nil {
		if people.IsCode(err, people.CodeNotFound) && !privileged {
			writeError(w, r, http.StatusUnauthorized, people.CodeUnauthorized, "unauthorized", nil)
			return domain.PersonDetails{}, false
		}
		writeAppError(w, r, s.Log, err)
		return domain.PersonDetails{}, false
	}
	if !privileged && !sameEmail(p.Email, sess.Email) {
		writeError(w, r, http.StatusUnauthorized, people.CodeUnauthorized, "unauthorized", nil)
		return domain.PersonDetails{}, false
	}
	return p, true
}

func (s *Server) personIDParam(w http.ResponseWriter, r *http.Request) (domain.PersonID, bool) {
	id, ok := domain.ParsePersonID(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, r, http.StatusBadRequest, people.CodeInputError, "invalid person id", nil)
		return 0, false
	}
	return id, true
}

// --- helpers ---

func actorFromRequest(r *http.Request, sess sessiontoken.Session) memberrepo.Actor {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	return memberrepo.Actor{
		Author:     sess.Email,
		ClientIP:   ip,
		ClientInfo: r.UserAgent(),
	}
}

func sameEmail(a, b string) bool {
	na := domain.NormalizeEmail(a)
	return na != "" && na == domain.NormalizeEmail(b)
}

func hashBody(raw []byte) string {
	// Compact so whitespace differences do not change the fingerprint.
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err == nil {
		raw = buf.Bytes()
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func personFromDomain(p domain.PersonDetails) personResponse {
	out := personResponse{
		ID:              int64(p.ID),
		Membership:      string(p.Membership),
		MemberNumber:    p.MemberNumber,
		LegalName:       p.LegalName,
		PublicFirstName: p.PublicFirstName,
		PublicLastName:  p.PublicLastName,
		Email:           p.Email,
		City:            p.City,
		State:           p.State,
		Country:         p.Country,
		BadgeName:       p.BadgeName,
		BadgeSubtitle:   p.BadgeSubtitle,
		PaperPubs:       p.PaperPubs,
		HugoNominator:   p.HugoNominator,
		HugoVoter:       p.HugoVoter,
		LastModified:    p.LastModified.UTC(),
	}
	if p.DayPass != nil {
		days := make([]string, 0, len(p.DayPass.Days))
		for _, d := range p.DayPass.Days {
			days = append(days, string(d))
		}
		out.DayPass = &dayPassResponse{Status: string(p.DayPass.Status), Days: days}
	}
	return out
}
