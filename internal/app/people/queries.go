package people

import (
	"context"
	"errors"
	"strings"

	"github.com/convention-registry/member-api/internal/domain"
	"github.com/convention-registry/member-api/internal/ports/out/memberrepo"
)

// GetPerson returns a person with their day-pass grant.
func (s *Service) GetPerson(ctx context.Context, id domain.PersonID) (domain.PersonDetails, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return domain.PersonDetails{}, notFound(err)
		}
		return domain.PersonDetails{}, err
	}
	out := domain.PersonDetails{Person: p}
	dp, ok, err := s.repo.GetDayPass(ctx, id)
	if err != nil {
		return domain.PersonDetails{}, err
	}
	if ok {
		out.DayPass = &dp
	}
	return out, nil
}

// PrevNames reconstructs the legal names a person used before their current one from
// the legal_name parameters recorded in their audit log.
func (s *Service) PrevNames(ctx context.Context, id domain.PersonID) ([]PrevName, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		if errors.Is(err, memberrepo.ErrNotFound) {
			return nil, notFound(err)
		}
		return nil, err
	}
	entries, err := s.repo.ListLog(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		out     []PrevName
		current *PrevName
	)
	for _, e := range entries {
		name, _ := e.Parameters[domain.FieldLegalName].(string)
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if current == nil {
			current = &PrevName{Name: name, From: e.Timestamp}
			continue
		}
		if domain.NamesMatch(name, current.Name) {
			continue
		}
		current.To = e.Timestamp
		out = append(out, *current)
		current = &PrevName{Name: name, From: e.Timestamp}
	}
	return out, nil
}
