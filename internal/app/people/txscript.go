package people

import (
	"context"
	"fmt"

	"github.com/convention-registry/member-api/internal/ports/out/memberrepo"
)

type txStep[S any] struct {
	name string
	run  func(ctx context.Context, tx memberrepo.Tx, st *S) error
}

// txScript is an ordered list of named steps run in one transaction. Steps share a
// typed state value, so each step reads what earlier steps produced.
type txScript[S any] struct {
	steps []txStep[S]
}

func newTxScript[S any]() *txScript[S] { return &txScript[S]{} }

func (s *txScript[S]) step(name string, run func(ctx context.Context, tx memberrepo.Tx, st *S) error) *txScript[S] {
	s.steps = append(s.steps, txStep[S]{name: name, run: run})
	return s
}

func (s *txScript[S]) run(ctx context.Context, repo memberrepo.Repository, st *S) error {
	return repo.RunInTx(ctx, func(ctx context.Context, tx memberrepo.Tx) error {
		for _, step := range s.steps {
			if err := step.run(ctx, tx, st); err != nil {
				return fmt.Errorf("%s: %w", step.name, err)
			}
		}
		return nil
	})
}
