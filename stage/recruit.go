package stage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zuzya/try.idea-validator/core"
	"github.com/zuzya/try.idea-validator/extract"
	"github.com/zuzya/try.idea-validator/internal/util"
	"github.com/zuzya/try.idea-validator/persona"
)

// Persona sources recorded on recruited personas.
const (
	SourceIndex = "index"
	SourceGuide = "guide"
)

// searchFactor widens the index query so the model has candidates to choose
// from.
const searchFactor = 3

// personaSelection is the shape the recruiter model answers with.
type personaSelection struct {
	Personas []core.Persona `json:"personas"`
}

// Recruit picks the personas for the current interview cycle. It searches
// the persona index with the idea and lets the model select among the hits:
//   - hits: the model selects PersonaCount personas (fallback: one persona
//     per hit)
//   - no hits: the guide's target personas are used
//   - search failure: a synthetic persona set is used
type Recruit struct {
	base
}

// NewRecruit creates the Recruit stage. Set Options.Index to search a
// persona corpus.
func NewRecruit(optFns ...func(o *Options)) *Recruit {
	return &Recruit{base: newBase(core.StageRecruit, RecruiterSystem, optFns)}
}

// Run implements core.Stage.
func (r *Recruit) Run(ctx context.Context, s core.GraphState) (core.Patch, error) {
	if s.Artifact == nil {
		return core.Patch{}, ErrNoArtifact
	}
	n := s.Config.PersonaCount
	log := r.logger(ctx)

	excerpts, err := r.search(ctx, s)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return core.Patch{}, ctxErr
		}
		var se *core.SearchError
		if !errors.As(err, &se) {
			se = &core.SearchError{Query: query(s), Cause: err}
		}
		log.Warn("persona search failed, using synthetic personas: %v", se)
		return core.Patch{Personas: persona.Synthetic(n)}, nil
	}

	if len(excerpts) == 0 {
		personas := fromGuide(s.ResearchGuide, n)
		if len(personas) == 0 {
			log.Warn("no indexed or guide personas, using synthetic personas")
			personas = persona.Synthetic(n)
		}
		log.Info("recruited %d personas from the guide", len(personas))
		return core.Patch{Personas: personas}, nil
	}

	personas, err := r.selectFrom(ctx, s, excerpts)
	if err != nil {
		return core.Patch{}, err
	}
	log.Info("recruited %d personas from %d index hits", len(personas), len(excerpts))
	return core.Patch{Personas: personas}, nil
}

func (r *Recruit) search(ctx context.Context, s core.GraphState) ([]string, error) {
	if r.opts.Index == nil {
		return nil, nil
	}
	return r.opts.Index.Search(ctx, query(s), s.Config.PersonaCount*searchFactor)
}

func (r *Recruit) selectFrom(ctx context.Context, s core.GraphState, excerpts []string) ([]core.Persona, error) {
	n := s.Config.PersonaCount
	gw, err := r.generator(s.Config)
	if err != nil {
		return nil, err
	}
	system, err := r.system(s)
	if err != nil {
		return nil, err
	}

	var list strings.Builder
	for i, e := range excerpts {
		fmt.Fprintf(&list, "[%d] %s\n", i+1, e)
	}
	user, err := util.Execute(recruitTmpl, map[string]any{
		"Idea":     asJSON(s.Artifact),
		"Excerpts": list.String(),
		"Count":    n,
		"Hint":     extract.FormatHint[personaSelection](),
	})
	if err != nil {
		return nil, fmt.Errorf("render recruit prompt: %w", err)
	}

	fallback := func(error) personaSelection { return personaSelection{Personas: fromExcerpts(excerpts, n)} }
	sel, _, err := retrier(ctx, &r.base, s.Config, fallback).Invoke(ctx, gw, core.Prompt{System: system, User: user})
	if err != nil {
		return nil, err
	}

	personas := sel.Personas
	if len(personas) == 0 {
		personas = fromExcerpts(excerpts, n)
	}
	if len(personas) > n {
		personas = personas[:n]
	}
	for i := range personas {
		if personas[i].Source == "" {
			personas[i].Source = SourceIndex
		}
	}
	return personas, nil
}

// query is the text the persona index is searched with.
func query(s core.GraphState) string {
	if s.Artifact == nil {
		return s.SeedInput
	}
	return strings.Join([]string{s.Artifact.Title, s.Artifact.Description, s.Artifact.TargetAudience}, ". ")
}

func fromGuide(g *core.Guide, n int) []core.Persona {
	if g == nil {
		return nil
	}
	out := make([]core.Persona, 0, min(n, len(g.TargetPersonas)))
	for _, p := range g.TargetPersonas {
		if len(out) == n {
			break
		}
		p.Source = SourceGuide
		out = append(out, p)
	}
	return out
}

func fromExcerpts(excerpts []string, n int) []core.Persona {
	out := make([]core.Persona, 0, min(n, len(excerpts)))
	for i, e := range excerpts {
		if len(out) == n {
			break
		}
		out = append(out, core.Persona{
			Name:       fmt.Sprintf("Candidate %d", i+1),
			Role:       "Indexed profile",
			Background: e,
			Source:     SourceIndex,
		})
	}
	return out
}
