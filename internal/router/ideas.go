package router

import (
	"context"
	"strings"
	"text/template"

	"inferd/internal/llm"
	"inferd/internal/repair"
)

const (
	DefaultMutationCount = 5
	MaxMutationCount     = 10
)

// Mutation is one generated variation of an idea.
type Mutation struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Differences []string `json:"differences"`
}

// MutationOptions tune GenerateMutations.
type MutationOptions struct {
	// Count is the number of mutations wanted; 0 means DefaultMutationCount.
	Count int
	Focus string
}

// IdeaOptions tune ExpandIdea and ReorganizeIdea.
type IdeaOptions struct {
	Instructions string
}

// IdeaResult is a rewritten idea plus its structure relative to the input.
type IdeaResult struct {
	Text     string       `json:"text"`
	Provider llm.Provider `json:"provider"`
	Headings []Heading    `json:"headings"`
	Outline  string       `json:"outline"`
	Diff     SectionDiff  `json:"diff"`
}

func mutationCount(n int) int {
	switch {
	case n <= 0:
		return DefaultMutationCount
	case n > MaxMutationCount:
		return MaxMutationCount
	}
	return n
}

// GenerateMutations asks for variations of idea and keeps the well-formed
// ones. Unusable output is a *llm.RepairError; no output at all is a
// *llm.EmptyResponseError.
func (r *Router) GenerateMutations(ctx context.Context, idea string, opts MutationOptions) ([]Mutation, error) {
	const op = "generate_mutations"
	count := mutationCount(opts.Count)
	prompt, err := render(mutationsTmpl, promptData{Idea: idea, Count: count, Focus: strings.TrimSpace(opts.Focus)})
	if err != nil {
		return nil, err
	}
	raw, _, err := r.complete(ctx, op, prompt, llm.CompletionOptions{Temperature: 0.9, MaxTokens: 1024})
	if err != nil {
		return nil, err
	}
	items, err := repair.Array(raw)
	if err != nil {
		return nil, &llm.RepairError{Op: op, Reason: string(repair.ReasonOf(err)), Err: err}
	}

	out := make([]Mutation, 0, count)
	for _, it := range items {
		m := Mutation{
			Title:       strings.TrimSpace(it.Get("title").String()),
			Description: strings.TrimSpace(it.Get("description").String()),
			Differences: []string{},
		}
		if m.Title == "" || m.Description == "" {
			continue
		}
		for _, d := range it.Get("differences").Array() {
			if s := strings.TrimSpace(d.String()); s != "" {
				m.Differences = append(m.Differences, s)
			}
		}
		out = append(out, m)
		if len(out) == count {
			break
		}
	}
	if len(out) == 0 {
		return nil, &llm.RepairError{Op: op, Reason: "no_valid_entries"}
	}
	r.log.Debug().Int("requested", count).Int("parsed", len(items)).Int("kept", len(out)).Msg("mutations generated")
	return out, nil
}

// ExpandIdea deepens idea into a longer markdown document.
func (r *Router) ExpandIdea(ctx context.Context, idea string, opts IdeaOptions) (IdeaResult, error) {
	return r.rewrite(ctx, "expand_idea", expandTmpl, idea, opts, 0.7)
}

// ReorganizeIdea restructures idea without adding content.
func (r *Router) ReorganizeIdea(ctx context.Context, idea string, opts IdeaOptions) (IdeaResult, error) {
	return r.rewrite(ctx, "reorganize_idea", reorganizeTmpl, idea, opts, 0.3)
}

func (r *Router) rewrite(ctx context.Context, op string, tmpl *template.Template, idea string, opts IdeaOptions, temperature float64) (IdeaResult, error) {
	prompt, err := render(tmpl, promptData{Idea: idea, Instructions: strings.TrimSpace(opts.Instructions)})
	if err != nil {
		return IdeaResult{}, err
	}
	text, provider, err := r.complete(ctx, op, prompt, llm.CompletionOptions{Temperature: temperature, MaxTokens: 2048})
	if err != nil {
		return IdeaResult{}, err
	}
	text = strings.TrimSpace(stripOuterFence(text))
	hs := ExtractHeadings(text)
	if hs == nil {
		hs = []Heading{}
	}
	return IdeaResult{
		Text:     text,
		Provider: provider,
		Headings: hs,
		Outline:  Summarize(hs),
		Diff:     DiffSections(ExtractHeadings(idea), hs),
	}, nil
}

// stripOuterFence unwraps a reply that is entirely one ```markdown block.
func stripOuterFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return s
	}
	body := strings.TrimSuffix(t, "```")
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return s
	}
	return body[nl+1:]
}
