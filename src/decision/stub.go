package decision

import "context"

// StubProposer is a deterministic rule-based stand-in for the completion
// service, used in tests and dry runs. It returns a fixed script of proposals
// and never errors.
type StubProposer struct {
	Script []Proposal
	calls  int
}

func (s *StubProposer) Propose(_ context.Context, _ *Context) (*Proposal, error) {
	if len(s.Script) == 0 {
		return &Proposal{Text: "hold"}, nil
	}
	p := s.Script[s.calls%len(s.Script)]
	s.calls++
	return &p, nil
}
