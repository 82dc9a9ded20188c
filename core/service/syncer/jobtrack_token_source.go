package syncer

import (
	"sync"

	"golang.org/x/oauth2"
)

// reportingTokenSource remembers the last token handed out so a refresh
// performed during the run can be written back afterwards.
type reportingTokenSource struct {
	base oauth2.TokenSource

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *reportingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.last = tok
	s.mu.Unlock()
	return tok, nil
}

func (s *reportingTokenSource) latest() *oauth2.Token {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
