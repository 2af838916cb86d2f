package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is a Repository implementation backed by process
// memory. It serves tests and single-node development runs; production
// deployments use PostgresRepository.
type InMemoryRepository struct {
	mu            sync.RWMutex
	sessions      map[int64]*Session
	tokens        map[int64]*Token
	eventKeys     map[string]struct{}
	nextSessionID int64
	nextTokenID   int64
}

// NewInMemoryRepository creates an empty in-memory repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		sessions:  make(map[int64]*Session),
		tokens:    make(map[int64]*Token),
		eventKeys: make(map[string]struct{}),
	}
}

func (r *InMemoryRepository) CreateSession(ctx context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextSessionID++
	s.ID = r.nextSessionID
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetSession(ctx context.Context, id int64) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *InMemoryRepository) GetSessionByDay(ctx context.Context, clinicID, doctorID, dateKey string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		if s.ClinicID == clinicID && s.DoctorID == doctorID && s.DateKey == dateKey {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (r *InMemoryRepository) UpdateSession(ctx context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[s.ID]; !ok {
		return ErrSessionNotFound
	}
	cp := *s
	r.sessions[s.ID] = &cp
	return nil
}

func (r *InMemoryRepository) CreateToken(ctx context.Context, t *Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextTokenID++
	t.ID = r.nextTokenID
	cp := copyToken(t)
	r.tokens[t.ID] = cp
	return nil
}

func (r *InMemoryRepository) GetToken(ctx context.Context, id int64) (*Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[id]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return copyToken(t), nil
}

func (r *InMemoryRepository) UpdateToken(ctx context.Context, t *Token) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[t.ID]; !ok {
		return ErrTokenNotFound
	}
	r.tokens[t.ID] = copyToken(t)
	return nil
}

func (r *InMemoryRepository) FindActiveByPhone(ctx context.Context, sessionID int64, phone string) (*Token, error) {
	matches := r.tokensInStates(sessionID, ActiveStates)
	for _, t := range matches {
		if t.Phone == phone {
			return t, nil
		}
	}
	return nil, nil
}

func (r *InMemoryRepository) MaxTokenNo(ctx context.Context, sessionID int64) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	max := 0
	for _, t := range r.tokens {
		if t.SessionID == sessionID && t.TokenNo > max {
			max = t.TokenNo
		}
	}
	return max, nil
}

func (r *InMemoryRepository) IssuedTokenNos(ctx context.Context, sessionID int64) ([]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var nos []int
	for _, t := range r.tokens {
		if t.SessionID == sessionID {
			nos = append(nos, t.TokenNo)
		}
	}
	sort.Ints(nos)
	return nos, nil
}

func (r *InMemoryRepository) FirstInStates(ctx context.Context, sessionID int64, states []TokenState) (*Token, error) {
	matches := r.tokensInStates(sessionID, states)
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

func (r *InMemoryRepository) ListInStates(ctx context.Context, sessionID int64, states []TokenState, limit int) ([]*Token, error) {
	matches := r.tokensInStates(sessionID, states)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func (r *InMemoryRepository) InsertClientEvent(ctx context.Context, e *ClientEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := e.ClientID + "\x00" + e.EventID
	if _, dup := r.eventKeys[key]; dup {
		return false, nil
	}
	r.eventKeys[key] = struct{}{}
	return true, nil
}

func (r *InMemoryRepository) tokensInStates(sessionID int64, states []TokenState) []*Token {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wanted := make(map[TokenState]struct{}, len(states))
	for _, s := range states {
		wanted[s] = struct{}{}
	}
	var out []*Token
	for _, t := range r.tokens {
		if t.SessionID != sessionID {
			continue
		}
		if _, ok := wanted[t.State]; !ok {
			continue
		}
		out = append(out, copyToken(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TokenNo < out[j].TokenNo })
	return out
}

func copyToken(t *Token) *Token {
	cp := *t
	if t.SlotIndex != nil {
		v := *t.SlotIndex
		cp.SlotIndex = &v
	}
	if t.ArrivedAt != nil {
		v := *t.ArrivedAt
		cp.ArrivedAt = &v
	}
	if t.ServingAt != nil {
		v := *t.ServingAt
		cp.ServingAt = &v
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		cp.CompletedAt = &v
	}
	return &cp
}

var _ Repository = (*InMemoryRepository)(nil)
