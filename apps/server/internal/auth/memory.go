package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"pokerdice/match"
)

// MemoryService keeps players and sessions in process memory.
type MemoryService struct {
	mu sync.Mutex

	nextPlayerID match.PlayerID
	sessionTTL   time.Duration
	sessions     map[string]sessionRecord        // token -> player
	players      map[match.PlayerID]playerRecord // player -> profile
	byUsername   map[string]match.PlayerID       // normalized username -> player
}

type sessionRecord struct {
	PlayerID  match.PlayerID
	ExpiresAt time.Time
}

type playerRecord struct {
	Username     string
	PasswordHash []byte
	LastLogin    time.Time
}

func NewMemoryService(sessionTTL time.Duration) *MemoryService {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	return &MemoryService{
		nextPlayerID: 100000,
		sessionTTL:   sessionTTL,
		sessions:     make(map[string]sessionRecord),
		players:      make(map[match.PlayerID]playerRecord),
		byUsername:   make(map[string]match.PlayerID),
	}
}

func (s *MemoryService) Close() error { return nil }

func (s *MemoryService) Register(_ context.Context, username, password string) (match.PlayerID, string, error) {
	if err := validateUsername(username); err != nil {
		return 0, "", err
	}
	if err := validatePassword(password); err != nil {
		return 0, "", err
	}
	normalized := normalizeUsername(username)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return 0, "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byUsername[normalized]; exists {
		return 0, "", ErrUsernameTaken
	}
	s.nextPlayerID++
	player := s.nextPlayerID
	now := time.Now()
	s.players[player] = playerRecord{Username: normalized, PasswordHash: hash, LastLogin: now}
	s.byUsername[normalized] = player
	return player, s.issueSessionLocked(player, now), nil
}

func (s *MemoryService) Login(_ context.Context, username, password string) (match.PlayerID, string, error) {
	normalized := normalizeUsername(username)
	if normalized == "" || password == "" {
		return 0, "", ErrInvalidCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	player, exists := s.byUsername[normalized]
	if !exists {
		return 0, "", ErrInvalidCredentials
	}
	profile := s.players[player]
	if bcrypt.CompareHashAndPassword(profile.PasswordHash, []byte(password)) != nil {
		return 0, "", ErrInvalidCredentials
	}
	now := time.Now()
	profile.LastLogin = now
	s.players[player] = profile
	return player, s.issueSessionLocked(player, now), nil
}

// ResolveSession validates token and slides its expiry forward.
func (s *MemoryService) ResolveSession(_ context.Context, token string) (match.PlayerID, string, bool) {
	if token == "" {
		return 0, "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, exists := s.sessions[token]
	if !exists {
		return 0, "", false
	}
	now := time.Now()
	if !now.Before(rec.ExpiresAt) {
		delete(s.sessions, token)
		return 0, "", false
	}
	rec.ExpiresAt = now.Add(s.sessionTTL)
	s.sessions[token] = rec
	return rec.PlayerID, s.players[rec.PlayerID].Username, true
}

func (s *MemoryService) Logout(_ context.Context, token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

func (s *MemoryService) issueSessionLocked(player match.PlayerID, now time.Time) string {
	token := mustToken()
	s.sessions[token] = sessionRecord{PlayerID: player, ExpiresAt: now.Add(s.sessionTTL)}
	return token
}
