// Package store provides storage backends for chatform.
//
// It includes an in-memory store for tests and development plus SQLite and
// PostgreSQL backed stores for persistent deployments. All backends persist
// the same three record kinds: bot configurations, conversations, and
// submissions.
package store

import (
	"sort"
	"strings"
	"sync"

	"github.com/chatformhq/chatform/internal/models"
)

// Store is the persistence interface the API server and session controller
// depend on. Implementations must be safe for concurrent use.
type Store interface {
	SaveBotConfig(bot models.BotConfig) error
	GetBotConfig(id string) (*models.BotConfig, error)
	ListBotConfigs(userID string) ([]models.BotConfig, error)

	SaveConversation(convo models.Conversation) error
	GetConversation(id string) (*models.Conversation, error)
	DeleteConversation(id string) error

	AddSubmission(sub models.Submission) error
	GetSubmissions(botID string) ([]models.Submission, error)

	Close() error
}

// Opts holds configuration options for persistent store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string. A file path selects SQLite;
// a postgres:// URL selects PostgreSQL.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType returns the database driver name implied by the DSN:
// "postgres" for postgres URLs and key=value connection strings, otherwise
// "sqlite3".
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "postgres"
	}
	if strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite3"
}

// InMemoryStore keeps everything in maps guarded by one mutex. It backs
// tests and stateless development runs.
type InMemoryStore struct {
	mu            sync.RWMutex
	bots          map[string]models.BotConfig
	conversations map[string]models.Conversation
	submissions   map[string][]models.Submission
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		bots:          make(map[string]models.BotConfig),
		conversations: make(map[string]models.Conversation),
		submissions:   make(map[string][]models.Submission),
	}
}

func (s *InMemoryStore) SaveBotConfig(bot models.BotConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[bot.ID] = bot
	return nil
}

func (s *InMemoryStore) GetBotConfig(id string) (*models.BotConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bot, ok := s.bots[id]
	if !ok {
		return nil, models.ErrBotNotFound
	}
	return &bot, nil
}

func (s *InMemoryStore) ListBotConfigs(userID string) ([]models.BotConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var bots []models.BotConfig
	for _, bot := range s.bots {
		if userID == "" || bot.UserID == userID {
			bots = append(bots, bot)
		}
	}
	sort.Slice(bots, func(i, j int) bool { return bots[i].ID < bots[j].ID })
	return bots, nil
}

func (s *InMemoryStore) SaveConversation(convo models.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversations[convo.ID] = convo
	return nil
}

func (s *InMemoryStore) GetConversation(id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	convo, ok := s.conversations[id]
	if !ok {
		return nil, models.ErrConversationNotFound
	}
	return &convo, nil
}

func (s *InMemoryStore) DeleteConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, id)
	return nil
}

func (s *InMemoryStore) AddSubmission(sub models.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submissions[sub.BotID] = append(s.submissions[sub.BotID], sub)
	return nil
}

func (s *InMemoryStore) GetSubmissions(botID string) ([]models.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	subs := s.submissions[botID]
	out := make([]models.Submission, len(subs))
	copy(out, subs)
	return out, nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
