package chat

import (
	"sync"
	"time"

	"copbot/internal/helper"
	"copbot/internal/models"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/text/language"
)

// Session is one conversation. Its history only grows.
type Session struct {
	ID string

	mu       sync.Mutex
	language language.Tag
	messages []models.Message
}

func NewSession(id string, lang language.Tag) *Session {
	return &Session{ID: id, language: lang}
}

func (s *Session) Language() language.Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.language
}

func (s *Session) SetLanguage(lang language.Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.language = lang
}

// Messages returns a copy of the history.
func (s *Session) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.messages...)
}

func (s *Session) append(msg models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Sessions keeps the most recently used sessions; idle ones expire.
type Sessions struct {
	cache *expirable.LRU[string, *Session]
}

func NewSessions(size int, ttl time.Duration) *Sessions {
	return &Sessions{cache: expirable.NewLRU[string, *Session](size, nil, ttl)}
}

// Get returns the session for id, creating a new one when id is unknown
// or has expired. The returned session may carry a fresh ID.
func (s *Sessions) Get(id string, lang language.Tag) (*Session, error) {
	if id != "" {
		if sess, ok := s.cache.Get(id); ok {
			return sess, nil
		}
	}
	id, err := helper.GenerateUUID()
	if err != nil {
		return nil, err
	}
	sess := NewSession(id, lang)
	s.cache.Add(id, sess)
	return sess, nil
}

func (s *Sessions) Len() int {
	return s.cache.Len()
}
