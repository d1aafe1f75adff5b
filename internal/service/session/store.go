package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	model "github.com/zhouzirui/voiceturn/backend/internal/model/session"
)

var (
	ErrCapacityExceeded = errors.New("session capacity exceeded")
	ErrNotFound         = errors.New("session not found")
)

const (
	DefaultMaxSessions = 50
	DefaultIdleTimeout = 300 * time.Second
)

// Store 持有全部在线会话，所有操作互斥且不做任何 I/O
type Store struct {
	mu          sync.Mutex
	sessions    map[string]model.Session
	maxSessions int
	idleTimeout time.Duration
	now         func() time.Time
	newID       func() string
	logger      *zap.Logger
}

// Option 存储的可选配置
type Option func(*Store)

// WithMaxSessions 限制在线会话数
func WithMaxSessions(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithIdleTimeout 会话空闲超过该时长即可被清理
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.idleTimeout = d
		}
	}
}

// WithClock 替换 time.Now，主要供测试使用
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger 设置日志器
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewStore 创建空的内存存储
func NewStore(opts ...Option) *Store {
	s := &Store{
		sessions:    make(map[string]model.Session),
		maxSessions: DefaultMaxSessions,
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		newID:       uuid.NewString,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "session_store"))
	return s
}

// Create 先清理过期会话，再创建新会话
func (s *Store) Create(_ context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.reapLocked(now)

	if len(s.sessions) >= s.maxSessions {
		return "", ErrCapacityExceeded
	}

	id := s.newID()
	s.sessions[id] = model.New(id, now)
	s.logger.Debug("session created", zap.String("session_id", id), zap.Int("live", len(s.sessions)))
	return id, nil
}

// Get 返回会话副本并刷新最近活跃时间
func (s *Store) Get(_ context.Context, id string) (model.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return model.Session{}, ErrNotFound
	}
	sess.LastActive = s.now()
	s.sessions[id] = sess
	return sess.Clone(), nil
}

// Replace 整体覆盖记录，后写者生效
func (s *Store) Replace(_ context.Context, id string, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	stored := sess.Clone()
	stored.ID = id
	stored.LastActive = s.now()
	s.sessions[id] = stored
	return nil
}

// Delete 删除会话，返回其是否存在
func (s *Store) Delete(_ context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return false
	}
	delete(s.sessions, id)
	s.logger.Debug("session deleted", zap.String("session_id", id))
	return true
}

// List 返回每个会话的摘要，顺序不定
func (s *Store) List(_ context.Context) []model.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	out := make([]model.Summary, 0, len(s.sessions))
	for id, sess := range s.sessions {
		out = append(out, model.Summary{
			ID:          id,
			TurnCount:   sess.TurnCount,
			Sentiment:   sess.Extraction.Sentiment,
			IdleSeconds: now.Sub(sess.LastActive).Seconds(),
		})
	}
	return out
}

// Len 返回已存储的会话数，含已过期未清理的
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Store) reapLocked(now time.Time) {
	for id, sess := range s.sessions {
		if now.Sub(sess.LastActive) > s.idleTimeout {
			delete(s.sessions, id)
			s.logger.Info("session expired", zap.String("session_id", id))
		}
	}
}
