package shop

import (
	"context"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
)

// UserService stores checkout details collected during conversation (first
// name, phone, email). Same storage discipline as CartService: Redis when
// available, process memory otherwise.
type UserService struct {
	redis *redis.Client
	log   *slog.Logger

	mu     sync.Mutex
	memory map[string]map[string]string
}

// NewUserService shares the cart service's Redis connection when one exists.
func NewUserService(carts *CartService, log *slog.Logger) *UserService {
	if log == nil {
		log = slog.Default()
	}
	service := &UserService{
		log:    log.With("component", "shop.user"),
		memory: make(map[string]map[string]string),
	}
	if carts != nil {
		service.redis = carts.redis
	}
	return service
}

func userKey(userID string) string {
	return "user:" + userID
}

// SaveField records one collected field for a user.
func (s *UserService) SaveField(ctx context.Context, userID, field, value string) error {
	if s.redis != nil {
		if err := s.redis.HSet(ctx, userKey(userID), field, value).Err(); err == nil {
			return nil
		} else {
			s.log.Error("User info write failed, using memory fallback", "user_id", userID, "field", field, "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.memory[userID] == nil {
		s.memory[userID] = make(map[string]string)
	}
	s.memory[userID][field] = value
	return nil
}

// Fields returns all collected fields for a user.
func (s *UserService) Fields(ctx context.Context, userID string) (map[string]string, error) {
	if s.redis != nil {
		fields, err := s.redis.HGetAll(ctx, userKey(userID)).Result()
		if err == nil {
			return fields, nil
		}
		s.log.Error("User info read failed, using memory fallback", "user_id", userID, "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fields := make(map[string]string, len(s.memory[userID]))
	for k, v := range s.memory[userID] {
		fields[k] = v
	}
	return fields, nil
}
