package shop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"qualichat/pkg/config"
)

// CartService stores carts in Redis when configured and falls back to process
// memory otherwise, so a missing Redis never blocks the shopping flow.
type CartService struct {
	redis *redis.Client
	log   *slog.Logger

	mu     sync.Mutex
	memory map[string][]CartItem
}

// NewCartService connects to Redis when an address is configured. A failed
// ping downgrades to memory-only storage with a warning.
func NewCartService(ctx context.Context, cfg config.ShopConfig, log *slog.Logger) *CartService {
	if log == nil {
		log = slog.Default()
	}
	service := &CartService{
		log:    log.With("component", "shop.cart"),
		memory: make(map[string][]CartItem),
	}

	if cfg.RedisAddr == "" {
		service.log.Info("No redis address configured, carts are process-resident only")
		return service
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		service.log.Warn("Redis unreachable, carts fall back to process memory", "addr", cfg.RedisAddr, "error", err)
		_ = client.Close()
		return service
	}

	service.redis = client
	service.log.Info("Cart storage connected", "addr", cfg.RedisAddr)
	return service
}

func cartKey(userID string) string {
	return "cart:" + userID
}

// Items returns the cart lines for a user, empty when no cart exists.
func (s *CartService) Items(ctx context.Context, userID string) ([]CartItem, error) {
	if s.redis != nil {
		raw, err := s.redis.Get(ctx, cartKey(userID)).Result()
		switch {
		case err == nil:
			var items []CartItem
			if err := json.Unmarshal([]byte(raw), &items); err != nil {
				return nil, fmt.Errorf("decode stored cart: %w", err)
			}
			return items, nil
		case errors.Is(err, redis.Nil):
			return []CartItem{}, nil
		default:
			s.log.Error("Cart read failed, using memory fallback", "user_id", userID, "error", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]CartItem, len(s.memory[userID]))
	copy(items, s.memory[userID])
	return items, nil
}

// View returns the rendered cart with its computed total.
func (s *CartService) View(ctx context.Context, userID string) (CartView, error) {
	items, err := s.Items(ctx, userID)
	if err != nil {
		return CartView{}, err
	}
	return ViewOf(items), nil
}

// Add merges an item into the user's cart, summing quantities for an id that
// is already present, and returns the updated view.
func (s *CartService) Add(ctx context.Context, userID string, item CartItem) (CartView, error) {
	if item.Quantity <= 0 {
		item.Quantity = 1
	}
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now().UTC()
	}

	items, err := s.Items(ctx, userID)
	if err != nil {
		return CartView{}, err
	}

	merged := false
	for i := range items {
		if items[i].ID == item.ID {
			items[i].Quantity += item.Quantity
			merged = true
			break
		}
	}
	if !merged {
		items = append(items, item)
	}

	if err := s.store(ctx, userID, items); err != nil {
		return CartView{}, err
	}

	return ViewOf(items), nil
}

// Clear empties the user's cart.
func (s *CartService) Clear(ctx context.Context, userID string) error {
	if s.redis != nil {
		if err := s.redis.Del(ctx, cartKey(userID)).Err(); err != nil {
			s.log.Error("Cart delete failed, clearing memory fallback", "user_id", userID, "error", err)
		}
	}

	s.mu.Lock()
	delete(s.memory, userID)
	s.mu.Unlock()
	return nil
}

// Close releases the Redis connection when one is held.
func (s *CartService) Close() error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Close()
}

func (s *CartService) store(ctx context.Context, userID string, items []CartItem) error {
	if s.redis != nil {
		raw, err := json.Marshal(items)
		if err != nil {
			return fmt.Errorf("encode cart: %w", err)
		}
		if err := s.redis.Set(ctx, cartKey(userID), raw, 0).Err(); err == nil {
			return nil
		} else {
			s.log.Error("Cart write failed, using memory fallback", "user_id", userID, "error", err)
		}
	}

	s.mu.Lock()
	s.memory[userID] = items
	s.mu.Unlock()
	return nil
}
