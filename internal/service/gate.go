package service

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/NitroDevv/tgbot/internal/model"
	"github.com/NitroDevv/tgbot/internal/repository"
)

// MembershipChecker reports whether a user currently belongs to a channel.
// The telegram transport implements it; a lookup failure is treated as
// "not subscribed" so a flaky API never opens the gate.
type MembershipChecker interface {
	IsMember(ctx context.Context, channelID string, userID int64) (bool, error)
}

type GateStore interface {
	RequiredChannels(ctx context.Context) ([]model.RequiredChannel, error)
	AddRequiredChannel(ctx context.Context, channelID, username string) error
	RemoveRequiredChannel(ctx context.Context, channelID string) error
}

// GateService enforces mandatory channel subscriptions before the main menu.
type GateService struct {
	store   GateStore
	checker MembershipChecker

	cacheTTL time.Duration

	mu       sync.Mutex
	verified map[int64]time.Time
}

func NewGateService(store GateStore, cacheTTL time.Duration) *GateService {
	return &GateService{
		store:    store,
		cacheTTL: cacheTTL,
		verified: make(map[int64]time.Time),
	}
}

func (s *GateService) SetChecker(c MembershipChecker) {
	s.checker = c
}

func (s *GateService) Channels(ctx context.Context) ([]model.RequiredChannel, error) {
	return s.store.RequiredChannels(ctx)
}

func (s *GateService) AddChannel(ctx context.Context, channelID, username string) error {
	if channelID == "" {
		return ErrInvalidInput
	}
	if err := s.store.AddRequiredChannel(ctx, channelID, username); err != nil {
		if errors.Is(err, repository.ErrChannelExists) {
			return ErrIllegalTransition
		}
		return err
	}
	return nil
}

func (s *GateService) RemoveChannel(ctx context.Context, channelID string) error {
	return s.store.RemoveRequiredChannel(ctx, channelID)
}

// Passed reports whether the user subscribes to every required channel.
// With no channels configured the gate is open. A positive result is
// cached for cacheTTL so menu taps do not hammer the membership API.
func (s *GateService) Passed(ctx context.Context, userID int64) (bool, error) {
	channels, err := s.store.RequiredChannels(ctx)
	if err != nil {
		return false, err
	}
	if len(channels) == 0 {
		return true, nil
	}

	s.mu.Lock()
	if until, ok := s.verified[userID]; ok && time.Now().Before(until) {
		s.mu.Unlock()
		return true, nil
	}
	s.mu.Unlock()

	if s.checker == nil {
		return false, nil
	}
	for _, ch := range channels {
		member, err := s.checker.IsMember(ctx, ch.ChannelID, userID)
		if err != nil {
			log.Printf("[Gate] membership check failed: channel=%s user=%d err=%v", ch.ChannelID, userID, err)
			return false, nil
		}
		if !member {
			return false, nil
		}
	}

	s.mu.Lock()
	s.verified[userID] = time.Now().Add(s.cacheTTL)
	s.mu.Unlock()
	return true, nil
}
