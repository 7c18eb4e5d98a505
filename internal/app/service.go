package app

import (
	"context"

	"github.com/owdiscord/trakt/internal/domain"
	"github.com/owdiscord/trakt/internal/follow"
)

// Service is the surface the gateway and command layers call into. It is the
// only component that references multiple domain components; events fan out
// from here into the cache, the throttle, and the processors.
type Service struct {
	cache     domain.ProgressCache
	users     domain.UserRepository
	throttle  *follow.Throttle
	sanctions *SanctionProcessor
	voice     *VoiceTracker
}

func NewService(cache domain.ProgressCache, users domain.UserRepository, throttle *follow.Throttle, sanctions *SanctionProcessor, voice *VoiceTracker) *Service {
	return &Service{
		cache:     cache,
		users:     users,
		throttle:  throttle,
		sanctions: sanctions,
		voice:     voice,
	}
}

// SubmitProgress credits a user for a message. Non-blocking.
func (s *Service) SubmitProgress(id domain.UserID) {
	s.cache.SubmitProgress(id)
}

// MessageScoreForUser is a two-tier read: cache first, storage second. The
// cache is never populated by reads.
func (s *Service) MessageScoreForUser(ctx context.Context, id domain.UserID) (int, error) {
	if score, ok := s.cache.MessageScoreForUser(id); ok {
		return score, nil
	}
	return s.users.MessageScore(ctx, id)
}

// OverrideMessageScore administratively sets a user's score, bypassing any
// active rate-limit window. The next flush persists it.
func (s *Service) OverrideMessageScore(id domain.UserID, value int) {
	s.cache.OverrideMessageScore(id, value)
}

// OverrideTimeScore administratively sets a user's time score in storage.
func (s *Service) OverrideTimeScore(ctx context.Context, id domain.UserID, value int) error {
	return s.users.OverrideTimeScore(ctx, id, value)
}

// UserReport returns the stored record for moderation reporting.
func (s *Service) UserReport(ctx context.Context, id domain.UserID) (*domain.User, error) {
	return s.users.User(ctx, id)
}

// ResetUser forgets a user entirely. Reports whether a record existed.
func (s *Service) ResetUser(ctx context.Context, id domain.UserID) (bool, error) {
	removed, err := s.users.ResetUser(ctx, id)
	if err != nil {
		return false, err
	}
	s.cache.RemoveUsers(map[domain.UserID]struct{}{id: {}})
	s.cache.Unaward(id)
	return removed, nil
}

// UserLeft clears the award flag when a member leaves.
func (s *Service) UserLeft(ctx context.Context, id domain.UserID) error {
	if err := s.users.UserLeft(ctx, id); err != nil {
		return err
	}
	s.cache.Unaward(id)
	return nil
}

// SubmitSanction relays a moderation penalty. Non-blocking.
func (s *Service) SubmitSanction(p domain.Penalty) {
	s.sanctions.Submit(p)
}

// OnQualifyingEvent runs the follow throttle for a message by target,
// returning the owners notified.
func (s *Service) OnQualifyingEvent(ctx context.Context, target domain.UserID, event domain.EventContext) []domain.UserID {
	return s.throttle.OnQualifyingEvent(ctx, target, event)
}

// HandleFollow inserts or replaces a follow rule.
func (s *Service) HandleFollow(ctx context.Context, owner, target domain.UserID, intervalSeconds int) error {
	return s.throttle.HandleFollow(ctx, owner, target, intervalSeconds)
}

// HandleUnfollow removes a follow rule.
func (s *Service) HandleUnfollow(ctx context.Context, owner, target domain.UserID) error {
	return s.throttle.HandleUnfollow(ctx, owner, target)
}

// Follows lists the targets the owner follows.
func (s *Service) Follows(ctx context.Context, owner domain.UserID) ([]domain.UserID, error) {
	return s.throttle.Follows(ctx, owner)
}

// OnVoiceState records a voice join or leave.
func (s *Service) OnVoiceState(ctx context.Context, id domain.UserID, inChannel bool) {
	s.voice.OnVoiceState(ctx, id, inChannel)
}
