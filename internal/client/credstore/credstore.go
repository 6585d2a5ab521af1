// Package credstore persists the signed in user's profile on the device.
//
// The profile is stored as JSON under a single well-known key in a SecureKV,
// so there is never more than one profile at a time. Both Save and Clear are
// single row writes and are durable once they return.
package credstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/tabchat/internal/client/domain"
)

// ProfileKey is the SecureKV key holding the serialized profile.
const ProfileKey = "user_profile"

// ErrSerialization marks a stored profile that could not be decoded.
var ErrSerialization = errors.New("credstore: serialization failure")

type Store struct {
	kv     SecureKV
	logger *slog.Logger
}

func New(kv SecureKV, logger *slog.Logger) *Store {
	return &Store{kv: kv, logger: logger}
}

// Load returns the stored profile, or nil when there is none. A profile that
// cannot be read back is logged and reported as absent.
func (s *Store) Load(ctx context.Context) *domain.UserProfile {
	profile, err := s.Lookup(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "stored user profile is unreadable", slog.Any("error", err))
		return nil
	}
	return profile
}

// Lookup is Load with the failure reported. It returns (nil, nil) when no
// profile is stored.
func (s *Store) Lookup(ctx context.Context) (*domain.UserProfile, error) {
	raw, ok, err := s.kv.GetString(ctx, ProfileKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read user profile: %w", err)
	}
	if !ok {
		return nil, nil
	}

	var profile domain.UserProfile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return nil, errors.Join(ErrSerialization, err)
	}
	if profile.Username == "" {
		return nil, fmt.Errorf("%w: stored profile has no username", ErrSerialization)
	}
	return &profile, nil
}

// Save replaces the stored profile with profile.
func (s *Store) Save(ctx context.Context, profile *domain.UserProfile) error {
	if profile == nil {
		return errors.New("credstore: nil profile")
	}

	raw, err := json.Marshal(profile)
	if err != nil {
		return errors.Join(ErrSerialization, err)
	}

	if err := s.kv.PutString(ctx, ProfileKey, string(raw)); err != nil {
		return fmt.Errorf("failed to save user profile: %w", err)
	}
	return nil
}

// Clear removes the stored profile. Clearing an empty store is not an error.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.Remove(ctx, ProfileKey); err != nil {
		return fmt.Errorf("failed to clear user profile: %w", err)
	}
	return nil
}
