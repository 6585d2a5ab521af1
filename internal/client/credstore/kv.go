package credstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/tabchat/internal/client/store"
	"github.com/aussiebroadwan/tabchat/pkg/cryptox"
)

// SecureKV is a string key/value store whose values are protected at rest.
type SecureKV interface {
	// GetString returns the value under key. ok is false when key is absent.
	GetString(ctx context.Context, key string) (value string, ok bool, err error)
	PutString(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// sealerInfo separates keys derived for preferences from any other use of
// the same master key.
const sealerInfo = "tabchat/preferences/v1"

// EncryptedPreferences is a SecureKV over the preferences table. Values are
// sealed with AES-GCM and stored base64 encoded; keys are stored as is.
type EncryptedPreferences struct {
	prefs  store.Preferences
	sealer *cryptox.Sealer
}

// NewEncryptedPreferences derives the value key from masterKey.
func NewEncryptedPreferences(prefs store.Preferences, masterKey []byte) (*EncryptedPreferences, error) {
	sealer, err := cryptox.NewSealer(masterKey, sealerInfo)
	if err != nil {
		return nil, fmt.Errorf("failed to create preferences sealer: %w", err)
	}
	return &EncryptedPreferences{prefs: prefs, sealer: sealer}, nil
}

func (p *EncryptedPreferences) GetString(ctx context.Context, key string) (string, bool, error) {
	stored, err := p.prefs.GetPreference(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	sealed, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return "", false, fmt.Errorf("failed to decode preference %q: %w", key, errors.Join(ErrSerialization, err))
	}

	plain, err := p.sealer.Open(sealed)
	if err != nil {
		return "", false, fmt.Errorf("failed to open preference %q: %w", key, errors.Join(ErrSerialization, err))
	}

	return string(plain), true, nil
}

func (p *EncryptedPreferences) PutString(ctx context.Context, key, value string) error {
	sealed, err := p.sealer.Seal([]byte(value))
	if err != nil {
		return fmt.Errorf("failed to seal preference %q: %w", key, err)
	}
	return p.prefs.PutPreference(ctx, key, base64.StdEncoding.EncodeToString(sealed))
}

func (p *EncryptedPreferences) Remove(ctx context.Context, key string) error {
	return p.prefs.DeletePreference(ctx, key)
}
