package authapi

import (
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"
)

// MFA methods accepted by MFAOTPGrant.
const (
	MFAMethodTOTP        = "totp"
	MFAMethodBackupCodes = "backup_codes"
)

// GenerateTOTP computes the current TOTP code for an enrolled base32 secret.
// Headless clients (CLI, bots) use it to answer MFA challenges themselves.
func GenerateTOTP(secret string, at time.Time) (string, error) {
	code, err := totp.GenerateCode(secret, at)
	if err != nil {
		return "", fmt.Errorf("failed to generate totp code: %w", err)
	}
	return code, nil
}
