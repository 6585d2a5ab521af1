package domain

import "time"

// Token is the token sub-record of a stored profile. AccessTokenSetTime is
// the wall clock time (Unix milliseconds) at which AccessToken was received.
type Token struct {
	AccessToken        string `json:"access_token"`
	RefreshToken       string `json:"refresh_token"`
	AccessTokenSetTime int64  `json:"accessTokenSetTime"`
}

// SetAt reports AccessTokenSetTime as a time.Time.
func (t Token) SetAt() time.Time {
	return time.UnixMilli(t.AccessTokenSetTime)
}

// UserProfile identifies the signed in user of this device. There is at most
// one per client.
type UserProfile struct {
	Username  string `json:"username"`
	Token     Token  `json:"token"`
	PublicKey string `json:"publicKey"`
}

// Clone returns a copy of p. A nil profile clones to nil.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}
