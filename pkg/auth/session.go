package auth

import (
	"context"
	"errors"
	"fmt"
)

// EnsureSession makes sure the client holds a token the backend accepts.
// Without refresh an existing token is checked with GetMe and ErrTokenExpired is
// returned when it is rejected; with refresh the pair is renewed, falling back to a
// fresh signed login. Pair it with utils.RetryWithRefresh and IsRetryable.
func (c *Client) EnsureSession(ctx context.Context, refresh bool) error {
	if !refresh && c.IsAuthenticated() {
		_, err := c.GetMe(ctx)
		if err == nil {
			return nil
		}
		if isUnauthorized(err) {
			return fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return err
	}

	if refresh && c.GetRefreshToken() != "" {
		_, err := c.RefreshToken(ctx)
		if err == nil {
			return nil
		}
		c.logger.Info("token refresh failed, logging in again", "error", err)
	}

	return c.login(ctx)
}

// login signs the backend's challenge with the wallet
func (c *Client) login(ctx context.Context) error {
	if c.signer == nil {
		return errors.New("no signer configured for login")
	}

	account := c.signer.Account()
	challenge, err := c.GetAuthMessage(ctx, account)
	if err != nil {
		return err
	}

	signature, err := c.signer.PersonalSign(ctx, challenge.Message)
	if err != nil {
		return fmt.Errorf("failed to sign auth message: %w", err)
	}

	if _, err := c.Login(ctx, challenge.Message, signature); err != nil {
		return err
	}

	c.logger.Debug("wallet logged in", "account", account)
	return nil
}

// IsRetryable reports whether err is worth one retry with a forced refresh
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTokenExpired) || isUnauthorized(err)
}

func isUnauthorized(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.IsUnauthorized()
}
