package relay

import (
	"errors"
	"fmt"
)

// ErrDeliveryForbidden marks a DM delivery failure caused by the recipient
// being unreachable: they left the server or blocked the bot.
var ErrDeliveryForbidden = errors.New("relay: recipient unreachable")

// PlatformError is a non-forbidden error returned by the chat platform API.
type PlatformError struct {
	Code    int
	Message string
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("relay: platform error %d: %s", e.Code, e.Message)
}

// ThreadCreationError reports that a thread could not be created for a user.
// It carries the original message content so staff can be given the text for
// a manual fallback DM. The user receives no error; their next message
// retries independently.
type ThreadCreationError struct {
	User    User
	Content string
	Err     error
}

func (e *ThreadCreationError) Error() string {
	return fmt.Sprintf("relay: create thread for %s: %v", e.User.Tag(), e.Err)
}

func (e *ThreadCreationError) Unwrap() error { return e.Err }
