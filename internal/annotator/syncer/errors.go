package syncer

import (
	"errors"
	"fmt"
)

// ============================================================
// Errors
// ============================================================

var (
	// ErrIdentityMissing: пользователь ещё не определён; загрузка и сохранение отключены.
	ErrIdentityMissing = errors.New("user identity is not resolved")
	// ErrNotFound: для пары (проект, пользователь) ничего не сохранено.
	ErrNotFound = errors.New("shapes not found")
	// ErrStale: ответ пришёл для identity, которая уже сменилась.
	ErrStale = errors.New("stale response")
)

// RemoteError: транспортный сбой или неуспешный статус удалённой стороны.
type RemoteError struct {
	Op     string
	Status int
	Err    error
}

func (e *RemoteError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	default:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}
