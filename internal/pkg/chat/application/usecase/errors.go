package usecase

import "errors"

// ErrPersistence wraps every failure of the backend store or transport, as
// opposed to the validation errors of the domain package.
var ErrPersistence = errors.New("chat: backend request failed")
