package mq

import "errors"

// Ошибки очередей.
var (
	// ErrNoChannel — соединение ещё не установлено или потеряно.
	ErrNoChannel = errors.New("no channel available")

	// ErrPermanent — сообщение нельзя обработать повторно.
	// Consumer отправляет такие сообщения в DLQ без requeue.
	ErrPermanent = errors.New("permanent failure")
)

// permanentError помечает ошибку как постоянную.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() []error { return []error{ErrPermanent, e.err} }

// Permanent оборачивает err: сообщение уйдёт в DLQ вместо requeue.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent проверяет, помечена ли ошибка как постоянная.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}
