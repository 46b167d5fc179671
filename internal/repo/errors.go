package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrInvalidName — пустое имя контекста или расписания.
	ErrInvalidName = errors.New("invalid name")
)
