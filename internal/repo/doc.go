// Package repo хранит runs, именованные контексты и состояние расписаний
// в PostgreSQL через pgx.
package repo
