package repo

import "errors"

var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = errors.New("not found")

	// ErrInvalidIdentifier — недопустимое имя таблицы или колонки.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrInvalidRow — строка upsert'а не содержит всех колонок пачки.
	ErrInvalidRow = errors.New("invalid row")
)
