package state

import (
	"errors"
	"fmt"
)

// ErrNotSerializable — базовая ошибка для несериализуемых значений.
var ErrNotSerializable = errors.New("value is not JSON-serializable")

// SerializationError — значение нельзя сохранить в Context.
//
// Возвращается из Set/Restore/NewWithValues. Состояние при этом не меняется.
type SerializationError struct {
	// Key — ключ, под которым пытались записать значение.
	Key string

	// Path — путь внутри значения до проблемного элемента ("", "[2]", ".a.b").
	Path string

	// Reason — что именно не так.
	Reason string
}

// Error реализует интерфейс error.
func (e *SerializationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("context key %q: %s at %s", e.Key, e.Reason, e.Path)
	}
	return fmt.Sprintf("context key %q: %s", e.Key, e.Reason)
}

// Unwrap возвращает ErrNotSerializable для errors.Is.
func (e *SerializationError) Unwrap() error {
	return ErrNotSerializable
}

// IsSerializationError проверяет, есть ли SerializationError в цепочке.
func IsSerializationError(err error) bool {
	var se *SerializationError
	return errors.As(err, &se)
}
