// Package state содержит Context — общее хранилище состояния рецепта.
//
// Context — это потокобезопасная таблица "ключ → JSON-сериализуемое значение"
// с журналом изменений. Шаги рецепта читают из него результаты предыдущих
// шагов и пишут свои.
//
// Гарантии:
//   - Set проверяет значение до записи; при ошибке состояние не меняется
//   - каждое изменение (set или clear) попадает в журнал атомарно вместе с записью
//   - журнал только дописывается, Clear его не стирает
//   - Get, Keys, History и Snapshot возвращают независимые копии
//
// Все поля защищены одним sync.RWMutex. Блокировка держится только на время
// копирования, поэтому поток писателей не может надолго заблокировать читателей.
package state
