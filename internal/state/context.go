package state

import (
	"encoding/json"
	"sort"
	"sync"
	"time"
)

const (
	// DefaultActor — автор изменений, сделанных не из шага.
	DefaultActor = "caller"

	// RollbackActor — автор изменений, сделанных при откате.
	RollbackActor = "rollback"
)

// Op — тип изменения в журнале.
type Op string

const (
	// OpSet — запись значения по ключу.
	OpSet Op = "set"

	// OpClear — полная очистка таблицы.
	OpClear Op = "clear"
)

// Change — запись журнала изменений.
//
// Записи неизменяемы. Seq строго возрастает, Timestamp не убывает.
type Change struct {
	Seq       uint64    `json:"seq"`
	Op        Op        `json:"op"`
	Key       string    `json:"key,omitempty"`
	OldValue  any       `json:"old_value"`
	NewValue  any       `json:"new_value"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
}

// Option настраивает Context при создании.
type Option func(*store)

// WithClock задаёт источник времени для журнала.
func WithClock(now func() time.Time) Option {
	return func(s *store) {
		s.now = now
	}
}

// store — общее хранилище, разделяемое всеми представлениями Context.
type store struct {
	mu      sync.RWMutex
	values  map[string]any
	history []Change
	seq     uint64
	now     func() time.Time
}

// Context — потокобезопасное хранилище состояния рецепта.
//
// Значение Context — это представление хранилища с именем автора изменений.
// WithActor возвращает новое представление того же хранилища.
type Context struct {
	s     *store
	actor string
	log   *writeLog
}

// writeLog — ключи, изменённые через группу представлений.
type writeLog struct {
	mu   sync.Mutex
	keys map[string]struct{}
	all  bool
}

func (l *writeLog) add(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.keys[key] = struct{}{}
	l.mu.Unlock()
}

func (l *writeLog) replaceAll() {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.all = true
	l.mu.Unlock()
}

// New создаёт пустой Context.
func New(opts ...Option) *Context {
	s := &store{
		values: make(map[string]any),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return &Context{s: s, actor: DefaultActor}
}

// NewWithValues создаёт Context с начальными значениями.
// Каждое значение записывается через Set и попадает в журнал.
func NewWithValues(values map[string]any, opts ...Option) (*Context, error) {
	c := New(opts...)
	for _, k := range sortedKeys(values) {
		if err := c.Set(k, values[k]); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// WithActor возвращает представление того же хранилища с другим автором.
func (c *Context) WithActor(actor string) *Context {
	return &Context{s: c.s, actor: actor, log: c.log}
}

// WithWriteLog возвращает представление, которое запоминает ключи,
// изменённые через него и через производные от него представления.
// Записи других представлений того же хранилища в него не попадают.
func (c *Context) WithWriteLog() *Context {
	return &Context{s: c.s, actor: c.actor, log: &writeLog{keys: make(map[string]struct{})}}
}

// Written возвращает отсортированные ключи, изменённые через представления
// с общим журналом записей, и признак полной замены таблицы (Clear, Restore).
// Для представления без WithWriteLog возвращает nil, false.
func (c *Context) Written() ([]string, bool) {
	if c.log == nil {
		return nil, false
	}
	c.log.mu.Lock()
	defer c.log.mu.Unlock()
	keys := make([]string, 0, len(c.log.keys))
	for k := range c.log.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, c.log.all
}

// Actor возвращает автора изменений этого представления.
func (c *Context) Actor() string {
	return c.actor
}

// Set записывает значение по ключу.
//
// Значение проверяется и копируется до захвата блокировки. Если значение
// несериализуемо, возвращается *SerializationError и ничего не меняется.
func (c *Context) Set(key string, value any) error {
	if key == "" {
		return &SerializationError{Key: key, Reason: "key must not be empty"}
	}
	v, err := copyValue(value)
	if err != nil {
		return toSerializationError(key, err)
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	old := c.s.values[key]
	c.s.values[key] = v
	c.s.appendLocked(OpSet, key, old, v, c.actor)
	c.log.add(key)
	return nil
}

// Get возвращает копию значения по ключу или def, если ключа нет.
func (c *Context) Get(key string, def any) any {
	v, ok := c.Lookup(key)
	if !ok {
		return def
	}
	return v
}

// Lookup возвращает копию значения и признак наличия ключа.
func (c *Context) Lookup(key string) (any, bool) {
	c.s.mu.RLock()
	v, ok := c.s.values[key]
	c.s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	// хранимые значения не меняются на месте, копируем без блокировки
	return mustCopy(v), true
}

// Clear удаляет все ключи. В журнал пишется одна запись OpClear,
// OldValue которой — таблица до очистки. Журнал не очищается.
func (c *Context) Clear() {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	old := c.s.values
	c.s.values = make(map[string]any)
	c.s.appendLocked(OpClear, "", old, nil, c.actor)
	c.log.replaceAll()
}

// Restore заменяет содержимое на values.
// Все значения проверяются заранее; в журнал пишутся clear и set записи.
func (c *Context) Restore(values map[string]any) error {
	copied := make(map[string]any, len(values))
	for k, v := range values {
		if k == "" {
			return &SerializationError{Key: k, Reason: "key must not be empty"}
		}
		cv, err := copyValue(v)
		if err != nil {
			return toSerializationError(k, err)
		}
		copied[k] = cv
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	old := c.s.values
	c.s.values = make(map[string]any, len(copied))
	c.s.appendLocked(OpClear, "", old, nil, c.actor)
	for _, k := range sortedKeys(copied) {
		c.s.values[k] = copied[k]
		c.s.appendLocked(OpSet, k, nil, copied[k], c.actor)
	}
	c.log.replaceAll()
	return nil
}

// RestoreKeys возвращает ключи keys к значениям из values, не трогая
// остальные ключи. Ключ, которого нет в values, удаляется.
//
// Если удалять нечего, в журнал пишутся только set записи. Иначе таблица
// пересобирается как в Restore: clear и set для каждого оставшегося ключа.
func (c *Context) RestoreKeys(values map[string]any, keys []string) error {
	copied := make(map[string]any, len(keys))
	for _, k := range keys {
		v, ok := values[k]
		if !ok {
			continue
		}
		cv, err := copyValue(v)
		if err != nil {
			return toSerializationError(k, err)
		}
		copied[k] = cv
	}

	c.s.mu.Lock()
	defer c.s.mu.Unlock()

	removed := false
	for _, k := range keys {
		if _, keep := copied[k]; keep {
			continue
		}
		if _, exists := c.s.values[k]; exists {
			removed = true
			break
		}
	}

	if !removed {
		for _, k := range sortedKeys(copied) {
			old := c.s.values[k]
			c.s.values[k] = copied[k]
			c.s.appendLocked(OpSet, k, old, copied[k], c.actor)
			c.log.add(k)
		}
		return nil
	}

	// хранимые значения неизменяемы, их можно переносить без копии
	next := make(map[string]any, len(c.s.values))
	for k, v := range c.s.values {
		next[k] = v
	}
	for _, k := range keys {
		if v, ok := copied[k]; ok {
			next[k] = v
		} else {
			delete(next, k)
		}
	}

	old := c.s.values
	c.s.values = make(map[string]any, len(next))
	c.s.appendLocked(OpClear, "", old, nil, c.actor)
	for _, k := range sortedKeys(next) {
		c.s.values[k] = next[k]
		c.s.appendLocked(OpSet, k, nil, next[k], c.actor)
	}
	c.log.replaceAll()
	return nil
}

// Keys возвращает отсортированный список ключей на момент вызова.
func (c *Context) Keys() []string {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return sortedKeys(c.s.values)
}

// Len возвращает количество ключей.
func (c *Context) Len() int {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	return len(c.s.values)
}

// History возвращает последние limit записей журнала в хронологическом порядке.
// limit <= 0 — весь журнал.
func (c *Context) History(limit int) []Change {
	c.s.mu.RLock()
	n := len(c.s.history)
	start := 0
	if limit > 0 && limit < n {
		start = n - limit
	}
	window := make([]Change, n-start)
	copy(window, c.s.history[start:])
	c.s.mu.RUnlock()

	for i := range window {
		window[i].OldValue = mustCopy(window[i].OldValue)
		window[i].NewValue = mustCopy(window[i].NewValue)
	}
	return window
}

// Snapshot возвращает копию всей таблицы.
func (c *Context) Snapshot() map[string]any {
	c.s.mu.RLock()
	values := make(map[string]any, len(c.s.values))
	for k, v := range c.s.values {
		values[k] = v
	}
	c.s.mu.RUnlock()

	for k, v := range values {
		values[k] = mustCopy(v)
	}
	return values
}

// MarshalJSON сериализует таблицу значений.
func (c *Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Snapshot())
}

// appendLocked дописывает запись в журнал. Вызывается под c.mu.Lock.
func (s *store) appendLocked(op Op, key string, old, val any, actor string) {
	ts := s.now()
	if n := len(s.history); n > 0 && ts.Before(s.history[n-1].Timestamp) {
		ts = s.history[n-1].Timestamp
	}
	s.seq++
	s.history = append(s.history, Change{
		Seq:       s.seq,
		Op:        op,
		Key:       key,
		OldValue:  old,
		NewValue:  val,
		Timestamp: ts,
		Actor:     actor,
	})
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
