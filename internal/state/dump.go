package state

import "fmt"

// Dump — сериализуемое представление Context для хранения.
type Dump struct {
	Values  map[string]any `json:"values"`
	History []Change       `json:"history"`
}

// Export возвращает копию таблицы и журнала, снятые атомарно.
func (c *Context) Export() Dump {
	c.s.mu.RLock()
	values := make(map[string]any, len(c.s.values))
	for k, v := range c.s.values {
		values[k] = v
	}
	history := make([]Change, len(c.s.history))
	copy(history, c.s.history)
	c.s.mu.RUnlock()

	for k, v := range values {
		values[k] = mustCopy(v)
	}
	for i := range history {
		history[i].OldValue = mustCopy(history[i].OldValue)
		history[i].NewValue = mustCopy(history[i].NewValue)
	}
	return Dump{Values: values, History: history}
}

// FromDump восстанавливает Context из Dump.
// Журнал переносится как есть, новые записи продолжают нумерацию.
func FromDump(d Dump, opts ...Option) (*Context, error) {
	c := New(opts...)
	for k, v := range d.Values {
		cv, err := copyValue(v)
		if err != nil {
			return nil, toSerializationError(k, err)
		}
		c.s.values[k] = cv
	}
	for i, ch := range d.History {
		if i > 0 && ch.Seq <= d.History[i-1].Seq {
			return nil, fmt.Errorf("history out of order at seq %d", ch.Seq)
		}
		old, err := copyValue(ch.OldValue)
		if err != nil {
			return nil, toSerializationError(ch.Key, err)
		}
		val, err := copyValue(ch.NewValue)
		if err != nil {
			return nil, toSerializationError(ch.Key, err)
		}
		ch.OldValue, ch.NewValue = old, val
		c.s.history = append(c.s.history, ch)
		c.s.seq = ch.Seq
	}
	return c, nil
}
