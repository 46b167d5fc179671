package state

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
)

// valueError — внутренняя ошибка обхода значения, до привязки к ключу.
type valueError struct {
	path   string
	reason string
}

func (e *valueError) Error() string { return e.reason }

// ValidateValue проверяет, что значение JSON-сериализуемо:
// nil, bool, числа, строки, срезы/массивы и map со строковыми ключами
// из таких же значений. Структуры проверяются через encoding/json
// и хранятся в нормализованном виде (map[string]any, числа как float64).
func ValidateValue(v any) error {
	_, err := copyValue(v)
	if err != nil {
		return toSerializationError("", err)
	}
	return nil
}

// copyValue проверяет значение и возвращает его глубокую копию того же типа.
// Структуры и контейнеры, в которых они встречаются, приводятся
// к JSON-форме: после копии значение не разделяет память с вызывающим.
func copyValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	w := walker{
		seen:       make(map[visitKey]struct{}),
		normalized: make(map[reflect.Type]bool),
	}
	out, err := w.copy(reflect.ValueOf(v), "")
	if err != nil {
		return nil, err
	}
	return out.Interface(), nil
}

// mustCopy копирует значение, которое уже прошло проверку.
func mustCopy(v any) any {
	out, err := copyValue(v)
	if err != nil {
		// значения попадают в хранилище только после проверки
		panic(fmt.Sprintf("state: stored value became invalid: %v", err))
	}
	return out
}

func toSerializationError(key string, err error) error {
	if ve, ok := err.(*valueError); ok {
		return &SerializationError{Key: key, Path: ve.path, Reason: ve.reason}
	}
	return &SerializationError{Key: key, Reason: err.Error()}
}

// visitKey идентифицирует контейнер на текущем пути обхода.
// Для срезов учитывается длина: срезы одного массива разной длины — разные значения.
type visitKey struct {
	ptr uintptr
	typ reflect.Type
	n   int
}

type walker struct {
	seen       map[visitKey]struct{}
	normalized map[reflect.Type]bool
}

var anyType = reflect.TypeOf((*any)(nil)).Elem()

// normalizes сообщает, содержит ли тип структуры вне интерфейсов.
// Такие значения копируются в []any / map[string]any, потому что
// нормализованная структура уже не помещается в исходный тип элемента.
func (w *walker) normalizes(t reflect.Type) bool {
	if n, ok := w.normalized[t]; ok {
		return n
	}
	// рекурсивные типы без структур (type T []T) не нормализуются
	w.normalized[t] = false
	var n bool
	switch t.Kind() {
	case reflect.Struct:
		n = true
	case reflect.Interface:
		n = t.NumMethod() > 0
	case reflect.Pointer, reflect.Slice, reflect.Array, reflect.Map:
		n = w.normalizes(t.Elem())
	}
	w.normalized[t] = n
	return n
}

// jsonValue копирует структуру через JSON round trip.
func jsonValue(v reflect.Value, path string) (reflect.Value, error) {
	data, err := json.Marshal(v.Interface())
	if err != nil {
		return v, &valueError{path: path, reason: err.Error()}
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v, &valueError{path: path, reason: err.Error()}
	}
	if out == nil {
		return reflect.Zero(anyType), nil
	}
	return reflect.ValueOf(out), nil
}

func (w *walker) enter(k visitKey, path string) error {
	if _, ok := w.seen[k]; ok {
		return &valueError{path: path, reason: "cyclic reference"}
	}
	w.seen[k] = struct{}{}
	return nil
}

func (w *walker) leave(k visitKey) {
	delete(w.seen, k)
}

func (w *walker) copy(v reflect.Value, path string) (reflect.Value, error) {
	switch v.Kind() {
	case reflect.Invalid:
		return v, nil

	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v, nil

	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return v, &valueError{path: path, reason: fmt.Sprintf("unsupported float %v", f)}
		}
		return v, nil

	case reflect.Interface:
		if v.IsNil() {
			return v, nil
		}
		inner, err := w.copy(v.Elem(), path)
		if err != nil {
			return v, err
		}
		if !inner.Type().AssignableTo(v.Type()) {
			return inner, nil
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(inner)
		return out, nil

	case reflect.Pointer:
		norm := w.normalizes(v.Type())
		if v.IsNil() {
			if norm {
				return reflect.Zero(anyType), nil
			}
			return v, nil
		}
		k := visitKey{ptr: v.Pointer(), typ: v.Type()}
		if err := w.enter(k, path); err != nil {
			return v, err
		}
		defer w.leave(k)
		inner, err := w.copy(v.Elem(), path)
		if err != nil {
			return v, err
		}
		if norm {
			return inner, nil
		}
		out := reflect.New(v.Type().Elem())
		out.Elem().Set(inner)
		return out, nil

	case reflect.Slice:
		norm := w.normalizes(v.Type())
		if v.IsNil() {
			if norm {
				return reflect.Zero(anyType), nil
			}
			return v, nil
		}
		if v.Len() > 0 {
			k := visitKey{ptr: v.Pointer(), typ: v.Type(), n: v.Len()}
			if err := w.enter(k, path); err != nil {
				return v, err
			}
			defer w.leave(k)
		}
		typ := v.Type()
		if norm {
			typ = reflect.TypeOf([]any(nil))
		}
		out := reflect.MakeSlice(typ, v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			el, err := w.copy(v.Index(i), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return v, err
			}
			out.Index(i).Set(el)
		}
		return out, nil

	case reflect.Array:
		var out reflect.Value
		if w.normalizes(v.Type()) {
			out = reflect.MakeSlice(reflect.TypeOf([]any(nil)), v.Len(), v.Len())
		} else {
			out = reflect.New(v.Type()).Elem()
		}
		for i := 0; i < v.Len(); i++ {
			el, err := w.copy(v.Index(i), fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return v, err
			}
			out.Index(i).Set(el)
		}
		return out, nil

	case reflect.Map:
		if v.Type().Key().Kind() != reflect.String {
			return v, &valueError{path: path, reason: fmt.Sprintf("map key type %s is not string", v.Type().Key())}
		}
		norm := w.normalizes(v.Type())
		if v.IsNil() {
			if norm {
				return reflect.Zero(anyType), nil
			}
			return v, nil
		}
		k := visitKey{ptr: v.Pointer(), typ: v.Type()}
		if err := w.enter(k, path); err != nil {
			return v, err
		}
		defer w.leave(k)
		typ := v.Type()
		if norm {
			typ = reflect.TypeOf(map[string]any(nil))
		}
		out := reflect.MakeMapWithSize(typ, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			el, err := w.copy(iter.Value(), path+"."+iter.Key().String())
			if err != nil {
				return v, err
			}
			out.SetMapIndex(reflect.ValueOf(iter.Key().String()).Convert(typ.Key()), el)
		}
		return out, nil

	case reflect.Struct:
		if !v.CanInterface() {
			return v, &valueError{path: path, reason: "unexported struct value"}
		}
		return jsonValue(v, path)

	default:
		return v, &valueError{path: path, reason: fmt.Sprintf("unsupported type %s", v.Type())}
	}
}

// Copy проверяет значение и возвращает его глубокую копию.
func Copy(v any) (any, error) {
	out, err := copyValue(v)
	if err != nil {
		return nil, toSerializationError("", err)
	}
	return out, nil
}
