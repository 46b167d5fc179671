package steps

import (
	"context"
	"fmt"
)

const (
	// ModuleInitNumber — записывает число в Context.
	ModuleInitNumber = "init_number"

	// ModuleDoubleNumber — удваивает число в Context.
	ModuleDoubleNumber = "double_number"

	// ModuleAddNumber — прибавляет amount к числу в Context.
	ModuleAddNumber = "add_number"

	// Ключи аргументов.
	argKey    = "key"
	argValue  = "value"
	argAmount = "amount"

	// defaultNumberKey — ключ Context по умолчанию для числовых модулей.
	defaultNumberKey = "value"
)

// InitNumberStep записывает число в Context.
//
// Аргументы:
//
//	{
//	    "value": 5,       // число (обязательно)
//	    "key": "value"    // ключ Context, по умолчанию "value"
//	}
type InitNumberStep struct{}

// NewInitNumberStep создаёт новый InitNumberStep.
func NewInitNumberStep() *InitNumberStep {
	return &InitNumberStep{}
}

// Module возвращает имя модуля.
func (s *InitNumberStep) Module() string {
	return ModuleInitNumber
}

// Execute записывает число.
func (s *InitNumberStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	n, ok := parseNumber(req.Args[argValue])
	if !ok {
		return nil, fmt.Errorf("%w: %s: numeric value is required, got %v",
			ErrInvalidArgs, ModuleInitNumber, req.Args[argValue])
	}

	key := GetArgStringDefault(req.Args, argKey, defaultNumberKey)
	if err := req.State.Set(key, n.value()); err != nil {
		return nil, err
	}

	return NewResponse(n.value()), nil
}

// DoubleNumberStep удваивает число в Context.
//
// Аргументы:
//
//	{
//	    "key": "value"    // ключ Context, по умолчанию "value"
//	}
type DoubleNumberStep struct{}

// NewDoubleNumberStep создаёт новый DoubleNumberStep.
func NewDoubleNumberStep() *DoubleNumberStep {
	return &DoubleNumberStep{}
}

// Module возвращает имя модуля.
func (s *DoubleNumberStep) Module() string {
	return ModuleDoubleNumber
}

// Execute удваивает число.
func (s *DoubleNumberStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	key := GetArgStringDefault(req.Args, argKey, defaultNumberKey)

	n, err := readNumber(req, key)
	if err != nil {
		return nil, err
	}

	doubled := n.mul(2)
	if err := req.State.Set(key, doubled.value()); err != nil {
		return nil, err
	}

	return NewResponse(doubled.value()), nil
}

// AddNumberStep прибавляет amount к числу в Context.
// Если ключа нет, считается что там 0.
//
// Аргументы:
//
//	{
//	    "amount": 3,      // слагаемое (обязательно)
//	    "key": "value"    // ключ Context, по умолчанию "value"
//	}
type AddNumberStep struct{}

// NewAddNumberStep создаёт новый AddNumberStep.
func NewAddNumberStep() *AddNumberStep {
	return &AddNumberStep{}
}

// Module возвращает имя модуля.
func (s *AddNumberStep) Module() string {
	return ModuleAddNumber
}

// Execute прибавляет число.
func (s *AddNumberStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	amount, ok := parseNumber(req.Args[argAmount])
	if !ok {
		return nil, fmt.Errorf("%w: %s: numeric amount is required, got %v",
			ErrInvalidArgs, ModuleAddNumber, req.Args[argAmount])
	}

	key := GetArgStringDefault(req.Args, argKey, defaultNumberKey)

	current := number{}
	if _, exists := req.State.Lookup(key); exists {
		n, err := readNumber(req, key)
		if err != nil {
			return nil, err
		}
		current = n
	}

	sum := current.add(amount)
	if err := req.State.Set(key, sum.value()); err != nil {
		return nil, err
	}

	return NewResponse(sum.value()), nil
}

// readNumber читает число из Context.
func readNumber(req *Request, key string) (number, error) {
	raw, ok := req.State.Lookup(key)
	if !ok {
		return number{}, fmt.Errorf("%w: %s: context key %q not found", ErrInvalidArgs, req.Module, key)
	}
	n, ok := parseNumber(raw)
	if !ok {
		return number{}, fmt.Errorf("%w: %s: context key %q is not a number (%T)", ErrInvalidArgs, req.Module, key, raw)
	}
	return n, nil
}
