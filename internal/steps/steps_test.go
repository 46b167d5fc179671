package steps

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/shaiso/Recipes/internal/engine"
	"github.com/shaiso/Recipes/internal/state"
)

// newTestRequest создаёт Request с пустым Context.
func newTestRequest(module string, args map[string]any) (*Request, *state.Context) {
	st := state.New()
	return NewRequest("test", module, args, st.WithActor("step:test")), st
}

// Registry Tests

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	// Пустой реестр
	if r.Count() != 0 {
		t.Errorf("expected empty registry")
	}

	// Регистрация
	r.Register(NewDelayStep())
	if r.Count() != 1 {
		t.Errorf("expected 1 module, got %d", r.Count())
	}

	// Получение
	step, err := r.Resolve("delay")
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if step.Module() != "delay" {
		t.Errorf("expected delay, got %s", step.Module())
	}

	// Has
	if !r.Has("delay") {
		t.Error("should have delay")
	}
	if r.Has("unknown") {
		t.Error("should not have unknown")
	}

	// Unregister
	r.Unregister("delay")
	if r.Has("delay") {
		t.Error("should not have delay after unregister")
	}
}

func TestRegistry_ResolveMissing(t *testing.T) {
	r := NewRegistry()

	step, err := r.Resolve("missing_module")
	if step != nil {
		t.Error("step should be nil")
	}

	var rErr *ResolutionError
	if !errors.As(err, &rErr) {
		t.Fatalf("expected ResolutionError, got %T", err)
	}
	if rErr.Module != "missing_module" {
		t.Errorf("expected module missing_module, got %q", rErr.Module)
	}
	if !errors.Is(err, ErrModuleNotFound) {
		t.Errorf("expected ErrModuleNotFound in chain")
	}
	if !IsResolutionError(err) {
		t.Error("IsResolutionError should be true")
	}
}

func TestRegistry_RegisterFunc(t *testing.T) {
	r := NewRegistry()
	r.RegisterFunc("greet", func(ctx context.Context, req *Request) (*Response, error) {
		return NewResponse("hi"), req.State.Set("greeting", "hello")
	})

	step, err := r.Resolve("greet")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	req, st := newTestRequest("greet", nil)
	resp, err := step.Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result != "hi" {
		t.Errorf("expected result hi, got %v", resp.Result)
	}
	if st.Get("greeting", nil) != "hello" {
		t.Error("greeting should be written to context")
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	expected := []string{
		"add_number", "clear_context", "copy_value", "delay", "double_number",
		"fail", "http", "init_number", "set_value", "transform",
	}
	for _, m := range expected {
		if !r.Has(m) {
			t.Errorf("default registry should have %s", m)
		}
	}

	modules := r.Modules()
	if len(modules) != len(expected) {
		t.Fatalf("expected %d modules, got %d", len(expected), len(modules))
	}
	for i := range expected {
		if modules[i] != expected[i] {
			t.Errorf("modules[%d] = %s, want %s", i, modules[i], expected[i])
		}
	}
}

// Number Step Tests

func TestInitAndDoubleNumber(t *testing.T) {
	st := state.New()
	ctx := context.Background()

	initReq := NewRequest("init", ModuleInitNumber, map[string]any{"value": 5}, st)
	if _, err := NewInitNumberStep().Execute(ctx, initReq); err != nil {
		t.Fatalf("init: %v", err)
	}

	doubleReq := NewRequest("double", ModuleDoubleNumber, nil, st)
	resp, err := NewDoubleNumberStep().Execute(ctx, doubleReq)
	if err != nil {
		t.Fatalf("double: %v", err)
	}

	if got := st.Get("value", nil); got != 10 {
		t.Errorf("expected value 10, got %v (%T)", got, got)
	}
	if resp.Result != 10 {
		t.Errorf("expected result 10, got %v", resp.Result)
	}
}

func TestInitNumber_Variants(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		key  string
		want any
	}{
		{"int", map[string]any{"value": 7}, "value", 7},
		{"float", map[string]any{"value": 1.5}, "value", 1.5},
		{"rendered string", map[string]any{"value": "12"}, "value", 12},
		{"custom key", map[string]any{"value": 3, "key": "count"}, "count", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, st := newTestRequest(ModuleInitNumber, tt.args)
			if _, err := NewInitNumberStep().Execute(context.Background(), req); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := st.Get(tt.key, nil); got != tt.want {
				t.Errorf("expected %v, got %v (%T)", tt.want, got, got)
			}
		})
	}
}

func TestInitNumber_InvalidArgs(t *testing.T) {
	req, st := newTestRequest(ModuleInitNumber, map[string]any{"value": "abc"})

	_, err := NewInitNumberStep().Execute(context.Background(), req)
	if !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("expected ErrInvalidArgs, got %v", err)
	}
	if st.Len() != 0 {
		t.Error("context should stay empty")
	}
}

func TestDoubleNumber_MissingKey(t *testing.T) {
	req, _ := newTestRequest(ModuleDoubleNumber, nil)

	_, err := NewDoubleNumberStep().Execute(context.Background(), req)
	if !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("expected ErrInvalidArgs, got %v", err)
	}
}

func TestDoubleNumber_NotANumber(t *testing.T) {
	req, st := newTestRequest(ModuleDoubleNumber, nil)
	_ = st.Set("value", "five")

	_, err := NewDoubleNumberStep().Execute(context.Background(), req)
	if !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("expected ErrInvalidArgs, got %v", err)
	}
}

func TestAddNumber(t *testing.T) {
	req, st := newTestRequest(ModuleAddNumber, map[string]any{"amount": 3})

	// Ключа нет: считается 0
	if _, err := NewAddNumberStep().Execute(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := st.Get("value", nil); got != 3 {
		t.Errorf("expected 3, got %v", got)
	}

	req.Args["amount"] = 0.5
	if _, err := NewAddNumberStep().Execute(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := st.Get("value", nil); got != 3.5 {
		t.Errorf("expected 3.5, got %v", got)
	}
}

func TestNumbers_IntOverflowBecomesFloat(t *testing.T) {
	req, st := newTestRequest(ModuleDoubleNumber, nil)
	_ = st.Set("value", 1<<62)

	if _, err := NewDoubleNumberStep().Execute(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := st.Get("value", nil); got != float64(1<<63) {
		t.Errorf("double: expected %v, got %v (%T)", float64(1<<63), got, got)
	}

	req, st = newTestRequest(ModuleAddNumber, map[string]any{"amount": math.MaxInt64})
	_ = st.Set("value", 1)
	if _, err := NewAddNumberStep().Execute(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := st.Get("value", nil); got != float64(math.MaxInt64)+1 {
		t.Errorf("add: expected %v, got %v (%T)", float64(math.MaxInt64)+1, got, got)
	}

	req.Args["amount"] = math.MinInt64
	_ = st.Set("value", -1)
	if _, err := NewAddNumberStep().Execute(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got, ok := st.Get("value", nil).(float64); !ok || got >= 0 {
		t.Errorf("add negative: expected negative float64, got %v", st.Get("value", nil))
	}
}

// Value Step Tests

func TestSetValue(t *testing.T) {
	req, st := newTestRequest(ModuleSetValue, map[string]any{"key": "status", "value": "ready"})

	if _, err := NewSetValueStep().Execute(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Get("status", nil) != "ready" {
		t.Errorf("expected ready, got %v", st.Get("status", nil))
	}

	h := st.History(1)
	if h[0].Actor != "step:test" {
		t.Errorf("expected actor step:test, got %s", h[0].Actor)
	}
}

func TestSetValue_Values(t *testing.T) {
	req, st := newTestRequest(ModuleSetValue, map[string]any{
		"values": map[string]any{"b": 2, "a": 1},
	})

	if _, err := NewSetValueStep().Execute(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// записи идут в порядке сортировки ключей
	h := st.History(0)
	if len(h) != 2 || h[0].Key != "a" || h[1].Key != "b" {
		t.Errorf("unexpected history: %+v", h)
	}
}

func TestSetValue_InvalidArgs(t *testing.T) {
	req, _ := newTestRequest(ModuleSetValue, map[string]any{"key": "k"})

	_, err := NewSetValueStep().Execute(context.Background(), req)
	if !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("expected ErrInvalidArgs, got %v", err)
	}
}

func TestCopyValue(t *testing.T) {
	req, st := newTestRequest(ModuleCopyValue, map[string]any{"from": "a", "to": "b"})
	_ = st.Set("a", []any{1, 2})

	if _, err := NewCopyValueStep().Execute(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, ok := st.Get("b", nil).([]any)
	if !ok || len(b) != 2 {
		t.Errorf("expected copied list, got %v", st.Get("b", nil))
	}

	req.Args["from"] = "missing"
	if _, err := NewCopyValueStep().Execute(context.Background(), req); !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("expected ErrInvalidArgs, got %v", err)
	}
}

func TestClearContext(t *testing.T) {
	req, st := newTestRequest(ModuleClearContext, nil)
	_ = st.Set("a", 1)

	if _, err := NewClearContextStep().Execute(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Len() != 0 {
		t.Error("context should be empty")
	}
	if len(st.History(0)) != 2 {
		t.Error("history should keep set and clear")
	}
}

func TestFailStep(t *testing.T) {
	req, st := newTestRequest(ModuleFail, map[string]any{
		"message":    "boom",
		"set_before": map[string]any{"partial": true},
	})

	_, err := NewFailStep().Execute(context.Background(), req)
	if !errors.Is(err, ErrStepFailed) {
		t.Errorf("expected ErrStepFailed, got %v", err)
	}

	// запись до ошибки осталась
	if st.Get("partial", nil) != true {
		t.Error("partial write should stay in context")
	}
}

// Delay Step Tests

func TestDelayStep_Execute(t *testing.T) {
	for _, args := range []map[string]any{
		{"duration_ms": 30},
		{"duration": "30ms"},
	} {
		req, _ := newTestRequest(ModuleDelay, args)

		start := time.Now()
		resp, err := NewDelayStep().Execute(context.Background(), req)
		if err != nil {
			t.Fatalf("%v: unexpected error: %v", args, err)
		}
		if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
			t.Errorf("%v: delay was too short: %v", args, elapsed)
		}
		if result, ok := resp.Result.(map[string]any); !ok || result["duration_ms"] == nil {
			t.Errorf("%v: result should contain duration_ms, got %v", args, resp.Result)
		}
	}
}

func TestDelayStep_Cancellation(t *testing.T) {
	req, _ := newTestRequest(ModuleDelay, map[string]any{"duration_sec": 1})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := NewDelayStep().Execute(ctx, req)
	if !errors.Is(err, ErrStepCancelled) {
		t.Errorf("expected ErrStepCancelled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("cancellation took too long: %v", elapsed)
	}
}

func TestDelayStep_InvalidArgs(t *testing.T) {
	for _, args := range []map[string]any{
		{},
		{"duration": "soon"},
		{"duration": "-1s"},
		{"duration_sec": 7200},
	} {
		req, _ := newTestRequest(ModuleDelay, args)
		if _, err := NewDelayStep().Execute(context.Background(), req); !errors.Is(err, ErrInvalidArgs) {
			t.Errorf("%v: expected ErrInvalidArgs, got %v", args, err)
		}
	}
}

// HTTP Step Tests

func TestHTTPStep_GET(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"data":   []int{1, 2, 3},
		})
	}))
	defer server.Close()

	req, st := newTestRequest(ModuleHTTP, map[string]any{
		"method":  "GET",
		"url":     server.URL,
		"save_as": "api",
	})

	resp, err := NewHTTPStep().Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result := resp.Result.(map[string]any)
	if result["status_code"] != 200 {
		t.Errorf("expected status_code 200, got %v", result["status_code"])
	}

	body, ok := result["body"].(map[string]any)
	if !ok {
		t.Fatalf("expected body to be map, got %T", result["body"])
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %v", body["status"])
	}

	// Ответ сохранён в Context
	saved, ok := st.Get("api", nil).(map[string]any)
	if !ok || saved["status_code"] != 200 {
		t.Errorf("expected response in context, got %v", st.Get("api", nil))
	}
}

func TestHTTPStep_POST_JSON(t *testing.T) {
	var receivedBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected Content-Type application/json")
		}
		json.NewDecoder(r.Body).Decode(&receivedBody)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]any{"id": 123})
	}))
	defer server.Close()

	req, _ := newTestRequest(ModuleHTTP, map[string]any{
		"method": "post",
		"url":    server.URL,
		"body":   map[string]any{"name": "test", "value": 42},
	})

	resp, err := NewHTTPStep().Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Result.(map[string]any)["status_code"] != 201 {
		t.Errorf("expected status_code 201")
	}
	if receivedBody["name"] != "test" {
		t.Errorf("expected name 'test', got %v", receivedBody["name"])
	}
}

func TestHTTPStep_QueryAndClientReuse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.URL.Query().Get("page") + "/" + r.URL.Query().Get("q")))
	}))
	defer server.Close()

	step := NewHTTPStep()
	for i := 0; i < 2; i++ {
		req, _ := newTestRequest(ModuleHTTP, map[string]any{
			"url":   server.URL + "?q=go",
			"query": map[string]any{"page": "2"},
		})
		resp, err := step.Execute(context.Background(), req)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if body := resp.Result.(map[string]any)["body"]; body != "2/go" {
			t.Errorf("expected body 2/go, got %v", body)
		}
	}
	if len(step.clients) != 1 {
		t.Errorf("expected one cached client, got %d", len(step.clients))
	}
}

func TestHTTPStep_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	req, _ := newTestRequest(ModuleHTTP, map[string]any{"url": server.URL})

	_, err := NewHTTPStep().Execute(context.Background(), req)
	if !IsHTTPError(err) {
		t.Fatalf("expected HTTPError, got %v", err)
	}

	// fail_on_error: false — статус не считается ошибкой
	req.Args["fail_on_error"] = false
	resp, err := NewHTTPStep().Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result.(map[string]any)["status_code"] != http.StatusBadGateway {
		t.Error("expected 502 in result")
	}
}

func TestHTTPStep_InvalidArgs(t *testing.T) {
	req, _ := newTestRequest(ModuleHTTP, map[string]any{})

	_, err := NewHTTPStep().Execute(context.Background(), req)
	if !errors.Is(err, ErrInvalidArgs) {
		t.Errorf("expected ErrInvalidArgs, got %v", err)
	}
}

func TestHTTPStep_Cancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	req, _ := newTestRequest(ModuleHTTP, map[string]any{"url": server.URL})

	_, err := NewHTTPStep().Execute(ctx, req)
	if !errors.Is(err, ErrStepCancelled) {
		t.Errorf("expected ErrStepCancelled, got %v", err)
	}
}

// Transform Step Tests

func TestTransformStep_Execute(t *testing.T) {
	req, st := newTestRequest(ModuleTransform, map[string]any{
		"mappings": map[string]any{
			"total": "{{ len .Context.items }}",
			"label": "{{ upper .Context.name }}",
			"prev":  "{{ .Steps.fetch.Status }}",
		},
	})
	_ = st.Set("items", []any{"a", "b", "c"})
	_ = st.Set("name", "recipe")

	req.Template = engine.NewTemplateData(nil)
	req.Template.AddStepResult("fetch", nil, "SUCCEEDED")

	resp, err := NewTransformStep().Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if st.Get("total", nil) != int64(3) {
		t.Errorf("expected total 3, got %v (%T)", st.Get("total", nil), st.Get("total", nil))
	}
	if st.Get("label", nil) != "RECIPE" {
		t.Errorf("expected RECIPE, got %v", st.Get("label", nil))
	}
	if st.Get("prev", nil) != "SUCCEEDED" {
		t.Errorf("expected SUCCEEDED, got %v", st.Get("prev", nil))
	}

	result := resp.Result.(map[string]any)
	if len(result) != 3 {
		t.Errorf("expected 3 results, got %d", len(result))
	}
}

func TestTransformStep_Target(t *testing.T) {
	req, st := newTestRequest(ModuleTransform, map[string]any{
		"mappings": map[string]any{"x": `{"a": 1}`},
		"target":   "summary",
	})

	if _, err := NewTransformStep().Execute(context.Background(), req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	summary, ok := st.Get("summary", nil).(map[string]any)
	if !ok {
		t.Fatalf("expected summary map, got %T", st.Get("summary", nil))
	}
	if _, ok := summary["x"].(map[string]any); !ok {
		t.Errorf("expected parsed JSON object, got %T", summary["x"])
	}
	if st.Len() != 1 {
		t.Errorf("only target should be written")
	}
}

func TestTransformStep_EmptyMappings(t *testing.T) {
	req, st := newTestRequest(ModuleTransform, map[string]any{})

	resp, err := NewTransformStep().Execute(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Result != nil {
		t.Error("result should be empty")
	}
	if st.Len() != 0 {
		t.Error("context should stay empty")
	}
}

func TestTransformStep_Cancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, _ := newTestRequest(ModuleTransform, map[string]any{
		"mappings": map[string]any{"x": "1"},
	})

	_, err := NewTransformStep().Execute(ctx, req)
	if !errors.Is(err, ErrStepCancelled) {
		t.Errorf("expected ErrStepCancelled, got %v", err)
	}
}

func TestTransformStep_RawArgs(t *testing.T) {
	var step Step = NewTransformStep()
	raw, ok := step.(RawArgsStep)
	if !ok {
		t.Fatal("transform should implement RawArgsStep")
	}
	if len(raw.RawArgs()) != 1 || raw.RawArgs()[0] != "mappings" {
		t.Errorf("unexpected raw args: %v", raw.RawArgs())
	}
}

func TestDecodeRendered(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"3", int64(3)},
		{" 2.5 ", 2.5},
		{"true", true},
		{`["a"]`, []any{"a"}},
		{`{"k": 1}`, map[string]any{"k": float64(1)}},
		{`"quoted"`, `"quoted"`},
		{"NaN", "NaN"},
		{"{broken", "{broken"},
		{"hello", "hello"},
	}
	for _, tt := range tests {
		if got := decodeRendered(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("decodeRendered(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

// Helper Tests

func TestGetArgHelpers(t *testing.T) {
	args := map[string]any{
		"str":     "hello",
		"int":     42,
		"float":   3.9,
		"numstr":  "17",
		"bool":    true,
		"boolstr": "false",
		"map":     map[string]any{"a": "b", "n": 1},
	}

	if GetArgString(args, "str") != "hello" {
		t.Error("GetArgString failed")
	}
	if GetArgStringDefault(args, "missing", "def") != "def" {
		t.Error("GetArgStringDefault failed")
	}
	if GetArgInt(args, "int") != 42 {
		t.Error("GetArgInt failed for int")
	}
	if GetArgInt(args, "float") != 3 {
		t.Error("GetArgInt failed for float")
	}
	if GetArgInt(args, "numstr") != 17 {
		t.Error("GetArgInt failed for numeric string")
	}
	if !GetArgBool(args, "bool", false) {
		t.Error("GetArgBool failed")
	}
	if GetArgBool(args, "boolstr", true) {
		t.Error("GetArgBool failed for string")
	}
	if GetArgMap(args, "map") == nil {
		t.Error("GetArgMap failed")
	}
	if ms := GetArgMapString(args, "map"); len(ms) != 1 || ms["a"] != "b" {
		t.Errorf("GetArgMapString failed: %v", ms)
	}
}
