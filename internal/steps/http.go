package steps

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ModuleHTTP — модуль HTTP запроса к внешнему сервису.
const ModuleHTTP = "http"

const (
	defaultHTTPTimeout = 30 * time.Second
	maxResponseBody    = 10 << 20
)

// HTTPStep выполняет HTTP запрос и возвращает статус, заголовки и тело
// ответа. Тело с Content-Type application/json разбирается в map/slice.
//
// Аргументы:
//
//	method: POST                    // по умолчанию GET
//	url: "{{ .Context.api }}/items"
//	query: {page: 2}
//	headers: {Authorization: "Bearer {{ .Context.token }}"}
//	body: {name: "{{ .Context.name }}"}   // string уходит как есть, остальное как JSON
//	timeout_sec: 10
//	follow_redirects: true
//	validate_ssl: true
//	save_as: response               // дополнительно записать результат в Context
//	fail_on_error: true             // статус >= 400 делает шаг FAILED
//
// Результат: {status_code, headers, body}.
type HTTPStep struct {
	mu      sync.Mutex
	clients map[clientKey]*http.Client
}

// clientKey — настройки, от которых зависит http.Client. Клиенты
// переиспользуются между шагами, чтобы не терять пул соединений.
type clientKey struct {
	timeout         time.Duration
	followRedirects bool
	validateSSL     bool
}

// NewHTTPStep создаёт HTTPStep.
func NewHTTPStep() *HTTPStep {
	return &HTTPStep{clients: make(map[clientKey]*http.Client)}
}

// Module возвращает имя модуля.
func (s *HTTPStep) Module() string { return ModuleHTTP }

// Execute выполняет запрос.
func (s *HTTPStep) Execute(ctx context.Context, req *Request) (*Response, error) {
	call, err := parseHTTPCall(req.Args)
	if err != nil {
		return nil, err
	}

	httpReq, err := call.request(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidArgs, ModuleHTTP, err)
	}

	resp, err := s.client(call.key).Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %v", ErrStepCancelled, ctx.Err())
		}
		return nil, fmt.Errorf("http %s %s: %w", call.method, call.url, err)
	}
	defer resp.Body.Close()

	result, err := readHTTPResult(resp)
	if err != nil {
		return nil, err
	}

	req.Log().Debug("http step done",
		"method", call.method,
		"url", call.url,
		"status", resp.StatusCode,
	)

	if call.saveAs != "" {
		if err := req.State.Set(call.saveAs, result); err != nil {
			return nil, err
		}
	}

	if call.failOnError && resp.StatusCode >= http.StatusBadRequest {
		body, _ := json.Marshal(result["body"])
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(body),
		}
	}
	return NewResponse(result), nil
}

func (s *HTTPStep) client(key clientKey) *http.Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.clients[key]; ok {
		return c
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !key.validateSSL {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // явно запрошено в рецепте
	}
	c := &http.Client{Timeout: key.timeout, Transport: transport}
	if !key.followRedirects {
		c.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}
	s.clients[key] = c
	return c
}

// httpCall — разобранные аргументы шага.
type httpCall struct {
	method      string
	url         string
	query       map[string]string
	headers     map[string]string
	body        any
	saveAs      string
	failOnError bool
	key         clientKey
}

func parseHTTPCall(args map[string]any) (*httpCall, error) {
	call := &httpCall{
		method:      strings.ToUpper(GetArgStringDefault(args, "method", http.MethodGet)),
		url:         GetArgString(args, "url"),
		query:       GetArgMapString(args, "query"),
		headers:     GetArgMapString(args, "headers"),
		body:        args["body"],
		saveAs:      GetArgString(args, "save_as"),
		failOnError: GetArgBool(args, "fail_on_error", true),
		key: clientKey{
			timeout:         defaultHTTPTimeout,
			followRedirects: GetArgBool(args, "follow_redirects", true),
			validateSSL:     GetArgBool(args, "validate_ssl", true),
		},
	}
	if call.url == "" {
		return nil, fmt.Errorf("%w: %s: url is required", ErrInvalidArgs, ModuleHTTP)
	}
	if sec := GetArgInt(args, "timeout_sec"); sec > 0 {
		call.key.timeout = time.Duration(sec) * time.Second
	}
	return call, nil
}

func (c *httpCall) request(ctx context.Context) (*http.Request, error) {
	target, err := url.Parse(c.url)
	if err != nil {
		return nil, err
	}
	if len(c.query) > 0 {
		q := target.Query()
		for k, v := range c.query {
			q.Set(k, v)
		}
		target.RawQuery = q.Encode()
	}

	var body io.Reader
	jsonBody := false
	switch v := c.body.(type) {
	case nil:
	case string:
		body = strings.NewReader(v)
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(data)
		jsonBody = true
	}

	req, err := http.NewRequestWithContext(ctx, c.method, target.String(), body)
	if err != nil {
		return nil, err
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		if jsonBody {
			req.Header.Set("Content-Type", "application/json")
		} else {
			req.Header.Set("Content-Type", "text/plain; charset=utf-8")
		}
	}
	return req, nil
}

func readHTTPResult(resp *http.Response) (map[string]any, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	var body any = string(raw)
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var parsed any
		if json.Unmarshal(raw, &parsed) == nil {
			body = parsed
		}
	}

	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        body,
	}, nil
}

// HTTPError — ответ со статусом >= 400 при fail_on_error.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Status)
}

// IsHTTPError сообщает, вызвана ли ошибка статусом ответа.
func IsHTTPError(err error) bool {
	var he *HTTPError
	return errors.As(err, &he)
}
