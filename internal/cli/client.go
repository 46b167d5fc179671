package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shaiso/Recipes/internal/domain"
	"github.com/shaiso/Recipes/internal/state"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// RunResponse — run из API.
type RunResponse struct {
	ID          string                  `json:"id"`
	Recipe      string                  `json:"recipe"`
	Status      string                  `json:"status"`
	ContextName string                  `json:"context_name,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Report      *domain.ExecutionReport `json:"report,omitempty"`
	StartedAt   string                  `json:"started_at,omitempty"`
	FinishedAt  string                  `json:"finished_at,omitempty"`
	DurationMs  int64                   `json:"duration_ms"`
	CreatedAt   string                  `json:"created_at"`
}

// CreateRunResponse — результат синхронного run.
type CreateRunResponse struct {
	RunID   string                  `json:"run_id"`
	Report  *domain.ExecutionReport `json:"report"`
	Context map[string]any          `json:"context"`
}

// ContextResponse — снимок общего контекста.
type ContextResponse struct {
	Name    string         `json:"name"`
	Values  map[string]any `json:"values"`
	History []state.Change `json:"history"`
}

// --- Request types ---

// CreateRunRequest — запуск рецепта через API.
type CreateRunRequest struct {
	Recipe      string         `json:"recipe"`
	Context     map[string]any `json:"context,omitempty"`
	ContextName string         `json:"context_name,omitempty"`
	Async       bool           `json:"async,omitempty"`
}

// ListRunsOpts — параметры фильтрации runs.
type ListRunsOpts struct {
	Recipe string
	Status string
	Limit  int
}

// --- API response wrappers ---

type dataResponse struct {
	Data json.RawMessage `json:"data"`
}

type listResponse struct {
	Data  json.RawMessage `json:"data"`
	Total int             `json:"total"`
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// --- Client ---

// Client — HTTP-клиент для Recipes API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute, // синхронный run держит запрос до конца выполнения
		},
	}
}

// --- Recipes ---

// ValidateRecipe проверяет рецепт на сервере.
func (c *Client) ValidateRecipe(raw []byte) (*domain.Recipe, error) {
	resp, err := c.doRaw(http.MethodPost, "/api/v1/recipes/validate", "application/yaml", bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return nil, err
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	var recipe domain.Recipe
	if err := json.Unmarshal(dr.Data, &recipe); err != nil {
		return nil, err
	}
	return &recipe, nil
}

// ListModules возвращает модули, зарегистрированные на сервере.
func (c *Client) ListModules() ([]string, error) {
	var modules []string
	err := c.list("/api/v1/modules", nil, &modules)
	return modules, err
}

// --- Runs ---

// ListRuns возвращает список runs с фильтрацией.
func (c *Client) ListRuns(opts ListRunsOpts) ([]RunResponse, error) {
	params := url.Values{}
	if opts.Recipe != "" {
		params.Set("recipe", opts.Recipe)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	if opts.Limit > 0 {
		params.Set("limit", fmt.Sprintf("%d", opts.Limit))
	}

	var runs []RunResponse
	err := c.list("/api/v1/runs", params, &runs)
	return runs, err
}

// CreateRun выполняет рецепт на сервере синхронно.
func (c *Client) CreateRun(req CreateRunRequest) (*CreateRunResponse, error) {
	req.Async = false
	var run CreateRunResponse
	err := c.post("/api/v1/runs", req, &run)
	return &run, err
}

// SubmitRun отправляет рецепт в очередь. Возвращает ID будущего run.
func (c *Client) SubmitRun(req CreateRunRequest) (string, error) {
	req.Async = true
	var accepted struct {
		RunID string `json:"run_id"`
	}
	err := c.post("/api/v1/runs", req, &accepted)
	return accepted.RunID, err
}

// GetRun возвращает run по ID.
func (c *Client) GetRun(id string) (*RunResponse, error) {
	var run RunResponse
	err := c.get("/api/v1/runs/"+id, &run)
	return &run, err
}

// CancelRun отменяет активный run.
func (c *Client) CancelRun(id string) error {
	return c.post("/api/v1/runs/"+id+"/cancel", nil, nil)
}

// --- Contexts ---

// GetContext возвращает общий контекст. history <= 0 — весь журнал.
func (c *Client) GetContext(name string, history int) (*ContextResponse, error) {
	path := "/api/v1/contexts/" + url.PathEscape(name)
	if history > 0 {
		path += fmt.Sprintf("?history=%d", history)
	}
	var resp ContextResponse
	err := c.get(path, &resp)
	return &resp, err
}

// --- HTTP helpers ---

func (c *Client) get(path string, result any) error {
	return c.doData(http.MethodGet, path, nil, result)
}

func (c *Client) post(path string, body any, result any) error {
	return c.doData(http.MethodPost, path, body, result)
}

func (c *Client) list(path string, params url.Values, result any) error {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(method, path string, body any, result any) error {
	resp, err := c.do(method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := c.checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	if body == nil {
		return c.doRaw(method, path, "", nil)
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.doRaw(method, path, "application/json", bytes.NewReader(data))
}

func (c *Client) doRaw(method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	return c.httpClient.Do(req)
}

func (c *Client) checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return fmt.Errorf("API error: HTTP %d", resp.StatusCode)
	}

	return fmt.Errorf("%s: %s", er.Error.Code, er.Error.Message)
}
