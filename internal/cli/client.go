package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// --- Response types (дублируются из api/dto.go, CLI не импортирует internal/api) ---

// ReportResponse — отчёт по атрибутам задачи.
type ReportResponse struct {
	Applied  []string `json:"applied"`
	Ignored  []string `json:"ignored"`
	Rejected []struct {
		Name   string `json:"name"`
		Reason string `json:"reason"`
	} `json:"rejected"`
}

// JobResponse — задача из API.
type JobResponse struct {
	ID             string         `json:"id"`
	Type           string         `json:"type"`
	Data           map[string]any `json:"data"`
	Priority       int            `json:"priority"`
	MaxAttempts    int            `json:"max_attempts"`
	DelayMs        int64          `json:"delay_ms,omitempty"`
	TTLMs          int64          `json:"ttl_ms,omitempty"`
	State          string         `json:"state"`
	ScheduleID     string         `json:"schedule_id,omitempty"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
	PromoteAt      string         `json:"promote_at,omitempty"`
	CreatedAt      string         `json:"created_at"`
}

// Tag возвращает метку расписания задачи.
func (j JobResponse) Tag() string {
	s, _ := j.Data["schedule"].(string)
	return s
}

// AckResponse — подтверждение регистрации расписания.
type AckResponse struct {
	ScheduleID string         `json:"schedule_id"`
	Kind       string         `json:"kind"`
	Expr       string         `json:"expr"`
	Tag        string         `json:"tag"`
	FireAt     string         `json:"fire_at"`
	TTLMs      int64          `json:"ttl_ms"`
	Report     ReportResponse `json:"report"`
}

// NowResponse — результат немедленной постановки.
type NowResponse struct {
	Job    JobResponse    `json:"job"`
	Report ReportResponse `json:"report"`
}

// ScheduleResultResponse — результат общей регистрации.
type ScheduleResultResponse struct {
	Job    *JobResponse   `json:"job,omitempty"`
	Ack    *AckResponse   `json:"ack,omitempty"`
	Report ReportResponse `json:"report"`
}

// PendingResponse — взведённое расписание.
type PendingResponse struct {
	ScheduleID string         `json:"schedule_id"`
	Kind       string         `json:"kind"`
	Expr       string         `json:"expr"`
	Tag        string         `json:"tag"`
	Definition map[string]any `json:"definition"`
	FireAt     string         `json:"fire_at"`
	Occurrence int64          `json:"occurrence"`
	CreatedAt  string         `json:"created_at"`
	TTLMs      int64          `json:"ttl_ms"`
}

// --- Request types ---

// ScheduleRequest — регистрация расписания.
type ScheduleRequest struct {
	When       string          `json:"when,omitempty"`
	Interval   string          `json:"interval,omitempty"`
	Definition json.RawMessage `json:"definition"`
}

// ListJobsOpts — параметры фильтрации задач.
type ListJobsOpts struct {
	Type       string
	State      string
	ScheduleID string
	Limit      int
	Offset     int
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
		Field   string `json:"field"`
		Token   string `json:"token"`
	} `json:"error"`
}

// APIError — ошибка, которую вернул API.
type APIError struct {
	Status  int
	Code    string
	Message string
	Token   string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("API error: HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// --- Client ---

// Client — HTTP-клиент для Kronos API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient создаёт клиент для API.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// --- Schedules ---

// ScheduleNow сразу ставит задачу в очередь.
func (c *Client) ScheduleNow(ctx context.Context, def json.RawMessage) (*NowResponse, error) {
	var res NowResponse
	err := c.post(ctx, "/api/v1/schedules/now", ScheduleRequest{Definition: def}, &res)
	return &res, err
}

// ScheduleAt регистрирует однократный запуск.
func (c *Client) ScheduleAt(ctx context.Context, when string, def json.RawMessage) (*AckResponse, error) {
	var ack AckResponse
	err := c.post(ctx, "/api/v1/schedules/at", ScheduleRequest{When: when, Definition: def}, &ack)
	return &ack, err
}

// ScheduleEvery регистрирует повторяющееся расписание.
func (c *Client) ScheduleEvery(ctx context.Context, interval string, def json.RawMessage) (*AckResponse, error) {
	var ack AckResponse
	err := c.post(ctx, "/api/v1/schedules/every", ScheduleRequest{Interval: interval, Definition: def}, &ack)
	return &ack, err
}

// Schedule регистрирует расписание по выражению (now, повторяющееся, однократное).
func (c *Client) Schedule(ctx context.Context, when string, def json.RawMessage) (*ScheduleResultResponse, error) {
	var res ScheduleResultResponse
	err := c.post(ctx, "/api/v1/schedules", ScheduleRequest{When: when, Definition: def}, &res)
	return &res, err
}

// ListSchedules возвращает взведённые расписания.
func (c *Client) ListSchedules(ctx context.Context, limit int) ([]PendingResponse, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}

	var pending []PendingResponse
	_, err := c.list(ctx, "/api/v1/schedules", params, &pending)
	return pending, err
}

// GetSchedule возвращает взведённое расписание.
func (c *Client) GetSchedule(ctx context.Context, id string) (*PendingResponse, error) {
	var p PendingResponse
	err := c.get(ctx, "/api/v1/schedules/"+url.PathEscape(id), &p)
	return &p, err
}

// CancelSchedule снимает расписание.
func (c *Client) CancelSchedule(ctx context.Context, id string) error {
	return c.delete(ctx, "/api/v1/schedules/"+url.PathEscape(id))
}

// --- Jobs ---

// ListJobs возвращает задачи и их общее число по фильтру.
func (c *Client) ListJobs(ctx context.Context, opts ListJobsOpts) ([]JobResponse, int, error) {
	params := url.Values{}
	if opts.Type != "" {
		params.Set("type", opts.Type)
	}
	if opts.State != "" {
		params.Set("state", opts.State)
	}
	if opts.ScheduleID != "" {
		params.Set("schedule_id", opts.ScheduleID)
	}
	if opts.Limit > 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		params.Set("offset", strconv.Itoa(opts.Offset))
	}

	var jobs []JobResponse
	total, err := c.list(ctx, "/api/v1/jobs", params, &jobs)
	return jobs, total, err
}

// GetJob возвращает задачу по ID.
func (c *Client) GetJob(ctx context.Context, id string) (*JobResponse, error) {
	var job JobResponse
	err := c.get(ctx, "/api/v1/jobs/"+url.PathEscape(id), &job)
	return &job, err
}

// --- HTTP helpers ---

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.doData(ctx, http.MethodGet, path, nil, result)
}

func (c *Client) post(ctx context.Context, path string, body any, result any) error {
	return c.doData(ctx, http.MethodPost, path, body, result)
}

func (c *Client) delete(ctx context.Context, path string) error {
	resp, err := c.do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return checkError(resp)
}

func (c *Client) list(ctx context.Context, path string, params url.Values, result any) (int, error) {
	if len(params) > 0 {
		path = path + "?" + params.Encode()
	}

	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return 0, err
	}

	var lr listResponse
	if err := json.NewDecoder(resp.Body).Decode(&lr); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return lr.Total, json.Unmarshal(lr.Data, result)
}

func (c *Client) doData(ctx context.Context, method, path string, body any, result any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkError(resp); err != nil {
		return err
	}

	// 204 No Content
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	var dr dataResponse
	if err := json.NewDecoder(resp.Body).Decode(&dr); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if result != nil {
		return json.Unmarshal(dr.Data, result)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

func checkError(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}

	var er errorResponse
	if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
		return &APIError{Status: resp.StatusCode}
	}
	return &APIError{
		Status:  resp.StatusCode,
		Code:    er.Error.Code,
		Message: er.Error.Message,
		Token:   er.Error.Token,
	}
}
