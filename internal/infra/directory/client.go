package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/Alfahan/sso-sub000/internal/core/port"
	"github.com/Alfahan/sso-sub000/internal/infra/config"
)

// HTTPClient resolves enterprise NIK identifiers against the employee
// directory service.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// NewHTTPClient constructs a directory client from settings.
func NewHTTPClient(cfg config.DirectorySettings, log *zap.Logger) *HTTPClient {
	if log == nil {
		log = zap.NewNop()
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		logger:  log,
	}
}

type employeeResponse struct {
	NIK      string `json:"nik"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Username string `json:"username"`
}

// FindByNIK looks up an employee record. A 404 from the directory returns
// (nil, nil) so callers can distinguish unknown NIKs from transport failures.
func (c *HTTPClient) FindByNIK(ctx context.Context, nik string) (*port.EmployeeRecord, error) {
	endpoint := fmt.Sprintf("%s/v1/employees/%s", c.baseURL, url.PathEscape(nik))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call directory: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	var payload employeeResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode directory response: %w", err)
	}

	return &port.EmployeeRecord{
		NIK:      payload.NIK,
		Name:     payload.Name,
		Email:    payload.Email,
		Phone:    payload.Phone,
		Username: payload.Username,
	}, nil
}

var _ port.DirectoryClient = (*HTTPClient)(nil)
