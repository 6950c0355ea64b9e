package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"scormrelay/internal/types"
)

// Acknowledgement is the parsed reply of a Comunitive webhook.
type Acknowledgement struct {
	Status int
	ID     string
	Body   map[string]any
}

// CourseNotification is the payload of the direct course notification
// endpoint.
type CourseNotification struct {
	UserEmail  string
	CourseCode string
	Points     int
}

// ComunitiveConfig wires a ComunitiveClient.
type ComunitiveConfig struct {
	// Webhook delivers to mapping-supplied URIs. It should be the
	// SSRF-guarded client.
	Webhook *BaseClient
	// API calls the fixed Comunitive API URL.
	API    *BaseClient
	APIURL string
	APIKey types.SecretString
	Logger *slog.Logger
}

// ComunitiveClient notifies Comunitive about completed courses.
type ComunitiveClient struct {
	webhook *BaseClient
	api     *BaseClient
	apiURL  string
	apiKey  types.SecretString
	logger  *slog.Logger
}

func NewComunitiveClient(cfg ComunitiveConfig) *ComunitiveClient {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &ComunitiveClient{
		webhook: cfg.Webhook,
		api:     cfg.API,
		apiURL:  cfg.APIURL,
		apiKey:  cfg.APIKey,
		logger:  cfg.Logger,
	}
}

// Notify posts {"user": recipient} to the webhook uri.
//
// A non-2xx reply, or a 2xx reply without an "id" field, returns
// *RejectionError. Transport failures return *NetworkError.
func (c *ComunitiveClient) Notify(ctx context.Context, recipient, uri string) (Acknowledgement, error) {
	payload, err := json.Marshal(map[string]string{"user": recipient})
	if err != nil {
		return Acknowledgement{}, fmt.Errorf("encode webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uri, bytes.NewReader(payload))
	if err != nil {
		return Acknowledgement{}, &RejectionError{Status: http.StatusBadRequest, Detail: "invalid webhook uri: " + err.Error()}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.webhook.Do(req)
	if err != nil {
		return Acknowledgement{}, err
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Acknowledgement{}, &RejectionError{Status: resp.StatusCode, Detail: readDetail(resp.Body)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Acknowledgement{}, &NetworkError{URL: req.URL.Redacted(), Err: err}
	}

	var body map[string]any
	if err := json.Unmarshal(raw, &body); err != nil {
		return Acknowledgement{}, &RejectionError{
			Status: resp.StatusCode,
			Detail: "missing acknowledgement: response is not a JSON object: " + truncate(string(raw)),
		}
	}
	// Only the key is required; a null id still acknowledges.
	id, ok := body["id"]
	if !ok {
		return Acknowledgement{}, &RejectionError{
			Status: resp.StatusCode,
			Detail: "missing acknowledgement: response has no id: " + truncate(string(raw)),
		}
	}

	c.logger.InfoContext(ctx, "comunitive webhook acknowledged", "status", resp.StatusCode, "ack_id", id)
	return Acknowledgement{Status: resp.StatusCode, ID: stringifyID(id), Body: body}, nil
}

// NotifyCourse calls the Comunitive API directly with the learner, points,
// and course code. 200, 201, and 204 are success.
func (c *ComunitiveClient) NotifyCourse(ctx context.Context, n CourseNotification) error {
	payload, err := json.Marshal(map[string]any{
		"user":   n.UserEmail,
		"points": n.Points,
		"data":   map[string]string{"codigo_curso": n.CourseCode},
	})
	if err != nil {
		return fmt.Errorf("encode course notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build comunitive request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey.IsSet() {
		req.Header.Set("Authorization", "Bearer "+c.apiKey.Unmask())
	}

	resp, err := c.api.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp)

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	default:
		return &RejectionError{Status: resp.StatusCode, Detail: readDetail(resp.Body)}
	}
}

func stringifyID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		if id == float64(int64(id)) {
			return fmt.Sprintf("%d", int64(id))
		}
		return fmt.Sprintf("%g", id)
	default:
		return fmt.Sprint(id)
	}
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= maxDetailBytes {
		return s
	}
	return readDetail(strings.NewReader(s))
}
