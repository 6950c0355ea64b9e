package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"scormrelay/internal/types"
)

// ScormSetting is one entry of a SCORM Cloud configuration update.
type ScormSetting struct {
	SettingID string `json:"settingId"`
	Value     string `json:"value"`
}

// ScormResponse is a successful SCORM Cloud reply. Detail is the decoded
// JSON body, or "No content" when the body is empty.
type ScormResponse struct {
	Status int
	Detail any
}

// ScormCloudClient calls the SCORM Cloud REST API v2 with app credentials.
type ScormCloudClient struct {
	base      *BaseClient
	baseURL   string
	appID     string
	appSecret types.SecretString
}

func NewScormCloudClient(base *BaseClient, baseURL, appID string, appSecret types.SecretString) *ScormCloudClient {
	return &ScormCloudClient{
		base:      base,
		baseURL:   strings.TrimRight(baseURL, "/"),
		appID:     appID,
		appSecret: appSecret,
	}
}

// UpdateCourseConfiguration posts settings to /courses/{courseID}/configuration.
// A non-2xx reply returns *RejectionError and a transport failure
// *NetworkError. A 2xx body that is not JSON is an ordinary error.
func (c *ScormCloudClient) UpdateCourseConfiguration(ctx context.Context, courseID string, settings []ScormSetting) (ScormResponse, error) {
	payload, err := json.Marshal(map[string]any{"settings": settings})
	if err != nil {
		return ScormResponse{}, fmt.Errorf("encode scorm settings: %w", err)
	}

	endpoint := c.CourseConfigurationURL(courseID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return ScormResponse{}, fmt.Errorf("build scorm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.SetBasicAuth(c.appID, c.appSecret.Unmask())

	resp, err := c.base.Do(req)
	if err != nil {
		return ScormResponse{}, err
	}
	defer drain(resp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ScormResponse{}, &RejectionError{Status: resp.StatusCode, Detail: readDetail(resp.Body)}
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return ScormResponse{}, &NetworkError{URL: endpoint, Err: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return ScormResponse{Status: resp.StatusCode, Detail: "No content"}, nil
	}
	var detail any
	if err := json.Unmarshal(raw, &detail); err != nil {
		return ScormResponse{}, fmt.Errorf("decode scorm response (status %d): %w", resp.StatusCode, err)
	}
	return ScormResponse{Status: resp.StatusCode, Detail: detail}, nil
}

// CourseConfigurationURL returns the configuration endpoint for courseID.
func (c *ScormCloudClient) CourseConfigurationURL(courseID string) string {
	return c.baseURL + "/courses/" + url.PathEscape(courseID) + "/configuration"
}
