package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"scormrelay/internal/types"
)

// SlackConfig wires a SlackClient.
type SlackConfig struct {
	Base     *BaseClient
	APIURL   string
	Token    types.SecretString
	Channel  string
	Username string
}

// SlackClient posts messages through the Slack Web API.
type SlackClient struct {
	base     *BaseClient
	apiURL   string
	token    types.SecretString
	channel  string
	username string
}

func NewSlackClient(cfg SlackConfig) *SlackClient {
	return &SlackClient{
		base:     cfg.Base,
		apiURL:   strings.TrimRight(cfg.APIURL, "/"),
		token:    cfg.Token,
		channel:  cfg.Channel,
		username: cfg.Username,
	}
}

type slackReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// PostMessage calls chat.postMessage. Slack reports most failures with a 200
// and {"ok": false}; those are returned as errors too.
func (c *SlackClient) PostMessage(ctx context.Context, text string) error {
	payload, err := json.Marshal(map[string]string{
		"channel":  c.channel,
		"text":     text,
		"username": c.username,
	})
	if err != nil {
		return fmt.Errorf("encode slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL+"/chat.postMessage", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+c.token.Unmask())

	resp, err := c.base.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp)

	if resp.StatusCode != http.StatusOK {
		return &RejectionError{Status: resp.StatusCode, Detail: readDetail(resp.Body)}
	}

	var reply slackReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("decode slack reply: %w", err)
	}
	if !reply.OK {
		if reply.Error == "" {
			return errors.New("slack: chat.postMessage returned ok=false")
		}
		return fmt.Errorf("slack: chat.postMessage: %s", reply.Error)
	}
	return nil
}
