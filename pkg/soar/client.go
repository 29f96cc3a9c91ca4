// Package soar implements the REST client the Executor role uses to hand
// a playbook off to the external Security Orchestration, Automation and
// Response platform and poll it to completion.
package soar

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	"github.com/codeready-toolchain/deepsoc/pkg/config"
)

// Client talks to one SOAR deployment's activity-execution API.
type Client struct {
	http         *resty.Client
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// NewClient builds a Client from SOAR configuration.
func NewClient(cfg config.SOARConfig) *Client {
	http := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetHeader("Authorization", "Bearer "+cfg.Token).
		SetHeader("Content-Type", "application/json").
		SetTimeout(cfg.Timeout)

	return &Client{
		http:         http,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
	}
}

type executeRequest struct {
	EventID              int            `json:"eventId"`
	ExecutorInstanceID   string         `json:"executorInstanceId"`
	ExecutorInstanceType string         `json:"executorInstanceType"`
	Params               []executeParam `json:"params"`
}

type executeParam struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type executeResponse struct {
	Result string `json:"result"`
}

// ExecutePlaybook starts a playbook run and returns the SOAR activity id
// used to track it. playbookID is the executorInstanceId; the "eventId"
// field is always 0 per the SOAR API's own convention for externally
// triggered activities.
func (c *Client) ExecutePlaybook(ctx context.Context, playbookID string, params map[string]string) (string, error) {
	req := executeRequest{
		EventID:              0,
		ExecutorInstanceID:   playbookID,
		ExecutorInstanceType: "PLAYBOOK",
		Params:               make([]executeParam, 0, len(params)),
	}
	for k, v := range params {
		req.Params = append(req.Params, executeParam{Key: k, Value: v})
	}

	var respBody executeResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&respBody).
		Post("/api/event/execution")
	if err != nil {
		return "", fmt.Errorf("execute playbook request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("execute playbook failed (%d): %s", resp.StatusCode(), resp.String())
	}
	if respBody.Result == "" {
		return "", fmt.Errorf("execute playbook response had no activity id")
	}

	return respBody.Result, nil
}

type activityStatus struct {
	Result struct {
		ExecuteStatus string `json:"executeStatus"`
	} `json:"result"`
}

// ActivityStatus returns the current executeStatus string for an
// activity (e.g. "RUNNING", "SUCCESS", "FAILED").
func (c *Client) ActivityStatus(ctx context.Context, activityID string) (string, error) {
	var body activityStatus
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&body).
		Get("/odp/core/v1/api/activity/" + activityID)
	if err != nil {
		return "", fmt.Errorf("activity status request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("activity status failed (%d): %s", resp.StatusCode(), resp.String())
	}
	return body.Result.ExecuteStatus, nil
}

type activityResult struct {
	Result map[string]any `json:"result"`
}

// ActivityResult fetches the final payload of a completed activity.
func (c *Client) ActivityResult(ctx context.Context, activityID string) (map[string]any, error) {
	var body activityResult
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("activityId", activityID).
		SetResult(&body).
		Get("/odp/core/v1/api/event/activity")
	if err != nil {
		return nil, fmt.Errorf("activity result request failed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("activity result failed (%d): %s", resp.StatusCode(), resp.String())
	}
	return body.Result, nil
}

// ErrActivityTimedOut is returned by WaitForCompletion when the activity
// never reached SUCCESS within the configured poll timeout.
var ErrActivityTimedOut = fmt.Errorf("soar activity did not complete before timeout")

// WaitForCompletion polls ActivityStatus until it reports SUCCESS, then
// returns the activity's result payload. Polling backs off exponentially
// between attempts (capped at pollInterval*8) so a long-running playbook
// doesn't hammer the SOAR API, while still reacting quickly to one that
// finishes fast.
func (c *Client) WaitForCompletion(ctx context.Context, activityID string) (map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.pollInterval
	b.MaxInterval = c.pollInterval * 8
	// The context deadline alone bounds polling, so a still-running
	// activity ends in ctx expiry, which is reported as ErrActivityTimedOut.
	b.MaxElapsedTime = 0

	var result map[string]any
	op := func() error {
		status, err := c.ActivityStatus(ctx, activityID)
		if err != nil {
			return backoff.Permanent(err)
		}

		switch status {
		case "SUCCESS":
			res, err := c.ActivityResult(ctx, activityID)
			if err != nil {
				return backoff.Permanent(err)
			}
			result = res
			return nil
		case "FAILED":
			return backoff.Permanent(fmt.Errorf("soar activity %s failed", activityID))
		default:
			return fmt.Errorf("soar activity %s still %s", activityID, status)
		}
	}

	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if ctx.Err() != nil {
			return nil, ErrActivityTimedOut
		}
		return nil, err
	}

	return result, nil
}
