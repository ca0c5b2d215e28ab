// Package deployment lists, reads, and advances deployment-workflow
// instances against the platform's single resource collection.
package deployment

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"

	"github.com/mindconnect/mcl-go/core"
	"github.com/mindconnect/mcl-go/httpengine"
	"github.com/mindconnect/mcl-go/mclerr"
	"github.com/mindconnect/mcl-go/mclmetrics"
	"github.com/mindconnect/mcl-go/request"
)

const instancesPath = "/api/deploymentworkflow/v3/instances"

// Client lists/gets/patches deployment workflows over the identity
// context's shared HTTP engine, the original's mcl_deployment_* surface.
type Client struct {
	core *core.Core
	log  *slog.Logger
}

// New builds a deployment Client bound to an onboarded identity context.
// identity.GetHTTPClient() is reused so TLS/proxy configuration is shared
// across uploads and deployment calls (§2's control flow), and its logger
// is reused the same way.
func New(identity *core.Core) *Client {
	return &Client{core: identity, log: identity.GetLogger()}
}

func (c *Client) composer() request.Composer {
	token, _ := c.core.GetLastAccessToken()
	return request.Composer{Engine: c.core.GetHTTPClient(), UserAgent: "mcl-go"}.WithBearer(token)
}

// ListFilter composes the query string for List: model/history are
// booleans emitted as key=true when set; the rest are non-empty strings
// emitted as key=value.
type ListFilter struct {
	Model        bool
	History      bool
	CurrentState string
	Group        string
	DeviceID     string
	ModelKey     string
}

func (f ListFilter) queryString() string {
	values := url.Values{}
	if f.Model {
		values.Set("model", "true")
	}
	if f.History {
		values.Set("history", "true")
	}
	if f.CurrentState != "" {
		values.Set("current_state", f.CurrentState)
	}
	if f.Group != "" {
		values.Set("group", f.Group)
	}
	if f.DeviceID != "" {
		values.Set("device_id", f.DeviceID)
	}
	if f.ModelKey != "" {
		values.Set("model_key", f.ModelKey)
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

// GetFilter is the two-boolean-field filter Get accepts.
type GetFilter struct {
	Model   bool
	History bool
}

func (f GetFilter) queryString() string {
	values := url.Values{}
	if f.Model {
		values.Set("model", "true")
	}
	if f.History {
		values.Set("history", "true")
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

// List returns every workflow matching filter (nil means unfiltered).
func (c *Client) List(ctx context.Context, filter *ListFilter) ([]Workflow, error) {
	c.log.Debug("deployment list entry")
	query := ""
	if filter != nil {
		query = filter.queryString()
	}
	resp, err := c.composer().Send(ctx, &httpengine.Request{
		Method:    httpengine.MethodGet,
		URL:       c.core.GetHostName() + instancesPath + query,
		Operation: "deployment_list",
	}, true)
	if err != nil {
		c.log.Debug("deployment list leave", "error", err)
		return nil, err
	}
	var workflows []Workflow
	if err := json.Unmarshal(resp.Body, &workflows); err != nil {
		return nil, mclerr.Wrap(mclerr.Fail, "parse workflow list response", err)
	}
	c.log.Debug("deployment list leave", "count", len(workflows))
	return workflows, nil
}

// Get fetches a single workflow by id.
func (c *Client) Get(ctx context.Context, id string, filter *GetFilter) (*Workflow, error) {
	c.log.Debug("deployment get entry", "id", id)
	query := ""
	if filter != nil {
		query = filter.queryString()
	}
	resp, err := c.composer().Send(ctx, &httpengine.Request{
		Method:    httpengine.MethodGet,
		URL:       c.core.GetHostName() + instancesPath + "/" + id + query,
		Operation: "deployment_get",
	}, true)
	if err != nil {
		c.log.Debug("deployment get leave", "id", id, "error", err)
		return nil, err
	}
	var workflow Workflow
	if err := json.Unmarshal(resp.Body, &workflow); err != nil {
		return nil, mclerr.Wrap(mclerr.Fail, "parse workflow response", err)
	}
	c.log.Debug("deployment get leave", "id", id)
	return &workflow, nil
}

// updateBody is the PATCH body §4.H describes: state and message
// mandatory, progress defaults to 0.0, details defaults to {}.
type updateBody struct {
	State    string                 `json:"state"`
	Progress float64                `json:"progress"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details"`
}

// Update advances id's workflow state and returns the server's echoed
// entity.
func (c *Client) Update(ctx context.Context, id, state string, progress float64, message string, details map[string]interface{}) (*Workflow, error) {
	c.log.Debug("deployment update entry", "id", id, "state", state)
	if state == "" || message == "" {
		return nil, mclerr.New(mclerr.InvalidParameter, "deployment: state and message are mandatory")
	}
	if details == nil {
		details = map[string]interface{}{}
	}
	body, err := json.Marshal(updateBody{State: state, Progress: progress, Message: message, Details: details})
	if err != nil {
		return nil, mclerr.Wrap(mclerr.Fail, "marshal workflow update", err)
	}

	resp, err := c.composer().Send(ctx, &httpengine.Request{
		Method:    httpengine.MethodPatch,
		URL:       c.core.GetHostName() + instancesPath + "/" + id,
		Operation: "deployment_update",
		BodyKind:  httpengine.BodyInMemory,
		InMemory:  body,
		Headers:   []httpengine.Header{{Name: "Content-Type", Value: "application/json"}},
	}, true)
	if err != nil {
		mclmetrics.UploadsTotal.WithLabelValues("deployment_update", mclerr.Of(err).String()).Inc()
		c.log.Debug("deployment update leave", "id", id, "error", err)
		return nil, err
	}
	var workflow Workflow
	if err := json.Unmarshal(resp.Body, &workflow); err != nil {
		return nil, mclerr.Wrap(mclerr.Fail, "parse workflow update response", err)
	}
	mclmetrics.UploadsTotal.WithLabelValues("deployment_update", "ok").Inc()
	c.log.Debug("deployment update leave", "id", id, "result", "ok")
	return &workflow, nil
}
