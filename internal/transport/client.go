package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/assaf/reliable-msg/internal/errs"
	"github.com/assaf/reliable-msg/internal/message"
)

// Client is the transport-level RPC client: an HTTP connection to a
// remote manager, retrying connection errors up to ConnectCount
// times. It has no knowledge of transactions-as-a-block or body
// marshalling; that belongs to the client façade (package client)
// layered on top.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	connectCount int
}

// DefaultConnectCount is the default number of connection attempts
// before RemoteUnavailable surfaces to the caller.
const DefaultConnectCount = 5

// NewClient builds a Client against baseURL (e.g.
// "http://127.0.0.1:6438"). connectCount <= 0 uses the default.
func NewClient(baseURL string, connectCount int, httpClient *http.Client) *Client {
	if connectCount <= 0 {
		connectCount = DefaultConnectCount
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: baseURL, httpClient: httpClient, connectCount: connectCount}
}

func (c *Client) call(path string, req, resp any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return errs.Wrap(errs.KindInvalidArgument, err, "encode request")
	}

	var lastErr error
	for attempt := 1; attempt <= c.connectCount; attempt++ {
		httpResp, err := c.httpClient.Post(c.baseURL+path, "application/json", bytes.NewReader(body))
		if err != nil {
			lastErr = err
			continue
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(httpResp.Body)
		if err != nil {
			lastErr = err
			continue
		}

		if httpResp.StatusCode >= 400 {
			var ew errorWire
			if jerr := json.Unmarshal(data, &ew); jerr == nil && ew.Kind != "" {
				return ew.asError()
			}
			return fmt.Errorf("transport: %s: status %d", path, httpResp.StatusCode)
		}

		if resp != nil {
			if err := json.Unmarshal(data, resp); err != nil {
				return errs.Wrap(errs.KindStoreCorrupt, err, "decode response")
			}
		}
		return nil
	}
	return errs.Wrap(errs.KindRemoteUnavailable, lastErr, "%s: exhausted %d connection attempts", path, c.connectCount)
}

func (c *Client) Put(queue string, body []byte, headers message.Headers, tid string) (string, error) {
	var resp putResponse
	err := c.call("/put", putRequest{Queue: queue, Body: body, Headers: headers, Tid: tid}, &resp)
	return resp.ID, err
}

func (c *Client) Publish(topic string, body []byte, headers message.Headers, tid string) (string, error) {
	var resp publishResponse
	err := c.call("/publish", publishRequest{Topic: topic, Body: body, Headers: headers, Tid: tid}, &resp)
	return resp.ID, err
}

func (c *Client) List(queue string) ([]message.Headers, error) {
	var resp listResponse
	err := c.call("/list", listRequest{Queue: queue}, &resp)
	return resp.Headers, err
}

func (c *Client) Dequeue(queue string, sel message.Selector, tid string) (*message.Message, error) {
	var resp dequeueResponse
	err := c.call("/dequeue", dequeueRequest{Queue: queue, Selector: encodeSelector(sel), Tid: tid}, &resp)
	if err != nil {
		return nil, err
	}
	return decodeMessage(resp.Message), nil
}

func (c *Client) Retrieve(topic, seenID string, sel message.Selector, tid string) (*message.Message, error) {
	var resp retrieveResponse
	err := c.call("/retrieve", retrieveRequest{Topic: topic, SeenID: seenID, Selector: encodeSelector(sel), Tid: tid}, &resp)
	if err != nil {
		return nil, err
	}
	return decodeMessage(resp.Message), nil
}

func (c *Client) Begin(timeout time.Duration) (string, error) {
	var resp beginResponse
	err := c.call("/begin", beginRequest{TimeoutSec: timeout.Seconds()}, &resp)
	return resp.Tid, err
}

func (c *Client) Commit(tid string) error {
	return c.call("/commit", tidRequest{Tid: tid}, &emptyResponse{})
}

func (c *Client) Abort(tid string) error {
	return c.call("/abort", tidRequest{Tid: tid}, &emptyResponse{})
}
