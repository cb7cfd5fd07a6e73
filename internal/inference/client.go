// Package inference is an HTTP client for the model server that picks
// actions for AI-controlled entities.
package inference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"arena-server/internal/game"
	"arena-server/internal/telemetry"
)

// ContentType is the media type of request and response bodies.
const ContentType = "application/msgpack"

// Request is the body posted to the model server.
type Request struct {
	SessionID   string           `msgpack:"session"`
	EntityID    string           `msgpack:"entity"`
	Observation game.Observation `msgpack:"obs"`
}

// Response carries the chosen action by name.
type Response struct {
	Action string `msgpack:"action"`
	Error  string `msgpack:"error,omitempty"`
}

// Client calls the model server. It implements game.Inferencer.
type Client struct {
	url    string
	http   *http.Client
	tracer trace.Tracer
}

var _ game.Inferencer = (*Client)(nil)

// New returns a client posting to url. timeout bounds each HTTP round trip
// on top of the caller's context.
func New(url string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = time.Second
	}
	return &Client{
		url:    url,
		http:   &http.Client{Timeout: timeout},
		tracer: telemetry.Tracer("arena-server/inference"),
	}
}

// InferAction asks the model for the next action of entityID.
func (c *Client) InferAction(ctx context.Context, sessionID, entityID string, obs game.Observation) (_ game.Action, err error) {
	ctx, span := c.tracer.Start(ctx, "inference.InferAction", trace.WithAttributes(
		attribute.String("session.id", sessionID),
		attribute.String("entity.id", entityID),
		attribute.String("entity.kind", obs.Kind),
	))
	defer func() { telemetry.End(span, err) }()

	body, err := msgpack.Marshal(Request{SessionID: sessionID, EntityID: entityID, Observation: obs})
	if err != nil {
		return game.ActionIdle, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return game.ActionIdle, err
	}
	req.Header.Set("Content-Type", ContentType)
	req.Header.Set("Accept", ContentType)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.http.Do(req)
	if err != nil {
		return game.ActionIdle, fmt.Errorf("inference request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return game.ActionIdle, fmt.Errorf("read response: %w", err)
	}
	var out Response
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return game.ActionIdle, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return game.ActionIdle, fmt.Errorf("inference status %d: %s", resp.StatusCode, out.Error)
	}
	a, ok := game.ParseAction(out.Action)
	if !ok {
		return game.ActionIdle, fmt.Errorf("unknown action %q", out.Action)
	}
	span.SetAttributes(attribute.String("action", a.String()))
	return a, nil
}
