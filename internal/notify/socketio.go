package notify

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/vk/dsipipe/internal/ctxlog"
	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"
)

// EventName is the socket.io event carrying pipeline events.
const EventName = "pipeline_event"

// SocketIO emits every event to a socket.io server.
type SocketIO struct {
	client *socket.Socket
}

// DialSocketIO connects to the socket.io server at rawURL. The namespace
// is taken from the URL fragment, e.g. http://host:3000/socket.io/#/pipelines.
func DialSocketIO(ctx context.Context, rawURL string, timeout time.Duration) (*SocketIO, error) {
	logger := ctxlog.FromContext(ctx).With("notifier", "socketio", "url", rawURL)

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	namespace := parsedURL.Fragment
	if namespace == "" {
		namespace = "/"
	}

	opts := socket.DefaultOptions()
	if parsedURL.Path != "" {
		opts.SetPath(parsedURL.Path)
	}
	opts.SetTransports(types.NewSet(transports.WebSocket))

	connectChan := make(chan error, 1)
	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, opts)
	io := manager.Socket(namespace, opts)

	io.Once(types.EventName("connect"), func(...any) {
		logger.Info("Connected to status server.", "sid", io.Id())
		connectChan <- nil
	})
	io.Once(types.EventName("connect_error"), func(errs ...any) {
		var err error = fmt.Errorf("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		connectChan <- err
	})

	logger.Debug("Initiating connection...")
	io.Connect()

	select {
	case err := <-connectChan:
		if err != nil {
			io.Disconnect()
			return nil, fmt.Errorf("socket.io connection failed: %w", err)
		}
		return &SocketIO{client: io}, nil
	case <-ctx.Done():
		io.Disconnect()
		return nil, fmt.Errorf("context cancelled while waiting for socket.io connection: %w", ctx.Err())
	case <-time.After(timeout):
		io.Disconnect()
		return nil, fmt.Errorf("timed out after %s waiting for socket.io connection", timeout)
	}
}

func (s *SocketIO) Notify(_ context.Context, ev Event) error {
	if !s.client.Connected() {
		return fmt.Errorf("socket.io client is not connected")
	}
	s.client.Emit(EventName, payload(ev))
	return nil
}

// Close disconnects from the server.
func (s *SocketIO) Close() error {
	s.client.Disconnect()
	return nil
}

func payload(ev Event) map[string]any {
	p := map[string]any{
		"kind":     string(ev.Kind),
		"pipeline": ev.Pipeline,
		"success":  ev.Success,
	}
	if ev.RunID != 0 {
		p["run_id"] = ev.RunID
	}
	for k, v := range map[string]string{"node": ev.Node, "step": ev.Step, "state": ev.State, "error": ev.Error} {
		if v != "" {
			p[k] = v
		}
	}
	if len(ev.Executed) > 0 {
		p["executed"] = ev.Executed
	}
	return p
}
