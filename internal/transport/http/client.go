package transporthttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/worldline-go/klient"

	"github.com/rakunlabs/splot/internal/future"
	"github.com/rakunlabs/splot/internal/reslink"
	"github.com/rakunlabs/splot/internal/splotval"
)

// PollInterval is how often a remoteLink's Register subscription re-fetches
// the resource to detect changes. This is a demo transport (SPEC_FULL.md
// §E): there is no push channel, so observation is polling rather than a
// server-sent stream.
var PollInterval = 2 * time.Second

// ClientConfig carries the proxy/TLS/retry settings NewRemoteFactory builds
// its klient.Client from, the same knobs the teacher's http_request workflow
// node exposes on its buildClient.
type ClientConfig struct {
	Proxy              string
	InsecureSkipVerify bool
	Retry              bool
}

func newKlient(cfg ClientConfig) (*klient.Client, error) {
	opts := []klient.OptionClientFn{
		klient.WithDisableBaseURLCheck(true),
		klient.WithDisableEnvValues(true),
		klient.WithDisableRetry(!cfg.Retry),
	}
	if cfg.Proxy != "" {
		opts = append(opts, klient.WithProxy(cfg.Proxy))
	}
	if cfg.InsecureSkipVerify {
		opts = append(opts, klient.WithInsecureSkipVerify(true))
	}
	return klient.New(opts...)
}

// NewRemoteFactory builds a reslink.RemoteFactory that resolves non-local
// URIs to an outbound HTTP call against the URI's authority, translating
// scheme to httpScheme ("http" or "https"). Register/Unregister on the
// returned Link poll rather than stream. client is a pre-built klient.Client
// carrying this deployment's proxy/TLS/retry policy; pass nil to build one
// from cfg's defaults.
func NewRemoteFactory(httpScheme string, client *klient.Client, cfg ClientConfig) (reslink.RemoteFactory, error) {
	if client == nil {
		var err error
		client, err = newKlient(cfg)
		if err != nil {
			return nil, fmt.Errorf("transporthttp: build klient: %w", err)
		}
	}
	return func(p *reslink.ParsedURI) (reslink.Link, error) {
		return &remoteLink{client: client, httpScheme: httpScheme, p: p}, nil
	}, nil
}

// remoteLink addresses one property or method on a remote splotd instance
// over HTTP, mirroring transporthttp's own server-side URI handling.
type remoteLink struct {
	client     *klient.Client
	httpScheme string
	p          *reslink.ParsedURI

	mu      sync.Mutex
	nextID  int
	subs    map[int]reslink.Listener
	stopped chan struct{}
}

func (l *remoteLink) url() string {
	u := url.URL{
		Scheme:   l.httpScheme,
		Host:     l.p.Authority,
		Path:     rawPath(l.p.Raw),
		RawQuery: l.p.Mods.Encode(),
	}
	return u.String()
}

// rawPath strips scheme://authority from a full resource URI, leaving the
// same path remoteLink's server-side counterpart reads via PathValue("*").
func rawPath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Path
}

func (l *remoteLink) do(ctx context.Context, method string, body []byte) *future.Future {
	req, err := http.NewRequestWithContext(ctx, method, l.url(), bytes.NewReader(body))
	if err != nil {
		return future.Failed(splotval.NewError(splotval.ErrInvalidValue, "build remote request: %v", err))
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := l.client.HTTP.Do(req)
	if err != nil {
		return future.Failed(splotval.NewError(splotval.ErrUnassociatedResource, "remote request failed: %v", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return future.Failed(splotval.NewError(splotval.ErrTechnology, "read remote response: %v", err))
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return future.Failed(remoteError(resp.StatusCode, respBody))
	}
	if resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
		return future.Resolved(splotval.Value{})
	}

	var raw any
	if err := json.Unmarshal(respBody, &raw); err != nil {
		return future.Failed(splotval.NewError(splotval.ErrTechnology, "decode remote response: %v", err))
	}
	v, err := splotval.ValueFromJSON(raw)
	if err != nil {
		return future.Failed(err)
	}
	return future.Resolved(v)
}

func remoteError(status int, body []byte) error {
	var wrapped errorResponse
	if err := json.Unmarshal(body, &wrapped); err == nil && wrapped.Error.Kind != "" {
		return splotval.NewError(splotval.ErrorKind(wrapped.Error.Kind), "%s", wrapped.Error.Message)
	}
	return splotval.NewError(splotval.ErrTechnology, "remote returned status %d", status)
}

func (l *remoteLink) Fetch() *future.Future {
	return l.do(context.Background(), http.MethodGet, nil)
}

func (l *remoteLink) Apply(value splotval.Value, mods splotval.ModifierSet) *future.Future {
	l.p.Mods = mods
	blob, err := json.Marshal(value.JSON())
	if err != nil {
		return future.Failed(splotval.NewError(splotval.ErrInvalidValue, "encode value: %v", err))
	}
	return l.do(context.Background(), http.MethodPut, blob)
}

func (l *remoteLink) Invoke(args map[string]splotval.Value) *future.Future {
	raw := make(map[string]any, len(args))
	for k, v := range args {
		raw[k] = v.JSON()
	}
	blob, err := json.Marshal(raw)
	if err != nil {
		return future.Failed(splotval.NewError(splotval.ErrInvalidMethodArguments, "encode arguments: %v", err))
	}
	return l.do(context.Background(), http.MethodPost, blob)
}

// Register polls the remote resource every PollInterval and fans out to fn
// whenever the fetched value's JSON encoding changes. Returned Unregister
// stops the poll loop once the last subscriber leaves.
func (l *remoteLink) Register(fn reslink.Listener) reslink.Unregister {
	l.mu.Lock()
	if l.subs == nil {
		l.subs = make(map[int]reslink.Listener)
	}
	if len(l.subs) == 0 {
		l.stopped = make(chan struct{})
		go l.pollLoop(l.stopped)
	}
	l.nextID++
	id := l.nextID
	l.subs[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		var stop chan struct{}
		if len(l.subs) == 0 && l.stopped != nil {
			stop = l.stopped
			l.stopped = nil
		}
		l.mu.Unlock()
		if stop != nil {
			close(stop)
		}
	}
}

func (l *remoteLink) pollLoop(stop chan struct{}) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			v, err := l.Fetch().Wait(context.Background())
			if err != nil {
				continue
			}
			blob, err := json.Marshal(v.JSON())
			if err != nil {
				continue
			}
			encoded := string(blob)
			if encoded == last {
				continue
			}
			last = encoded

			l.mu.Lock()
			listeners := make([]reslink.Listener, 0, len(l.subs))
			for _, sub := range l.subs {
				listeners = append(listeners, sub)
			}
			l.mu.Unlock()
			for _, sub := range listeners {
				sub(v)
			}
		}
	}
}
