package transporthttp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/worldline-go/klient"

	"github.com/rakunlabs/splot/internal/reslink"
	"github.com/rakunlabs/splot/internal/splotval"
)

func mustParsePath(t *testing.T, base, path string) *reslink.ParsedURI {
	t.Helper()
	p, err := reslink.Parse(base + path)
	if err != nil {
		t.Fatalf("parse %s%s: %v", base, path, err)
	}
	return p
}

// testKlient builds a klient.Client whose underlying transport is the
// httptest server's own client, so tests exercise remoteLink against a
// loopback server without klient's base-URL/env defaults getting in the way.
func testKlient(t *testing.T, srv *httptest.Server) *klient.Client {
	t.Helper()
	c, err := klient.New(klient.WithDisableBaseURLCheck(true), klient.WithDisableEnvValues(true), klient.WithDisableRetry(true))
	if err != nil {
		t.Fatalf("klient.New: %v", err)
	}
	c.HTTP = srv.Client()
	return c
}

func TestResourceURIStripsWildcard(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/lamp-1/s/onoff/value", nil)
	r.SetPathValue("*", "lamp-1/s/onoff/value")
	if got := resourceURI(r); got != "/lamp-1/s/onoff/value" {
		t.Errorf("resourceURI = %q", got)
	}
}

func TestQueryOf(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/lamp-1/s/onoff/value?duration=500ms", nil)
	if got := queryOf(r); got != "?duration=500ms" {
		t.Errorf("queryOf = %q, want ?duration=500ms", got)
	}
	r2 := httptest.NewRequest(http.MethodGet, "/lamp-1/s/onoff/value", nil)
	if got := queryOf(r2); got != "" {
		t.Errorf("queryOf with no query = %q, want empty", got)
	}
}

func TestRemoteLinkFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/lamp-1/s/onoff/value" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(true)
	}))
	defer srv.Close()

	factory, err := NewRemoteFactory("http", testKlient(t, srv), ClientConfig{})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	p := mustParsePath(t, srv.URL, "/lamp-1/s/onoff/value")
	link, err := factory(p)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	v, err := link.Fetch().Wait(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	b, ok := v.JSON().(bool)
	if !ok || !b {
		t.Errorf("fetched value = %#v, want true", v.JSON())
	}
}

func TestRemoteLinkApplySendsBody(t *testing.T) {
	var gotBody []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("expected PUT, got %s", r.Method)
		}
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = buf
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	factory, err := NewRemoteFactory("http", testKlient(t, srv), ClientConfig{})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	p := mustParsePath(t, srv.URL, "/lamp-1/s/onoff/value")
	link, err := factory(p)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	value, err := splotval.ValueFromJSON(true)
	if err != nil {
		t.Fatalf("value: %v", err)
	}
	if _, err := link.Apply(value, splotval.ModifierSet{}).Wait(context.Background()); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if string(gotBody) != "true" {
		t.Errorf("body sent = %q, want true", gotBody)
	}
}

func TestRemoteLinkErrorResponseDecoded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpResponseError(w, splotval.NewError(splotval.ErrPropertyNotFound, "no such property"))
	}))
	defer srv.Close()

	factory, err := NewRemoteFactory("http", testKlient(t, srv), ClientConfig{})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	p := mustParsePath(t, srv.URL, "/lamp-1/s/onoff/value")
	link, err := factory(p)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	_, err = link.Fetch().Wait(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	se, ok := err.(*splotval.Error)
	if !ok || se.Kind != splotval.ErrPropertyNotFound {
		t.Errorf("got error %v, want kind %s", err, splotval.ErrPropertyNotFound)
	}
}

func TestRemoteLinkRegisterPollsAndUnregisterStops(t *testing.T) {
	orig := PollInterval
	PollInterval = 10 * time.Millisecond
	defer func() { PollInterval = orig }()

	value := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(value)
	}))
	defer srv.Close()

	factory, err := NewRemoteFactory("http", testKlient(t, srv), ClientConfig{})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	p := mustParsePath(t, srv.URL, "/lamp-1/s/onoff/value")
	link, err := factory(p)
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	seen := make(chan bool, 4)
	unregister := link.Register(func(v splotval.Value) {
		b, _ := v.JSON().(bool)
		seen <- b
	})

	value = false
	select {
	case v := <-seen:
		if v {
			t.Errorf("expected change to false to be observed")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for polled change")
	}
	unregister()
}
