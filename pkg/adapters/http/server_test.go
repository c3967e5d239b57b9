package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/graph"
	"github.com/aretw0/arbor/pkg/migration"
	"github.com/aretw0/arbor/pkg/navstate"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// session stitches the components together the way the root package does.
type session struct {
	*graph.Graph
	*navstate.Store
	*migration.Resolver
}

func newSession(t *testing.T) *session {
	t.Helper()
	g := graph.New(graph.WithNodes(domain.NodeArg{
		ID:         "space",
		Properties: domain.Properties{domain.PropLabel: "Space"},
		Handlers: domain.Handlers{
			OnRearrangeChildren: func(context.Context, []any) error { return nil },
		},
		Nodes: []domain.NodeArg{{ID: "a"}, {ID: "b"}},
	}))
	st := navstate.New(nil, navstate.WithPathFinder(g), navstate.WithDebounce(time.Hour))
	t.Cleanup(func() { st.Close() })
	return &session{Graph: g, Store: st, Resolver: migration.New(g)}
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthAndInfo(t *testing.T) {
	h := NewHandler(newSession(t), WithVersion("1.2.3\n"))

	w := do(t, h, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	w = do(t, h, "GET", "/info", "")
	assert.JSONEq(t, `{"app":"arbor-http","version":"1.2.3"}`, w.Body.String())
}

func TestGetTree(t *testing.T) {
	h := NewHandler(newSession(t))

	w := do(t, h, "GET", "/tree", "")
	require.Equal(t, http.StatusOK, w.Code)
	var tree graph.TreeNode
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tree))
	assert.Equal(t, domain.RootID, tree.ID)
	require.Len(t, tree.Nodes, 1)
	assert.Equal(t, "Space", tree.Nodes[0].Properties.String(domain.PropLabel))
	assert.Len(t, tree.Nodes[0].Nodes, 2)

	w = do(t, h, "GET", "/tree?root=missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestNodesAndConnections(t *testing.T) {
	h := NewHandler(newSession(t))

	w := do(t, h, "GET", "/nodes/a", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"a"`)

	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/nodes/zzz", "").Code)

	w = do(t, h, "GET", "/nodes/space/connections", "")
	require.Equal(t, http.StatusOK, w.Code)
	var nodes []domain.Node
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &nodes))
	assert.Len(t, nodes, 2)

	w = do(t, h, "GET", "/nodes/a/connections?relation=inbound", "")
	assert.Contains(t, w.Body.String(), `"id":"space"`)

	assert.Equal(t, http.StatusBadRequest, do(t, h, "GET", "/nodes/a/connections?relation=sideways", "").Code)
	assert.Equal(t, http.StatusAccepted, do(t, h, "POST", "/nodes/a/expand", "").Code)
}

func TestGetPaths(t *testing.T) {
	h := NewHandler(newSession(t))

	w := do(t, h, "GET", "/nodes/b/paths", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[["root","space","b"]]`, w.Body.String())
	assert.Equal(t, http.StatusNotFound, do(t, h, "GET", "/nodes/zzz/paths", "").Code)
}

func TestStateEndpoints(t *testing.T) {
	s := newSession(t)
	h := NewHandler(s)

	w := do(t, h, "GET", "/state", "")
	assert.JSONEq(t, `[]`, w.Body.String())

	w = do(t, h, "POST", "/state/toggle", `{"path":["root","space"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"path":"root~space","key":"open","value":true}`, w.Body.String())

	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/state/toggle", `{"path":["root"],"key":"bogus"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, "POST", "/state/toggle", `not json`).Code)

	assert.Equal(t, http.StatusNoContent, do(t, h, "PUT", "/active", `{"ids":["b"]}`).Code)
	assert.True(t, s.IsCurrent([]string{"root", "space", "b"}))

	w = do(t, h, "GET", "/state", "")
	assert.Contains(t, w.Body.String(), `["root~space",{"open":true,"current":false,"alternateTree":false}]`)
}

func TestDrop(t *testing.T) {
	s := newSession(t)
	h := NewHandler(s)

	w := do(t, h, "POST", "/drop", `{"type":"reorder-above","source_path":["root","space","b"],"target_path":["root","space","a"]}`)
	require.Equal(t, http.StatusOK, w.Code)
	var resp DropResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.OpRearrange, resp.Operation)
	assert.Equal(t, []string{"b", "a"}, resp.Order)
	assert.Equal(t, "space", resp.Destination)

	w = do(t, h, "POST", "/drop", `{"type":"make-child","source_path":["root","space","b"],"target_path":["root","space","a"]}`)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, domain.OpReject, resp.Operation)
	assert.NotEmpty(t, resp.Reason)
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetrics(reg)
	m.Migration(string(domain.OpCopy))

	h := NewHandler(newSession(t), WithMetrics(reg))
	w := do(t, h, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "arbor_migrations_total")

	assert.Equal(t, http.StatusNotFound, do(t, NewHandler(newSession(t)), "GET", "/metrics", "").Code)
}

func TestSubscribeEvents(t *testing.T) {
	s := newSession(t)
	srv := httptest.NewServer(NewHandler(s))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	require.True(t, waitFor(lines, "data: connected"))

	_, err = s.AddNode(domain.NodeArg{ID: "late"}, graph.WithParent("space"))
	require.NoError(t, err)
	assert.True(t, waitFor(lines, `"id":"late"`))
}

func TestSubscribeEvents_EachClientGetsChangeOnce(t *testing.T) {
	s := newSession(t)
	srv := httptest.NewServer(NewHandler(s))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var clients []*bufio.Scanner
	for i := 0; i < 2; i++ {
		req, err := http.NewRequestWithContext(ctx, "GET", srv.URL+"/events", nil)
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		lines := bufio.NewScanner(resp.Body)
		require.True(t, waitFor(lines, "data: connected"))
		clients = append(clients, lines)
	}

	_, err := s.AddNode(domain.NodeArg{ID: "late"}, graph.WithParent("space"))
	require.NoError(t, err)
	_, err = s.AddNode(domain.NodeArg{ID: "marker"}, graph.WithParent("space"))
	require.NoError(t, err)

	for i, lines := range clients {
		assert.Equal(t, 1, countUntil(lines, `"id":"late"`, `"id":"marker"`), "client %d", i)
	}
}

// countUntil counts the data lines containing want before the first line
// containing stop.
func countUntil(lines *bufio.Scanner, want, stop string) int {
	n := 0
	for lines.Scan() {
		text := lines.Text()
		if strings.Contains(text, stop) {
			return n
		}
		if strings.HasPrefix(text, "data: ") && strings.Contains(text, want) {
			n++
		}
	}
	return n
}

func waitFor(lines *bufio.Scanner, want string) bool {
	for lines.Scan() {
		if strings.Contains(lines.Text(), want) {
			return true
		}
	}
	return false
}

func TestStreamManager(t *testing.T) {
	sm := NewStreamManager(nil)

	ch, cancel := sm.Subscribe()
	sm.Broadcast("hello")
	assert.Equal(t, "hello", <-ch)

	cancel()
	cancel()
	_, ok := <-ch
	assert.False(t, ok)
}
