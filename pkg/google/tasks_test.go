package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/harrisonrobin/tasknudge/pkg/remote"
	"google.golang.org/api/option"
	"google.golang.org/api/tasks/v1"
)

type recorded struct {
	method string
	path   string
	body   map[string]any
}

// fakeTasksAPI serves just enough of the Tasks API for the client.
type fakeTasksAPI struct {
	mu       sync.Mutex
	calls    []recorded
	gone     map[string]bool
	listBody string
}

func (f *fakeTasksAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		json.Unmarshal(data, &body)
	}
	f.mu.Lock()
	f.calls = append(f.calls, recorded{method: r.Method, path: r.URL.Path, body: body})
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/users/@me/lists"):
		io.WriteString(w, `{"items":[{"id":"list-1","title":"Assistant"}]}`)
	case r.Method == http.MethodPost:
		io.WriteString(w, `{"id":"new-remote-id","title":"x"}`)
	case r.Method == http.MethodGet:
		io.WriteString(w, f.listBody)
	default:
		for id := range f.gone {
			if strings.HasSuffix(r.URL.Path, "/"+id) {
				w.WriteHeader(http.StatusNotFound)
				io.WriteString(w, `{"error":{"code":404,"message":"Not Found"}}`)
				return
			}
		}
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		io.WriteString(w, `{"id":"patched"}`)
	}
}

func newTestClient(t *testing.T, api *fakeTasksAPI, listName string) *TasksClient {
	t.Helper()
	ts := httptest.NewServer(api)
	t.Cleanup(ts.Close)

	factory := func(ctx context.Context, owner string) (*tasks.Service, error) {
		return tasks.NewService(ctx, option.WithEndpoint(ts.URL+"/"), option.WithHTTPClient(ts.Client()))
	}
	c := NewTasksClient(factory, listName)
	c.now = func() time.Time { return time.Date(2026, 2, 6, 10, 0, 0, 0, time.UTC) }
	return c
}

func TestCreateUsesNamedList(t *testing.T) {
	api := &fakeTasksAPI{}
	c := newTestClient(t, api, "Assistant")

	due := time.Date(2026, 2, 6, 10, 0, 0, 0, time.FixedZone("WAT", 3600))
	id, err := c.Create(context.Background(), "user_1", "Dentist", &due, "bring card")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if id != "new-remote-id" {
		t.Errorf("Expected new-remote-id, got %s", id)
	}

	last := api.calls[len(api.calls)-1]
	if last.method != http.MethodPost || !strings.Contains(last.path, "/lists/list-1/tasks") {
		t.Errorf("Expected insert into list-1, got %s %s", last.method, last.path)
	}
	if last.body["title"] != "Dentist" || last.body["notes"] != "bring card" || last.body["due"] != "2026-02-06T09:00:00Z" {
		t.Errorf("Unexpected insert body: %v", last.body)
	}
}

func TestCompleteAndDeleteTreatMissingAsSuccess(t *testing.T) {
	api := &fakeTasksAPI{gone: map[string]bool{"vanished": true}}
	c := newTestClient(t, api, "")
	ctx := context.Background()

	if err := c.Complete(ctx, "r1", "user_1"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	last := api.calls[len(api.calls)-1]
	if last.method != http.MethodPatch || last.body["status"] != "completed" || last.body["completed"] != "2026-02-06T10:00:00Z" {
		t.Errorf("Unexpected completion call: %+v", last)
	}

	if err := c.Delete(ctx, "r1", "user_1"); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
	if err := c.Delete(ctx, "vanished", "user_1"); err != nil {
		t.Errorf("Expected 404 on delete to count as success, got %v", err)
	}
	if err := c.Complete(ctx, "vanished", "user_1"); err != nil {
		t.Errorf("Expected 404 on complete to count as success, got %v", err)
	}
	if err := c.Update(ctx, "vanished", "user_1", remote.Fields{Title: strPtr("x")}); err == nil {
		t.Error("Expected 404 on update to be an error")
	}
}

func TestUpdateWithNothingToSendMakesNoCall(t *testing.T) {
	api := &fakeTasksAPI{}
	c := newTestClient(t, api, "")
	if err := c.Update(context.Background(), "r1", "user_1", remote.Fields{}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(api.calls) != 0 {
		t.Errorf("Expected no API calls, got %d", len(api.calls))
	}
}

func TestList(t *testing.T) {
	api := &fakeTasksAPI{listBody: `{"items":[
		{"id":"a","title":"Open","due":"2026-02-06T00:00:00.000Z","status":"needsAction"},
		{"id":"b","title":"Closed","status":"completed"}
	]}`}
	c := newTestClient(t, api, "")

	got, err := c.List(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 tasks, got %d", len(got))
	}
	if got[0].ID != "a" || got[0].Completed || got[0].Due == "" {
		t.Errorf("Unexpected first task: %+v", got[0])
	}
	if !got[1].Completed {
		t.Errorf("Expected second task completed: %+v", got[1])
	}
}

func strPtr(s string) *string { return &s }
