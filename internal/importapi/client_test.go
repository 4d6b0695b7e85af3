package importapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/ginjaninja78/chms-migrate/internal/types"
)

type call struct {
	Path    string
	Key     string
	Records int
}

// fakeAPI records each accepted batch. failFirst makes the first request to
// a path answer 503.
type fakeAPI struct {
	mu        sync.Mutex
	calls     []call
	failFirst map[string]bool
	status    int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failFirst[r.URL.Path] {
		f.failFirst[r.URL.Path] = false
		http.Error(w, "busy", http.StatusServiceUnavailable)
		return
	}
	if f.status != 0 {
		http.Error(w, "bad record", f.status)
		return
	}
	var batch []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.calls = append(f.calls, call{Path: r.URL.Path, Key: r.Header.Get(APIKeyHeader), Records: len(batch)})
	_ = json.NewEncoder(w).Encode(Response{Imported: len(batch)})
}

func newTestClient(t *testing.T, api *fakeAPI, batchSize int) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	log, _ := test.NewNullLogger()
	c, err := NewClient(Options{
		BaseURL:      srv.URL + "/",
		APIKey:       "secret",
		BatchSize:    batchSize,
		Timeout:      5 * time.Second,
		MaxRetries:   2,
		RetryWaitMin: time.Millisecond,
		RetryWaitMax: 5 * time.Millisecond,
		Logger:       log,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestBatchWriter_BatchesByKindInOrder(t *testing.T) {
	api := &fakeAPI{}
	w := newTestClient(t, api, 2).Writer(context.Background())

	records := []types.Record{
		&types.Campus{Id: 1, Name: "North"},
		&types.Person{Id: 100},
		&types.Person{Id: 101},
		&types.Person{Id: 102},
		&types.GroupType{Id: 3, Name: "Music"},
	}
	for _, r := range records {
		if err := w.Write(r); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	want := []call{
		{Path: "/api/import/Campus", Key: "secret", Records: 1},
		{Path: "/api/import/Person", Key: "secret", Records: 2},
		{Path: "/api/import/Person", Key: "secret", Records: 1},
		{Path: "/api/import/GroupType", Key: "secret", Records: 1},
	}
	if diff := cmp.Diff(want, api.calls); diff != "" {
		t.Errorf("calls (-want +got):\n%s", diff)
	}
	wantSent := map[types.Kind]int{types.KindCampus: 1, types.KindPerson: 3, types.KindGroupType: 1}
	if diff := cmp.Diff(wantSent, w.Sent()); diff != "" {
		t.Errorf("sent (-want +got):\n%s", diff)
	}
}

func TestImport_RetriesServerErrors(t *testing.T) {
	api := &fakeAPI{failFirst: map[string]bool{"/api/import/Campus": true}}
	c := newTestClient(t, api, 10)

	res, err := c.Import(context.Background(), types.KindCampus, []types.Record{&types.Campus{Id: 1}})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Imported != 1 || len(api.calls) != 1 {
		t.Errorf("imported %d, calls %d", res.Imported, len(api.calls))
	}
}

func TestImport_Rejected(t *testing.T) {
	api := &fakeAPI{status: http.StatusUnprocessableEntity}
	c := newTestClient(t, api, 10)

	_, err := c.Import(context.Background(), types.KindPerson, []types.Record{&types.Person{Id: 1}})
	if !errors.Is(err, ErrRejected) {
		t.Errorf("err = %v, want ErrRejected", err)
	}
}

func TestImport_Cancelled(t *testing.T) {
	c := newTestClient(t, &fakeAPI{}, 10)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Import(ctx, types.KindCampus, []types.Record{&types.Campus{Id: 1}}); err == nil {
		t.Error("Import succeeded with a cancelled context")
	}
}

func TestNewClient_RequiresURL(t *testing.T) {
	if _, err := NewClient(Options{BaseURL: "  "}); err == nil {
		t.Error("NewClient accepted a blank URL")
	}
}
