package robots_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/retreat896/MobileDev-Assignment02/internal/server"
	"github.com/retreat896/MobileDev-Assignment02/internal/testutil"
	"github.com/retreat896/MobileDev-Assignment02/pkg/robots"
)

func ptr[T any](v T) *T { return &v }

var marvin = robots.Draft{
	Name:        "Marvin",
	Description: "Paranoid android",
	Price:       42,
	ImageURL:    "http://img.example/marvin.png",
}

// setup starts an in-memory backend and a client that counts its requests.
func setup(t *testing.T) (*testutil.Backend, *robots.Client, *testutil.CountingTransport) {
	t.Helper()
	b := testutil.NewBackend(t)
	ct := &testutil.CountingTransport{}
	c, err := robots.New(b.URL(), robots.WithHTTPClient(testutil.CountingClient(ct)))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return b, c, ct
}

// rawServer serves a fixed status and body for every request.
func rawServer(t *testing.T, status int, body string) *robots.Client {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
	t.Cleanup(ts.Close)
	c, err := robots.New(ts.URL)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return c
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewNormalizesBaseURL(t *testing.T) {
	c, err := robots.New("http://localhost:8082/api/?x=1#frag")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if got := c.BaseURL(); got != "http://localhost:8082/api" {
		t.Errorf("BaseURL() = %q", got)
	}
}

func TestNewRejectsBadBaseURL(t *testing.T) {
	for _, in := range []string{"", "localhost:8082", "ftp://host", "http://", "://bad"} {
		if _, err := robots.New(in); err == nil {
			t.Errorf("New(%q) expected error", in)
		}
	}
}

// ---------------------------------------------------------------------------
// CRUD against the reference backend
// ---------------------------------------------------------------------------

func TestCreateThenGet(t *testing.T) {
	_, c, _ := setup(t)
	ctx := context.Background()

	created, err := c.CreateRobot(ctx, marvin)
	if err != nil {
		t.Fatalf("CreateRobot() error: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected assigned id")
	}
	if created != robots.FromDraft(created.ID, marvin) {
		t.Errorf("created = %+v", created)
	}

	got, err := c.GetRobot(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetRobot() error: %v", err)
	}
	if got != created {
		t.Errorf("GetRobot() = %+v, want %+v", got, created)
	}
}

func TestListRobots(t *testing.T) {
	_, c, _ := setup(t)
	ctx := context.Background()

	list, err := c.ListRobots(ctx)
	if err != nil {
		t.Fatalf("ListRobots() error: %v", err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v", list)
	}

	a, _ := c.CreateRobot(ctx, marvin)
	second := marvin
	second.Name = "Bender"
	b, _ := c.CreateRobot(ctx, second)

	list, err = c.ListRobots(ctx)
	if err != nil {
		t.Fatalf("ListRobots() error: %v", err)
	}
	if len(list) != 2 || list[0].ID != a.ID || list[1].ID != b.ID {
		t.Errorf("unexpected list order: %+v", list)
	}
}

func TestUpdateRobotPriceOnly(t *testing.T) {
	_, c, _ := setup(t)
	ctx := context.Background()
	created, _ := c.CreateRobot(ctx, marvin)

	updated, err := c.UpdateRobot(ctx, created.ID, robots.Patch{Price: ptr(7.25)})
	if err != nil {
		t.Fatalf("UpdateRobot() error: %v", err)
	}
	want := created
	want.Price = 7.25
	if updated != want {
		t.Errorf("UpdateRobot() = %+v, want %+v", updated, want)
	}
}

func TestRenameChangesNameLookup(t *testing.T) {
	_, c, _ := setup(t)
	ctx := context.Background()
	created, _ := c.CreateRobot(ctx, marvin)

	found, err := c.FindRobotByName(ctx, "  Marvin ")
	if err != nil || found.ID != created.ID {
		t.Fatalf("FindRobotByName() = %+v, %v", found, err)
	}

	if _, err := c.UpdateRobot(ctx, created.ID, robots.Patch{Name: ptr("Eddie")}); err != nil {
		t.Fatalf("UpdateRobot() error: %v", err)
	}
	if _, err := c.FindRobotByName(ctx, "Marvin"); !errors.Is(err, robots.ErrNotFound) {
		t.Errorf("old name lookup = %v, want ErrNotFound", err)
	}
	if got, _ := c.GetRobot(ctx, created.ID); got.Name != "Eddie" {
		t.Errorf("id lookup after rename = %+v", got)
	}
}

func TestDeleteThenNotFound(t *testing.T) {
	_, c, _ := setup(t)
	ctx := context.Background()
	created, _ := c.CreateRobot(ctx, marvin)

	if err := c.DeleteRobot(ctx, created.ID); err != nil {
		t.Fatalf("DeleteRobot() error: %v", err)
	}
	if _, err := c.GetRobot(ctx, created.ID); !robots.IsNotFound(err) {
		t.Errorf("GetRobot() after delete = %v, want not found", err)
	}
	if err := c.DeleteRobot(ctx, created.ID); !robots.IsNotFound(err) {
		t.Errorf("second DeleteRobot() = %v, want not found", err)
	}
	if _, err := c.UpdateRobot(ctx, created.ID, robots.Patch{}); !robots.IsNotFound(err) {
		t.Errorf("UpdateRobot() after delete = %v, want not found", err)
	}
}

func TestNotFoundIsRequestFailed(t *testing.T) {
	_, c, _ := setup(t)
	_, err := c.GetRobot(context.Background(), "rbt_424242")

	var rf *robots.RequestFailedError
	if !errors.As(err, &rf) {
		t.Fatalf("expected *RequestFailedError, got %T: %v", err, err)
	}
	if rf.Status != http.StatusNotFound || !strings.Contains(rf.Body, "Robot not found") {
		t.Errorf("unexpected error: %+v", rf)
	}
}

func TestConcurrentCreates(t *testing.T) {
	_, c, _ := setup(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := c.CreateRobot(ctx, marvin); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("CreateRobot() error: %v", err)
	}

	list, _ := c.ListRobots(ctx)
	seen := map[robots.ID]bool{}
	for _, r := range list {
		seen[r.ID] = true
	}
	if len(list) != 10 || len(seen) != 10 {
		t.Errorf("expected 10 distinct robots, got %d (%d ids)", len(list), len(seen))
	}
}

// ---------------------------------------------------------------------------
// Validation happens before any request
// ---------------------------------------------------------------------------

func TestCreateValidationSendsNothing(t *testing.T) {
	tests := []struct {
		name  string
		draft robots.Draft
		field string
	}{
		{"blank name", robots.Draft{Name: " ", Price: 1, ImageURL: "http://x/a.png"}, "name"},
		{"negative price", robots.Draft{Name: "A", Price: -1, ImageURL: "http://x/a.png"}, "price"},
		{"bad url", robots.Draft{Name: "A", Price: 1, ImageURL: "nope"}, "imageUrl"},
	}
	_, c, ct := setup(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.CreateRobot(context.Background(), tt.draft)
			var verr *robots.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T: %v", err, err)
			}
			if verr.Field != tt.field {
				t.Errorf("Field = %q, want %q", verr.Field, tt.field)
			}
		})
	}
	if ct.Calls() != 0 {
		t.Errorf("expected no requests, got %d", ct.Calls())
	}
}

func TestUpdateValidationSendsNothing(t *testing.T) {
	_, c, ct := setup(t)
	ctx := context.Background()

	_, err := c.UpdateRobot(ctx, "rbt_000001", robots.Patch{ImageURL: ptr("")})
	var verr *robots.ValidationError
	if !errors.As(err, &verr) || verr.Field != "imageUrl" {
		t.Errorf("expected imageUrl validation error, got %v", err)
	}
	if _, err := c.GetRobot(ctx, ""); !errors.As(err, &verr) || verr.Field != "id" {
		t.Errorf("expected id validation error, got %v", err)
	}
	if err := c.DeleteRobot(ctx, "  "); !errors.As(err, &verr) || verr.Field != "id" {
		t.Errorf("expected id validation error, got %v", err)
	}
	if ct.Calls() != 0 {
		t.Errorf("expected no requests, got %d", ct.Calls())
	}
}

// ---------------------------------------------------------------------------
// Wire format
// ---------------------------------------------------------------------------

func TestRequestShape(t *testing.T) {
	var (
		mu   sync.Mutex
		got  []*http.Request
		body []string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = append(got, r)
		body = append(body, string(data))
		mu.Unlock()
		io.WriteString(w, `{"id":"a/b","name":"X","price":1,"imageUrl":"http://x/y.png"}`)
	}))
	defer ts.Close()

	c, _ := robots.New(ts.URL+"/", robots.WithUserAgent("robots-test"))
	if _, err := c.UpdateRobot(context.Background(), "a/b", robots.Patch{Price: ptr(3.5)}); err != nil {
		t.Fatalf("UpdateRobot() error: %v", err)
	}

	r := got[0]
	if r.Method != http.MethodPut || r.URL.EscapedPath() != "/robots/a%2Fb" {
		t.Errorf("unexpected request %s %s", r.Method, r.URL.EscapedPath())
	}
	if r.Header.Get("Content-Type") != "application/json" || r.Header.Get("Accept") != "application/json" {
		t.Errorf("unexpected headers: %v", r.Header)
	}
	if r.Header.Get("User-Agent") != "robots-test" || r.Header.Get("X-Request-Id") == "" {
		t.Errorf("missing user agent or request id: %v", r.Header)
	}

	var sent map[string]any
	if err := json.Unmarshal([]byte(body[0]), &sent); err != nil {
		t.Fatalf("request body is not JSON: %v", err)
	}
	if len(sent) != 2 || sent["id"] != "a/b" || sent["price"] != 3.5 {
		t.Errorf("expected only id and price, got %v", sent)
	}
}

func TestDecodeAlternateIDs(t *testing.T) {
	tests := []struct {
		name string
		body string
		want robots.ID
	}{
		{"mongo _id", `{"_id":"65f0c","name":"A","price":1,"imageUrl":"http://x/a.png"}`, "65f0c"},
		{"integer id", `{"id":17,"name":"A","price":1,"imageUrl":"http://x/a.png"}`, "17"},
		{"id wins", `{"id":"x","_id":"y","name":"A","price":1,"imageUrl":"http://x/a.png"}`, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := rawServer(t, http.StatusOK, tt.body)
			got, err := c.GetRobot(context.Background(), "requested")
			if err != nil {
				t.Fatalf("GetRobot() error: %v", err)
			}
			if got.ID != tt.want {
				t.Errorf("ID = %q, want %q", got.ID, tt.want)
			}
		})
	}
}

func TestGetFillsMissingID(t *testing.T) {
	c := rawServer(t, http.StatusOK, `{"name":"A","price":1,"imageUrl":"http://x/a.png"}`)
	got, err := c.GetRobot(context.Background(), "rbt_000009")
	if err != nil {
		t.Fatalf("GetRobot() error: %v", err)
	}
	if got.ID != "rbt_000009" {
		t.Errorf("ID = %q, want requested id", got.ID)
	}
}

func TestListNonArrayIsEmpty(t *testing.T) {
	for _, body := range []string{`{"robots":[]}`, `null`, `"hello"`} {
		c := rawServer(t, http.StatusOK, body)
		list, err := c.ListRobots(context.Background())
		if err != nil {
			t.Errorf("ListRobots(%s) error: %v", body, err)
			continue
		}
		if list == nil || len(list) != 0 {
			t.Errorf("ListRobots(%s) = %#v, want empty", body, list)
		}
	}
}

func TestDecodeErrors(t *testing.T) {
	ctx := context.Background()
	var derr *robots.DecodeError

	if _, err := rawServer(t, http.StatusOK, `[{"id":`).ListRobots(ctx); !errors.As(err, &derr) {
		t.Errorf("truncated list: expected *DecodeError, got %v", err)
	}
	if _, err := rawServer(t, http.StatusOK, `[{"id":{}}]`).ListRobots(ctx); !errors.As(err, &derr) {
		t.Errorf("bad element: expected *DecodeError, got %v", err)
	}
	if _, err := rawServer(t, http.StatusOK, `[null]`).ListRobots(ctx); !errors.As(err, &derr) {
		t.Errorf("null element: expected *DecodeError, got %v", err)
	}
	if _, err := rawServer(t, http.StatusOK, `[null, {"id":"a","name":"Marvin"}]`).ListRobots(ctx); !errors.As(err, &derr) {
		t.Errorf("null among robots: expected *DecodeError, got %v", err)
	}
	if _, err := rawServer(t, http.StatusOK, `null`).GetRobot(ctx, "1"); !errors.As(err, &derr) {
		t.Errorf("null robot: expected *DecodeError, got %v", err)
	}
	if _, err := rawServer(t, http.StatusOK, `<html>`).GetRobot(ctx, "1"); !errors.As(err, &derr) {
		t.Errorf("html body: expected *DecodeError, got %v", err)
	}
	if _, err := rawServer(t, http.StatusCreated, ``).CreateRobot(ctx, marvin); !errors.As(err, &derr) {
		t.Errorf("empty create body: expected *DecodeError, got %v", err)
	}
	if _, err := rawServer(t, http.StatusCreated, `{"name":"Marvin"}`).CreateRobot(ctx, marvin); !errors.As(err, &derr) {
		t.Errorf("create without id: expected *DecodeError, got %v", err)
	}
}

func TestDeleteIgnoresBody(t *testing.T) {
	c := rawServer(t, http.StatusOK, `not json at all`)
	if err := c.DeleteRobot(context.Background(), "1"); err != nil {
		t.Errorf("DeleteRobot() error: %v", err)
	}
}

func TestServerErrorIsRequestFailed(t *testing.T) {
	c := rawServer(t, http.StatusServiceUnavailable, `{"detail":"Database not reachable"}`)
	_, err := c.ListRobots(context.Background())

	var rf *robots.RequestFailedError
	if !errors.As(err, &rf) || rf.Status != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 *RequestFailedError, got %v", err)
	}
	if robots.IsNotFound(err) {
		t.Error("503 must not match ErrNotFound")
	}
}

// ---------------------------------------------------------------------------
// Network failures
// ---------------------------------------------------------------------------

func TestConnectionRefused(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c, _ := robots.New(url)
	_, err := c.ListRobots(context.Background())
	var nerr *robots.NetworkUnavailableError
	if !errors.As(err, &nerr) {
		t.Fatalf("expected *NetworkUnavailableError, got %T: %v", err, err)
	}
}

func TestDeadlineIsNetworkUnavailable(t *testing.T) {
	price := 5.0
	tests := []struct {
		name string
		call func(context.Context, *robots.Client) error
	}{
		{"list", func(ctx context.Context, c *robots.Client) error {
			_, err := c.ListRobots(ctx)
			return err
		}},
		{"get", func(ctx context.Context, c *robots.Client) error {
			_, err := c.GetRobot(ctx, "rbt_000001")
			return err
		}},
		{"create", func(ctx context.Context, c *robots.Client) error {
			_, err := c.CreateRobot(ctx, marvin)
			return err
		}},
		{"update", func(ctx context.Context, c *robots.Client) error {
			_, err := c.UpdateRobot(ctx, "rbt_000001", robots.Patch{Price: &price})
			return err
		}},
		{"delete", func(ctx context.Context, c *robots.Client) error {
			return c.DeleteRobot(ctx, "rbt_000001")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, c, _ := setup(t)
			slow := server.FaultConfig{DelayMS: 2000}
			b.Client.InjectFault("/robots", slow).AssertStatus(http.StatusOK)
			b.Client.InjectFault("/robots/*", slow).AssertStatus(http.StatusOK)

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			err := tt.call(ctx, c)

			var nerr *robots.NetworkUnavailableError
			if !errors.As(err, &nerr) {
				t.Fatalf("expected *NetworkUnavailableError, got %T: %v", err, err)
			}
			if !errors.Is(err, context.DeadlineExceeded) {
				t.Errorf("expected wrapped context.DeadlineExceeded, got %v", err)
			}
		})
	}
}

func TestInjectedFaultSurfacesStatus(t *testing.T) {
	b, c, _ := setup(t)
	b.Client.InjectFault("/robots", server.FaultConfig{StatusCode: 500}).AssertStatus(http.StatusOK)

	_, err := c.ListRobots(context.Background())
	var rf *robots.RequestFailedError
	if !errors.As(err, &rf) || rf.Status != http.StatusInternalServerError {
		t.Errorf("expected 500 *RequestFailedError, got %v", err)
	}
}
