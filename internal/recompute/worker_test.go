package recompute

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"calltrack/internal/audit"
	"calltrack/internal/calls"
	"calltrack/internal/leads"
	"calltrack/internal/reporting"
	"calltrack/internal/store"
	"calltrack/internal/tenants"
)

func signedToken(t *testing.T) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "svc"}).SignedString([]byte("k"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func TestAuthorize(t *testing.T) {
	bearer := "Bearer " + signedToken(t)
	cases := []struct {
		name          string
		secret        string
		authorization string
		provided      string
		want          bool
	}{
		{"secret matches", "s", "", "s", true},
		{"secret mismatch no bearer", "s", "", "x", false},
		{"secret mismatch with bearer", "s", bearer, "x", true},
		{"no secret configured requires bearer", "", "", "s", false},
		{"no secret configured bearer ok", "", bearer, "", true},
		{"bearer prefix is case-insensitive", "", "bEaReR " + signedToken(t), "", true},
		{"malformed bearer", "", "Bearer not-a-jwt", "", false},
		{"basic auth is not bearer", "", "Basic abc", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Authorize(tc.secret, tc.authorization, tc.provided); got != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

func TestTenantIDs(t *testing.T) {
	cases := []struct {
		name string
		req  Request
		want []string
		err  bool
	}{
		{"get query", Request{Method: "GET", QueryTenantIDs: []string{"t1", " ", "t2"}}, []string{"t1", "t2"}, false},
		{"post string", Request{Method: "POST", Body: []byte(`{"tenantIds":"t1"}`)}, []string{"t1"}, false},
		{"post list with blanks and dups", Request{Method: "POST", Body: []byte(`{"tenantIds":["t1","",7,"t1","t2"]}`)}, []string{"t1", "t2"}, false},
		{"post base64", Request{Method: "POST", Body: []byte(base64.StdEncoding.EncodeToString([]byte(`{"tenantIds":["t9"]}`)))}, []string{"t9"}, false},
		{"post malformed", Request{Method: "POST", Body: []byte(`{"tenantIds":`)}, nil, true},
		{"post object", Request{Method: "POST", Body: []byte(`{"tenantIds":{"a":1}}`)}, nil, true},
		{"put", Request{Method: "PUT"}, nil, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := TenantIDs(tc.req)
			if (err != nil) != tc.err {
				t.Fatalf("unexpected err: %v", err)
			}
			if strings.Join(got, ",") != strings.Join(tc.want, ",") {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
		})
	}
}

type flakyRecomputer struct {
	inner Recomputer
	fail  map[string]bool
	calls []string
}

func (f *flakyRecomputer) Recompute(ctx context.Context, tenantID string) (tenants.Stats, error) {
	f.calls = append(f.calls, tenantID)
	if f.fail[tenantID] {
		return tenants.Stats{}, errors.New("read failed")
	}
	return f.inner.Recompute(ctx, tenantID)
}

func seedTenant(t *testing.T, st *store.Memory, tenantID string, cs ...calls.Call) {
	t.Helper()
	ctx := context.Background()
	seenLeads := map[string]bool{}
	for _, c := range cs {
		c.TenantID = tenantID
		if !seenLeads[c.LeadID] {
			if _, err := st.UpsertLead(ctx, leads.Lead{ID: c.LeadID, TenantID: tenantID}); err != nil {
				t.Fatalf("seed lead: %v", err)
			}
			seenLeads[c.LeadID] = true
		}
		if err := st.AppendCall(ctx, c); err != nil {
			t.Fatalf("seed call: %v", err)
		}
	}
}

func TestWorker_Statuses(t *testing.T) {
	w := NewWorker(reporting.NewService(store.NewMemory()), "s", nil, nil, nil)
	ctx := context.Background()

	if resp := w.Handle(ctx, Request{Method: "POST", Body: []byte(`{"tenantIds":["t1"]}`)}); resp.Status != http.StatusForbidden || resp.Body != "forbidden" {
		t.Fatalf("expected 403, got %+v", resp)
	}
	if resp := w.Handle(ctx, Request{Method: "POST", Secret: "s", Body: []byte(`{}`)}); resp.Status != http.StatusBadRequest || resp.Body != "missing tenantIds" {
		t.Fatalf("expected 400, got %+v", resp)
	}
	if resp := w.Handle(ctx, Request{Method: "GET", Secret: "s", QueryTenantIDs: []string{"t1"}}); resp.Status != http.StatusOK || resp.Body != "ok" {
		t.Fatalf("expected 200, got %+v", resp)
	}
}

type panicky struct{}

func (panicky) Recompute(ctx context.Context, tenantID string) (tenants.Stats, error) {
	panic("boom")
}

func TestWorker_PanicBecomes500(t *testing.T) {
	resp := NewWorker(panicky{}, "s", nil, nil, nil).Handle(context.Background(), Request{Method: "GET", Secret: "s", QueryTenantIDs: []string{"t"}})
	if resp.Status != http.StatusInternalServerError || resp.Body != "boom" {
		t.Fatalf("expected 500 boom, got %+v", resp)
	}
}

func TestWorker_PartialBatchResilience(t *testing.T) {
	st := store.NewMemory()
	seedTenant(t, st, "a", calls.Call{ID: "1", LeadID: "l", Direction: "inbound", DurationSeconds: 3})
	seedTenant(t, st, "c", calls.Call{ID: "1", LeadID: "l", Direction: "outbound"})

	rec := &flakyRecomputer{inner: reporting.NewService(st), fail: map[string]bool{"b": true}}
	journal := audit.NewMemoryRepo()
	w := NewWorker(rec, "s", audit.NewService(journal), nil, nil)

	resp := w.Handle(context.Background(), Request{Method: "POST", Secret: "s", Body: []byte(`{"tenantIds":["a","b","c"]}`)})
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200 for an attempted batch, got %+v", resp)
	}
	if strings.Join(rec.calls, ",") != "a,b,c" {
		t.Fatalf("expected sequential processing of all tenants, got %v", rec.calls)
	}
	states := []State{resp.Results[0].State, resp.Results[1].State, resp.Results[2].State}
	if states[0] != StateDone || states[1] != StateFailed || states[2] != StateDone {
		t.Fatalf("unexpected states %v", states)
	}

	for _, id := range []string{"a", "c"} {
		got, err := st.GetTenant(context.Background(), id)
		if err != nil || got.Stats.LastRecalcAt.IsZero() || got.Stats.CallsCount != 1 {
			t.Fatalf("tenant %s not recomputed: %+v %v", id, got, err)
		}
	}

	var failed int
	for _, e := range journal.Events() {
		if e.Type == audit.EventRecomputeFailed && e.TenantID == "b" {
			failed++
		}
	}
	if failed != 1 {
		t.Fatalf("expected one recompute_failed entry for b, got %d", failed)
	}
}

func TestPipeline_RecomputeSupersedesOptimisticCount(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	seedTenant(t, st, "t1",
		calls.Call{ID: "c1", LeadID: "L1", Direction: "inbound", DurationSeconds: 0},
		calls.Call{ID: "c2", LeadID: "L1", Direction: "outbound", DurationSeconds: 42},
	)
	svc := reporting.NewService(st)
	if _, err := svc.Recompute(ctx, "t1"); err != nil {
		t.Fatalf("recompute: %v", err)
	}

	// A duplicate trigger for c2 bumps the optimistic count to 3.
	disp := &recordingDispatcher{}
	NewScheduler(st, disp, testSettings(), nil, nil, nil).OnCallCreated(ctx, calls.Created{TenantID: "t1", LeadID: "L1", CallID: "c2"})
	if got, _ := st.GetTenant(ctx, "t1"); got.Stats.CallsCount != 3 {
		t.Fatalf("expected optimistic count 3, got %d", got.Stats.CallsCount)
	}
	if len(disp.got) != 1 {
		t.Fatalf("expected a scheduled recompute")
	}

	// The scheduled dispatch arrives at the worker.
	body, _ := disp.got[0].DecodedBody()
	w := NewWorker(svc, "s3cret", nil, nil, nil)
	resp := w.Handle(ctx, Request{Method: "POST", Secret: disp.got[0].Headers[SecretHeader], Body: body})
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200, got %+v", resp)
	}

	got, _ := st.GetTenant(ctx, "t1")
	want := tenants.Stats{LeadsCount: 1, CallsCount: 2, InboundCount: 1, OutboundCount: 1, MissedCount: 1, RejectedCount: 0, TotalDurationSeconds: 42}
	if !got.Stats.SameCounters(want) {
		t.Fatalf("expected %+v, got %+v", want, got.Stats)
	}
}

func TestWorker_BearerVerifier(t *testing.T) {
	w := NewWorker(reporting.NewService(store.NewMemory()), "", nil, nil, nil).
		WithBearerVerifier(func(token string) error { return errors.New("bad signature") })

	resp := w.Handle(context.Background(), Request{Method: "GET", Authorization: "Bearer " + signedToken(t), QueryTenantIDs: []string{"t"}})
	if resp.Status != http.StatusForbidden {
		t.Fatalf("expected verifier to reject, got %+v", resp)
	}
}

func TestWorker_GinAdapter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := store.NewMemory()
	seedTenant(t, st, "t1", calls.Call{ID: "c", LeadID: "L", Direction: "inbound", DurationSeconds: 9})

	r := gin.New()
	NewWorker(reporting.NewService(st), "s", nil, nil, nil).Mount(r, "/internal/recompute")

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/internal/recompute", strings.NewReader(`{"tenantIds":"t1"}`))
	req.Header.Set(SecretHeader, "s")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Fatalf("expected 200 ok, got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/internal/recompute?tenantId=t1", nil)
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", w.Code)
	}

	got, _ := st.GetTenant(context.Background(), "t1")
	if got.Stats.InboundCount != 1 || got.Stats.LastRecalcAt.Before(time.Now().Add(-time.Minute)) {
		t.Fatalf("expected a fresh recompute, got %+v", got.Stats)
	}
}
