package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/xuri/excelize/v2"

	"recurring-donations/internal/audit"
	"recurring-donations/internal/auth"
	"recurring-donations/internal/observability/logging"
	"recurring-donations/internal/pledges/application"
	pledges "recurring-donations/internal/pledges/domain"
	"recurring-donations/internal/pledges/infrastructure/memory"
)

func newTestHandler(t *testing.T, now time.Time) *PledgeHandler {
	t.Helper()
	logger := logging.Discard()
	service, err := application.NewPledgeService(
		memory.NewPledgeRepository(),
		audit.NewMemoryStore(),
		NewLoggingDuePublisher(logger),
		pledges.FixedClock(now),
		logger,
		application.Options{},
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	handler, err := NewPledgeHandler(service, ScheduleDefaults{})
	if err != nil {
		t.Fatalf("new handler: %v", err)
	}
	return handler
}

func do(t *testing.T, h http.Handler, ctx context.Context, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if ctx != nil {
		req = req.WithContext(ctx)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func createPledge(t *testing.T, h http.Handler, body string) pledges.Pledge {
	t.Helper()
	rec := do(t, h, nil, http.MethodPost, "/api/v1/pledges", body, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var pledge pledges.Pledge
	if err := json.Unmarshal(rec.Body.Bytes(), &pledge); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return pledge
}

const endDatePledge = `{
	"donor_id": "donor-1",
	"amount": "10.00",
	"currency": "USD",
	"category": "education",
	"frequency": "monthly",
	"day_of_month": 15,
	"start_date": "2024-01-10",
	"end_date": "2024-03-20"
}`

func TestPledgeHandler_CreateAndGet(t *testing.T) {
	h := newTestHandler(t, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC))
	pledge := createPledge(t, h, endDatePledge)
	if pledge.Policy.NextPaymentDate == nil || pledge.Policy.NextPaymentDate.Format(dateLayout) != "2024-01-15" {
		t.Fatalf("unexpected next payment: %+v", pledge.Policy)
	}

	rec := do(t, h, nil, http.MethodGet, "/api/v1/pledges/"+pledge.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}
	rec = do(t, h, nil, http.MethodGet, "/api/v1/pledges/missing", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing: expected 404, got %d", rec.Code)
	}
}

func TestPledgeHandler_CreateValidation(t *testing.T) {
	h := newTestHandler(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	cases := map[string]string{
		"bad json":      `{`,
		"zero interval": `{"donor_id":"d","amount":"5","currency":"USD","frequency":"monthly","interval":0,"start_date":"2024-01-10"}`,
		"bad frequency": `{"donor_id":"d","amount":"5","currency":"USD","frequency":"fortnightly","start_date":"2024-01-10"}`,
		"bad date":      `{"donor_id":"d","amount":"5","currency":"USD","frequency":"weekly","start_date":"10/01/2024"}`,
		"weekday range": `{"donor_id":"d","amount":"5","currency":"USD","frequency":"weekly","day_of_week":7,"start_date":"2024-01-10"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rec := do(t, h, nil, http.MethodPost, "/api/v1/pledges", body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestPledgeHandler_ScheduleStopsAtEndDate(t *testing.T) {
	h := newTestHandler(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	pledge := createPledge(t, h, endDatePledge)

	rec := do(t, h, nil, http.MethodGet, "/api/v1/pledges/"+pledge.ID+"/schedule?count=12", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("schedule: expected 200, got %d", rec.Code)
	}
	var resp struct {
		Occurrences []pledges.Occurrence `json:"occurrences"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []string{"2024-01-15", "2024-02-15", "2024-03-15"}
	if len(resp.Occurrences) != len(want) {
		t.Fatalf("expected %d occurrences, got %d", len(want), len(resp.Occurrences))
	}
	for i, occ := range resp.Occurrences {
		if occ.DueDate.Format(dateLayout) != want[i] {
			t.Fatalf("occurrence %d: expected %s, got %s", i, want[i], occ.DueDate.Format(dateLayout))
		}
		if occ.Reference != pledge.ID+"_"+want[i] {
			t.Fatalf("unexpected reference %s", occ.Reference)
		}
	}

	rec = do(t, h, nil, http.MethodGet, "/api/v1/pledges/"+pledge.ID+"/schedule?count=-1", "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative count: expected 400, got %d", rec.Code)
	}
}

func TestPledgeHandler_ExecutionIdempotency(t *testing.T) {
	h := newTestHandler(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC))
	pledge := createPledge(t, h, endDatePledge)
	path := "/api/v1/pledges/" + pledge.ID + "/executions"

	rec := do(t, h, nil, http.MethodPost, path, "", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing key: expected 400, got %d", rec.Code)
	}

	headers := map[string]string{"Idempotency-Key": "charge-1"}
	rec = do(t, h, nil, http.MethodPost, path, "", headers)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	rec = do(t, h, nil, http.MethodPost, path, "", headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay: expected 200, got %d", rec.Code)
	}
	var result application.ExecutionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.Replayed || result.Pledge.Policy.TotalExecutions != 1 {
		t.Fatalf("unexpected replay result: %+v", result)
	}
}

func TestPledgeHandler_StopAndHistory(t *testing.T) {
	h := newTestHandler(t, time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC))
	pledge := createPledge(t, h, endDatePledge)

	rec := do(t, h, nil, http.MethodPost, "/api/v1/pledges/"+pledge.ID+"/stop", `{"reason":"moved abroad"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop: expected 200, got %d", rec.Code)
	}
	rec = do(t, h, nil, http.MethodGet, "/api/v1/pledges/"+pledge.ID+"/history", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: expected 200, got %d", rec.Code)
	}
	var entries []audit.Entry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 || entries[1].Action != application.ActionPledgeStopped {
		t.Fatalf("unexpected history: %+v", entries)
	}
}

func TestPledgeHandler_StopRejectsMalformedBody(t *testing.T) {
	h := newTestHandler(t, time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC))
	pledge := createPledge(t, h, endDatePledge)

	rec := do(t, h, nil, http.MethodPost, "/api/v1/pledges/"+pledge.ID+"/stop", `{"reason":`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("stop: expected 400, got %d", rec.Code)
	}
	rec = do(t, h, nil, http.MethodGet, "/api/v1/pledges/"+pledge.ID, "", nil)
	var stored pledges.Pledge
	if err := json.Unmarshal(rec.Body.Bytes(), &stored); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !stored.Policy.IsActive {
		t.Fatalf("pledge stopped despite malformed body")
	}
}

func TestPledgeHandler_ViewerCannotRecordExecutionBehindAuth(t *testing.T) {
	h := newTestHandler(t, time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC))
	secret := []byte("test-secret")
	wrapped := auth.NewMiddleware(secret, auth.NewDefaultPolicy(nil, nil)).Wrap(h)
	headers := map[string]string{
		"Authorization":   "Bearer " + signedToken(t, secret, "donor-1", "viewer"),
		"Idempotency-Key": "charge-1",
	}

	rec := do(t, wrapped, nil, http.MethodPost, "/api/v1/pledges", endDatePledge, headers)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var pledge pledges.Pledge
	if err := json.Unmarshal(rec.Body.Bytes(), &pledge); err != nil {
		t.Fatalf("decode: %v", err)
	}
	for _, path := range []string{
		"/api/v1/pledges/" + pledge.ID + "/executions",
		"/api/v1/pledges/" + pledge.ID + "/executions/",
	} {
		rec = do(t, wrapped, nil, http.MethodPost, path, "", headers)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403, got %d", path, rec.Code)
		}
	}
	rec = do(t, wrapped, nil, http.MethodGet, "/api/v1/pledges/"+pledge.ID, "", headers)
	var stored pledges.Pledge
	if err := json.Unmarshal(rec.Body.Bytes(), &stored); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stored.Policy.TotalExecutions != 0 {
		t.Fatalf("execution recorded by viewer: %+v", stored.Policy)
	}
}

func signedToken(t *testing.T, secret []byte, donorID, role string) string {
	t.Helper()
	claims := auth.Claims{
		DonorID: donorID,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestPledgeHandler_ViewerCannotReadOtherDonor(t *testing.T) {
	h := newTestHandler(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	pledge := createPledge(t, h, endDatePledge)
	ctx := auth.WithIdentity(context.Background(), "donor-2", auth.RoleViewer, "u-2")

	rec := do(t, h, ctx, http.MethodGet, "/api/v1/pledges/"+pledge.ID, "", nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestPledgeHandler_Exports(t *testing.T) {
	h := newTestHandler(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC))
	pledge := createPledge(t, h, `{"donor_id":"donor-1","amount":"7.5","currency":"EUR","frequency":"weekly","day_of_week":1,"start_date":"2024-01-10"}`)

	rec := do(t, h, nil, http.MethodGet, "/api/v1/pledges/"+pledge.ID+"/schedule.pdf", "", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "application/pdf" {
		t.Fatalf("pdf: unexpected response %d %s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("pdf: missing header")
	}

	rec = do(t, h, nil, http.MethodGet, "/api/v1/pledges/"+pledge.ID+"/schedule.xlsx", "", nil)
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != xlsxMimeType {
		t.Fatalf("xlsx: unexpected response %d", rec.Code)
	}
	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer book.Close()
	rows, err := book.GetRows("occurrences")
	if err != nil {
		t.Fatalf("rows: %v", err)
	}
	if len(rows) != 25 {
		t.Fatalf("expected header plus 24 rows, got %d", len(rows))
	}
	if rows[1][1] != "2024-01-15" {
		t.Fatalf("expected first monday 2024-01-15, got %s", rows[1][1])
	}
}
