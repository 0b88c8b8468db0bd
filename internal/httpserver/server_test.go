package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/PratikDhanave/access-status-service/internal/config"
	"github.com/PratikDhanave/access-status-service/internal/extract"
	"github.com/PratikDhanave/access-status-service/internal/ingest"
	"github.com/PratikDhanave/access-status-service/internal/models"
	"github.com/PratikDhanave/access-status-service/internal/notify"
	"github.com/PratikDhanave/access-status-service/internal/reconcile"
	"github.com/PratikDhanave/access-status-service/internal/store"
)

const (
	token    = "s3cret"
	opKey    = "op-key"
	relay    = "Facilities Help <svc@help.example.edu>"
	elevator = 7
)

var mailTime = time.Date(2026, 2, 15, 12, 0, 0, 0, time.UTC)

type testServer struct {
	srv *httptest.Server
	st  *store.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st := store.NewMemoryStore()
	require.NoError(t, st.AddAccessPoint(context.Background(), elevator, "elevator", "Library East"))

	ex, err := extract.New(extract.DefaultSenderPattern,
		extract.WithClock(func() time.Time { return mailTime }),
		extract.WithLocation(time.UTC),
	)
	require.NoError(t, err)

	log := zap.NewNop()
	eng := reconcile.NewEngine(st, log)
	cfg := config.Config{
		WebhookCredential: token,
		APIKeys:           map[string]string{opKey: "alice"},
	}
	r := NewRouter(cfg, Deps{
		Store:     st,
		Engine:    eng,
		Ingest:    ingest.NewService(ex, eng, notify.Nop{}, log),
		Extractor: ex,
		Log:       log,
		Now:       func() time.Time { return mailTime.Add(2 * time.Hour) },
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, st: st}
}

// postMail sends a relay-style multipart delivery. An empty html skips the
// text/html part.
func (s *testServer) postMail(t *testing.T, query url.Values, from, subject, html string) (*http.Response, models.WebhookResponse) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	require.NoError(t, w.WriteField("From", from))
	require.NoError(t, w.WriteField("Subject", subject))
	if html != "" {
		h := textproto.MIMEHeader{}
		h.Set("Content-Disposition", `form-data; name="attachment1"; filename="body.html"`)
		h.Set("Content-Type", "text/html; charset=utf-8")
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(html))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req, err := http.NewRequest(http.MethodPost, s.srv.URL+"/email_webhook?"+query.Encode(), &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out models.WebhookResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp, out
}

func (s *testServer) getJSON(t *testing.T, path string, v any) int {
	t.Helper()
	resp, err := http.Get(s.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func (s *testServer) associate(t *testing.T, apID string, key, ref string) (int, models.TicketAssociationResponse) {
	t.Helper()
	form := url.Values{"ticket_ref": {ref}}
	req, err := http.NewRequest(http.MethodPost, s.srv.URL+"/access_points/"+apID+"/ticket", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out models.TicketAssociationResponse
	if resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func withToken(extra ...string) url.Values {
	q := url.Values{"token": {token}}
	for i := 0; i+1 < len(extra); i += 2 {
		q.Set(extra[i], extra[i+1])
	}
	return q
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusOK, s.getJSON(t, "/health", nil))
	assert.Equal(t, http.StatusOK, s.getJSON(t, "/ready", nil))
}

func TestWebhook_BadTokenIsUnauthorized(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.postMail(t, url.Values{"token": {"wrong"}}, relay, "WOT1234567 - Completed", "<p></p>")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.postMail(t, url.Values{}, relay, "WOT1234567 - Completed", "<p></p>")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	reports, statuses, _ := s.st.Counts()
	assert.Zero(t, reports)
	assert.Zero(t, statuses)
}

func TestWebhook_UnusableMailIsAcceptedAndDropped(t *testing.T) {
	s := newTestServer(t)

	cases := []struct {
		name                string
		query               url.Values
		from, subject, html string
	}{
		{"untrusted sender", withToken(), "mallory@example.com", "WOT1234567 - Completed", "<p></p>"},
		{"not a work order", withToken(), relay, "Parking lot closed", "<p></p>"},
		{"no html part", withToken(), relay, "WOT1234567 - Completed", ""},
		{"bad access point", withToken("access_point", "lobby"), relay, "WOT1234567 - Completed", "<p></p>"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp, out := s.postMail(t, tc.query, tc.from, tc.subject, tc.html)
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.False(t, out.Accepted)
			assert.NotEmpty(t, out.Reason)
			assert.NotEmpty(t, out.DeliveryID)
		})
	}

	reports, statuses, _ := s.st.Counts()
	assert.Zero(t, reports)
	assert.Zero(t, statuses)
}

func TestWebhook_TicketLifecycle(t *testing.T) {
	s := newTestServer(t)
	ap := fmt.Sprint(elevator)

	resp, first := s.postMail(t, withToken("access_point", ap), relay, "WOT1234567 - Ticket added to the watch list", "<p>new</p>")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, first.Accepted)
	assert.Equal(t, "created", first.Decision)

	var cur models.AccessPointStatusResponse
	require.Equal(t, http.StatusOK, s.getJSON(t, "/access_points/"+ap+"/status", &cur))
	require.NotNil(t, cur.Status)
	assert.Equal(t, models.StatusBroken, cur.Status.Category)
	assert.Equal(t, "Filed", cur.Status.Label)
	assert.Equal(t, "WOT1234567", cur.TicketRef)
	assert.Equal(t, "#ff4d4d", cur.Style.BackgroundColor)
	assert.Equal(t, "2 hours ago", cur.Updated)

	// The completion mail carries no access point; the ticket ref finds the report.
	resp, second := s.postMail(t, withToken(), relay, "WOT1234567 - Completed", "<p>done</p>")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "attached", second.Decision)
	assert.Equal(t, first.ReportID, second.ReportID)

	var hist models.ReportHistoryResponse
	require.Equal(t, http.StatusOK, s.getJSON(t, fmt.Sprintf("/reports/%d/statuses", first.ReportID), &hist))
	require.Len(t, hist.Statuses, 2)
	assert.Equal(t, models.StatusBroken, hist.Statuses[0].Category)
	assert.Equal(t, models.StatusFixed, hist.Statuses[1].Category)

	reports, statuses, links := s.st.Counts()
	assert.Equal(t, 1, reports)
	assert.Equal(t, 2, statuses)
	assert.Equal(t, 1, links)
}

func TestWebhook_CommentIsParsedFromHTML(t *testing.T) {
	s := newTestServer(t)
	html := `<html><body>
<p><b>Comments:</b></p>
<table>
  <tr><td>2026-02-14 09:30 - Jane Doe</td></tr>
  <tr><td>Replaced the door operator motor.</td></tr>
</table>
</body></html>`

	resp, out := s.postMail(t, withToken("access_point", fmt.Sprint(elevator)), relay, "WOT1234567 - Comments added", html)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, out.Accepted)

	var cur models.AccessPointStatusResponse
	require.Equal(t, http.StatusOK, s.getJSON(t, fmt.Sprintf("/access_points/%d/status", elevator), &cur))
	require.NotNil(t, cur.Status)
	assert.Equal(t, models.StatusInProgress, cur.Status.Category)
	assert.Equal(t, "Replaced the door operator motor.", cur.Status.Notes)
	assert.True(t, cur.Status.Timestamp.Equal(time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)))
}

func TestTicketAssociation(t *testing.T) {
	s := newTestServer(t)
	ap := fmt.Sprint(elevator)

	code, _ := s.associate(t, ap, "", "WOT5550001")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.associate(t, ap, opKey, "5550001")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = s.associate(t, "999", opKey, "WOT5550001")
	assert.Equal(t, http.StatusNotFound, code)

	code, out := s.associate(t, ap, opKey, "WOT5550001")
	require.Equal(t, http.StatusOK, code)
	assert.True(t, out.Linked)
	assert.Equal(t, "WOT5550001", out.Report.RefString())

	code, again := s.associate(t, ap, opKey, "WOT5550001")
	require.Equal(t, http.StatusOK, code)
	assert.False(t, again.Linked)
	assert.Equal(t, out.Report.ID, again.Report.ID)

	var rep models.ReportResponse
	require.Equal(t, http.StatusOK, s.getJSON(t, "/access_points/"+ap+"/report", &rep))
	require.NotNil(t, rep.Report)
	assert.Equal(t, out.Report.ID, rep.Report.ID)

	// Linked but no status yet.
	var cur models.AccessPointStatusResponse
	require.Equal(t, http.StatusOK, s.getJSON(t, "/access_points/"+ap+"/status", &cur))
	assert.Nil(t, cur.Status)
	assert.Equal(t, "never", cur.Updated)
	assert.True(t, cur.Style.Border)
}

func TestReads_BadAndUnknownIDs(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, s.getJSON(t, "/access_points/abc/status", nil))
	assert.Equal(t, http.StatusBadRequest, s.getJSON(t, "/access_points/0/report", nil))
	assert.Equal(t, http.StatusNotFound, s.getJSON(t, "/access_points/404/status", nil))
	assert.Equal(t, http.StatusNotFound, s.getJSON(t, "/access_points/404/report", nil))
	assert.Equal(t, http.StatusNotFound, s.getJSON(t, "/reports/404/statuses", nil))
}
