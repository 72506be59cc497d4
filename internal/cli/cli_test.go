package cli

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vadim/inkdesk/internal/httpx/middleware"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()

	root := newRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)

	err := root.Execute()
	return out.String(), err
}

type fakeStore struct {
	*httptest.Server
	toggles atomic.Int32
	status  string
}

func newFakeStore(t *testing.T, status string) *fakeStore {
	t.Helper()

	f := &fakeStore{status: status}
	mux := http.NewServeMux()
	writeJSONBody := func(w http.ResponseWriter, code int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_, _ = w.Write([]byte(body))
	}

	mux.HandleFunc("GET /conversations", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		writeJSONBody(w, http.StatusOK, `{"data":[
			{"id":"c1","status":"`+r.URL.Query().Get("status")+`","client":{"id":"k1","userId":"u2","firstName":"Ana","lastName":"Müller"},"subject":"Sleeve","unreadCount":2,"lastMessage":{"content":"see you friday","createdAt":"2026-03-01T10:00:00Z"}},
			{"id":"c2","status":"`+r.URL.Query().Get("status")+`","client":{"id":"k2","userId":"u3","firstName":"Bo"},"unreadCount":0}
		],"page":1,"totalPages":1,"total":2}`)
	})
	mux.HandleFunc("GET /conversations/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			writeJSONBody(w, http.StatusNotFound, `{"error":"conversation not found"}`)
			return
		}
		writeJSONBody(w, http.StatusOK, `{"id":"`+r.PathValue("id")+`","status":"`+f.status+`","salon":{"name":"Black Lotus"},"client":{"firstName":"Ana"},"unreadCount":1,
			"messages":[{"id":"m1","content":"hello","senderRole":"CLIENT","createdAt":"2026-03-01T09:00:00Z"}]}`)
	})
	mux.HandleFunc("POST /conversations/{id}/archive", func(w http.ResponseWriter, r *http.Request) {
		f.toggles.Add(1)
		writeJSONBody(w, http.StatusOK, `{"status":"ARCHIVED"}`)
	})
	mux.HandleFunc("POST /conversations/{id}/read", func(w http.ResponseWriter, r *http.Request) {
		writeJSONBody(w, http.StatusOK, `{"unreadCount":0}`)
	})
	mux.HandleFunc("GET /conversations/unread/recent", func(w http.ResponseWriter, r *http.Request) {
		writeJSONBody(w, http.StatusOK, `[
			{"conversationId":"c1","clientFirstName":"Ana","lastMessage":"hi","lastMessageAt":"2026-03-01T10:00:00Z","unreadCount":2},
			{"conversationId":"c3","clientFirstName":"Cy","lastMessage":"yo","lastMessageAt":"2026-03-01T09:00:00Z","unreadCount":4}
		]`)
	})
	mux.HandleFunc("GET /notification-preference", func(w http.ResponseWriter, r *http.Request) {
		writeJSONBody(w, http.StatusOK, `{"enabled":true,"frequency":"DAILY"}`)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func TestRootCommandAliases(t *testing.T) {
	root := newRootCmd("dev")

	found, _, err := root.Find([]string{"ls"})
	require.NoError(t, err)
	require.Equal(t, "list", found.Name())

	found, _, err = root.Find([]string{"get"})
	require.NoError(t, err)
	require.Equal(t, "open", found.Name())

	found, _, err = root.Find([]string{"preference", "set"})
	require.NoError(t, err)
	require.Equal(t, "set", found.Name())
}

func TestList_PrintsPage(t *testing.T) {
	srv := newFakeStore(t, "ACTIVE")

	out, err := runCLI(t, "--store-url", srv.URL, "--token", "tok", "list", "--status", "archived")
	require.NoError(t, err)
	require.Contains(t, out, "Ana Müller")
	require.Contains(t, out, "see you friday")
	require.Contains(t, out, "ARCHIVED page 1 of 1, 2 total")
}

func TestList_JSON(t *testing.T) {
	srv := newFakeStore(t, "ACTIVE")

	out, err := runCLI(t, "--store-url", srv.URL, "--token", "tok", "--json", "ls")
	require.NoError(t, err)

	var view map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	require.Equal(t, "ACTIVE", view["status"])
	require.EqualValues(t, 2, view["total"])
}

func TestList_RejectsClosedFilter(t *testing.T) {
	srv := newFakeStore(t, "ACTIVE")

	_, err := runCLI(t, "--store-url", srv.URL, "--token", "tok", "list", "--status", "CLOSED")
	require.ErrorContains(t, err, "only ACTIVE and ARCHIVED")
}

func TestStoreCommandsRequireToken(t *testing.T) {
	t.Setenv(envToken, "")
	srv := newFakeStore(t, "ACTIVE")

	_, err := runCLI(t, "--store-url", srv.URL, "list")
	require.ErrorContains(t, err, "bearer token is required")
}

func TestOpen_ShowsMessages(t *testing.T) {
	srv := newFakeStore(t, "ACTIVE")

	out, err := runCLI(t, "--store-url", srv.URL, "--token", "tok", "open", "c1", "--mark-read")
	require.NoError(t, err)
	require.Contains(t, out, "c1  ACTIVE")
	require.Contains(t, out, "unread: 0")
	require.Contains(t, out, "hello")

	_, err = runCLI(t, "--store-url", srv.URL, "--token", "tok", "open", "missing")
	require.ErrorContains(t, err, "conversation not found")
}

func TestArchive_Toggles(t *testing.T) {
	srv := newFakeStore(t, "ACTIVE")

	out, err := runCLI(t, "--store-url", srv.URL, "--token", "tok", "archive", "c1")
	require.NoError(t, err)
	require.Equal(t, "c1: ACTIVE -> ARCHIVED\n", out)
	require.EqualValues(t, 1, srv.toggles.Load())
}

func TestArchive_ClosedIsRefusedLocally(t *testing.T) {
	srv := newFakeStore(t, "CLOSED")

	_, err := runCLI(t, "--store-url", srv.URL, "--token", "tok", "archive", "c1")
	require.ErrorContains(t, err, "closed")
	require.Zero(t, srv.toggles.Load())
}

func TestLeave_RequiresConfirmation(t *testing.T) {
	_, err := runCLI(t, "--token", "tok", "leave", "c1")
	require.ErrorContains(t, err, "--yes")
}

func TestUnread_TotalsAndLimits(t *testing.T) {
	srv := newFakeStore(t, "ACTIVE")

	out, err := runCLI(t, "--store-url", srv.URL, "--token", "tok", "unread", "--limit", "1")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(out, "6 unread\n"))
	require.Contains(t, out, "c1")
	require.NotContains(t, out, "c3")
}

func TestPref(t *testing.T) {
	srv := newFakeStore(t, "ACTIVE")

	out, err := runCLI(t, "--store-url", srv.URL, "--token", "tok", "pref", "get")
	require.NoError(t, err)
	require.Contains(t, out, "email notifications: enabled")
	require.Contains(t, out, "frequency: DAILY")

	_, err = runCLI(t, "--store-url", srv.URL, "--token", "tok", "pref", "set", "--enabled", "--frequency", "WEEKLY")
	require.ErrorContains(t, err, "invalid --frequency")
}

func TestToken_MintsVerifiableToken(t *testing.T) {
	out, err := runCLI(t, "token", "salon-user", "--secret", "s3cret")
	require.NoError(t, err)
	token := strings.TrimSpace(out)

	var seen string
	h := middleware.Auth("s3cret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = middleware.UserID(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	require.Equal(t, "salon-user", seen)
}

func TestTable_AlignsWideRunes(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeTable(&buf, []string{"A", "B"}, [][]string{{"日本", "x"}, {"", "y"}}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Equal(t, []string{"A     B", "日本  x", "-     y"}, lines)
}
