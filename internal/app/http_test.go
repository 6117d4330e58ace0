package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"fieldnotes/api/internal/auth"
	"fieldnotes/api/internal/comments"
	"fieldnotes/api/internal/util"
)

func newHTTPFixture(t *testing.T, gw *fakeGateway) (*HTTPServer, string) {
	t.Helper()
	dir := writerDirectory("u1")
	svc := newTestService(dir, gw)
	server := NewHTTPServer(svc, "*")

	token, err := auth.IssueToken([]byte(testConfig().JWTSecret), auth.Claims{
		Sub:  "u1",
		Name: "Ada Writer",
		JTI:  util.NewID("jti"),
		Exp:  time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return server, token
}

func doRequest(server *HTTPServer, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	return recorder
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newHTTPFixture(t, &fakeGateway{text: "{}"})
	resp := doRequest(server, http.MethodGet, "/api/health", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestCommentsRequireAuth(t *testing.T) {
	server, _ := newHTTPFixture(t, &fakeGateway{text: "{}"})

	resp := doRequest(server, http.MethodGet, "/api/comments", "", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}

	resp = doRequest(server, http.MethodGet, "/api/comments", "not-a-token", "")
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", resp.Code)
	}
}

func TestSessionEndpointWithoutToken(t *testing.T) {
	server, _ := newHTTPFixture(t, &fakeGateway{text: "{}"})
	resp := doRequest(server, http.MethodGet, "/api/session", "", "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var payload struct {
		Authenticated bool `json:"authenticated"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Authenticated {
		t.Fatalf("expected unauthenticated session payload")
	}
}

func TestSignUpOverHTTP(t *testing.T) {
	server, _ := newHTTPFixture(t, &fakeGateway{text: "{}"})

	resp := doRequest(server, http.MethodPost, "/api/auth/signup", "",
		`{"email":"new@example.com","password":"long-enough","displayName":"Nora New"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	var payload struct {
		Token    string `json:"token"`
		UserID   string `json:"userId"`
		UserName string `json:"userName"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Token == "" || payload.UserName != "Nora New" {
		t.Fatalf("unexpected signup payload %+v", payload)
	}

	// The issued token works against authenticated routes.
	resp = doRequest(server, http.MethodGet, "/api/comments", payload.Token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with signup token, got %d", resp.Code)
	}

	resp = doRequest(server, http.MethodPost, "/api/auth/signup", "",
		`{"email":"new@example.com","password":"long-enough"}`)
	if resp.Code != http.StatusConflict {
		t.Fatalf("duplicate signup: expected 409, got %d", resp.Code)
	}
}

func TestCommentLifecycleOverHTTP(t *testing.T) {
	gw := &fakeGateway{text: "{}"}
	server, token := newHTTPFixture(t, gw)

	resp := doRequest(server, http.MethodPost, "/api/comments/add", token,
		`{"explore":"orders","field":"status","comment":"{\"content\":\"needs a label\"}"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("add: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}

	var state CommentState
	if err := json.Unmarshal(resp.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode add response: %v", err)
	}
	blob, err := comments.Parse(state.Comments)
	if err != nil {
		t.Fatalf("parse snapshot: %v", err)
	}
	ec, ok := blob.Explore("orders")
	if !ok {
		t.Fatalf("snapshot missing explore")
	}
	list := ec.Comments("status")
	if len(list) != 1 || list[0].Content != "needs a label" {
		t.Fatalf("unexpected comments %+v", list)
	}
	pk := list[0].PK

	resp = doRequest(server, http.MethodPost, "/api/comments/edit", token,
		fmt.Sprintf(`{"explore":"orders","field":"status","comment":"{\"pk\":\"%s\",\"content\":\"has a label now\"}"}`, pk))
	if resp.Code != http.StatusOK {
		t.Fatalf("edit: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode edit response: %v", err)
	}
	blob, err = comments.Parse(state.Comments)
	if err != nil {
		t.Fatalf("parse snapshot: %v", err)
	}
	ec, _ = blob.Explore("orders")
	list = ec.Comments("status")
	if len(list) != 1 || list[0].Content != "has a label now" || !list[0].Edited {
		t.Fatalf("unexpected edited comments %+v", list)
	}

	resp = doRequest(server, http.MethodPost, "/api/comments/delete", token,
		fmt.Sprintf(`{"explore":"orders","field":"status","comment":"{\"pk\":\"%s\"}"}`, pk))
	if resp.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &state); err != nil {
		t.Fatalf("decode delete response: %v", err)
	}
	blob, err = comments.Parse(state.Comments)
	if err != nil {
		t.Fatalf("parse snapshot: %v", err)
	}
	ec, _ = blob.Explore("orders")
	if got := len(ec.Comments("status")); got != 0 {
		t.Fatalf("expected empty thread after delete, got %d", got)
	}

	if len(gw.saved) != 3 {
		t.Fatalf("expected 3 saves, got %d", len(gw.saved))
	}
}

func TestCommentMutationValidation(t *testing.T) {
	server, token := newHTTPFixture(t, &fakeGateway{text: "{}"})

	resp := doRequest(server, http.MethodPost, "/api/comments/add", token,
		`{"field":"status","comment":"{\"content\":\"x\"}"}`)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing explore: expected 422, got %d", resp.Code)
	}

	resp = doRequest(server, http.MethodPost, "/api/comments/add", token,
		`{"explore":"orders","comment":"{\"content\":\"x\"}"}`)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing field: expected 422, got %d", resp.Code)
	}

	resp = doRequest(server, http.MethodPost, "/api/comments/add", token,
		`{"explore":"orders","field":"status","comment":"not json"}`)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("bad comment payload: expected 422, got %d", resp.Code)
	}

	resp = doRequest(server, http.MethodPost, "/api/comments/rename", token,
		`{"explore":"orders","field":"status","comment":"{}"}`)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("unknown action: expected 404, got %d", resp.Code)
	}
}

func TestSearchEndpointFallsBackToBlobScan(t *testing.T) {
	server, token := newHTTPFixture(t, &fakeGateway{text: seededBlob})

	resp := doRequest(server, http.MethodGet, "/api/search?q=stale", token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var payload struct {
		Results []struct {
			Field string `json:"field"`
			PK    string `json:"pk"`
		} `json:"results"`
		Total int `json:"total"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Total != 1 || len(payload.Results) != 1 || payload.Results[0].PK != "2000::9" {
		t.Fatalf("unexpected search payload %+v", payload)
	}
}

func TestExportCSVOverHTTP(t *testing.T) {
	server, token := newHTTPFixture(t, &fakeGateway{text: seededBlob})

	resp := doRequest(server, http.MethodGet, "/api/export?explore=orders&format=csv", token, "")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", resp.Code, resp.Body.String())
	}
	if ct := resp.Header().Get("Content-Type"); !strings.Contains(ct, "csv") {
		t.Fatalf("expected csv content type, got %q", ct)
	}
	body := resp.Body.String()
	if !strings.Contains(body, "check the tz") || !strings.Contains(body, "stale docs") {
		t.Fatalf("csv missing comment rows: %s", body)
	}
}

func TestHistoryUnavailableWithoutArchive(t *testing.T) {
	server, token := newHTTPFixture(t, &fakeGateway{text: "{}"})
	resp := doRequest(server, http.MethodGet, "/api/history", token, "")
	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}
