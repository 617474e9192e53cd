package janitor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNotifyPostsReport(t *testing.T) {
	received := make(chan Report, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rep Report
		if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
			t.Errorf("decode body: %v", err)
		}
		received <- rep
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL)
	n.Notify(context.Background(), "feedbot", errors.New("boom"), "")

	select {
	case rep := <-received:
		if rep.App != "feedbot" || rep.Error != "boom" {
			t.Errorf("unexpected report: %+v", rep)
		}
	default:
		t.Fatalf("expected a report to be posted")
	}
}

func TestNotifyNoopWithoutEndpoint(t *testing.T) {
	n := New("")
	n.Notify(context.Background(), "feedbot", errors.New("boom"), "")
}

func TestNotifyNoopWithoutError(t *testing.T) {
	n := New("http://127.0.0.1:0")
	n.Notify(context.Background(), "feedbot", nil, "")
}
