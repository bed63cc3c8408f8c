package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/tbourn/go-insight-backend/internal/insight"
	"github.com/tbourn/go-insight-backend/internal/services"
)

func TestGenerateInsight_PassesDeviceAndUser(t *testing.T) {
	ins := &fakeInsightSvc{genResult: services.GenerationResult{
		Insight: insight.Insight{ID: "weekend_treat", Category: insight.CategoryQuirkyFirst},
		Phase:   insight.PhaseMature,
	}}
	r := newTestRouter(&fakeTxnSvc{}, ins, &fakeFbSvc{})

	body := GenerateInsightRequest{Transaction: insight.Transaction{
		ID: "t1", Date: "2026-03-14", Merchant: "Cafe Luna", Total: 890,
	}}
	w := doJSON(t, r, http.MethodPost, "/insights/generate", body, map[string]string{
		"X-User-ID":   "u9",
		"X-Device-ID": "phone-9",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if ins.genUserID != "u9" || ins.genDeviceID != "phone-9" || ins.genTxn.ID != "t1" {
		t.Errorf("plumbing: user=%q device=%q txn=%q", ins.genUserID, ins.genDeviceID, ins.genTxn.ID)
	}
	var res services.GenerationResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("json: %v", err)
	}
	if res.Insight.ID != "weekend_treat" {
		t.Errorf("insight = %+v", res.Insight)
	}
}

func TestGenerateInsight_MissingTransaction(t *testing.T) {
	r := newTestRouter(&fakeTxnSvc{}, &fakeInsightSvc{}, &fakeFbSvc{})
	w := doJSON(t, r, http.MethodPost, "/insights/generate", map[string]any{}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d; want 400", w.Code)
	}
}

func TestGetFallbackInsight(t *testing.T) {
	r := newTestRouter(&fakeTxnSvc{}, &fakeInsightSvc{}, &fakeFbSvc{})
	w := doJSON(t, r, http.MethodGet, "/insights/fallback", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var got insight.Insight
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("json: %v", err)
	}
	if got.ID != insight.FallbackID {
		t.Errorf("id = %q; want %q", got.ID, insight.FallbackID)
	}
}

func TestGetProfile_OKAndError(t *testing.T) {
	ins := &fakeInsightSvc{profile: insight.Profile{
		SchemaVersion:     insight.ProfileSchemaVersion,
		TotalTransactions: 12,
	}}
	r := newTestRouter(&fakeTxnSvc{}, ins, &fakeFbSvc{})
	w := doJSON(t, r, http.MethodGet, "/profile", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d", w.Code)
	}
	var p insight.Profile
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("json: %v", err)
	}
	if p.TotalTransactions != 12 {
		t.Errorf("TotalTransactions = %d", p.TotalTransactions)
	}

	r = newTestRouter(&fakeTxnSvc{}, &fakeInsightSvc{profileErr: errors.New("db down")}, &fakeFbSvc{})
	if w := doJSON(t, r, http.MethodGet, "/profile", nil, nil); w.Code != http.StatusInternalServerError {
		t.Errorf("error path: status=%d; want 500", w.Code)
	}
}

func TestSyncProfileHistory(t *testing.T) {
	ins := &fakeInsightSvc{profile: insight.Profile{TotalTransactions: 3}}
	r := newTestRouter(&fakeTxnSvc{}, ins, &fakeFbSvc{})

	shown := time.Date(2026, 3, 8, 9, 0, 0, 0, time.UTC)
	body := SyncHistoryRequest{RecentInsights: []insight.InsightRecord{
		{InsightID: "coffee_habit", ShownAt: shown, TransactionID: "t1"},
	}}
	w := doJSON(t, r, http.MethodPost, "/profile/sync", body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	if len(ins.syncIn) != 1 || ins.syncIn[0].InsightID != "coffee_habit" {
		t.Errorf("synced records = %+v", ins.syncIn)
	}
}

func TestSilenceAndUnsilence(t *testing.T) {
	until := time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)
	ins := &fakeInsightSvc{cache: insight.LocalInsightCache{SilencedUntil: &until}}
	r := newTestRouter(&fakeTxnSvc{}, ins, &fakeFbSvc{})

	w := doJSON(t, r, http.MethodPost, "/insights/silence", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("silence: status=%d", w.Code)
	}
	var c insight.LocalInsightCache
	if err := json.Unmarshal(w.Body.Bytes(), &c); err != nil {
		t.Fatalf("json: %v", err)
	}
	if c.SilencedUntil == nil || !c.SilencedUntil.Equal(until) {
		t.Errorf("silenced until = %v", c.SilencedUntil)
	}

	if w := doJSON(t, r, http.MethodDelete, "/insights/silence", nil, nil); w.Code != http.StatusOK {
		t.Errorf("unsilence: status=%d", w.Code)
	}

	r = newTestRouter(&fakeTxnSvc{}, &fakeInsightSvc{silenceErr: errors.New("redis gone")}, &fakeFbSvc{})
	if w := doJSON(t, r, http.MethodPost, "/insights/silence", nil, nil); w.Code != http.StatusInternalServerError {
		t.Errorf("silence error: status=%d; want 500", w.Code)
	}
}

func TestLeaveFeedback_StatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusNoContent},
		{services.ErrInvalidFeedback, http.StatusBadRequest},
		{services.ErrUnknownInsight, http.StatusNotFound},
		{services.ErrDuplicateFeedback, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	body := FeedbackRequest{InsightID: "weekend_treat", TransactionID: "t1", Value: 1}
	for _, tc := range cases {
		fb := &fakeFbSvc{err: tc.err}
		r := newTestRouter(&fakeTxnSvc{}, &fakeInsightSvc{}, fb)
		w := doJSON(t, r, http.MethodPost, "/insights/feedback", body, map[string]string{"X-User-ID": "u1"})
		if w.Code != tc.want {
			t.Errorf("%v: status=%d; want %d", tc.err, w.Code, tc.want)
		}
		if tc.err == nil && (fb.userID != "u1" || fb.insightID != "weekend_treat" || fb.value != 1) {
			t.Errorf("feedback args: %+v", fb)
		}
	}
}

func TestLeaveFeedback_MissingFields(t *testing.T) {
	r := newTestRouter(&fakeTxnSvc{}, &fakeInsightSvc{}, &fakeFbSvc{})
	w := doJSON(t, r, http.MethodPost, "/insights/feedback", map[string]any{"value": 1}, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status=%d; want 400", w.Code)
	}
}

func TestDeviceCacheRoundTripOverHTTP(t *testing.T) {
	ins := &fakeInsightSvc{cache: insight.DefaultCache(time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))}
	r := newTestRouter(&fakeTxnSvc{}, ins, &fakeFbSvc{})

	w := doJSON(t, r, http.MethodGet, "/cache", nil, map[string]string{"X-Device-ID": "d1"})
	if w.Code != http.StatusOK {
		t.Fatalf("get: status=%d", w.Code)
	}
	var c insight.LocalInsightCache
	if err := json.Unmarshal(w.Body.Bytes(), &c); err != nil {
		t.Fatalf("json: %v", err)
	}

	c.WeekdayScanCount = 5
	if w := doJSON(t, r, http.MethodPut, "/cache", c, map[string]string{"X-Device-ID": "d1"}); w.Code != http.StatusOK {
		t.Fatalf("put: status=%d body=%s", w.Code, w.Body.String())
	}
	if ins.cache.WeekdayScanCount != 5 {
		t.Errorf("stored counter = %d; want 5", ins.cache.WeekdayScanCount)
	}

	if w := doJSON(t, r, http.MethodPost, "/cache/aggregates", nil, nil); w.Code != http.StatusOK {
		t.Errorf("aggregates: status=%d", w.Code)
	}
}
