package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jwillz7667/CropLens/internal/insights"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

var derived = []insights.Insight{
	{Severity: insights.SeverityMedium, Message: "Significant low NDVI area detected", Recommendation: "Inspect irrigation."},
	{Severity: insights.SeverityHigh, Message: "NDVI dropped sharply vs last run", Recommendation: "Scout now."},
}

func TestInsightAlert(t *testing.T) {
	alert := InsightAlert("North block", derived)
	if alert.Subject != "CropLens insight for North block" {
		t.Errorf("Subject = %q", alert.Subject)
	}
	if alert.Severity != insights.SeverityHigh {
		t.Errorf("Severity = %q, want high", alert.Severity)
	}
	want := "MEDIUM: Significant low NDVI area detected\nInspect irrigation.\n\nHIGH: NDVI dropped sharply vs last run\nScout now."
	if alert.Body != want {
		t.Errorf("Body = %q, want %q", alert.Body, want)
	}
}

func TestDiscordNotifierRoutesBySeverity(t *testing.T) {
	var hits []string
	var lastColor int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var msg DiscordMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		hits = append(hits, r.URL.Path)
		lastColor = msg.Embeds[0].Color
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	d := &DiscordNotifier{ErrorURL: srv.URL + "/error", SuccessURL: srv.URL + "/success", Client: srv.Client()}
	ctx := context.Background()

	if err := d.Notify(ctx, Alert{Subject: "s", Severity: insights.SeverityHigh}); err != nil {
		t.Fatal(err)
	}
	if lastColor != colorRed {
		t.Errorf("high alert color = %d", lastColor)
	}
	if err := d.Notify(ctx, Alert{Subject: "s", Severity: insights.SeverityLow}); err != nil {
		t.Fatal(err)
	}
	if err := d.SendError(ctx, "boom"); err != nil {
		t.Fatal(err)
	}
	if strings.Join(hits, ",") != "/error,/success,/error" {
		t.Errorf("webhook hits = %v", hits)
	}
}

func TestDiscordNotifierReportsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := &DiscordNotifier{ErrorURL: srv.URL}
	if err := d.Notify(context.Background(), Alert{Severity: insights.SeverityMedium}); err == nil {
		t.Error("expected an error for a 429 response")
	}
}

func TestDiscordNotifierSkipsWithoutURL(t *testing.T) {
	d := &DiscordNotifier{}
	if err := d.Notify(context.Background(), Alert{Severity: insights.SeverityHigh}); err != nil {
		t.Errorf("expected silent skip, got %v", err)
	}
}

type fakeTwilio struct {
	params []*twilioApi.CreateMessageParams
	err    error
}

func (f *fakeTwilio) CreateMessage(p *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = append(f.params, p)
	return &twilioApi.ApiV2010Message{}, f.err
}

func TestSMSNotifier(t *testing.T) {
	fake := &fakeTwilio{}
	n := &SMSNotifier{api: fake, from: "+15550001", to: "+15550002"}

	if err := n.Notify(context.Background(), InsightAlert("North block", derived)); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if len(fake.params) != 1 {
		t.Fatalf("sent %d messages, want 1", len(fake.params))
	}
	p := fake.params[0]
	if *p.To != "+15550002" || *p.From != "+15550001" || !strings.HasPrefix(*p.Body, "CropLens insight for North block\n") {
		t.Errorf("unexpected params to=%s from=%s body=%q", *p.To, *p.From, *p.Body)
	}

	fake.err = errors.New("twilio down")
	if err := n.Notify(context.Background(), Alert{Severity: insights.SeverityHigh}); err == nil {
		t.Error("expected the Twilio error to propagate")
	}
}

func TestSMSNotifierSeverityGate(t *testing.T) {
	improving := []insights.Insight{{Severity: insights.SeverityLow, Message: "Canopy vigor improving", Recommendation: "Keep going."}}
	lowArea := []insights.Insight{{Severity: insights.SeverityMedium, Message: "Significant low NDVI area detected", Recommendation: "Inspect irrigation."}}

	tests := []struct {
		name     string
		minimum  insights.Severity
		alert    Alert
		wantSent int
	}{
		{name: "low alert, default minimum", alert: InsightAlert("North", improving), wantSent: 0},
		{name: "medium alert, default minimum", alert: InsightAlert("North", lowArea), wantSent: 0},
		{name: "high alert, default minimum", alert: InsightAlert("North", derived), wantSent: 1},
		{name: "medium alert, medium minimum", minimum: insights.SeverityMedium, alert: InsightAlert("North", lowArea), wantSent: 1},
		{name: "low alert, low minimum", minimum: insights.SeverityLow, alert: InsightAlert("North", improving), wantSent: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeTwilio{}
			n := &SMSNotifier{MinSeverity: tt.minimum, api: fake, from: "+15550001", to: "+15550002"}
			if err := n.Notify(context.Background(), tt.alert); err != nil {
				t.Fatalf("Notify failed: %v", err)
			}
			if len(fake.params) != tt.wantSent {
				t.Errorf("sent %d messages, want %d", len(fake.params), tt.wantSent)
			}
		})
	}

	if n := NewSMSNotifier("sid", "token", "+1", "+2"); n.MinSeverity != insights.SeverityHigh {
		t.Errorf("default MinSeverity = %q", n.MinSeverity)
	}
}

func TestSMSNotifierSkipsWhenUnconfigured(t *testing.T) {
	n := NewSMSNotifier("", "", "", "")
	if err := n.Notify(context.Background(), Alert{}); err != nil {
		t.Errorf("expected a skip, got %v", err)
	}
}

type recorder struct {
	alerts []Alert
	err    error
}

func (r *recorder) Notify(_ context.Context, a Alert) error {
	r.alerts = append(r.alerts, a)
	return r.err
}

func TestMulti(t *testing.T) {
	a, b := &recorder{err: errors.New("a failed")}, &recorder{}
	err := Multi{a, b}.Notify(context.Background(), Alert{Subject: "x"})
	if err == nil || !strings.Contains(err.Error(), "a failed") {
		t.Errorf("err = %v", err)
	}
	if len(b.alerts) != 1 {
		t.Error("a failing notifier must not stop the rest")
	}
}
