package admission

import (
	"context"
	"testing"

	"github.com/wisbric/resumeforge/internal/quota"
)

type fakeSensor struct{ underPressure bool }

func (f fakeSensor) IsUnderPressure() bool { return f.underPressure }

type fakeWindow struct {
	allowed  bool
	checked  int
	checkErr error
}

func (f *fakeWindow) CheckWindow(_ context.Context, _, _ string, _ int) (quota.WindowResult, error) {
	f.checked++
	if f.checkErr != nil {
		return quota.WindowResult{}, f.checkErr
	}
	return quota.WindowResult{Allowed: f.allowed}, nil
}

type fakeDaily struct {
	allowed bool
	checked int
}

func (f *fakeDaily) CheckDaily(_ context.Context, _, _ string) (bool, int, error) {
	f.checked++
	return f.allowed, 0, nil
}

func TestAdmit_DeniesOnPressureBeforeOtherChecks(t *testing.T) {
	window := &fakeWindow{allowed: true}
	c := New(fakeSensor{underPressure: true}, window, &fakeDaily{allowed: true}, DefaultWindowCaps())

	decision, err := c.Admit(context.Background(), "principal-1", ClassLLM, "resume_extraction")
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if decision.Allowed {
		t.Fatal("expected denial under pressure")
	}
	if decision.Reason != DeniedPressure {
		t.Errorf("Reason = %q, want %q", decision.Reason, DeniedPressure)
	}
	if window.checked != 0 {
		t.Error("window should not be consulted once pressure denies the request")
	}
}

func TestAdmit_DeniesOnWindowBeforeDailyQuota(t *testing.T) {
	window := &fakeWindow{allowed: false}
	daily := &fakeDaily{allowed: false}
	c := New(fakeSensor{}, window, daily, DefaultWindowCaps())

	decision, err := c.Admit(context.Background(), "principal-1", ClassLLM, "resume_extraction")
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if decision.Allowed || decision.Reason != DeniedWindow {
		t.Errorf("decision = %+v, want window denial", decision)
	}
	if daily.checked != 0 {
		t.Error("daily quota should not be consulted once the window denies")
	}
}

func TestAdmit_DeniesOnDailyQuota(t *testing.T) {
	window := &fakeWindow{allowed: true}
	c := New(fakeSensor{}, window, &fakeDaily{allowed: false}, DefaultWindowCaps())

	decision, err := c.Admit(context.Background(), "principal-1", ClassLLM, "resume_extraction")
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if decision.Allowed || decision.Reason != DeniedDailyQuota {
		t.Errorf("decision = %+v, want daily quota denial", decision)
	}
	if window.checked != 1 {
		t.Errorf("window.checked = %d, want 1 (the window slot is spent even though the daily quota later denies)", window.checked)
	}
}

func TestAdmit_AllowsAndConsumesWindowSlot(t *testing.T) {
	window := &fakeWindow{allowed: true}
	c := New(fakeSensor{}, window, &fakeDaily{allowed: true}, DefaultWindowCaps())

	decision, err := c.Admit(context.Background(), "principal-1", ClassDefault, "")
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if !decision.Allowed {
		t.Fatalf("decision = %+v, want allowed", decision)
	}
	if window.checked != 1 {
		t.Errorf("window.checked = %d, want 1", window.checked)
	}
}

func TestAdmit_SkipsDailyQuotaWhenNoAPIKind(t *testing.T) {
	window := &fakeWindow{allowed: true}
	daily := &fakeDaily{allowed: false}
	c := New(fakeSensor{}, window, daily, DefaultWindowCaps())

	decision, err := c.Admit(context.Background(), "principal-1", ClassDefault, "")
	if err != nil {
		t.Fatalf("Admit() error = %v", err)
	}
	if !decision.Allowed {
		t.Errorf("expected admission when no apiKind is named, even though daily quota would deny")
	}
	if daily.checked != 0 {
		t.Error("daily quota should not be consulted when no apiKind is named")
	}
}
