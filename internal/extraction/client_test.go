package extraction

import (
	"context"
	"errors"
	"testing"
)

const validJSON = `{
	"personalInfo": {"name": "Ada Lovelace", "email": "", "phone": "", "location": "", "summary": "", "aboutMe": ""},
	"experience": [],
	"skills": {"technical": ["go"], "soft": [], "languages": []},
	"education": [],
	"projects": [],
	"certifications": []
}`

type fakeProvider struct {
	responses []string
	errs      []error
	tokens    int
	calls     int
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Generate(_ context.Context, _ string, _ GenerationConfig) (string, int, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", 0, f.errs[i]
	}
	if i >= len(f.responses) {
		return "", 0, errors.New("fakeProvider: no more responses queued")
	}
	return f.responses[i], f.tokens, nil
}

type fakeQuota struct {
	allowed        bool
	monthlyAllowed bool
	recorded       []int
	checkErr       error
	recordErr      error
	checkCalls     int
}

func (f *fakeQuota) CheckDaily(_ context.Context, _, _ string) (bool, int, error) {
	f.checkCalls++
	if f.checkErr != nil {
		return false, 0, f.checkErr
	}
	return f.allowed, 0, nil
}

func (f *fakeQuota) CheckMonthlyTokens(_ context.Context, _, _ string) (bool, int, error) {
	return f.monthlyAllowed, 0, nil
}

func (f *fakeQuota) Record(_ context.Context, _, _ string, tokens int) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, tokens)
	return nil
}

func TestClient_Extract_Success(t *testing.T) {
	provider := &fakeProvider{responses: []string{validJSON}, tokens: 120}
	quota := &fakeQuota{allowed: true, monthlyAllowed: true}
	client := New(provider, quota, "extraction")

	record, err := client.Extract(context.Background(), "principal-1", "some resume text")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if record.PersonalInfo.Name != "Ada Lovelace" {
		t.Errorf("PersonalInfo.Name = %q", record.PersonalInfo.Name)
	}
	if len(quota.recorded) != 1 || quota.recorded[0] != 120 {
		t.Errorf("recorded usage = %#v, want [120]", quota.recorded)
	}
}

func TestClient_Extract_QuotaExhaustedSkipsCall(t *testing.T) {
	provider := &fakeProvider{responses: []string{validJSON}}
	quota := &fakeQuota{allowed: false}
	client := New(provider, quota, "extraction")

	_, err := client.Extract(context.Background(), "principal-1", "resume text")
	if err == nil {
		t.Fatal("expected quota-exhausted error")
	}
	var extractionErr *Error
	if !errors.As(err, &extractionErr) || extractionErr.Kind != FailureQuotaExhausted {
		t.Errorf("err = %v, want FailureQuotaExhausted", err)
	}
	if provider.calls != 0 {
		t.Errorf("provider should not be called when quota is exhausted, got %d calls", provider.calls)
	}
	if len(quota.recorded) != 0 {
		t.Error("quota must not be charged for a call that never happened")
	}
}

func TestClient_Extract_MonthlyTokenQuotaExhaustedSkipsCall(t *testing.T) {
	provider := &fakeProvider{responses: []string{validJSON}}
	quota := &fakeQuota{allowed: true, monthlyAllowed: false}
	client := New(provider, quota, "extraction")

	_, err := client.Extract(context.Background(), "principal-1", "resume text")
	if err == nil {
		t.Fatal("expected quota-exhausted error")
	}
	var extractionErr *Error
	if !errors.As(err, &extractionErr) || extractionErr.Kind != FailureQuotaExhausted {
		t.Errorf("err = %v, want FailureQuotaExhausted", err)
	}
	if provider.calls != 0 {
		t.Errorf("provider should not be called when monthly token quota is exhausted, got %d calls", provider.calls)
	}
}

func TestClient_Extract_MalformedJSONIsRepairedOnce(t *testing.T) {
	provider := &fakeProvider{responses: []string{"not json", validJSON}, tokens: 50}
	quota := &fakeQuota{allowed: true, monthlyAllowed: true}
	client := New(provider, quota, "extraction")

	record, err := client.Extract(context.Background(), "principal-1", "resume text")
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if provider.calls != 2 {
		t.Errorf("expected exactly one repair call (2 total), got %d", provider.calls)
	}
	if record.PersonalInfo.Name != "Ada Lovelace" {
		t.Errorf("PersonalInfo.Name = %q", record.PersonalInfo.Name)
	}
	if len(quota.recorded) != 1 || quota.recorded[0] != 100 {
		t.Errorf("recorded usage = %#v, want [100] (both calls' tokens summed)", quota.recorded)
	}
}

func TestClient_Extract_RepairFailureIsParseFailure(t *testing.T) {
	provider := &fakeProvider{responses: []string{"not json", "still not json"}}
	quota := &fakeQuota{allowed: true, monthlyAllowed: true}
	client := New(provider, quota, "extraction")

	_, err := client.Extract(context.Background(), "principal-1", "resume text")
	var extractionErr *Error
	if !errors.As(err, &extractionErr) || extractionErr.Kind != FailureParse {
		t.Errorf("err = %v, want FailureParse", err)
	}
	if provider.calls != 2 {
		t.Errorf("expected exactly one repair attempt, got %d calls", provider.calls)
	}
}

func TestClient_Extract_MissingFieldIsSchemaFailure(t *testing.T) {
	missingSkills := `{"personalInfo": {}, "experience": [], "education": [], "projects": [], "certifications": []}`
	provider := &fakeProvider{responses: []string{missingSkills, missingSkills}}
	quota := &fakeQuota{allowed: true, monthlyAllowed: true}
	client := New(provider, quota, "extraction")

	_, err := client.Extract(context.Background(), "principal-1", "resume text")
	var extractionErr *Error
	if !errors.As(err, &extractionErr) || extractionErr.Kind != FailureSchema {
		t.Errorf("err = %v, want FailureSchema", err)
	}
}

func TestClient_Extract_ProviderErrorDoesNotChargeQuotaWithoutTokens(t *testing.T) {
	provider := &fakeProvider{errs: []error{errors.New("connection refused")}}
	quota := &fakeQuota{allowed: true, monthlyAllowed: true}
	client := New(provider, quota, "extraction")

	_, err := client.Extract(context.Background(), "principal-1", "resume text")
	var extractionErr *Error
	if !errors.As(err, &extractionErr) || extractionErr.Kind != FailureUnavailable {
		t.Errorf("err = %v, want FailureUnavailable", err)
	}
	if len(quota.recorded) != 0 {
		t.Error("a provider error with no billed tokens must not record usage")
	}
}
