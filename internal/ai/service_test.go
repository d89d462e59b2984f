package ai

import (
	"context"
	"testing"
	"time"

	"atsbeaters/internal/config"
	apperrors "atsbeaters/internal/errors"
	"atsbeaters/internal/results"
	"atsbeaters/internal/tasks"

	"google.golang.org/genai"
)

type recordedCall struct {
	task  string
	model string
	in    int64
	out   int64
	err   error
}

type fakeRecorder struct {
	calls []recordedCall
	waits int
}

func (r *fakeRecorder) RecordAIRequest(_ context.Context, task, model string, _ time.Duration, in, out int64, err error) {
	r.calls = append(r.calls, recordedCall{task, model, in, out, err})
}

func (r *fakeRecorder) RecordRateLimitWait(context.Context, string, time.Duration) {
	r.waits++
}

func testConfig() *config.Config {
	return &config.Config{
		AI: config.AIConfig{
			Provider:    "gemini",
			APIKey:      "global-key",
			Timeout:     5 * time.Second,
			MaxRetries:  0,
			Temperature: 0.4,
			Tasks: map[string]config.OperationAIConfig{
				tasks.CoverLetter: {Model: "letter-model"},
			},
		},
	}
}

func newTestService(t *testing.T, cfg *config.Config, fake *fakeModels, opts ...ServiceOption) (*Service, *[]string) {
	t.Helper()
	var keys []string
	opts = append(opts, withModels(func(_ context.Context, apiKey string) (modelsAPI, error) {
		keys = append(keys, apiKey)
		return fake, nil
	}))
	svc, err := NewService(cfg, testLogger, opts...)
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	t.Cleanup(func() { _ = svc.Close() })
	return svc, &keys
}

func TestServiceRoutesModelsByTask(t *testing.T) {
	fake := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("text")}}
	rec := &fakeRecorder{}
	cfg := testConfig()
	svc, keys := newTestService(t, cfg, fake, WithRecorder(rec))

	for _, id := range []string{tasks.QuickRewrite, tasks.FullRewrite, tasks.CoverLetter} {
		def, _ := tasks.Lookup(id)
		inputs := []string{"resume", "job"}[:len(def.Inputs)]
		req, err := BuildTextRequest(cfg, def, inputs...)
		if err != nil {
			t.Fatalf("BuildTextRequest(%s) error = %v", id, err)
		}
		if _, err := svc.RunTextTask(context.Background(), req); err != nil {
			t.Fatalf("RunTextTask(%s) error = %v", id, err)
		}
	}

	want := []string{config.DefaultTextModel, config.DefaultProModel, "letter-model"}
	for i, model := range want {
		if fake.models[i] != model {
			t.Errorf("call %d used model %s, want %s", i, fake.models[i], model)
		}
	}
	if len(*keys) != 1 {
		t.Errorf("expected one shared client, got %d", len(*keys))
	}
	if len(rec.calls) != 3 || rec.calls[0].in != 12 || rec.calls[0].out != 30 {
		t.Errorf("unexpected recorded calls %+v", rec.calls)
	}
}

func TestServiceMissingAPIKey(t *testing.T) {
	cfg := testConfig()
	cfg.AI.APIKey = ""
	fake := &fakeModels{}
	svc, _ := newTestService(t, cfg, fake)

	_, err := svc.RunTextTask(context.Background(), TextRequest{Task: tasks.QuickRewrite, Prompt: "x", Shape: results.ShapeText})
	if !apperrors.HasCode(err, apperrors.ErrCodeMissingAPIKey) {
		t.Fatalf("expected MISSING_API_KEY, got %v", err)
	}
	if fake.calls != 0 {
		t.Error("provider must not be called without a key")
	}
}

func TestServiceUnsupportedProvider(t *testing.T) {
	cfg := testConfig()
	cfg.AI.Provider = "openai"
	if _, err := NewService(cfg, testLogger); !apperrors.HasCode(err, apperrors.ErrCodeInvalidConfig) {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
}

func TestServiceSetAPIKey(t *testing.T) {
	fake := &fakeModels{responses: []*genai.GenerateContentResponse{textResponse("ok")}}
	cfg := testConfig()
	svc, keys := newTestService(t, cfg, fake)

	req := TextRequest{Task: tasks.QuickRewrite, Prompt: "x", Shape: results.ShapeText}
	if _, err := svc.RunTextTask(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	svc.SetAPIKey("rotated-key")
	if _, err := svc.RunTextTask(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	if len(*keys) != 2 || (*keys)[1] != "rotated-key" {
		t.Errorf("expected a new client with the rotated key, got %v", *keys)
	}
}

func TestServiceEditImageUsesImageModel(t *testing.T) {
	fake := &fakeModels{responses: []*genai.GenerateContentResponse{{
		Candidates: []*genai.Candidate{{Content: &genai.Content{Parts: []*genai.Part{
			{InlineData: &genai.Blob{Data: []byte("img"), MIMEType: "image/png"}},
		}}}},
	}}}
	svc, _ := newTestService(t, testConfig(), fake)

	out, err := svc.EditImage(context.Background(), []byte("src"), "image/png", "Modern blur")
	if err != nil {
		t.Fatalf("EditImage() error = %v", err)
	}
	if out.Model != config.DefaultImageModel || fake.models[0] != config.DefaultImageModel {
		t.Errorf("expected image model, got %s", fake.models[0])
	}
}

func TestServiceModelInfo(t *testing.T) {
	svc, _ := newTestService(t, testConfig(), &fakeModels{})
	infos, err := svc.ModelInfo(context.Background())
	if err != nil {
		t.Fatalf("ModelInfo() error = %v", err)
	}
	if len(infos) != 3 {
		t.Fatalf("expected 3 model probes, got %d", len(infos))
	}
	if infos[1].Name != config.DefaultProModel || infos[1].Class != config.ModelClassPro || !infos[1].Available {
		t.Errorf("unexpected pro model info %+v", infos[1])
	}
	stats := svc.Stats()
	if _, ok := stats["circuit_breakers"]; !ok {
		t.Error("stats should include circuit breakers")
	}
}

func TestBuildTextRequestOverrides(t *testing.T) {
	cfg := testConfig()
	useSystem := true
	cfg.AI.Tasks[tasks.ExtractKeywords] = config.OperationAIConfig{
		UseSystemPrompts: &useSystem,
		Prompts:          config.PromptConfig{User: "List skills in: {{input}}", System: "You are a recruiter"},
	}

	def, _ := tasks.Lookup(tasks.ExtractKeywords)
	req, err := BuildTextRequest(cfg, def, "Go developer wanted")
	if err != nil {
		t.Fatalf("BuildTextRequest() error = %v", err)
	}
	if req.Prompt != "List skills in: Go developer wanted" {
		t.Errorf("unexpected prompt %q", req.Prompt)
	}
	if req.System != "You are a recruiter" {
		t.Errorf("unexpected system prompt %q", req.System)
	}
	if req.Shape != results.ShapeKeywords || req.Model != config.DefaultTextModel {
		t.Errorf("unexpected request %+v", req)
	}

	def, _ = tasks.Lookup(tasks.AnalyzeResume)
	req, err = BuildTextRequest(cfg, def, "resume")
	if err != nil {
		t.Fatal(err)
	}
	if req.System != "" {
		t.Error("system prompt should be empty when disabled")
	}
	if req.Prompt != def.BuildPrompt("resume") {
		t.Errorf("expected the built-in prompt, got %q", req.Prompt)
	}

	if _, err := BuildTextRequest(cfg, def, " "); !apperrors.HasCode(err, apperrors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT for blank input, got %v", err)
	}
}

func TestLimiterManager(t *testing.T) {
	if m := NewLimiterManager(config.RateLimitConfig{Enabled: false}, testLogger); m != nil {
		t.Fatal("disabled limiter should be nil")
	}
	var nilManager *LimiterManager
	if waited, err := nilManager.Wait(context.Background(), "x"); err != nil || waited != 0 {
		t.Errorf("nil limiter should not wait, got %v %v", waited, err)
	}

	m := NewLimiterManager(config.RateLimitConfig{Enabled: true, RequestsPerMin: 60, BurstCapacity: 1}, testLogger)
	defer m.Close()

	if _, err := m.Wait(context.Background(), "analyze-resume"); err != nil {
		t.Fatalf("first call should pass, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := m.Wait(ctx, "analyze-resume"); !apperrors.HasCode(err, apperrors.ErrCodeRateLimited) {
		t.Errorf("expected RATE_LIMITED once the bucket is empty, got %v", err)
	}
	if _, err := m.Wait(context.Background(), "ats-check"); err != nil {
		t.Errorf("other tasks keep their own bucket, got %v", err)
	}

	if stats := m.GetStats(); stats["active_limiters"] != 2 {
		t.Errorf("unexpected stats %v", stats)
	}
	m.Close()
}
