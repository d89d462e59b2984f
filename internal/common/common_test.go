package common

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"atsbeaters/internal/ai"
	"atsbeaters/internal/config"
	"atsbeaters/internal/errors"
	"atsbeaters/internal/results"
	"atsbeaters/internal/session"
	"atsbeaters/internal/tasks"
	"atsbeaters/internal/workspace"
)

func TestValidateOutputFormat(t *testing.T) {
	supported := []string{"json", "text", "markdown"}
	tests := []struct {
		name        string
		format      string
		supported   []string
		expectError bool
	}{
		{"json", "json", supported, false},
		{"markdown", "markdown", supported, false},
		{"xml rejected", "xml", supported, true},
		{"case sensitive", "JSON", supported, true},
		{"empty format", "", supported, true},
		{"no restriction", "xml", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputFormat(tt.format, tt.supported)
			if (err != nil) != tt.expectError {
				t.Fatalf("ValidateOutputFormat(%q) error = %v, expectError %v", tt.format, err, tt.expectError)
			}
			if err != nil && !errors.HasCode(err, errors.ErrCodeInvalidFormat) {
				t.Errorf("ValidateOutputFormat(%q) code = %v, want %s", tt.format, err, errors.ErrCodeInvalidFormat)
			}
		})
	}
}

func TestValidateAndReadFiles(t *testing.T) {
	dir := t.TempDir()
	resume := filepath.Join(dir, "resume.txt")
	if err := os.WriteFile(resume, []byte("Jane Doe"), 0600); err != nil {
		t.Fatal(err)
	}

	fp := NewFileProcessor(nil, WithStdin(strings.NewReader("Job text")), WithLimits(64, 0))

	contents, err := fp.ValidateAndReadFiles(resume, "-")
	if err != nil {
		t.Fatalf("ValidateAndReadFiles: %v", err)
	}
	if contents[0] != "Jane Doe" || contents[1] != "Job text" {
		t.Errorf("unexpected contents: %q", contents)
	}

	if _, err := fp.ValidateAndReadFiles("-", "-"); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT for two stdin inputs, got %v", err)
	}
	if _, err := fp.ValidateAndReadFiles(filepath.Join(dir, "missing.txt")); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected INVALID_INPUT for missing file, got %v", err)
	}

	big := filepath.Join(dir, "big.txt")
	if err := os.WriteFile(big, bytes.Repeat([]byte("a"), 100), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := fp.ValidateAndReadFiles(big); !errors.HasCode(err, errors.ErrCodeInvalidInput) {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestReadImage(t *testing.T) {
	dir := t.TempDir()
	png := filepath.Join(dir, "me.png")
	pngHeader := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if err := os.WriteFile(png, pngHeader, 0600); err != nil {
		t.Fatal(err)
	}
	txt := filepath.Join(dir, "me.txt")
	if err := os.WriteFile(txt, []byte("not an image"), 0600); err != nil {
		t.Fatal(err)
	}

	fp := NewFileProcessor(nil)
	data, mime, err := fp.ReadImage(png)
	if err != nil {
		t.Fatalf("ReadImage: %v", err)
	}
	if mime != "image/png" || len(data) != len(pngHeader) {
		t.Errorf("unexpected image: %s, %d bytes", mime, len(data))
	}

	if _, _, err := fp.ReadImage(txt); !errors.HasCode(err, errors.ErrCodeInvalidFormat) {
		t.Errorf("expected INVALID_FORMAT, got %v", err)
	}
}

func TestHandleOutput(t *testing.T) {
	var stdout bytes.Buffer
	oh := NewOutputHandlerTo(nil, &stdout)

	if err := oh.HandleOutput(results.Text("hello"), CommandConfig{OutputFormat: "text"}); err != nil {
		t.Fatalf("HandleOutput: %v", err)
	}
	if !strings.Contains(stdout.String(), "hello") {
		t.Errorf("stdout = %q", stdout.String())
	}

	path := filepath.Join(t.TempDir(), "nested", "out.json")
	if err := oh.HandleOutput(results.Text("hello"), CommandConfig{OutputFile: path, OutputFormat: "json"}); err != nil {
		t.Fatalf("HandleOutput to file: %v", err)
	}
	written, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(written)) != `"hello"` {
		t.Errorf("file = %q", written)
	}

	err = oh.HandleOutput(results.Text("x"), CommandConfig{OutputFormat: "yaml"})
	if !errors.HasCode(err, errors.ErrCodeInvalidFormat) {
		t.Errorf("expected INVALID_FORMAT, got %v", err)
	}
}

type stubGateway struct{ result results.Result }

func (s stubGateway) RunTextTask(ctx context.Context, req ai.TextRequest) (ai.Output, error) {
	return ai.Output{Result: s.result}, nil
}

func (s stubGateway) EditImage(ctx context.Context, image []byte, mimeType, instruction string) (ai.ImageOutput, error) {
	return ai.ImageOutput{}, ai.ErrNoImageReturned
}

func TestRunTaskSavesToHistory(t *testing.T) {
	ctx := context.Background()
	sess := session.New(session.NewMemoryStore(), session.WithClock(func() time.Time { return time.UnixMilli(1000) }))
	if _, err := sess.Login(ctx, "alice@example.com", ""); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{AI: config.AIConfig{Provider: "gemini", APIKey: "k", Timeout: time.Second}}
	def, _ := tasks.Lookup(tasks.CoverLetter)
	ws := workspace.New(def, cfg, stubGateway{result: results.Text("Dear team")}, sess)

	var stdout bytes.Buffer
	var saved *session.HistoryEntry
	result, err := RunTask(ctx, nil, NewOutputHandlerTo(nil, &stdout), TaskRun{
		Workspace: ws,
		Inputs:    []string{"resume", "job"},
		Output:    CommandConfig{OutputFormat: "text"},
		Session:   sess,
		Save:      true,
		OnSaved:   func(_ context.Context, e *session.HistoryEntry) { saved = e },
	})
	if err != nil {
		t.Fatalf("RunTask: %v", err)
	}
	if result != results.Text("Dear team") {
		t.Errorf("result = %v", result)
	}
	if saved == nil || saved.Input != "resume" || saved.Type != tasks.CoverLetter {
		t.Fatalf("unexpected saved entry: %+v", saved)
	}

	u, err := sess.Current(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(u.History) != 1 || u.Credits != session.SignupCredits {
		t.Errorf("history %d credits %d", len(u.History), u.Credits)
	}
}
