package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadPromptsFromFiles(t *testing.T) {
	tempDir := t.TempDir()

	systemPromptContent := "You are an expert ATS resume reviewer"
	userPromptContent := "Score this resume for ATS parsing: {{input}}"

	systemPromptFile := filepath.Join(tempDir, "system.analyze.md")
	userPromptFile := filepath.Join(tempDir, "user.analyze.md")

	if err := os.WriteFile(systemPromptFile, []byte(systemPromptContent), 0600); err != nil {
		t.Fatalf("Failed to create test system prompt file: %v", err)
	}
	if err := os.WriteFile(userPromptFile, []byte(userPromptContent), 0600); err != nil {
		t.Fatalf("Failed to create test user prompt file: %v", err)
	}

	config := &Config{
		AI: AIConfig{
			Tasks: map[string]OperationAIConfig{
				"analyze-resume": {
					Prompts: PromptConfig{
						SystemFile: systemPromptFile,
						UserFile:   userPromptFile,
					},
				},
			},
		},
	}

	if err := config.loadPromptsFromFiles(); err != nil {
		t.Fatalf("Failed to load prompts from files: %v", err)
	}

	loaded := config.LoadedPromptsFor("analyze-resume")
	if loaded.System != systemPromptContent {
		t.Errorf("Expected loaded system prompt content '%s', got '%s'", systemPromptContent, loaded.System)
	}
	if loaded.User != userPromptContent {
		t.Errorf("Expected loaded user prompt content '%s', got '%s'", userPromptContent, loaded.User)
	}

	if other := config.LoadedPromptsFor("quick-rewrite"); other != (LoadedPrompts{}) {
		t.Errorf("Expected no prompts for an unconfigured task, got %+v", other)
	}
}

func TestLoadedPromptsFallBackToGlobalSystemPrompt(t *testing.T) {
	tempDir := t.TempDir()
	globalFile := filepath.Join(tempDir, "system.md")
	if err := os.WriteFile(globalFile, []byte("Global reviewer persona"), 0600); err != nil {
		t.Fatalf("Failed to create global prompt file: %v", err)
	}

	config := &Config{AI: AIConfig{SystemPromptFile: globalFile}}
	if err := config.loadPromptsFromFiles(); err != nil {
		t.Fatalf("Failed to load prompts: %v", err)
	}

	if got := config.LoadedPromptsFor("ats-check").System; got != "Global reviewer persona" {
		t.Errorf("Expected global system prompt, got %q", got)
	}
}

func TestValidatePromptFiles(t *testing.T) {
	tempDir := t.TempDir()

	validFile := filepath.Join(tempDir, "valid.md")
	if err := os.WriteFile(validFile, []byte("Valid content"), 0600); err != nil {
		t.Fatalf("Failed to create valid test file: %v", err)
	}

	config := &Config{
		AI: AIConfig{
			Tasks: map[string]OperationAIConfig{
				"cover-letter": {Prompts: PromptConfig{SystemFile: validFile}},
			},
		},
	}

	if err := config.validatePromptFiles(); err != nil {
		t.Errorf("Expected validation to pass for valid file, got error: %v", err)
	}

	config.AI.Tasks["cover-letter"] = OperationAIConfig{
		Prompts: PromptConfig{UserFile: filepath.Join(tempDir, "nonexistent.md")},
	}

	if err := config.validatePromptFiles(); err == nil {
		t.Error("Expected validation to fail for non-existent file")
	}
}

func TestLoadPromptFromFile(t *testing.T) {
	tempDir := t.TempDir()

	content := "Test prompt content"
	testFile := filepath.Join(tempDir, "test.md")
	if err := os.WriteFile(testFile, []byte("  "+content+"\n"), 0600); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	config := &Config{}
	loadedContent, err := config.loadPromptFromFile(testFile, "system", "analyze-resume")
	if err != nil {
		t.Fatalf("Failed to load prompt from file: %v", err)
	}
	if loadedContent != content {
		t.Errorf("Expected content '%s', got '%s'", content, loadedContent)
	}

	emptyFile := filepath.Join(tempDir, "empty.md")
	if err := os.WriteFile(emptyFile, []byte(""), 0600); err != nil {
		t.Fatalf("Failed to create empty test file: %v", err)
	}
	if _, err := config.loadPromptFromFile(emptyFile, "system", "analyze-resume"); err == nil {
		t.Error("Expected error for empty file")
	}

	if _, err := config.loadPromptFromFile(filepath.Join(tempDir, "nonexistent.md"), "system", "analyze-resume"); err == nil {
		t.Error("Expected error for non-existent file")
	}
}
