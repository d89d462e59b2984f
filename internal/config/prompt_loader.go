package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// globalPromptKey holds prompts loaded from the ai.systemPromptFile setting
const globalPromptKey = "*"

// LoadedPrompts holds the content of prompts loaded from files for one task
type LoadedPrompts struct {
	System string
	User   string
}

// LoadedPromptsFor returns a copy of the file-loaded prompts for a task,
// falling back to the global system prompt file.
func (c *Config) LoadedPromptsFor(task string) LoadedPrompts {
	loaded := c.loadedPrompts[task]
	if loaded.System == "" {
		loaded.System = c.loadedPrompts[globalPromptKey].System
	}
	return loaded
}

// loadPromptsFromFiles loads custom prompts from external files if file paths are specified
func (c *Config) loadPromptsFromFiles() error {
	c.loadedPrompts = make(map[string]LoadedPrompts)

	if c.AI.SystemPromptFile != "" {
		content, err := c.loadPromptFromFile(c.AI.SystemPromptFile, "system", "global")
		if err != nil {
			return fmt.Errorf("failed to load global system prompt: %w", err)
		}
		c.loadedPrompts[globalPromptKey] = LoadedPrompts{System: content}
	}

	for _, task := range c.taskNames() {
		prompts := c.AI.Tasks[task].Prompts
		var loaded LoadedPrompts

		if prompts.SystemFile != "" {
			content, err := c.loadPromptFromFile(prompts.SystemFile, "system", task)
			if err != nil {
				return fmt.Errorf("failed to load %s system prompt: %w", task, err)
			}
			loaded.System = content
		}
		if prompts.UserFile != "" {
			content, err := c.loadPromptFromFile(prompts.UserFile, "user", task)
			if err != nil {
				return fmt.Errorf("failed to load %s user prompt: %w", task, err)
			}
			loaded.User = content
		}

		if loaded != (LoadedPrompts{}) {
			c.loadedPrompts[task] = loaded
		}
	}

	return nil
}

// loadPromptFromFile loads a prompt from a file with proper error handling and logging
func (c *Config) loadPromptFromFile(filePath, promptType, task string) (string, error) {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve absolute path for %s %s prompt file '%s': %w", promptType, task, filePath, err)
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return "", fmt.Errorf("%s %s prompt file not found: %s", promptType, task, absPath)
	}

	content, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s %s prompt file '%s': %w", promptType, task, absPath, err)
	}

	trimmedContent := strings.TrimSpace(string(content))
	if trimmedContent == "" {
		return "", fmt.Errorf("%s %s prompt file '%s' is empty", promptType, task, absPath)
	}

	if c.App.LogLevel == "debug" {
		log.Printf("[CONFIG] Loaded %s %s prompt from file: %s (%d characters)",
			promptType, task, absPath, len(trimmedContent))
	}

	return trimmedContent, nil
}

// validatePromptFiles validates that prompt files exist and are readable before loading
func (c *Config) validatePromptFiles() error {
	var validationErrors []string

	validateFile := func(filePath, promptType, task string) {
		if filePath == "" {
			return
		}

		absPath, err := filepath.Abs(filePath)
		if err != nil {
			validationErrors = append(validationErrors, fmt.Sprintf("invalid path for %s %s prompt: %s", promptType, task, filePath))
			return
		}

		if _, err := os.Stat(absPath); os.IsNotExist(err) {
			validationErrors = append(validationErrors, fmt.Sprintf("%s %s prompt file not found: %s", promptType, task, absPath))
		}
	}

	validateFile(c.AI.SystemPromptFile, "system", "global")
	for _, task := range c.taskNames() {
		prompts := c.AI.Tasks[task].Prompts
		validateFile(prompts.SystemFile, "system", task)
		validateFile(prompts.UserFile, "user", task)
	}

	if len(validationErrors) > 0 {
		return fmt.Errorf("prompt file validation failed:\n%s", strings.Join(validationErrors, "\n"))
	}

	return nil
}

// taskNames returns the configured task overrides in a stable order
func (c *Config) taskNames() []string {
	names := make([]string, 0, len(c.AI.Tasks))
	for name := range c.AI.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
