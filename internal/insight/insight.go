// Package insight is the AI commentary surface. No model backend is wired
// yet: both operations report that honestly instead of fabricating output.
package insight

import (
	"context"
	"errors"
	"fmt"

	"stockview/internal/config"
)

// AI provider names accepted by TestProvider.
const (
	ProviderDeepseek = "deepseek"
	ProviderQwen     = "qwen"
)

// ErrNotImplemented is returned by generation until a backend is wired.
var ErrNotImplemented = errors.New("AI insight generation is not implemented")

// TestResult reports the outcome of a provider connectivity probe.
type TestResult struct {
	Provider string `json:"provider"`
	OK       bool   `json:"ok"`
	Message  string `json:"message"`
}

// TestProvider probes the named AI backend. With no generation backend the
// probe validates only that the provider is known and has a key.
func TestProvider(_ context.Context, cfg config.Config, name string) (TestResult, error) {
	var pc config.AIProvider
	switch name {
	case ProviderDeepseek:
		pc = cfg.AI.Deepseek
	case ProviderQwen:
		pc = cfg.AI.Qwen
	default:
		return TestResult{}, fmt.Errorf("unknown AI provider %q", name)
	}
	if pc.APIKey == "" {
		return TestResult{Provider: name, Message: "API key not configured"}, nil
	}
	return TestResult{Provider: name, Message: ErrNotImplemented.Error()}, nil
}

// GenerateInsight is the placeholder for model-generated commentary on a
// symbol.
func GenerateInsight(_ context.Context, _ config.Config, _ string) (string, error) {
	return "", ErrNotImplemented
}
