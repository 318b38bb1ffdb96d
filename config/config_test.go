package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresetsValidate(t *testing.T) {
	for name, cfg := range map[string]*Config{
		"minimal":      NewMinimalConfig(),
		"balanced":     NewBalancedConfig(),
		"full_featured": NewFullFeaturedConfig(),
	} {
		t.Run(name, func(t *testing.T) {
			// Non-mock presets leave the API key to the environment;
			// supply one as startup would.
			if cfg.LLMProvider != "mock" {
				cfg.LLMAPIKey = "test-key"
			}
			assert.NoError(t, cfg.Validate())
		})
	}
}

func TestValidateRejectsNonMockProviderWithoutAPIKey(t *testing.T) {
	cfg := NewBalancedConfig()
	cfg.LLMAPIKey = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroWorkingMemorySize(t *testing.T) {
	cfg := NewMinimalConfig()
	cfg.WorkingMemorySize = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsZeroDecayWeights(t *testing.T) {
	cfg := NewMinimalConfig()
	cfg.TimeDecayWeight = 0
	cfg.AccessCountWeight = 0
	assert.Error(t, cfg.Validate())
}

func TestFullFeaturedBuildsOnBalancedDefaults(t *testing.T) {
	cfg := NewFullFeaturedConfig()
	assert.True(t, cfg.EnableVectorSearch)
	assert.True(t, cfg.PersistMessages)
	assert.Equal(t, "openai", cfg.LLMProvider, "full_featured inherits balanced's LLM provider")
}
