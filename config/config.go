// Package config holds the closed-set configuration record for the memory
// store and its three presets.
package config

import (
	"time"

	"github.com/caihaoran-00/memchr/internal/apperr"
)

// Config is a fixed configuration record. There is no dynamic attribute
// bag: every field the Manager, Extractor, Retriever, and Forgetter read is
// declared here.
type Config struct {
	// Working memory.
	WorkingMemorySize     int // ring buffer holds 2*WorkingMemorySize messages
	WorkingMemoryMaxChars int // approximate char budget when rendering into the prompt

	// Episode / fact / profile caps.
	MaxEpisodesPerUser    int
	MaxFactsPerUser       int
	MaxProfileTags        int
	EpisodeSummaryMaxLen  int
	EpisodeCompressThresh int // turns required before EndSession triggers extraction

	// Forgetting.
	MemoryDecayDays       int
	MinImportanceThresh   float64
	TimeDecayWeight       float64
	AccessCountWeight     float64
	SessionIdleTimeout    time.Duration // supplemental: auto-EndSession after this idle gap

	// Retrieval.
	MaxRetrievalResults int
	EnableVectorSearch  bool
	VectorDim           int
	SimilarityThreshold float64
	EnableCache         bool
	CacheTTL            time.Duration
	CacheCapacity       int

	// LLM.
	LLMProvider    string
	LLMModel       string
	LLMAPIKey      string
	LLMBaseURL     string
	LLMMaxTokens   int
	LLMTemperature float32
	LLMMaxRetries  int
	LLMTimeout     time.Duration

	// Extraction.
	Language string // tokenizer/lexicon language hint, e.g. "zh", "en"

	// Debug-retention flag for raw messages. No component reads it; the
	// Manager keeps raw messages in working memory only.
	PersistMessages bool

	// MaxConcurrency bounds concurrent extraction/forgetting goroutines.
	MaxConcurrency int
}

// Validate checks that the closed set of required fields is populated and
// within range. It never mutates the receiver.
func (c *Config) Validate() error {
	if c.WorkingMemorySize <= 0 {
		return apperr.ConfigErrorf("working_memory_size must be positive")
	}
	if c.MaxEpisodesPerUser <= 0 {
		return apperr.ConfigErrorf("max_episodes_per_user must be positive")
	}
	if c.MaxFactsPerUser <= 0 {
		return apperr.ConfigErrorf("max_facts_per_user must be positive")
	}
	if c.MaxProfileTags <= 0 {
		return apperr.ConfigErrorf("max_profile_tags must be positive")
	}
	if c.MemoryDecayDays <= 0 {
		return apperr.ConfigErrorf("memory_decay_days must be positive")
	}
	if c.LLMProvider == "" {
		return apperr.ConfigErrorf("llm_provider is required")
	}
	if c.LLMProvider != "mock" && c.LLMAPIKey == "" {
		return apperr.ConfigErrorf("llm_api_key is required for provider %q", c.LLMProvider)
	}
	if c.TimeDecayWeight+c.AccessCountWeight <= 0 {
		return apperr.ConfigErrorf("time_decay_weight + access_count_weight must be positive")
	}
	return nil
}

// NewMinimalConfig returns the smallest viable preset: no vector search, no
// cache, the deterministic mock LLM provider. Suitable for embedded
// deployments with no network LLM access and for tests.
func NewMinimalConfig() *Config {
	return &Config{
		WorkingMemorySize:     5,
		WorkingMemoryMaxChars: 2000,
		MaxEpisodesPerUser:    50,
		MaxFactsPerUser:       100,
		MaxProfileTags:        20,
		EpisodeSummaryMaxLen:  280,
		EpisodeCompressThresh: 3,
		MemoryDecayDays:       30,
		MinImportanceThresh:   0.2,
		TimeDecayWeight:       0.7,
		AccessCountWeight:     0.3,
		SessionIdleTimeout:    30 * time.Minute,
		MaxRetrievalResults:   5,
		EnableVectorSearch:    false,
		EnableCache:           false,
		CacheTTL:              time.Minute,
		CacheCapacity:         256,
		LLMProvider:           "mock",
		LLMModel:              "mock-1",
		LLMMaxTokens:          512,
		LLMTemperature:        0.3,
		LLMMaxRetries:         0,
		LLMTimeout:            5 * time.Second,
		Language:              "zh",
		PersistMessages:       false,
		MaxConcurrency:        2,
	}
}

// NewBalancedConfig returns the default preset: a real LLM provider, vector
// search disabled (keyword mode only), cache enabled. This is the preset a
// production-but-modest deployment should start from.
func NewBalancedConfig() *Config {
	c := NewMinimalConfig()
	c.WorkingMemorySize = 10
	c.WorkingMemoryMaxChars = 4000
	c.MaxEpisodesPerUser = 200
	c.MaxFactsPerUser = 500
	c.MaxProfileTags = 50
	c.EpisodeSummaryMaxLen = 500
	c.EpisodeCompressThresh = 4
	c.EnableCache = true
	c.CacheCapacity = 1024
	c.LLMProvider = "openai"
	c.LLMModel = "gpt-4o-mini"
	c.LLMMaxTokens = 1024
	c.LLMMaxRetries = 3
	c.LLMTimeout = 20 * time.Second
	return c
}

// NewFullFeaturedConfig returns the richest preset: vector search enabled,
// larger caps, larger cache. Intended for a deployment with a real
// embedding backend available.
func NewFullFeaturedConfig() *Config {
	c := NewBalancedConfig()
	c.MaxEpisodesPerUser = 1000
	c.MaxFactsPerUser = 2000
	c.MaxProfileTags = 100
	c.EnableVectorSearch = true
	c.VectorDim = 1536
	c.SimilarityThreshold = 0.75
	c.MaxRetrievalResults = 10
	c.CacheCapacity = 4096
	c.MaxConcurrency = 8
	c.PersistMessages = true
	return c
}
