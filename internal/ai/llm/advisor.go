package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"market-advisor-bot/internal/advisor"
	"market-advisor-bot/internal/factors"
)

// stripMarkdownCodeBlock removes markdown code block formatting from LLM responses
// Handles formats like: ```json\n{...}\n``` or ```\n{...}\n```
func stripMarkdownCodeBlock(response string) string {
	response = strings.TrimSpace(response)

	// Pattern to match ```json or ``` at start and ``` at end
	re := regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")
	if matches := re.FindStringSubmatch(response); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}

	// If no code block, return as-is
	return response
}

// AdvisorConfig holds advisor configuration
type AdvisorConfig struct {
	Enabled         bool          `json:"enabled"`
	Provider        Provider      `json:"provider"`
	APIKey          string        `json:"api_key"`
	Model           string        `json:"model"`
	MaxTokens       int           `json:"max_tokens"`
	Temperature     float64       `json:"temperature"`
	Timeout         time.Duration `json:"timeout"`
	CacheDuration   time.Duration `json:"cache_duration"`
	RateLimitPerMin int           `json:"rate_limit_per_min"`
}

// DefaultAdvisorConfig returns default configuration
func DefaultAdvisorConfig() *AdvisorConfig {
	return &AdvisorConfig{
		Enabled:         true,
		Provider:        ProviderClaude,
		Model:           "claude-sonnet-4-20250514",
		MaxTokens:       1024,
		Temperature:     0.3,
		Timeout:         30 * time.Second,
		CacheDuration:   5 * time.Minute,
		RateLimitPerMin: 10,
	}
}

// Narrative is the LLM's prose rendering of a recommendation
type Narrative struct {
	Signal     string `json:"signal"`
	Confidence int    `json:"confidence"`
	Headline   string `json:"headline"`
	Commentary string `json:"commentary"`
	Caution    string `json:"caution"`
}

// cachedNarrative holds a cached narrative result
type cachedNarrative struct {
	narrative *Narrative
	timestamp time.Time
}

// Advisor wraps the LLM client for advisory prose and subscriber Q&A
type Advisor struct {
	config       *AdvisorConfig
	client       *Client
	cache        map[string]*cachedNarrative
	requestCount int
	lastReset    time.Time
	mu           sync.Mutex
}

// NewAdvisor creates a new LLM advisor
func NewAdvisor(config *AdvisorConfig) *Advisor {
	if config == nil {
		config = DefaultAdvisorConfig()
	}

	clientConfig := &ClientConfig{
		Provider:    config.Provider,
		APIKey:      config.APIKey,
		Model:       config.Model,
		MaxTokens:   config.MaxTokens,
		Temperature: config.Temperature,
		Timeout:     config.Timeout,
	}

	return &Advisor{
		config:    config,
		client:    NewClient(clientConfig),
		cache:     make(map[string]*cachedNarrative),
		lastReset: time.Now(),
	}
}

// Narrative asks the LLM to render a recommendation as subscriber prose.
// The LLM is not allowed to move the recommendation: a response whose signal
// or confidence drifts from the computed values is discarded and an error
// returned, so callers fall back to the deterministic reasoning text.
func (a *Advisor) Narrative(ctx context.Context, rec advisor.Recommendation, fs factors.FeatureSet) (*Narrative, error) {
	if !a.IsEnabled() {
		return nil, fmt.Errorf("LLM advisor not enabled or configured")
	}

	cacheKey := fmt.Sprintf("narrative_%s_%d_%s", rec.Signal, rec.Confidence, rec.Timestamp.Format(time.RFC3339))
	if cached := a.getFromCache(cacheKey); cached != nil {
		return cached, nil
	}

	if !a.checkRateLimit() {
		return nil, fmt.Errorf("rate limit exceeded")
	}

	prompt := BuildNarrativePrompt(rec, fs)
	response, err := a.client.Complete(ctx, SystemPromptNarrative, prompt)
	if err != nil {
		return nil, fmt.Errorf("LLM request failed: %w", err)
	}

	// Strip markdown code blocks if present (DeepSeek often wraps JSON in ```)
	cleanResponse := stripMarkdownCodeBlock(response)

	var narrative Narrative
	if err := json.Unmarshal([]byte(cleanResponse), &narrative); err != nil {
		return nil, fmt.Errorf("failed to parse LLM response: %w", err)
	}

	if narrative.Signal != rec.Signal.String() {
		return nil, fmt.Errorf("LLM changed signal from %s to %s", rec.Signal, narrative.Signal)
	}
	if narrative.Confidence != rec.Confidence {
		return nil, fmt.Errorf("LLM changed confidence from %d to %d", rec.Confidence, narrative.Confidence)
	}
	if narrative.Commentary == "" {
		return nil, fmt.Errorf("LLM returned empty commentary")
	}

	a.setCache(cacheKey, &narrative)

	return &narrative, nil
}

// Answer responds to a free-form subscriber question with the current
// advisory state as context. Answers are plain text and never cached.
func (a *Advisor) Answer(ctx context.Context, question string, rec *advisor.Recommendation, fs factors.FeatureSet, hasFeatures bool) (string, error) {
	if !a.IsEnabled() {
		return "", fmt.Errorf("LLM advisor not enabled or configured")
	}
	if strings.TrimSpace(question) == "" {
		return "", fmt.Errorf("empty question")
	}

	if !a.checkRateLimit() {
		return "", fmt.Errorf("rate limit exceeded")
	}

	prompt := BuildAnswerPrompt(question, rec, fs, hasFeatures)
	response, err := a.client.Complete(ctx, SystemPromptAnswer, prompt)
	if err != nil {
		return "", fmt.Errorf("LLM request failed: %w", err)
	}

	answer := strings.TrimSpace(response)
	if answer == "" {
		return "", fmt.Errorf("empty response from LLM")
	}

	return answer, nil
}

// getFromCache retrieves a cached narrative
func (a *Advisor) getFromCache(key string) *Narrative {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cached, exists := a.cache[key]; exists {
		if time.Since(cached.timestamp) < a.config.CacheDuration {
			return cached.narrative
		}
	}
	return nil
}

// setCache stores a narrative in the cache
func (a *Advisor) setCache(key string, narrative *Narrative) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cache[key] = &cachedNarrative{
		narrative: narrative,
		timestamp: time.Now(),
	}
}

// checkRateLimit checks if we're within rate limits
func (a *Advisor) checkRateLimit() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Reset counter every minute
	if time.Since(a.lastReset) > time.Minute {
		a.requestCount = 0
		a.lastReset = time.Now()
	}

	if a.requestCount >= a.config.RateLimitPerMin {
		return false
	}

	a.requestCount++
	return true
}

// IsEnabled returns if the advisor is enabled
func (a *Advisor) IsEnabled() bool {
	return a.config.Enabled && a.client.IsConfigured()
}

// GetProvider returns the configured provider
func (a *Advisor) GetProvider() Provider {
	return a.client.GetProvider()
}

// ClearCache clears the narrative cache
func (a *Advisor) ClearCache() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache = make(map[string]*cachedNarrative)
}
