// internal/text/provider.go
//
// Race text provisioning. Upstream fetches (quotable, lorem) are best-effort
// with finite timeouts; every path falls back to the local sample set, so
// GetText always returns a non-empty string and never blocks race creation
// on a flaky upstream.
package text

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	SourceMixed  = "mixed"
	SourceQuotes = "quotes"
	SourceLorem  = "lorem"
	SourceNews   = "news"
	SourceLocal  = "local"
)

// Provider supplies the text for a race or solo test.
type Provider interface {
	GetText(ctx context.Context, source string, wordCount int) string
}

// Cache stores fetched texts for sources stable enough to reuse (lorem,
// news). Quotes and mixed are never cached so racers see variety.
type Cache interface {
	GetText(ctx context.Context, key string) (string, bool)
	SetText(ctx context.Context, key, value string)
}

// sampleTexts is the unconditional local fallback.
var sampleTexts = []string{
	"The quick brown fox jumps over the lazy dog and runs through the forest with great speed and agility while avoiding all obstacles.",
	"Programming is not just about writing code it is about solving problems and creating solutions that make people's lives better and more efficient.",
	"In the world of technology everything changes rapidly and developers must constantly learn new skills and adapt to new frameworks and methodologies.",
	"Good design is not just about making things look beautiful it is about making them work well and providing an excellent user experience.",
	"The art of typing fast and accurately requires practice patience and proper finger positioning on the keyboard with consistent daily training.",
	"Artificial intelligence and machine learning are transforming industries by automating complex tasks and providing intelligent insights from vast amounts of data.",
	"Web development has evolved significantly with the introduction of modern frameworks making development more efficient and maintainable.",
	"Database design and optimization are crucial skills for backend developers who need to ensure applications can scale and perform well under heavy loads.",
	"User experience design focuses on creating intuitive and accessible interfaces that provide value to users while achieving business objectives effectively.",
	"Software testing and quality assurance help maintain code reliability and prevent bugs from reaching production environments where they could impact users.",
	"Cloud computing platforms enable developers to build scalable applications without worrying about infrastructure management and hardware limitations.",
	"Cybersecurity has become increasingly important as more businesses rely on digital systems and need to protect sensitive data from various threats.",
	"Open source software has revolutionized the tech industry by allowing developers to collaborate and build upon each other's work freely.",
}

// HTTPProvider fetches quotes and lorem text from public APIs.
type HTTPProvider struct {
	client *http.Client
	cache  Cache
	log    *logrus.Logger
}

// NewHTTPProvider returns a provider with a bounded-timeout HTTP client.
// cache may be nil.
func NewHTTPProvider(cache Cache, log *logrus.Logger) *HTTPProvider {
	return &HTTPProvider{
		client: &http.Client{Timeout: 5 * time.Second},
		cache:  cache,
		log:    log,
	}
}

func (p *HTTPProvider) GetText(ctx context.Context, source string, wordCount int) string {
	cacheable := source == SourceLorem || source == SourceNews
	cacheKey := fmt.Sprintf("text:%s:%d", source, wordCount)

	if cacheable && p.cache != nil {
		if cached, ok := p.cache.GetText(ctx, cacheKey); ok {
			return cached
		}
	}

	var body string
	var err error
	switch source {
	case SourceMixed:
		switch rand.Intn(3) {
		case 0:
			body = localText()
		case 1:
			body, err = p.fetchQuotes(ctx)
		default:
			body, err = p.fetchLorem(ctx)
		}
	case SourceQuotes:
		body, err = p.fetchQuotes(ctx)
	case SourceLorem:
		body, err = p.fetchLorem(ctx)
	case SourceNews:
		body, err = p.fetchNews(ctx)
	default:
		body = localText()
	}
	if err != nil || strings.TrimSpace(body) == "" {
		if err != nil {
			p.log.Warnf("text fetch failed for source %q, using local fallback: %v", source, err)
		}
		body = localText()
	}

	body = FitToWordCount(body, wordCount)
	if cacheable && p.cache != nil {
		p.cache.SetText(ctx, cacheKey, body)
	}
	return body
}

func localText() string {
	return sampleTexts[rand.Intn(len(sampleTexts))]
}

// FitToWordCount truncates or cyclically repeats words until the text holds
// exactly wordCount words. A non-positive wordCount leaves the text as is.
func FitToWordCount(text string, wordCount int) string {
	if wordCount <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}
	if len(words) >= wordCount {
		return strings.Join(words[:wordCount], " ")
	}
	out := make([]string, 0, wordCount)
	for i := 0; i < wordCount; i++ {
		out = append(out, words[i%len(words)])
	}
	return strings.Join(out, " ")
}

func (p *HTTPProvider) fetchQuotes(ctx context.Context) (string, error) {
	var quotes []struct {
		Content string `json:"content"`
	}
	url := "https://api.quotable.io/quotes/random?limit=3&minLength=100&maxLength=300"
	if err := p.getJSON(ctx, url, &quotes); err != nil {
		return "", err
	}
	var parts []string
	for _, q := range quotes {
		if q.Content != "" {
			parts = append(parts, q.Content)
		}
	}
	return strings.Join(parts, " "), nil
}

func (p *HTTPProvider) fetchLorem(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "https://loripsum.net/api/4/medium/plain", nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("lorem API status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", err
	}
	return strings.Join(strings.Fields(string(data)), " "), nil
}

func (p *HTTPProvider) fetchNews(ctx context.Context) (string, error) {
	key := os.Getenv("NEWS_API_KEY")
	if key == "" {
		return "", fmt.Errorf("NEWS_API_KEY not set")
	}
	var payload struct {
		Articles []struct {
			Description string `json:"description"`
		} `json:"articles"`
	}
	url := "https://newsapi.org/v2/top-headlines?category=technology&pageSize=5&apiKey=" + key
	if err := p.getJSON(ctx, url, &payload); err != nil {
		return "", err
	}
	var parts []string
	for _, a := range payload.Articles {
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " "), nil
}

func (p *HTTPProvider) getJSON(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
