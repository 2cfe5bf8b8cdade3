// ABOUTME: Adaptive persona: time-of-day greetings, mood detection and remembered preferences
// ABOUTME: Preferences live under one key in the key-value store
package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Ashama-AI/ashama-go/internal/kv"
	"go.uber.org/zap"
)

// MemoryKey holds the saved preferences
const MemoryKey = "ashama_session_memory"

const (
	day            = 24 * time.Hour
	returningLimit = 30 * day
)

// Mood is the detected tone of a user message
type Mood string

const (
	MoodNeutral    Mood = "neutral"
	MoodHappy      Mood = "happy"
	MoodSad        Mood = "sad"
	MoodExcited    Mood = "excited"
	MoodFrustrated Mood = "frustrated"
)

// moodRules are checked in order; the first match wins
var moodRules = []struct {
	mood  Mood
	words []string
}{
	{MoodHappy, []string{"galatoomaa", "gammade", "😊", "😄"}},
	{MoodSad, []string{"gaddaa", "dhiphoo", "😢", "😞"}},
	{MoodExcited, []string{"!!!", "🎉", "ajaa'iba"}},
	{MoodFrustrated, []string{"hin hubadhu", "rakkoo", "😤", "😠"}},
}

var topicKeywords = []struct {
	topic string
	words []string
}{
	{"saayinsii", []string{"saayinsii", "qorannoo", "teknoolojii"}},
	{"seenaa", []string{"seenaa", "bara", "durii"}},
	{"fayyaa", []string{"fayyaa", "qulqullina", "dhukkuba"}},
	{"barnoota", []string{"barnoota", "barachuun", "beekumsa"}},
	{"aadaa", []string{"aadaa", "dudhaa", "seera"}},
	{"gadaa", []string{"gadaa", "abbaa gadaa", "sirna"}},
}

// Preferences are what the assistant remembers about its user.
// LastInteraction is unix milliseconds; zero means never.
type Preferences struct {
	Name              string   `json:"name,omitempty"`
	PreferredTopics   []string `json:"preferredTopics"`
	ConversationStyle string   `json:"conversationStyle,omitempty"`
	LastInteraction   int64    `json:"lastInteraction"`
}

// Persona answers greeting and memory questions
type Persona struct {
	kv     kv.Store
	now    func() time.Time
	logger *zap.SugaredLogger
}

// Option configures a Persona
type Option func(*Persona)

// WithClock sets the time source
func WithClock(now func() time.Time) Option {
	return func(p *Persona) { p.now = now }
}

// WithLogger sets the logger
func WithLogger(l *zap.SugaredLogger) Option {
	return func(p *Persona) { p.logger = l }
}

// New creates a Persona backed by store
func New(store kv.Store, opts ...Option) *Persona {
	p := &Persona{
		kv:     store,
		now:    time.Now,
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TimeGreeting greets for the local hour of t
func TimeGreeting(t time.Time) string {
	switch h := t.Hour(); {
	case h >= 5 && h < 12:
		return "Akkam bulte? Ganama gaarii!"
	case h >= 12 && h < 17:
		return "Akkam jirta? Guyyaa gaarii!"
	case h >= 17 && h < 21:
		return "Akkam jirta? Galgala gaarii!"
	default:
		return "Akkam bulte? Halkan gaarii!"
	}
}

// DetectMood guesses the tone of message from keywords and emoji
func DetectMood(message string) Mood {
	lower := strings.ToLower(message)
	for _, rule := range moodRules {
		if containsAny(lower, rule.words) {
			return rule.mood
		}
	}
	return MoodNeutral
}

// Prefix is prepended to a reply to acknowledge the mood
func (m Mood) Prefix() string {
	switch m {
	case MoodHappy:
		return "Gammachuu kee argee gammadeera! "
	case MoodSad:
		return "Gaddaa kee hubadheera. Si gargaaruuf qophaa'adha. "
	case MoodExcited:
		return "Gammachuu kee wajjiin qoodadha! "
	case MoodFrustrated:
		return "Dhiifama, rakkoo kee hubadheera. Haaluma gaariin si gargaaruu yaala. "
	default:
		return ""
	}
}

// ExtractTopics returns the known topics mentioned in messages, in a
// fixed order and without duplicates
func ExtractTopics(messages []string) []string {
	found := make(map[string]bool)
	for _, msg := range messages {
		lower := strings.ToLower(msg)
		for _, kw := range topicKeywords {
			if containsAny(lower, kw.words) {
				found[kw.topic] = true
			}
		}
	}

	topics := make([]string, 0, len(found))
	for _, kw := range topicKeywords {
		if found[kw.topic] {
			topics = append(topics, kw.topic)
		}
	}
	return topics
}

// Preferences loads saved preferences. Missing or unreadable data yields
// empty preferences.
func (p *Persona) Preferences(ctx context.Context) (Preferences, error) {
	prefs := Preferences{PreferredTopics: []string{}}

	raw, ok, err := p.kv.Get(ctx, MemoryKey)
	if err != nil {
		return prefs, fmt.Errorf("failed to load preferences: %w", err)
	}
	if !ok {
		return prefs, nil
	}
	if err := json.Unmarshal([]byte(raw), &prefs); err != nil {
		p.logger.Warnw("Ignoring unreadable preferences", "error", err)
		return Preferences{PreferredTopics: []string{}}, nil
	}
	if prefs.PreferredTopics == nil {
		prefs.PreferredTopics = []string{}
	}
	return prefs, nil
}

// Update applies fn to the saved preferences and stamps the interaction time
func (p *Persona) Update(ctx context.Context, fn func(*Preferences)) (Preferences, error) {
	prefs, err := p.Preferences(ctx)
	if err != nil {
		return prefs, err
	}
	fn(&prefs)
	prefs.LastInteraction = p.now().UnixMilli()

	raw, err := json.Marshal(prefs)
	if err != nil {
		return prefs, fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := p.kv.Set(ctx, MemoryKey, string(raw)); err != nil {
		return prefs, fmt.Errorf("failed to save preferences: %w", err)
	}
	return prefs, nil
}

// Greeting is the time greeting, addressed by name when one is known
func (p *Persona) Greeting(ctx context.Context) (string, error) {
	prefs, err := p.Preferences(ctx)
	if err != nil {
		return "", err
	}
	greeting := TimeGreeting(p.now())
	if prefs.Name != "" {
		return fmt.Sprintf("%s %s! Maal si gargaaruu danda'a?", greeting, prefs.Name), nil
	}
	return greeting + " Maal si gargaaruu danda'a?", nil
}

// IsReturningUser reports an interaction within the last 30 days
func (p *Persona) IsReturningUser(ctx context.Context) (bool, error) {
	prefs, err := p.Preferences(ctx)
	if err != nil {
		return false, err
	}
	if prefs.LastInteraction <= 0 {
		return false, nil
	}
	return p.since(prefs) < returningLimit, nil
}

// WelcomeBack phrases the time since the last interaction
func (p *Persona) WelcomeBack(ctx context.Context) (string, error) {
	prefs, err := p.Preferences(ctx)
	if err != nil {
		return "", err
	}

	days := int(p.since(prefs) / day)
	switch {
	case days <= 0:
		return "Baga deebitee! Har'as si gargaaruuf qophaa'adha.", nil
	case days == 1:
		return "Baga deebitee! Kaleessa booda si arguu gammadeera.", nil
	case days < 7:
		return fmt.Sprintf("Baga deebitee! Guyyaa %d booda si arguu gammadeera.", days), nil
	default:
		return "Baga deebitee! Yeroo dheeraa booda si arguu gammadeera!", nil
	}
}

// UpdateTopics merges topics found in messages into the preferences.
// Nothing is written when no topic is found.
func (p *Persona) UpdateTopics(ctx context.Context, messages []string) error {
	topics := ExtractTopics(messages)
	if len(topics) == 0 {
		return nil
	}
	_, err := p.Update(ctx, func(prefs *Preferences) {
		seen := make(map[string]bool, len(prefs.PreferredTopics))
		for _, t := range prefs.PreferredTopics {
			seen[t] = true
		}
		for _, t := range topics {
			if !seen[t] {
				prefs.PreferredTopics = append(prefs.PreferredTopics, t)
				seen[t] = true
			}
		}
	})
	if err == nil {
		p.logger.Debugw("Updated preferred topics", "topics", topics)
	}
	return err
}

func (p *Persona) since(prefs Preferences) time.Duration {
	return p.now().Sub(time.UnixMilli(prefs.LastInteraction))
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
