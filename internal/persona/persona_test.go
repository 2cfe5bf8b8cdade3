// ABOUTME: Tests for greetings, mood detection and remembered preferences
// ABOUTME: Uses the in-memory key-value store and a fixed clock
package persona

import (
	"context"
	"testing"
	"time"

	"github.com/Ashama-AI/ashama-go/internal/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour int) time.Time {
	return time.Date(2026, 3, 10, hour, 0, 0, 0, time.Local)
}

func TestTimeGreeting(t *testing.T) {
	tests := []struct {
		hour int
		want string
	}{
		{4, "Akkam bulte? Halkan gaarii!"},
		{5, "Akkam bulte? Ganama gaarii!"},
		{11, "Akkam bulte? Ganama gaarii!"},
		{12, "Akkam jirta? Guyyaa gaarii!"},
		{17, "Akkam jirta? Galgala gaarii!"},
		{21, "Akkam bulte? Halkan gaarii!"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, TimeGreeting(at(tt.hour)), "hour %d", tt.hour)
	}
}

func TestDetectMood(t *testing.T) {
	tests := []struct {
		msg  string
		want Mood
	}{
		{"Galatoomaa!", MoodHappy},
		{"Baay'een gaddaa jira", MoodSad},
		{"Ajaa'iba!!!", MoodExcited},
		{"Kana hin hubadhu", MoodFrustrated},
		{"Seenaa Gadaa natti himi", MoodNeutral},
		// happy is checked before excited
		{"galatoomaa 🎉", MoodHappy},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectMood(tt.msg), tt.msg)
	}
	assert.Empty(t, MoodNeutral.Prefix())
	assert.Equal(t, "Gammachuu kee argee gammadeera! ", MoodHappy.Prefix())
}

func TestExtractTopics(t *testing.T) {
	got := ExtractTopics([]string{"Abbaa Gadaa eenyu?", "Teknoolojii haaraa", "SEENAA durii"})
	assert.Equal(t, []string{"saayinsii", "seenaa", "gadaa"}, got)
	assert.Empty(t, ExtractTopics([]string{"nagaa"}))
}

func TestPreferencesDefaults(t *testing.T) {
	p := New(kv.NewMemory())
	prefs, err := p.Preferences(context.Background())
	require.NoError(t, err)
	assert.Empty(t, prefs.Name)
	assert.NotNil(t, prefs.PreferredTopics)

	returning, err := p.IsReturningUser(context.Background())
	require.NoError(t, err)
	assert.False(t, returning)
}

func TestGreetingWithName(t *testing.T) {
	now := at(9)
	p := New(kv.NewMemory(), WithClock(func() time.Time { return now }))
	ctx := context.Background()

	g, err := p.Greeting(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Akkam bulte? Ganama gaarii! Maal si gargaaruu danda'a?", g)

	_, err = p.Update(ctx, func(prefs *Preferences) { prefs.Name = "Caaltuu" })
	require.NoError(t, err)

	g, err = p.Greeting(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Akkam bulte? Ganama gaarii! Caaltuu! Maal si gargaaruu danda'a?", g)
}

func TestWelcomeBack(t *testing.T) {
	now := at(9)
	p := New(kv.NewMemory(), WithClock(func() time.Time { return now }))
	ctx := context.Background()
	_, err := p.Update(ctx, func(*Preferences) {})
	require.NoError(t, err)

	tests := []struct {
		after time.Duration
		want  string
	}{
		{time.Hour, "Baga deebitee! Har'as si gargaaruuf qophaa'adha."},
		{day + time.Hour, "Baga deebitee! Kaleessa booda si arguu gammadeera."},
		{3 * day, "Baga deebitee! Guyyaa 3 booda si arguu gammadeera."},
		{10 * day, "Baga deebitee! Yeroo dheeraa booda si arguu gammadeera!"},
	}
	start := now
	for _, tt := range tests {
		now = start.Add(tt.after)
		msg, err := p.WelcomeBack(ctx)
		require.NoError(t, err)
		assert.Equal(t, tt.want, msg)
	}

	now = start.Add(29 * day)
	returning, err := p.IsReturningUser(ctx)
	require.NoError(t, err)
	assert.True(t, returning)

	now = start.Add(31 * day)
	returning, err = p.IsReturningUser(ctx)
	require.NoError(t, err)
	assert.False(t, returning)
}

func TestUpdateTopicsMerges(t *testing.T) {
	store := kv.NewMemory()
	p := New(store)
	ctx := context.Background()

	require.NoError(t, p.UpdateTopics(ctx, []string{"seenaa Oromoo"}))
	require.NoError(t, p.UpdateTopics(ctx, []string{"fayyaa fi seenaa"}))

	prefs, err := p.Preferences(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"seenaa", "fayyaa"}, prefs.PreferredTopics)

	require.NoError(t, store.Delete(ctx, MemoryKey))
	require.NoError(t, p.UpdateTopics(ctx, []string{"nagaa"}))
	_, ok, err := store.Get(ctx, MemoryKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnreadablePreferences(t *testing.T) {
	store := kv.NewMemory()
	require.NoError(t, store.Set(context.Background(), MemoryKey, "{"))
	prefs, err := New(store).Preferences(context.Background())
	require.NoError(t, err)
	assert.Empty(t, prefs.PreferredTopics)
}
