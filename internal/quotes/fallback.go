package quotes

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// fallbackQuotes is the bundled local dataset served when every provider
// is unavailable. The aggregator must always be able to answer from here,
// so the set covers every category the product ships with.
var fallbackQuotes = []Quote{
	{Text: "The only way to do great work is to love what you do.", Author: "Steve Jobs", Category: "motivation"},
	{Text: "It does not matter how slowly you go as long as you do not stop.", Author: "Confucius", Category: "motivation"},
	{Text: "Success is not final, failure is not fatal: it is the courage to continue that counts.", Author: "Winston Churchill", Category: "motivation"},
	{Text: "Believe you can and you're halfway there.", Author: "Theodore Roosevelt", Category: "motivation"},
	{Text: "Act as if what you do makes a difference. It does.", Author: "William James", Category: "inspiration"},
	{Text: "What you get by achieving your goals is not as important as what you become by achieving your goals.", Author: "Zig Ziglar", Category: "inspiration"},
	{Text: "The best time to plant a tree was 20 years ago. The second best time is now.", Author: "Unknown", Category: "inspiration"},
	{Text: "Everything you've ever wanted is on the other side of fear.", Author: "George Addair", Category: "courage"},
	{Text: "Courage is not the absence of fear, but rather the judgment that something else is more important than fear.", Author: "Ambrose Redmoon", Category: "courage"},
	{Text: "It always seems impossible until it's done.", Author: "Nelson Mandela", Category: "perseverance"},
	{Text: "Fall seven times and stand up eight.", Author: "Japanese Proverb", Category: "perseverance"},
	{Text: "Our greatest weakness lies in giving up. The most certain way to succeed is always to try just one more time.", Author: "Thomas Edison", Category: "perseverance"},
	{Text: "Happiness is not something ready made. It comes from your own actions.", Author: "Dalai Lama", Category: "happiness"},
	{Text: "The purpose of our lives is to be happy.", Author: "Dalai Lama", Category: "happiness"},
	{Text: "Do what you can, with what you have, where you are.", Author: "Theodore Roosevelt", Category: "wisdom"},
	{Text: "Knowing yourself is the beginning of all wisdom.", Author: "Aristotle", Category: "wisdom"},
	{Text: "The journey of a thousand miles begins with one step.", Author: "Lao Tzu", Category: "wisdom"},
	{Text: "Whether you think you can or you think you can't, you're right.", Author: "Henry Ford", Category: "mindset"},
	{Text: "The mind is everything. What you think you become.", Author: "Buddha", Category: "mindset"},
	{Text: "Strive not to be a success, but rather to be of value.", Author: "Albert Einstein", Category: "success"},
}

// FallbackSource serves quotes from the bundled dataset. Picks are
// uniform-random within the requested category; an unknown category falls
// back to the whole set.
type FallbackSource struct {
	mu         sync.Mutex
	rng        *rand.Rand
	byCategory map[string][]Quote
	all        []Quote
}

func NewFallbackSource() *FallbackSource {
	fs := &FallbackSource{
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
		byCategory: make(map[string][]Quote),
		all:        fallbackQuotes,
	}
	for _, q := range fallbackQuotes {
		fs.byCategory[q.Category] = append(fs.byCategory[q.Category], q)
	}
	return fs
}

// Pick returns a quote for category, never failing: with local data
// bundled, "no data" is not a valid terminal state.
func (fs *FallbackSource) Pick(category string) Quote {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	pool := fs.all
	if matches, ok := fs.byCategory[strings.ToLower(strings.TrimSpace(category))]; ok {
		pool = matches
	}
	q := pool[fs.rng.Intn(len(pool))]
	q.Source = "fallback"
	q.FetchedAt = time.Now()
	return q
}

// Categories lists the categories present in the bundled set.
func (fs *FallbackSource) Categories() []string {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	cats := make([]string, 0, len(fs.byCategory))
	for c := range fs.byCategory {
		cats = append(cats, c)
	}
	return cats
}
