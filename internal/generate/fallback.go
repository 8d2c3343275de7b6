package generate

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	logx "tubefarm/pkg/logx"
)

type nicheTemplates struct {
	topics   []string
	scripts  []string
	titles   []string
	hashtags []string
}

// Template material keyed by niche. Unknown niches fall back to Motivational
// so the fallback path can never fail.
var fallbackTemplates = map[string]nicheTemplates{
	"Motivational": {
		topics: []string{
			"The Power of Persistence",
			"Why Most People Quit Too Early",
			"One Habit That Changed Everything",
			"The Secret to Staying Motivated",
			"How to Overcome Self-Doubt",
		},
		scripts: []string{
			"Did you know that most successful people failed multiple times before achieving greatness? The difference is they never gave up. Start today, keep going, and success will follow.",
			"Stop waiting for the perfect moment. The perfect moment is now. Take action, make mistakes, learn, and grow. Your future self will thank you.",
			"Success is not about being the best. It's about being consistent. Show up every day, put in the work, and watch your dreams become reality.",
		},
		titles: []string{
			"This Will Change Your Life Forever",
			"The #1 Secret Successful People Know",
			"Why You Should Never Give Up",
			"The Truth About Success Nobody Tells You",
			"How to Stay Motivated Every Single Day",
		},
		hashtags: []string{"#motivation", "#success", "#mindset", "#inspiration", "#nevergiveup"},
	},
	"Facts & Info": {
		topics:   []string{"Amazing Facts You Didn't Know", "Mind-Blowing Science Facts", "Historical Mysteries"},
		scripts:  []string{"Did you know? The human brain generates enough electricity to power a small light bulb. Our minds are truly incredible machines."},
		titles:   []string{"Facts That Will Blow Your Mind", "Science Facts That Sound Fake But Are True"},
		hashtags: []string{"#facts", "#science", "#amazing", "#mindblowing"},
	},
	"Finance": {
		topics:   []string{"Side Hustle Ideas", "Passive Income Strategies", "Money Mindset"},
		scripts:  []string{"Want to make extra income? Here are 3 proven strategies that actually work. Number 2 is my personal favorite."},
		titles:   []string{"How to Make Money Online", "Side Hustles That Actually Work"},
		hashtags: []string{"#finance", "#money", "#sidehustle", "#passiveincome"},
	},
	"Psychology": {
		topics:   []string{"Psychology Tricks", "Human Behavior Explained", "Mental Hacks"},
		scripts:  []string{"Want to read people like a book? This simple psychology trick will change how you understand human behavior forever."},
		titles:   []string{"Psychology Hacks That Actually Work", "Read Anyone Like a Book"},
		hashtags: []string{"#psychology", "#mindtricks", "#humanbehavior"},
	},
}

// Fallback produces template-based content when AI generation is unavailable.
// It never returns an error.
type Fallback struct {
	mu  sync.Mutex
	rng *rand.Rand
	log logx.Logger
}

func NewFallback(log logx.Logger) *Fallback {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Fallback{
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
		log: log,
	}
}

func (f *Fallback) Generate(niche, videoType string) Content {
	if videoType == "" {
		videoType = "short"
	}
	f.log.Info("using fallback generator", logx.String("niche", niche), logx.String("type", videoType))

	tpl, ok := fallbackTemplates[niche]
	if !ok {
		tpl = fallbackTemplates["Motivational"]
	}

	topic := f.pick(tpl.topics)
	script := f.pick(tpl.scripts)
	titleBase := f.pick(tpl.titles)

	titles := []string{
		titleBase,
		fmt.Sprintf("%s - Must Watch!", topic),
		fmt.Sprintf("The Truth About %s", topic),
		fmt.Sprintf("%s Explained", topic),
		fmt.Sprintf("Why %s Matters", topic),
		fmt.Sprintf("%s: The Complete Guide", topic),
		fmt.Sprintf("Everything You Need to Know About %s", topic),
		fmt.Sprintf("How to Master %s", topic),
	}

	description := fmt.Sprintf(
		"%s\n\n🔥 %s\n\nWatch this video to learn more about %s and transform your mindset!\n\n✅ Subscribe for more content\n💬 Comment your thoughts below\n📢 Share with someone who needs this\n\n#%s %s",
		script, topic, strings.ToLower(niche),
		strings.ReplaceAll(niche, " ", ""), strings.Join(tpl.hashtags, " "),
	)

	return Content{
		Topic:       topic,
		Script:      script,
		Titles:      titles,
		Description: description,
		Hashtags:    tpl.hashtags,
		Niche:       niche,
		Type:        videoType,
		GeneratedBy: "fallback",
	}
}

func (f *Fallback) pick(items []string) string {
	if len(items) == 0 {
		return ""
	}
	f.mu.Lock()
	i := f.rng.Intn(len(items))
	f.mu.Unlock()
	return items[i]
}
