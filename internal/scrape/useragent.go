package scrape

// The bot identity is used wherever we scrape openly: robots.txt checks,
// the Tiki API and the eBay review pages. Rendered captures of anti-bot
// heavy storefronts use a desktop Chrome identity instead, paired with the
// stealth init script.
const (
	robotsAgent  = "ReviewPulseBot"
	botUserAgent = "ReviewPulseBot/1.0 (educational project; respects robots.txt)"

	chromeUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) " +
		"Chrome/120.0.0.0 Safari/537.36"
)
