package scraper

import "github.com/use-agent/trendscraper/engine"

// X.com DOM locators. The site rolls out markup changes gradually, so each
// control is matched by several structurally different candidates, tried
// in order. Update these when scraping breaks.

// Selectors holds the candidate sets for every control the sequence touches.
type Selectors struct {
	Username []engine.Locator
	Next     []engine.Locator
	Password []engine.Locator
	Login    []engine.Locator

	// Trends[0] is the primary selector used to collect trend texts once
	// any candidate has resolved.
	Trends []engine.Locator
}

// DefaultSelectors returns the locators for the current x.com markup.
func DefaultSelectors() Selectors {
	return Selectors{
		Username: []engine.Locator{
			engine.CSS(`input[autocomplete="username"]`),
			engine.CSS(`input[name="text"]`),
			engine.CSS(`input[data-testid="text-input-email"]`),
			engine.XPath(`//input[@autocomplete='username']`),
			engine.XPath(`//input[@name='text']`),
		},
		Next: []engine.Locator{
			engine.XPath(`//div[@role='button']//span[text()='Next']`),
			engine.CSS(`[data-testid="auth-next"]`),
			engine.XPath(`//span[contains(text(), 'Next')]/..`),
			engine.Text(`[role="button"]`, "Next"),
		},
		Password: []engine.Locator{
			engine.CSS(`input[type="password"]`),
		},
		Login: []engine.Locator{
			engine.XPath(`//div[@role='button']//span[text()='Log in']`),
			engine.CSS(`[data-testid="LoginButton"]`),
			engine.XPath(`//span[contains(text(), 'Log in')]/..`),
			engine.Text(`[role="button"]`, "Log in"),
		},
		Trends: []engine.Locator{
			engine.CSS(`[data-testid="trend"]`),
			engine.CSS(`article[role="article"]`),
			engine.XPath(`//div[contains(@data-testid, 'trend')]`),
		},
	}
}
