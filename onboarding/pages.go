// Package onboarding drives the first-run flow: a three page carousel, a
// privacy consent screen and the hand-off to phone verification.
package onboarding

// Page is one carousel page.
type Page struct {
	Image string
	Title string
}

// Pages is the carousel content in display order.
var Pages = []Page{
	{Image: "welcome1", Title: "Get instant alerts for scam calls, suspicious texts, harmful apps, and breaches"},
	{Image: "welcome2", Title: "Protect your family from scams with real-time alerts and safety monitoring"},
	{Image: "welcome3", Title: "Recover lost money if tricked, with Shield Protect up to Rs 1,00,000"},
}

// Consent is the copy of the privacy consent screen.
var Consent = struct {
	Heading string
	Summary string
	Points  []string
	Accept  string
}{
	Heading: "Private by Design.\nYou're in Control.",
	Summary: "Shield protects you from scams, risky links, and harmful apps, all while keeping your data private and secure.",
	Points: []string{
		"All checks happen on your phone; contacts and chats stay private.",
		"We request only permissions needed to keep you safe.",
		"Control your data access anytime. We never sell your information.",
	},
	Accept: "I understand",
}

// Carousel tracks the visible page.
type Carousel struct {
	index int
}

// Current returns the visible page and its index.
func (c *Carousel) Current() (Page, int) {
	return Pages[c.index], c.index
}

// ButtonLabel is "Get Started" on the last page and "Next" elsewhere.
func (c *Carousel) ButtonLabel() string {
	if c.index == len(Pages)-1 {
		return "Get Started"
	}
	return "Next"
}

// Advance moves to the next page. It reports true when the last page was
// already showing, meaning the carousel is finished.
func (c *Carousel) Advance() bool {
	if c.index == len(Pages)-1 {
		return true
	}
	c.index++
	return false
}

// Seek jumps to page i, as a swipe would. Out of range values are clamped.
func (c *Carousel) Seek(i int) {
	switch {
	case i < 0:
		c.index = 0
	case i >= len(Pages):
		c.index = len(Pages) - 1
	default:
		c.index = i
	}
}
