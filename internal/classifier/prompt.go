package classifier

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type pageInfo struct {
	Title       string
	Description string
}

// extractPageInfo pulls the title and meta description out of html.
// Failures degrade to "Unknown" and an empty description.
func extractPageInfo(html string) pageInfo {
	info := pageInfo{Title: "Unknown"}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return info
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		info.Title = title
	}
	doc.Find("meta").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		if !strings.EqualFold(strings.TrimSpace(name), "description") {
			return true
		}
		info.Description = strings.TrimSpace(s.AttrOr("content", ""))
		return false
	})
	return info
}

const promptTemplate = `Analyze if this website distracts from the user's goal.

USER'S GOAL: %q

WEBSITE INFO:
- URL: %s
- Title: %s
- Description: %s

RULES (STRICT, CONTENT-FIRST):
1. Social/entertainment platforms (YouTube, Reddit, TikTok, Netflix, etc.) are ONLY distractions when the specific video/post/page content is unrelated to the goal. The domain alone is not enough; use the title, description and HTML snippet to decide.
2. Streaming/video/gaming content that is purely for entertainment = DISTRACTION unless the title/description explicitly ties to the goal.
3. News/blogs = DISTRACTION unless the goal mentions news/research on the same topic.
4. Shopping/e-commerce = DISTRACTION unless the goal involves buying/comparing that product/service.
5. Educational/tutorial/reference content that advances the goal = NOT a distraction.
6. Productivity/work tools (docs, email, calendar, project trackers) = NOT a distraction.
7. If the content clearly helps the goal, allow it even if the domain is usually distracting.
8. If the intent is unclear or recreational after checking the actual content, treat it as a distraction.

EXAMPLE 1: Goal="Learning Python", URL="youtube.com/watch?v=python-tutorial" -> NOT distraction
EXAMPLE 2: Goal="Learning Python", URL="youtube.com/watch?v=funny-cats" -> DISTRACTION
EXAMPLE 3: Goal="Writing report", URL="reddit.com/r/funny" -> DISTRACTION
EXAMPLE 4: Goal="Research AI", URL="arxiv.org/ai-paper" -> NOT distraction

Analyze this page content:
%s

Respond with ONLY a JSON object in this exact format:
{
  "isDistraction": true,
  "confidence": 0.95,
  "reason": "Brief explanation"
}`

func buildPrompt(goal, pageURL string, info pageInfo, excerpt string) string {
	return fmt.Sprintf(promptTemplate, goal, pageURL, info.Title, info.Description, excerpt)
}
