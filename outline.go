package docquiz

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var headingNumberPattern = regexp.MustCompile(`^([0-9]+)(\.[0-9]+)*[.)]?\s+`)

// BuildOutline derives a topic/subtopic outline from per-page text by
// detecting heading-shaped lines. Numbered headings like "2." open a
// topic; "2.1" opens a subtopic under it. Text before the first heading
// falls into an implicit "Introduction" topic. A document with no
// detectable headings gets a single topic spanning all pages.
func BuildOutline(pages []Page) []Topic {
	var topics []Topic
	var current *Topic

	appendPage := func(t *Topic, page int) {
		if n := len(t.Pages); n == 0 || t.Pages[n-1] != page {
			t.Pages = append(t.Pages, page)
		}
	}

	for _, page := range pages {
		for _, line := range strings.Split(page.Text, "\n") {
			title, depth := headingLine(line)
			if title == "" {
				if current != nil {
					appendPage(current, page.Page)
				}
				continue
			}

			if depth >= 2 && current != nil {
				sub := Topic{
					ID:    fmt.Sprintf("%s.s%d", current.ID, len(current.Subtopics)+1),
					Title: title,
					Pages: []int{page.Page},
				}
				current.Subtopics = append(current.Subtopics, sub)
				appendPage(current, page.Page)
				continue
			}

			topics = append(topics, Topic{
				ID:    fmt.Sprintf("t%d", len(topics)+1),
				Title: title,
				Pages: []int{page.Page},
			})
			current = &topics[len(topics)-1]
		}

		// Pages with no heading at all before the first topic still
		// need a home.
		if current == nil && strings.TrimSpace(page.Text) != "" {
			topics = append(topics, Topic{ID: "t1", Title: "Introduction", Pages: []int{page.Page}})
			current = &topics[0]
		} else if current != nil {
			appendPage(current, page.Page)
		}
	}

	if len(topics) == 0 {
		all := make([]int, 0, len(pages))
		for _, p := range pages {
			all = append(all, p.Page)
		}
		topics = []Topic{{ID: "t1", Title: "Document", Pages: all}}
	}
	return topics
}

// headingLine reports the heading title and nesting depth of a line, or
// ("", 0) when the line is body text. Depth 1 is a topic, >=2 a
// subtopic.
func headingLine(line string) (string, int) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return "", 0
	}

	if strings.HasPrefix(trimmed, "#") {
		level := 0
		for level < len(trimmed) && trimmed[level] == '#' {
			level++
		}
		title := strings.TrimSpace(trimmed[level:])
		if title == "" {
			return "", 0
		}
		return title, level
	}

	if m := headingNumberPattern.FindString(trimmed); m != "" {
		// "2." is depth 1, "2.1" depth 2, and so on.
		number := strings.TrimRight(strings.TrimSpace(m), ".)")
		return trimmed, strings.Count(number, ".") + 1
	}

	// Short, mostly-uppercase lines read as section headings in many
	// PDF extractions.
	if isUppercaseHeading(trimmed) {
		return trimmed, 1
	}
	return "", 0
}

func isUppercaseHeading(s string) bool {
	if len([]rune(s)) > 80 {
		return false
	}
	letters, uppers := 0, 0
	for _, r := range s {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				uppers++
			}
		}
	}
	return letters >= 3 && float64(uppers) >= 0.8*float64(letters)
}

// TopicForPage returns the first topic containing page, and the
// subtopic within it when one matches.
func TopicForPage(outline []Topic, page int) (Topic, *Topic, bool) {
	for _, topic := range outline {
		if !containsPage(topic.Pages, page) {
			continue
		}
		for i := range topic.Subtopics {
			if containsPage(topic.Subtopics[i].Pages, page) {
				return topic, &topic.Subtopics[i], true
			}
		}
		return topic, nil, true
	}
	return Topic{}, nil, false
}

func containsPage(pages []int, page int) bool {
	for _, p := range pages {
		if p == page {
			return true
		}
	}
	return false
}
