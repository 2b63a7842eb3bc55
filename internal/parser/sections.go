package parser

import (
	"bufio"
	"regexp"
	"strings"

	"copbot/internal/models"
)

var (
	chapterRe    = regexp.MustCompile(models.ChapterRegex)
	sectionRe    = regexp.MustCompile(models.SectionRegex)
	sectionRefRe = regexp.MustCompile(models.SectionRefRegex)
)

// A heading within the first 1/headingWindow of a chunk names the chunk's
// own section.
const headingWindow = 5

// sectionTracker follows chapter and section headings line by line
// through the chunks of one document.
type sectionTracker struct {
	source  string
	chapter string
	section string
}

func newSectionTracker() *sectionTracker {
	return &sectionTracker{}
}

// reset clears the state when a new document starts. Pages of the same
// document keep the section in effect across page breaks.
func (t *sectionTracker) reset(source string) {
	if t.source == source {
		return
	}
	*t = sectionTracker{source: source}
}

// observe returns the section in effect where text starts and advances
// the state past every heading in text.
func (t *sectionTracker) observe(text string) string {
	current := t.section
	limit := len(text) / headingWindow
	offset := 0

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), len(text)+1)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineStart := offset
		offset += len(scanner.Text()) + 1
		if line == "" {
			continue
		}
		if m := chapterRe.FindStringSubmatch(line); m != nil {
			if t.chapter != m[1] {
				t.chapter = m[1]
				t.section = ""
			}
			continue
		}
		if m := sectionRe.FindStringSubmatch(line); m != nil {
			t.section = headingNumber(m)
			if lineStart <= limit {
				current = t.section
			}
		}
	}
	return current
}

func headingNumber(m []string) string {
	for _, g := range m[1:] {
		if g != "" {
			return strings.ToUpper(g)
		}
	}
	return ""
}

// SectionRefs extracts section numbers referenced in a question, such as
// "IPC 379" or "section 154", upper-cased and without duplicates.
func SectionRefs(question string) []string {
	var refs []string
	seen := make(map[string]bool)
	for _, m := range sectionRefRe.FindAllStringSubmatch(question, -1) {
		ref := strings.ToUpper(m[1])
		if !seen[ref] {
			seen[ref] = true
			refs = append(refs, ref)
		}
	}
	return refs
}
