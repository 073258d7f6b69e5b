package naming

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// DefaultExtensions is the poster file extension preference order.
var DefaultExtensions = []string{".jpg", ".jpeg", ".png"}

// DefaultKeywords is the poster filename keyword preference order.
var DefaultKeywords = []string{"poster", "folder", "cover"}

// DefaultSeasonPatterns match season poster filename stems. Order matters:
// the first matching pattern wins. Patterns are anchored at the start of the
// stem and compiled case-insensitively.
var DefaultSeasonPatterns = []string{
	`season\d{2}-?poster`,
	`s\d{2}-?poster`,
	`season\d{1,2}-?poster`,
	`s\d{1,2}-?poster`,
	`season\d{2}-?folder`,
	`s\d{2}-?folder`,
	`season\d{2}-?cover`,
	`s\d{2}-?cover`,
}

// Season number extraction is independent from the season-poster patterns:
// it only captures the numeric token.
var seasonIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)season\s?(\d{1,2})`),
	regexp.MustCompile(`(?i)s(\d{1,2})`),
}

// unrankedKeyword sorts stems without a keyword match after all ranked ones.
const unrankedKeyword = 1 << 20

// Classification is the result of classifying one filename.
type Classification struct {
	IsPoster       bool
	IsSeasonPoster bool
	SeasonID       string // two-digit zero-padded, set only for season posters
}

// Classifier decides whether a filename is a poster, and whether it is a
// season poster, based on the configured extension set, keyword preference
// list and season patterns.
type Classifier struct {
	extIndex       map[string]int
	keywords       []string
	seasonPatterns []*regexp.Regexp
}

// NewClassifier compiles a classifier from configuration. Season patterns
// are matched case-insensitively and anchored at the start of the stem.
func NewClassifier(extensions, keywords, seasonPatterns []string) (*Classifier, error) {
	extIndex := make(map[string]int, len(extensions))
	for i, ext := range extensions {
		extIndex[strings.ToLower(ext)] = i
	}

	lowered := make([]string, len(keywords))
	for i, kw := range keywords {
		lowered[i] = strings.ToLower(kw)
	}

	compiled := make([]*regexp.Regexp, 0, len(seasonPatterns))
	for _, p := range seasonPatterns {
		re, err := regexp.Compile(`(?i)^` + p)
		if err != nil {
			return nil, fmt.Errorf("invalid season poster pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}

	return &Classifier{
		extIndex:       extIndex,
		keywords:       lowered,
		seasonPatterns: compiled,
	}, nil
}

// Classify inspects a filename (base name or full path). Season
// classification takes precedence: a stem matching a season pattern never
// counts as a plain series poster, even if it also contains a keyword.
func (c *Classifier) Classify(filename string) Classification {
	if !c.IsPosterExtension(filename) {
		return Classification{}
	}

	stem := Stem(filename)

	if c.isSeasonStem(stem) {
		id, ok := ExtractSeasonID(stem)
		if !ok {
			id = "01"
		}
		return Classification{IsPoster: true, IsSeasonPoster: true, SeasonID: id}
	}

	if c.KeywordRank(stem) != unrankedKeyword {
		return Classification{IsPoster: true}
	}

	return Classification{}
}

// IsPosterExtension reports whether the filename carries a configured poster
// extension.
func (c *Classifier) IsPosterExtension(filename string) bool {
	_, ok := c.extIndex[strings.ToLower(filepath.Ext(filename))]
	return ok
}

// KeywordRank returns the sort rank of a stem against the keyword preference
// list. An exact stem match ranks above a substring match of the same
// keyword; stems matching no keyword get a sentinel rank that sorts last.
func (c *Classifier) KeywordRank(stem string) int {
	lower := strings.ToLower(stem)
	for i, kw := range c.keywords {
		if lower == kw {
			return i
		}
	}
	for i, kw := range c.keywords {
		if strings.Contains(lower, kw) {
			return len(c.keywords) + i
		}
	}
	return unrankedKeyword
}

// ExtensionRank returns the preference index of a file extension, or a
// sentinel rank for unknown extensions.
func (c *Classifier) ExtensionRank(ext string) int {
	if i, ok := c.extIndex[strings.ToLower(ext)]; ok {
		return i
	}
	return unrankedKeyword
}

func (c *Classifier) isSeasonStem(stem string) bool {
	for _, re := range c.seasonPatterns {
		if re.MatchString(stem) {
			return true
		}
	}
	return false
}

// ExtractSeasonID extracts the season number from a stem and zero-pads it to
// two digits. "s1-poster", "s01-poster" and "season1poster" all yield "01".
func ExtractSeasonID(stem string) (string, bool) {
	for _, re := range seasonIDPatterns {
		if m := re.FindStringSubmatch(stem); m != nil {
			n, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			return fmt.Sprintf("%02d", n), true
		}
	}
	return "", false
}

// Stem returns the filename without directory or extension.
func Stem(filename string) string {
	base := filepath.Base(filename)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
