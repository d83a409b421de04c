package organizer

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"comicshelf/internal/store"
	"comicshelf/internal/textutil"
)

// Renaming rule tokens.
const (
	TokenPublisher = "PUBLISHER"
	TokenSeries    = "SERIES"
	TokenVolume    = "VOLUME"
	TokenIssue     = "ISSUE"
	TokenCoverDate = "COVERDATE"
	TokenTitle     = "TITLE"
)

const unknownSegment = "Unknown"

// ErrInvalidRule reports a renaming rule that cannot produce a relative path.
var ErrInvalidRule = errors.New("organizer: invalid renaming rule")

var (
	tokenPattern       = regexp.MustCompile(`\$([A-Z]+)`)
	emptyBracketsRegex = regexp.MustCompile(`\(\s*\)|\[\s*\]`)
)

// ValidateRule checks that rule only references known tokens and stays
// relative to the target directory.
func ValidateRule(rule string) error {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return fmt.Errorf("%w: rule is empty", ErrInvalidRule)
	}
	if strings.HasPrefix(rule, "/") {
		return fmt.Errorf("%w: %q must be relative", ErrInvalidRule, rule)
	}
	for _, segment := range strings.Split(rule, "/") {
		if strings.TrimSpace(segment) == ".." {
			return fmt.Errorf("%w: %q escapes the target directory", ErrInvalidRule, rule)
		}
	}
	for _, match := range tokenPattern.FindAllStringSubmatch(rule, -1) {
		if _, ok := tokenValue(match[1], &store.Comic{}); !ok {
			return fmt.Errorf("%w: unknown token $%s", ErrInvalidRule, match[1])
		}
	}
	return nil
}

// Expand renders rule for comic into a slash separated path relative to the
// library target directory, without file extension. Each segment is expanded
// separately so metadata containing slashes never introduces extra
// directories.
func Expand(rule string, comic *store.Comic) (string, error) {
	if comic == nil {
		return "", errors.New("organizer: comic is nil")
	}
	if err := ValidateRule(rule); err != nil {
		return "", err
	}
	segments := strings.Split(strings.TrimSpace(rule), "/")
	out := make([]string, 0, len(segments))
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			continue
		}
		expanded := tokenPattern.ReplaceAllStringFunc(segment, func(token string) string {
			value, _ := tokenValue(strings.TrimPrefix(token, "$"), comic)
			return value
		})
		expanded = emptyBracketsRegex.ReplaceAllString(expanded, "")
		expanded = strings.Trim(textutil.SanitizeFileName(expanded), " -#")
		if expanded == "" {
			expanded = unknownSegment
		}
		out = append(out, expanded)
	}
	if len(out) == 0 {
		return "", fmt.Errorf("%w: %q expands to nothing", ErrInvalidRule, rule)
	}
	return path.Join(out...), nil
}

func tokenValue(name string, comic *store.Comic) (string, bool) {
	switch name {
	case TokenPublisher:
		return strings.TrimSpace(comic.Publisher), true
	case TokenSeries:
		return strings.TrimSpace(comic.Series), true
	case TokenVolume:
		return strings.TrimSpace(comic.Volume), true
	case TokenIssue:
		return padIssue(comic.IssueNumber), true
	case TokenCoverDate:
		return strings.TrimSpace(comic.CoverDate), true
	case TokenTitle:
		return strings.TrimSpace(comic.Title), true
	default:
		return "", false
	}
}

// padIssue zero-pads the integer part of numeric issue numbers to three
// digits so lexical and numeric ordering agree. "1.5" becomes "001.5";
// non-numeric issues such as "Annual 1" are returned unchanged.
func padIssue(issue string) string {
	issue = strings.TrimSpace(issue)
	if issue == "" {
		return ""
	}
	whole, fraction, hasFraction := strings.Cut(issue, ".")
	n, err := strconv.Atoi(whole)
	if err != nil || n < 0 {
		return issue
	}
	padded := fmt.Sprintf("%03d", n)
	if hasFraction {
		return padded + "." + fraction
	}
	return padded
}
