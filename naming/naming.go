// Package naming computes the folder name a catalog service's own naming
// template would produce for an item. Planning is deterministic and side
// effect free: the same item and template always yield the same path.
package naming

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidyarr/tidyarr/engine/arr"
)

// tokenRe captures naming template tokens including their braces, e.g.
// "{Movie CleanTitle}".
var tokenRe = regexp.MustCompile(`\{[^{}]+\}`)

// MissingTokenError is returned when an item lacks the data a template token
// requires. A partial substitution could produce a folder name the service
// can no longer match to the item, so planning refuses instead of guessing.
type MissingTokenError struct {
	Token string
}

func (e *MissingTokenError) Error() string {
	return fmt.Sprintf("no value for template token %s", e.Token)
}

// Plan describes the rename an item needs, if any.
type Plan struct {
	ItemID      int32
	CurrentPath string
	TargetPath  string
	// NoOp is true when the item's folder already matches the template.
	NoOp bool
}

// PlanRename computes the target folder path for an item from the service's
// folder naming template.
func PlanRename(item arr.MediaItem, format string) (Plan, error) {
	name, err := FolderName(item, format)
	if err != nil {
		return Plan{}, err
	}

	current := strings.TrimRight(item.Path, "/")
	target := joinFolder(item.RootFolderPath, name)

	return Plan{
		ItemID:      item.ID,
		CurrentPath: current,
		TargetPath:  target,
		NoOp:        current == target,
	}, nil
}

// FolderName substitutes the item's fields into the naming template. Every
// token in the template must resolve to a value, otherwise a
// *MissingTokenError is returned.
func FolderName(item arr.MediaItem, format string) (string, error) {
	tokens := tokenRe.FindAllString(format, -1)

	name := format
	for _, token := range tokens {
		value, ok := tokenValue(item, strings.Trim(token, "{}"))
		if !ok {
			return "", &MissingTokenError{Token: token}
		}
		name = strings.ReplaceAll(name, token, value)
	}

	return strings.TrimSpace(name), nil
}

// tokenValue resolves a single template token for an item. The token set
// matches what Radarr and Sonarr offer for folder formats.
func tokenValue(item arr.MediaItem, token string) (string, bool) {
	switch token {
	case "Movie Title", "Series Title":
		return nonEmpty(item.Title)
	case "Movie CleanTitle", "Series CleanTitle":
		return nonEmpty(CleanTitle(item.Title))
	case "Release Year", "Year":
		if item.Year == 0 {
			return "", false
		}
		return fmt.Sprintf("%d", item.Year), true
	case "Series TitleYear":
		if item.Title == "" || item.Year == 0 {
			return "", false
		}
		return titleYear(item.Title, item.Year), true
	case "TmdbId":
		if item.TmdbID == 0 {
			return "", false
		}
		return fmt.Sprintf("%d", item.TmdbID), true
	case "ImdbId":
		return nonEmpty(item.ImdbID)
	case "TvdbId":
		if item.TvdbID == 0 {
			return "", false
		}
		return fmt.Sprintf("%d", item.TvdbID), true
	default:
		return "", false
	}
}

func nonEmpty(s string) (string, bool) {
	return s, s != ""
}

// titleYear appends the year to the title unless the title already carries it,
// e.g. "Yellowstone (2018)" stays as is.
func titleYear(title string, year int32) string {
	suffix := fmt.Sprintf("(%d)", year)
	if strings.Contains(title, suffix) {
		return title
	}
	return fmt.Sprintf("%s %s", title, suffix)
}

var (
	nonAlnumRe = regexp.MustCompile(`[^a-zA-Z0-9 ]`)
	spacesRe   = regexp.MustCompile(`\s+`)
)

// CleanTitle normalizes a title the way the services build their CleanTitle
// token: special characters stripped, whitespace collapsed, words title-cased.
func CleanTitle(title string) string {
	clean := strings.ToLower(title)
	clean = nonAlnumRe.ReplaceAllString(clean, "")
	clean = spacesRe.ReplaceAllString(clean, " ")
	clean = strings.TrimSpace(clean)

	words := strings.Split(clean, " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

// joinFolder builds the target path from the service's root folder and the
// computed folder name, without doubled or trailing slashes.
func joinFolder(rootFolder, name string) string {
	path := strings.TrimRight(rootFolder, "/") + "/" + name
	path = strings.ReplaceAll(path, "//", "/")
	return strings.TrimRight(path, "/")
}
