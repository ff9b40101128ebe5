package report

import (
	"strings"
)

// DefaultKeyword is the phrase every tracked time comment contains.
const DefaultKeyword = "Time Tracked"

// QueryParams scopes one user's issue search.
type QueryParams struct {
	Username string
	Org      string
	Repo     string
	Keyword  string
	Start    string
	End      string
}

// BuildSearchQuery returns the issue search query for one user.
// The date term filters on issue update time: the search API cannot filter by comment creation date,
// so comments are filtered again after fetching.
func BuildSearchQuery(params QueryParams) string {
	keyword := strings.TrimSpace(params.Keyword)
	if keyword == "" {
		keyword = DefaultKeyword
	}

	scope := "org:" + params.Org
	if repo := strings.TrimSpace(params.Repo); repo != "" {
		scope = "repo:" + params.Org + "/" + repo
	}

	terms := []string{
		"type:issue",
		"commenter:" + params.Username,
		scope,
		`"` + keyword + `"`,
		"updated:" + params.Start + ".." + params.End,
	}
	return strings.Join(terms, " ")
}
