package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/helixir/paper-timeline/internal/view"
)

// outputJSON writes a value as formatted JSON to stdout.
func outputJSON(v interface{}) error {
	return writeJSON(os.Stdout, v)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Flags shared by the commands that project the corpus.
var (
	querySort    string
	queryDate    string
	queryKeyword string
	querySearch  string
)

func addQueryFlags(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&querySort, "sort", "", "Sort mode: date, keyword or likes")
	fs.StringVar(&queryDate, "date", "", "Show one period, e.g. 2024-01 or unknown")
	fs.StringVar(&queryKeyword, "keyword", "", "Show papers tagged with a keyword")
	fs.StringVar(&querySearch, "search", "", "Case-insensitive substring search")
}

func queryFromFlags() view.Query {
	return view.Query{
		Sort:    querySort,
		Date:    queryDate,
		Keyword: queryKeyword,
		Search:  querySearch,
	}
}
