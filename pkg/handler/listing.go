package handler

import (
	"html/template"
	"io"
	"net/url"

	nearfs "github.com/nearfs/gateway/pkg"
)

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Index of {{.Path}}</title>
</head>
<body>
<h1>Index of {{.Path}}</h1>
<ul>{{range .Entries}}<li><a href="{{.Href}}">{{.Name}}</a></li>{{end}}</ul>
</body>
</html>
`))

type listingEntry struct {
	Name string
	Href string
}

type listingPage struct {
	Path    string
	Entries []listingEntry
}

// renderListing writes the directory index. Links are relative, so the page
// must be served from a path ending in a slash.
func renderListing(w io.Writer, path string, listing *nearfs.DirectoryListing) error {
	page := listingPage{Path: path}
	for _, link := range listing.Links() {
		page.Entries = append(page.Entries, listingEntry{
			Name: link.Name,
			Href: "./" + url.PathEscape(link.Name),
		})
	}
	return listingTemplate.Execute(w, page)
}
