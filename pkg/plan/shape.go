package plan

import "regexp"

// exprSpan recognizes a config value that contains a {{ ... }} template
// span anywhere in its text, used where a value is expected to be a
// reference rather than a literal (e.g. http.url, split.field).
var exprSpan = regexp.MustCompile(`\{\{.*\}\}`)
