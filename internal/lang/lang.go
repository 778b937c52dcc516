// Package lang identifies a file's language by extension. Only Python is
// ever parsed into an AST (internal/librarian, internal/parser); every
// other recognized extension exists so discovery and filesystem search
// (find_implementation) can tag and match non-Python files by name without
// claiming to parse them — the extension point the source parser leaves
// for languages beyond Python stops at recognition, not parsing.
package lang

// Language is a short label identifying a file's language.
type Language string

// Python is the only language the source parser actually parses.
const Python Language = "python"

// JSON is tagged separately by discover.Discover; it has no parser
// support, just like every other non-Python entry below.
const JSON Language = "json"

// byExtension maps recognized file extensions to a language label, for
// tagging files that Discover finds. Extending this map widens what
// filesystem search can match by name; it does not add parsing support.
var byExtension = map[string]Language{
	".py":    Python,
	".pyw":   Python,
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".go":    "go",
	".java":  "java",
	".rb":    "ruby",
	".rs":    "rust",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "c-sharp",
	".php":   "php",
	".sh":    "bash",
	".bash":  "bash",
	".html":  "html",
	".css":   "css",
	".scss":  "scss",
	".yaml":  "yaml",
	".yml":   "yaml",
	".toml":  "toml",
	".sql":   "sql",
	".md":    "markdown",
}

// LanguageForExtension returns the recognized language label for a file
// extension (e.g. ".py"), and whether one was found.
func LanguageForExtension(ext string) (Language, bool) {
	l, ok := byExtension[ext]
	return l, ok
}
