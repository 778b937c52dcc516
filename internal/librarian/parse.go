package librarian

import (
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/aitoolkit/librarian-mcp/internal/lang"
	"github.com/aitoolkit/librarian-mcp/internal/parser"
)

// binaryReplacementThreshold is the fraction of decoded runes that may be
// the UTF-8 replacement character before a file is declared binary.
const binaryReplacementThreshold = 0.01

// ParseFile reads absPath and extracts a FileSummary. relPath is the
// project-relative, forward-slash path recorded on the summary. Syntax
// errors and unsupported/binary files are reported via
// FileSummary.ParseError rather than as a Go error — the caller still
// records the file's mtime so it is only re-parsed on change.
func ParseFile(absPath, relPath string) *FileSummary {
	data, err := os.ReadFile(absPath)
	if err != nil {
		return &FileSummary{RelativePath: relPath, ParseError: err.Error()}
	}

	if looksBinary(data) {
		return &FileSummary{RelativePath: relPath, ParseError: "binary"}
	}

	ext := filepath.Ext(absPath)
	l, ok := lang.LanguageForExtension(ext)
	if !ok || l != lang.Python {
		return &FileSummary{RelativePath: relPath, ParseError: "unsupported language"}
	}

	tree, err := parser.Parse(lang.Python, data)
	if err != nil {
		return &FileSummary{RelativePath: relPath, ParseError: err.Error()}
	}
	defer tree.Close()

	if tree.RootNode().HasError() {
		return &FileSummary{RelativePath: relPath, ParseError: "syntax error"}
	}

	return parsePython(tree, data, relPath)
}

// looksBinary reports whether decoding data as UTF-8 requires replacing
// more than binaryReplacementThreshold of its runes.
func looksBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	total, replaced := 0, 0
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		total++
		if r == utf8.RuneError && size == 1 {
			replaced++
		}
		i += size
	}
	if total == 0 {
		return false
	}
	return float64(replaced)/float64(total) > binaryReplacementThreshold
}
