package parse

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Language is a canonical language tag.
type Language string

const (
	Python     Language = "python"
	TypeScript Language = "typescript"
	TSX        Language = "tsx"
	JavaScript Language = "javascript"
)

// extToLanguage maps file extensions to canonical language names.
var extToLanguage = map[string]Language{
	".py":  Python,
	".pyi": Python,
	".ts":  TypeScript,
	".mts": TypeScript,
	".cts": TypeScript,
	".tsx": TSX,
	".js":  JavaScript,
	".jsx": JavaScript,
	".mjs": JavaScript,
	".cjs": JavaScript,
}

// langToGrammar maps language names to tree-sitter Language objects.
// Lazily initialized on first call via sync.Once.
var (
	langToGrammar map[Language]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[Language]*sitter.Language{
			Python:     python.GetLanguage(),
			TypeScript: ts.GetLanguage(),
			TSX:        tsx.GetLanguage(),
			JavaScript: javascript.GetLanguage(),
		}
	})
}

// LanguageForFile returns the canonical language for a file path based
// on its extension. Returns ("", false) if the extension is not recognized.
func LanguageForFile(path string) (Language, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	lang, ok := extToLanguage[ext]
	return lang, ok
}

// Grammar returns the tree-sitter Language for a canonical language
// name. Returns (nil, false) if the language is not supported.
func Grammar(lang Language) (*sitter.Language, bool) {
	initGrammars()
	l, ok := langToGrammar[lang]
	return l, ok
}

// ParseLanguage converts a user-supplied name ("py", "ts", ...) to a Language.
func ParseLanguage(name string) (Language, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "python", "py":
		return Python, true
	case "typescript", "ts":
		return TypeScript, true
	case "tsx":
		return TSX, true
	case "javascript", "js":
		return JavaScript, true
	}
	return "", false
}

// Family groups languages that share module semantics and syntax.
// TypeScript, TSX and JavaScript all resolve ECMAScript modules.
func (l Language) Family() Language {
	switch l {
	case TSX, JavaScript:
		return TypeScript
	}
	return l
}

// IsECMAScript reports whether l uses the ECMAScript module system.
func (l Language) IsECMAScript() bool {
	return l.Family() == TypeScript
}

// Languages returns every supported language.
func Languages() []Language {
	return []Language{Python, TypeScript, TSX, JavaScript}
}
