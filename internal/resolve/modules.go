package resolve

import (
	"path"
	"strings"

	"github.com/jward/sculpt/internal/parse"
)

var ecmaExtensions = []string{".ts", ".tsx", ".d.ts", ".js", ".jsx", ".mjs", ".cjs", ".mts", ".cts"}

// PythonModuleName converts a file path to its dotted module name relative
// to the longest matching source root. The repository root always matches.
func PythonModuleName(filePath string, roots []string) string {
	rel := filePath
	best := -1
	for _, r := range roots {
		r = strings.Trim(path.Clean(r), "/")
		if r == "." || r == "" {
			continue
		}
		if strings.HasPrefix(filePath, r+"/") && len(r) > best {
			best = len(r)
			rel = strings.TrimPrefix(filePath, r+"/")
		}
	}
	rel = strings.TrimSuffix(rel, path.Ext(rel))
	rel = strings.TrimSuffix(rel, "/__init__")
	if rel == "__init__" {
		return ""
	}
	return strings.ReplaceAll(rel, "/", ".")
}

// pythonCandidates lists the files module may live in, most specific first.
func pythonCandidates(importer, module string, roots []string) []string {
	if strings.HasPrefix(module, ".") {
		dots := len(module) - len(strings.TrimLeft(module, "."))
		rest := module[dots:]
		base := path.Dir(importer)
		for i := 1; i < dots; i++ {
			base = path.Dir(base)
		}
		if rest == "" {
			return []string{path.Join(base, "__init__.py")}
		}
		p := path.Join(base, strings.ReplaceAll(rest, ".", "/"))
		return []string{p + ".py", p + ".pyi", path.Join(p, "__init__.py")}
	}

	rel := strings.ReplaceAll(module, ".", "/")
	var out []string
	seen := make(map[string]bool)
	for _, r := range append(append([]string(nil), roots...), "", path.Dir(importer)) {
		p := path.Join(r, rel)
		if seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p+".py", p+".pyi", path.Join(p, "__init__.py"))
	}
	return out
}

// IsRelativeSpecifier reports whether an ECMAScript module specifier
// points into the repository.
func IsRelativeSpecifier(spec string) bool {
	return spec == "." || spec == ".." || strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../")
}

func ecmaCandidates(importer, spec string) []string {
	if !IsRelativeSpecifier(spec) {
		return nil
	}
	base := path.Join(path.Dir(importer), spec)
	var out []string
	ext := path.Ext(base)
	switch ext {
	case ".js", ".jsx", ".mjs", ".cjs":
		out = append(out, base)
		stem := strings.TrimSuffix(base, ext)
		out = append(out, stem+".ts", stem+".tsx", stem+".mts", stem+".cts")
	case ".ts", ".tsx", ".mts", ".cts":
		out = append(out, base)
	}
	for _, e := range ecmaExtensions {
		out = append(out, base+e)
	}
	for _, e := range ecmaExtensions {
		out = append(out, path.Join(base, "index"+e))
	}
	return out
}

// candidates lists the repository files that may hold module as imported
// from importer.
func candidates(lang parse.Language, importer, module string, roots []string) []string {
	if lang == parse.Python {
		return pythonCandidates(importer, module, roots)
	}
	return ecmaCandidates(importer, module)
}

// PythonImportPath returns how importer should name the module in target:
// an absolute dotted path under the source roots, or a relative one when
// relative is set.
func PythonImportPath(importer, target string, roots []string, relative bool) string {
	if !relative {
		return PythonModuleName(target, roots)
	}
	from := splitDir(path.Dir(importer))
	to := splitDir(strings.TrimSuffix(target, path.Ext(target)))
	if len(to) > 0 && to[len(to)-1] == "__init__" {
		to = to[:len(to)-1]
	}
	common := 0
	for common < len(from) && common < len(to) && from[common] == to[common] {
		common++
	}
	return strings.Repeat(".", 1+len(from)-common) + strings.Join(to[common:], ".")
}

// RelativeSpecifier returns the ECMAScript specifier importer uses for
// target: "./b", "../lib/util". Extensions are dropped.
func RelativeSpecifier(importer, target string) string {
	from := splitDir(path.Dir(importer))
	to := splitDir(target)
	common := 0
	for common < len(from) && common < len(to)-1 && from[common] == to[common] {
		common++
	}
	parts := make([]string, 0, len(from)-common+len(to)-common)
	for i := common; i < len(from); i++ {
		parts = append(parts, "..")
	}
	parts = append(parts, to[common:]...)
	spec := strings.Join(parts, "/")
	for _, e := range ecmaExtensions {
		if strings.HasSuffix(spec, e) {
			spec = strings.TrimSuffix(spec, e)
			break
		}
	}
	if !strings.HasPrefix(spec, "../") {
		spec = "./" + spec
	}
	return spec
}

func splitDir(p string) []string {
	p = path.Clean(p)
	if p == "." || p == "" {
		return nil
	}
	return strings.Split(p, "/")
}
