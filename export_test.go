package sculpt

import (
	"bytes"
	"testing"

	"github.com/sourcegraph/scip/bindings/go/scip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

func exportIndex(t *testing.T, cb *Codebase) *scip.Index {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, cb.ExportSCIP(&buf))
	var index scip.Index
	require.NoError(t, proto.Unmarshal(buf.Bytes(), &index))
	return &index
}

func findDocument(index *scip.Index, p string) *scip.Document {
	for _, d := range index.Documents {
		if d.RelativePath == p {
			return d
		}
	}
	return nil
}

func TestExportSCIP(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "import requests\n\n\nclass Box:\n    def open(self):\n        return requests.get('x')\n\n\ndef helper():\n    return Box()\n",
		"b.py": "from a import helper\n\nhelper()\n",
		"c.ts": "export const x = 1;\n",
	})

	index := exportIndex(t, cb)
	require.NotNil(t, index.Metadata)
	assert.Equal(t, "sculpt", index.Metadata.ToolInfo.Name)
	assert.Equal(t, "file://"+cb.Root(), index.Metadata.ProjectRoot)
	require.Len(t, index.Documents, 3)

	a := findDocument(index, "a.py")
	require.NotNil(t, a)
	assert.Equal(t, scip.Language_Python.String(), a.Language)
	assert.Equal(t, scip.Language_TypeScript.String(), findDocument(index, "c.ts").Language)

	defs := make(map[string][]int32)
	for _, occ := range a.Occurrences {
		if occ.SymbolRoles&int32(scip.SymbolRole_Definition) != 0 {
			defs[occ.Symbol] = occ.Range
		}
	}
	assert.Equal(t, []int32{3, 6, 9}, defs["sculpt . . . `a.py`/Box#"])
	assert.Equal(t, []int32{4, 8, 12}, defs["sculpt . . . `a.py`/Box#open()."])
	assert.Equal(t, []int32{8, 4, 10}, defs["sculpt . . . `a.py`/helper()."])

	infos := make(map[string]*scip.SymbolInformation)
	for _, info := range a.Symbols {
		infos[info.Symbol] = info
	}
	open := infos["sculpt . . . `a.py`/Box#open()."]
	require.NotNil(t, open)
	assert.Equal(t, scip.SymbolInformation_Method, open.Kind)
	assert.Equal(t, "sculpt . . . `a.py`/Box#", open.EnclosingSymbol)
	assert.Equal(t, scip.SymbolInformation_Class, infos["sculpt . . . `a.py`/Box#"].Kind)

	b := findDocument(index, "b.py")
	require.NotNil(t, b)
	var refs []int32
	for _, occ := range b.Occurrences {
		if occ.Symbol == "sculpt . . . `a.py`/helper()." && occ.SymbolRoles == 0 {
			refs = append(refs, occ.Range[0])
		}
	}
	assert.Contains(t, refs, int32(2))

	var externals []string
	for _, ext := range index.ExternalSymbols {
		externals = append(externals, ext.DisplayName)
	}
	assert.Contains(t, externals, "requests")
}

func TestExportSCIP_OccurrencesSorted(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{
		"a.py": "def f():\n    pass\n\n\ndef g():\n    f()\n    f()\n",
	})

	for _, doc := range exportIndex(t, cb).Documents {
		for i := 1; i < len(doc.Occurrences); i++ {
			prev, cur := doc.Occurrences[i-1].Range, doc.Occurrences[i].Range
			assert.True(t, prev[0] < cur[0] || prev[0] == cur[0] && prev[1] <= cur[1], "occurrences out of order")
		}
	}
}

func TestExportSCIP_PendingExcluded(t *testing.T) {
	t.Parallel()
	cb := newTestCodebase(t, map[string]string{"a.py": "def f():\n    pass\n"})
	require.NoError(t, mustSymbol(t, cb, "a.py", "f").Rename("g"))

	doc := findDocument(exportIndex(t, cb), "a.py")
	require.NotNil(t, doc)
	var names []string
	for _, info := range doc.Symbols {
		names = append(names, info.DisplayName)
	}
	assert.Equal(t, []string{"f"}, names)
}

func TestSCIPEscape(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in, want string
	}{
		{"helper", "helper"},
		{"a.py", "`a.py`"},
		{"src/app", "`src/app`"},
		{"we`ird", "`we``ird`"},
		{"", "``"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, scipEscape(tt.in), tt.in)
	}
}
