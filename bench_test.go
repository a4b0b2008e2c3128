package sculpt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/jward/sculpt/internal/config"
)

// benchPySource is a realistic Python module with classes, methods, and
// cross-references for exercising the full index pipeline.
const benchPySource = `"""Inventory service."""
import logging
from dataclasses import dataclass

log = logging.getLogger(__name__)


@dataclass
class Item:
    sku: str
    quantity: int = 0

    def restock(self, n: int) -> None:
        self.quantity += n


class Inventory:
    """Holds items by SKU."""

    def __init__(self):
        self.items = {}

    def add(self, item: Item) -> None:
        self.items[item.sku] = item

    def get(self, sku: str) -> Item:
        return self.items[sku]

    def restock(self, sku: str, n: int) -> None:
        item = self.get(sku)
        item.restock(n)
        log.info("restocked %s", sku)


def build(skus):
    inv = Inventory()
    for sku in skus:
        inv.add(Item(sku))
    return inv


def report(inv: Inventory) -> str:
    lines = []
    for sku, item in inv.items.items():
        lines.append(f"{sku}: {item.quantity}")
    return "\n".join(lines)


def main():
    inv = build(["a", "b", "c"])
    inv.restock("a", 3)
    print(report(inv))
`

const benchImporter = `from inventory import build, report


def run():
    return report(build(["x"]))
`

// setupBenchRepo writes n copies of the inventory module plus one importer
// per copy.
func setupBenchRepo(b *testing.B, n int) string {
	b.Helper()
	dir := b.TempDir()
	write := func(name, src string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(src), 0o644); err != nil {
			b.Fatal(err)
		}
	}
	write("inventory.py", benchPySource)
	write("app.py", benchImporter)
	for i := 1; i < n; i++ {
		write(fmt.Sprintf("inventory_%d.py", i), benchPySource)
	}
	return dir
}

func openBench(b *testing.B, root string) *Codebase {
	b.Helper()
	cb, err := Open(context.Background(), root, WithConfig(config.DefaultConfig()))
	if err != nil {
		b.Fatal(err)
	}
	return cb
}

// BenchmarkOpen measures scanning, parsing and linking a small repository.
func BenchmarkOpen(b *testing.B) {
	root := setupBenchRepo(b, 20)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cb := openBench(b, root)
		b.StopTimer()
		cb.Close()
		b.StartTimer()
	}
}

// BenchmarkCommit_Rename measures an edit transaction that touches two
// files and relinks their importers.
func BenchmarkCommit_Rename(b *testing.B) {
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		cb := openBench(b, setupBenchRepo(b, 5))
		sym, err := cb.GetSymbol("inventory.py", "build")
		if err != nil {
			b.Fatal(err)
		}
		if err := sym.Rename("assemble"); err != nil {
			b.Fatal(err)
		}
		b.StartTimer()

		if _, err := cb.Commit(ctx); err != nil {
			b.Fatal(err)
		}

		b.StopTimer()
		cb.Close()
		b.StartTimer()
	}
}

// BenchmarkMoveSymbol measures planning a move with dependency closure,
// without committing.
func BenchmarkMoveSymbol(b *testing.B) {
	cb := openBench(b, setupBenchRepo(b, 5))
	defer cb.Close()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		sym, err := cb.GetSymbol("inventory.py", "report")
		if err != nil {
			b.Fatal(err)
		}
		if _, err := cb.MoveSymbol(sym, "reports.py", MoveOptions{IncludeDependencies: true}); err != nil {
			b.Fatal(err)
		}
		b.StopTimer()
		cb.Reset()
		b.StartTimer()
	}
}

// BenchmarkQueryDefinitionAt measures the position lookup path: offset
// conversion, site scan and root resolution.
func BenchmarkQueryDefinitionAt(b *testing.B) {
	cb := openBench(b, setupBenchRepo(b, 5))
	defer cb.Close()

	// "report" in `    return report(build(["x"]))` on line 5 of app.py.
	if locs := cb.DefinitionAt("app.py", 5, 12); len(locs) == 0 {
		b.Fatal("no definition found")
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cb.DefinitionAt("app.py", 5, 12)
	}
}
