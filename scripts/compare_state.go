//go:build ignore

package main

import (
	"fmt"
	"os"

	"GuardVault/internal/snapshot"
	"GuardVault/internal/storage"
)

// Compares the vault state of two nodes. Each argument is either a data
// directory or a compressed snapshot downloaded with `guardctl snapshot`.
func main() {
	if len(os.Args) != 3 {
		fmt.Fprintf(os.Stderr, "Usage: %s <db_or_snapshot_1> <db_or_snapshot_2>\n", os.Args[0])
		os.Exit(1)
	}

	a, err := load(os.Args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}

	b, err := load(os.Args[2])
	if err != nil {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", os.Args[2], err)
		os.Exit(1)
	}

	fmt.Printf("A (%s): %d entries, last event %d\n", os.Args[1], len(a.Entries), a.LastEvent)
	fmt.Printf("B (%s): %d entries, last event %d\n", os.Args[2], len(b.Entries), b.LastEvent)

	d := snapshot.Diff(a, b)
	if d.Empty() {
		fmt.Println("\n✓ States are identical!")
		os.Exit(0)
	}

	fmt.Println("\n✗ States differ:")
	printKeys("Keys in A but not in B", d.OnlyInA)
	printKeys("Keys in B but not in A", d.OnlyInB)
	printKeys("Keys with different values", d.Changed)

	os.Exit(1)
}

// load reads a manifest from a data directory or a snapshot file.
func load(path string) (*snapshot.Manifest, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var raw []byte

	if info.IsDir() {
		db, err := storage.New(path)
		if err != nil {
			return nil, err
		}
		defer db.Close()

		if raw, err = snapshot.Create(db); err != nil {
			return nil, err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		if raw, err = snapshot.Decompress(data); err != nil {
			return nil, err
		}
	}

	return snapshot.Decode(raw)
}

func printKeys(title string, keys [][]byte) {
	if len(keys) == 0 {
		return
	}

	fmt.Printf("  - %s: %d\n", title, len(keys))
	// Keys start with a two-byte table prefix such as "g:".
	for _, k := range keys {
		if len(k) < 2 {
			fmt.Printf("      %x\n", k)
			continue
		}
		fmt.Printf("      %s%x\n", k[:2], k[2:])
	}
}
