package snapshot

import "bytes"

// Difference lists the keys on which two snapshots disagree.
type Difference struct {
	OnlyInA [][]byte // OnlyInA holds keys missing from B
	OnlyInB [][]byte // OnlyInB holds keys missing from A
	Changed [][]byte // Changed holds keys present in both with different values
}

// Empty reports whether the snapshots hold identical entries.
func (d Difference) Empty() bool {
	return len(d.OnlyInA) == 0 && len(d.OnlyInB) == 0 && len(d.Changed) == 0
}

// Diff compares the entries of two manifests. Both entry lists must be
// sorted by key, as Decode returns them.
func Diff(a, b *Manifest) Difference {
	var d Difference

	i, j := 0, 0
	for i < len(a.Entries) && j < len(b.Entries) {
		ea, eb := a.Entries[i], b.Entries[j]

		switch c := bytes.Compare(ea.Key, eb.Key); {
		case c < 0:
			d.OnlyInA = append(d.OnlyInA, ea.Key)
			i++
		case c > 0:
			d.OnlyInB = append(d.OnlyInB, eb.Key)
			j++
		default:
			if !bytes.Equal(ea.Value, eb.Value) {
				d.Changed = append(d.Changed, ea.Key)
			}
			i++
			j++
		}
	}

	for ; i < len(a.Entries); i++ {
		d.OnlyInA = append(d.OnlyInA, a.Entries[i].Key)
	}

	for ; j < len(b.Entries); j++ {
		d.OnlyInB = append(d.OnlyInB, b.Entries[j].Key)
	}

	return d
}
