package noria

// Row is one tuple of column values. The runtime never interprets
// column contents -- that is the excluded SQL-compiler/operator
// territory (spec.md §1) -- it only ever hashes, compares, and copies
// rows whole.
type Row []interface{}

// Key extracts the columns named by cols, in order, forming an
// index-key for materialization lookups and replay routing.
func (r Row) Key(cols []int) Key {
	k := make(Key, len(cols))
	for i, c := range cols {
		k[i] = r[c]
	}
	return k
}

// Key is a materialized-index key: one value per indexed column.
type Key []interface{}

// Polarity marks a Record as an insertion or a retraction.
type Polarity bool

const (
	Positive Polarity = true
	Negative Polarity = false
)

// Record is a single (row, polarity) pair.
type Record struct {
	Row      Row
	Polarity Polarity
}

func Insert(row Row) Record { return Record{Row: row, Polarity: Positive} }
func Remove(row Row) Record { return Record{Row: row, Polarity: Negative} }

// Records is an ordered multiset of Records. They compose additively:
// a (r, +) followed by a (r, -) collapses to empty at materialization
// (spec.md §3), but Records itself does not perform that collapse --
// only a materialization applying them does, since two records with
// the same row value are not necessarily the same logical record
// (joins/aggregates may emit duplicate rows deliberately).
type Records []Record

func (rs Records) IsEmpty() bool { return len(rs) == 0 }

func (rs Records) Len() int { return len(rs) }

// Clone deep-copies the slice header and the Row slices within it so
// a downstream fan-out consumer cannot observe another consumer's
// in-place edits (Packet.MapData mutates rows in place).
func (rs Records) Clone() Records {
	out := make(Records, len(rs))
	for i, r := range rs {
		row := make(Row, len(r.Row))
		copy(row, r.Row)
		out[i] = Record{Row: row, Polarity: r.Polarity}
	}
	return out
}
