// Package diff implements the pure Diff Engine: given two table snapshots
// and the key/last-modified column names, it produces an EditSet
// describing the row-level edits that bring both snapshots into
// agreement under the merge policy of spec §4.3.
//
// Diff is a deterministic function of its inputs (P6) and never mutates
// its arguments; it performs no I/O.
package diff

import (
	"errors"
	"fmt"
	"sort"

	"github.com/taylorhickem/tablesync/internal/store"
)

// ErrDuplicateKey is returned when a snapshot contains more than one row
// sharing the same key value (a data-integrity error, spec §7).
var ErrDuplicateKey = errors.New("diff: duplicate key within snapshot")

// ErrSchemaMismatch is returned when the two snapshots of a table carry
// incompatible column sets (spec §7). The Diff Engine never attempts
// column reconciliation.
var ErrSchemaMismatch = errors.New("diff: column mismatch between master and slave snapshots")

// ErrTieRequiresDecision is returned when two rows share an equal
// last-modified value but differ in non-key columns and the configured
// TieBreaker is TieBreakError (the default, spec §9).
var ErrTieRequiresDecision = errors.New("diff: tie on last-modified with differing non-key columns")

// TieBreaker selects how Diff resolves a last-modified tie between two
// rows that otherwise differ, addressing the Open Question in spec §9.
type TieBreaker int

const (
	// TieBreakError fails the diff with ErrTieRequiresDecision. This is
	// the module default, matching the spec's stated default.
	TieBreakError TieBreaker = iota
	// TieBreakMaster promotes ties to the master's content.
	TieBreakMaster
	// TieBreakSlave promotes ties to the slave's content.
	TieBreakSlave
)

// Options configures a single Diff call. The zero Options value is the
// spec-default behavior (TieBreakError).
type Options struct {
	TieBreaker TieBreaker
}

// Side is the three edit-action cells for one endpoint role.
type Side struct {
	Delete []store.Row
	Update []store.Row
	Insert []store.Row
}

// Empty reports whether all three cells of s are empty.
func (s Side) Empty() bool {
	return len(s.Delete) == 0 && len(s.Update) == 0 && len(s.Insert) == 0
}

// EditSet is the two-by-three structure of spec §3: row-level edits for
// the master and slave sides of one table.
type EditSet struct {
	Master Side
	Slave  Side
}

// Empty reports whether neither side of the EditSet carries any edit.
func (e EditSet) Empty() bool {
	return e.Master.Empty() && e.Slave.Empty()
}

const (
	roleMaster = "master"
	roleSlave  = "slave"
)

// Diff computes the EditSet that reconciles master and slave under the
// default authority rule: master is authoritative for row existence, so
// master.delete is always empty (I3/P4). keyCol and lmCol name the key
// and last-modified columns, shared by both snapshots.
func Diff(master, slave store.Table, keyCol, lmCol string, opts Options) (EditSet, error) {
	var edits EditSet

	// Step 1 — trivial cases.
	if len(master.Rows) == 0 && len(slave.Rows) == 0 {
		return edits, nil
	}
	if len(master.Rows) > 0 && len(slave.Rows) == 0 {
		if _, _, err := indexByKey(master, keyCol); err != nil {
			return EditSet{}, fmt.Errorf("master: %w", err)
		}
		edits.Slave.Insert = append(edits.Slave.Insert, master.Rows...)
		return edits, nil
	}
	if len(master.Rows) == 0 && len(slave.Rows) > 0 {
		if _, _, err := indexByKey(slave, keyCol); err != nil {
			return EditSet{}, fmt.Errorf("slave: %w", err)
		}
		edits.Master.Insert = append(edits.Master.Insert, slave.Rows...)
		return edits, nil
	}

	if err := checkSchema(master, slave); err != nil {
		return EditSet{}, err
	}

	masterIdx, masterKeys, err := indexByKey(master, keyCol)
	if err != nil {
		return EditSet{}, fmt.Errorf("master: %w", err)
	}
	slaveIdx, slaveKeys, err := indexByKey(slave, keyCol)
	if err != nil {
		return EditSet{}, fmt.Errorf("slave: %w", err)
	}

	globalMasterLM := maxLM(master, lmCol)
	globalSlaveLM := maxLM(slave, lmCol)

	// Step 2/3 — full outer join on key, classify each joined row.
	allKeys := unionKeys(masterKeys, slaveKeys)
	for _, k := range allKeys {
		mRow, existsMaster := masterIdx[k.id]
		sRow, existsSlave := slaveIdx[k.id]

		recent, tie, err := mostRecent(existsMaster, existsSlave, mRow, sRow, lmCol, globalMasterLM, globalSlaveLM)
		if err != nil {
			return EditSet{}, err
		}
		if tie {
			resolved, err := resolveTie(mRow, sRow, opts.TieBreaker, k.display)
			if err != nil {
				return EditSet{}, err
			}
			if resolved == "" {
				continue // equal content tie: no edit needed
			}
			recent = resolved
		}
		if recent == "" {
			continue // no edit needed
		}

		destination, edit, ok := classify(existsMaster, existsSlave, recent)
		if !ok {
			continue
		}

		switch {
		case destination == roleMaster && edit == "insert":
			edits.Master.Insert = append(edits.Master.Insert, sRow)
		case destination == roleMaster && edit == "update":
			edits.Master.Update = append(edits.Master.Update, sRow)
		case destination == roleSlave && edit == "insert":
			edits.Slave.Insert = append(edits.Slave.Insert, mRow)
		case destination == roleSlave && edit == "update":
			edits.Slave.Update = append(edits.Slave.Update, mRow)
		case destination == roleSlave && edit == "delete":
			edits.Slave.Delete = append(edits.Slave.Delete, sRow)
		}
	}

	return edits, nil
}

// classify maps the (exists_master, exists_slave, most_recent) triple to
// an (destination, edit) pair per the rule table in spec §4.3 step 3.
// Master-only-with-stale-lm resolves to re-insert on the slave (the
// conservative default documented in spec §9): master is authoritative
// for row existence, so deletions propagate master→slave, never the
// reverse (I3/P4, the authority rule).
func classify(existsMaster, existsSlave bool, recent string) (destination, edit string, ok bool) {
	switch {
	case !existsMaster && existsSlave && recent == roleSlave:
		return roleMaster, "insert", true
	case !existsMaster && existsSlave && recent == roleMaster:
		return roleSlave, "delete", true
	case existsMaster && !existsSlave && recent == roleSlave:
		return roleSlave, "insert", true
	case existsMaster && !existsSlave && recent == roleMaster:
		return roleSlave, "insert", true
	case existsMaster && existsSlave && recent == roleSlave:
		return roleMaster, "update", true
	case existsMaster && existsSlave && recent == roleMaster:
		return roleSlave, "update", true
	default:
		return "", "", false
	}
}

// mostRecent determines which side's content is newer for one joined
// key, per spec §4.3 step 2. tie is true when both sides are present and
// share an equal last-modified value.
func mostRecent(existsMaster, existsSlave bool, mRow, sRow store.Row, lmCol string, globalMasterLM, globalSlaveLM store.Value) (recent string, tie bool, err error) {
	switch {
	case existsMaster && existsSlave:
		lmM := store.KeyOf(mRow, lmCol)
		lmS := store.KeyOf(sRow, lmCol)
		switch {
		case lmM.Less(lmS):
			return roleSlave, false, nil
		case lmS.Less(lmM):
			return roleMaster, false, nil
		default:
			return "", true, nil
		}
	case existsMaster:
		lmM := store.KeyOf(mRow, lmCol)
		if !lmM.Less(globalSlaveLM) {
			return roleMaster, false, nil
		}
		return roleSlave, false, nil
	case existsSlave:
		lmS := store.KeyOf(sRow, lmCol)
		if !lmS.Less(globalMasterLM) {
			return roleSlave, false, nil
		}
		return roleMaster, false, nil
	default:
		return "", false, nil
	}
}

// resolveTie applies the configured TieBreaker when two rows share an
// equal last-modified value. If the rows are value-equal in every other
// column it returns "" (no edit needed, matching the spec-documented
// silent-no-edit default); otherwise it promotes the tie to a side, or
// fails with ErrTieRequiresDecision under TieBreakError.
func resolveTie(mRow, sRow store.Row, tb TieBreaker, keyDisplay string) (string, error) {
	if rowsEqualIgnoring(mRow, sRow) {
		return "", nil
	}
	switch tb {
	case TieBreakMaster:
		return roleMaster, nil
	case TieBreakSlave:
		return roleSlave, nil
	default:
		return "", fmt.Errorf("%w: key=%s", ErrTieRequiresDecision, keyDisplay)
	}
}

// rowsEqualIgnoring reports whether a and b carry identical column sets
// and values (value equality, not reference identity — spec §9).
func rowsEqualIgnoring(a, b store.Row) bool {
	if len(a) != len(b) {
		return false
	}
	for col, av := range a {
		bv, ok := b[col]
		if !ok || !av.Equal(bv) {
			return false
		}
	}
	return true
}

// keyID is a comparable identity for a key value. A null key is distinct
// from every non-null key and always maps to the same identity slot
// (nullSeq 0), so a null-keyed row on the master joins a null-keyed row
// on the slave; indexByKey rejects a second null key within one snapshot.
type keyID struct {
	isNull  bool
	nullSeq int
	kind    store.Kind
	s       string
	i       int64
	f       float64
	t       int64 // UnixNano, sufficient for equality/grouping purposes
}

type keyEntry struct {
	id      keyID
	display string
}

func valueKeyID(v store.Value, nullSeq int) keyID {
	if v.IsNull() {
		return keyID{isNull: true, nullSeq: nullSeq}
	}
	k := keyID{kind: v.Kind}
	switch v.Kind {
	case store.KindString:
		k.s = v.Str
	case store.KindInt:
		k.i = v.Int
	case store.KindFloat:
		k.f = v.Flt
	case store.KindTime:
		k.t = v.Time.UnixNano()
	}
	return k
}

// indexByKey builds a key->row index for tbl, failing with
// ErrDuplicateKey if any key repeats. A null key value is treated as a
// distinct key equal only to itself (spec §4.3 edge cases); at most one
// null-key row is permitted, so a second null key is also reported as a
// duplicate.
func indexByKey(tbl store.Table, keyCol string) (map[keyID]store.Row, []keyEntry, error) {
	idx := make(map[keyID]store.Row, len(tbl.Rows))
	keys := make([]keyEntry, 0, len(tbl.Rows))
	seenNull := false
	for _, row := range tbl.Rows {
		v := store.KeyOf(row, keyCol)
		if v.IsNull() {
			if seenNull {
				return nil, nil, fmt.Errorf("%w: table %q has more than one null key", ErrDuplicateKey, tbl.Name)
			}
			seenNull = true
			id := valueKeyID(v, 0)
			idx[id] = row
			keys = append(keys, keyEntry{id: id, display: "<null>"})
			continue
		}
		id := valueKeyID(v, -1)
		if _, dup := idx[id]; dup {
			return nil, nil, fmt.Errorf("%w: table %q key %s", ErrDuplicateKey, tbl.Name, v.String())
		}
		idx[id] = row
		keys = append(keys, keyEntry{id: id, display: v.String()})
	}
	return idx, keys, nil
}

// unionKeys returns the deduplicated union of master and slave keys, in
// a deterministic order (master keys first in their original order, then
// any slave-only keys in their original order) so that Diff's internal
// iteration is reproducible. Diff fills the EditSet cells in this same
// order, so every cell keeps its source snapshot's row order except
// master.update, whose slave rows follow the master's key order rather
// than the slave's own row order.
func unionKeys(masterKeys, slaveKeys []keyEntry) []keyEntry {
	seen := make(map[keyID]bool, len(masterKeys)+len(slaveKeys))
	out := make([]keyEntry, 0, len(masterKeys)+len(slaveKeys))
	for _, k := range masterKeys {
		if !seen[k.id] {
			seen[k.id] = true
			out = append(out, k)
		}
	}
	for _, k := range slaveKeys {
		if !seen[k.id] {
			seen[k.id] = true
			out = append(out, k)
		}
	}
	return out
}

// maxLM returns the maximum last-modified value across tbl's rows, or
// the null (minimum) value if tbl has no rows.
func maxLM(tbl store.Table, lmCol string) store.Value {
	max := store.NullValue()
	for _, row := range tbl.Rows {
		v := store.KeyOf(row, lmCol)
		if max.Less(v) {
			max = v
		}
	}
	return max
}

// checkSchema fails with ErrSchemaMismatch if master and slave carry
// incompatible column sets. Column set is taken from each table's first
// row; callers are expected to uphold the Table-snapshot invariant that
// all rows within one table share a column set.
func checkSchema(master, slave store.Table) error {
	if len(master.Rows) == 0 || len(slave.Rows) == 0 {
		return nil
	}
	mCols := master.Rows[0].ColumnSet()
	sCols := slave.Rows[0].ColumnSet()
	sort.Strings(mCols)
	sort.Strings(sCols)
	if len(mCols) != len(sCols) {
		return fmt.Errorf("%w: table %q master has %d columns, slave has %d", ErrSchemaMismatch, master.Name, len(mCols), len(sCols))
	}
	for i := range mCols {
		if mCols[i] != sCols[i] {
			return fmt.Errorf("%w: table %q columns differ (%v vs %v)", ErrSchemaMismatch, master.Name, mCols, sCols)
		}
	}
	return nil
}
