// Package syncer implements the orchestrator described in spec §4.4: it
// owns the two endpoint connections, drives the Diff Engine table by
// table in config order, optionally applies the resulting EditSets
// through the Table Store adapters, and maintains the sync status state
// machine.
//
// The constructor takes an explicit store registry and SyncSpec rather
// than reading package-level globals — spec §9 calls out the original's
// module-level cached connections and loaded config as something to
// re-architect as dependency-injected state scoped to one Syncer.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/taylorhickem/tablesync/internal/diff"
	"github.com/taylorhickem/tablesync/internal/store"
	"github.com/taylorhickem/tablesync/internal/syncspec"
)

// Role names the two endpoint roles (spec §3, GLOSSARY).
type Role string

const (
	RoleMaster Role = "master"
	RoleSlave  Role = "slave"
)

// Status is one state of the Syncer state machine (spec §3/§4.4).
type Status int

const (
	Disconnected Status = iota
	Connected
	Synced
	PendingEdits
	Error
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Synced:
		return "synced"
	case PendingEdits:
		return "pending edits"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Sentinel error kinds the core distinguishes (spec §7).
var (
	ErrConfiguration = errors.New("syncer: configuration error")
	ErrConnection    = errors.New("syncer: connection error")
	ErrApply         = errors.New("syncer: apply error")
)

// SyncError annotates an underlying error with the table, phase, and
// role it occurred in, per the propagation policy of spec §7.
type SyncError struct {
	Table string
	Phase string // "connect", "read", "diff", "apply delete", "apply update", "apply insert"
	Role  string // "master", "slave", or "" when not role-specific
	Err   error
}

func (e *SyncError) Error() string {
	switch {
	case e.Table == "" && e.Role == "":
		return fmt.Sprintf("syncer: %s: %v", e.Phase, e.Err)
	case e.Role == "":
		return fmt.Sprintf("syncer: table %s: %s: %v", e.Table, e.Phase, e.Err)
	default:
		return fmt.Sprintf("syncer: table %s: %s %s: %v", e.Table, e.Role, e.Phase, e.Err)
	}
}

func (e *SyncError) Unwrap() error { return e.Err }

// Syncer drives the full connect/diff/apply flow for a SyncSpec against
// an injected store registry mapping db_type to a Store implementation.
type Syncer struct {
	spec     syncspec.SyncSpec
	stores   map[string]store.Store
	diffOpts diff.Options
	log      *slog.Logger

	conns   map[Role]store.Conn
	status  Status
	lastErr error
	edits   map[string]diff.EditSet
}

// Option configures a Syncer at construction time.
type Option func(*Syncer)

// WithTieBreaker sets the Diff Engine's tie-breaker policy (spec §9).
func WithTieBreaker(tb diff.TieBreaker) Option {
	return func(s *Syncer) { s.diffOpts.TieBreaker = tb }
}

// WithLogger overrides the default slog.Logger (slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) { s.log = l }
}

// New constructs a Syncer for spec, resolving each endpoint's db_type
// against stores. stores is typically built once at program assembly
// time (spec §9, "Backend polymorphism").
func New(spec syncspec.SyncSpec, stores map[string]store.Store, opts ...Option) *Syncer {
	s := &Syncer{
		spec:   spec,
		stores: stores,
		conns:  make(map[Role]store.Conn, 2),
		edits:  make(map[string]diff.EditSet),
		status: Disconnected,
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Status returns the Syncer's current state.
func (s *Syncer) Status() Status { return s.status }

// Err returns the last recorded error, or nil if status is not Error.
func (s *Syncer) Err() error {
	if s.status != Error {
		return nil
	}
	return s.lastErr
}

// Connected reports whether role's connection is live. An empty role
// checks both sides.
func (s *Syncer) Connected(role Role) bool {
	if role == "" {
		return s.Connected(RoleMaster) && s.Connected(RoleSlave)
	}
	c, ok := s.conns[role]
	return ok && c != nil && c.Connected()
}

func (s *Syncer) endpoint(role Role) syncspec.EndpointSpec {
	if role == RoleMaster {
		return s.spec.Master
	}
	return s.spec.Slave
}

// Connect opens one or both endpoint connections. An empty role connects
// both; on any failure the Syncer tears down connections it opened in
// this call, per spec §7 ("partial connections are torn down"). A
// backend connection failure transitions to Error; an endpoint whose
// db_type has no registered store returns ErrConfiguration and leaves
// the status unchanged.
func (s *Syncer) Connect(ctx context.Context, role Role) error {
	if role == "" {
		openedMaster := !s.Connected(RoleMaster)
		if err := s.connectOne(ctx, RoleMaster); err != nil {
			return err
		}
		if err := s.connectOne(ctx, RoleSlave); err != nil {
			if openedMaster {
				s.closeRole(RoleMaster)
			}
			return err
		}
		s.status = Connected
		return nil
	}
	if err := s.connectOne(ctx, role); err != nil {
		return err
	}
	if s.Connected("") {
		s.status = Connected
	}
	return nil
}

func (s *Syncer) connectOne(ctx context.Context, role Role) error {
	if s.Connected(role) {
		return nil
	}
	ep := s.endpoint(role)
	st, ok := s.stores[ep.DBType]
	if !ok {
		err := fmt.Errorf("%w: no store registered for db_type %q", ErrConfiguration, ep.DBType)
		return err
	}
	conn, err := st.Connect(ctx, ep.Config)
	if err != nil {
		syncErr := &SyncError{Phase: "connect", Role: string(role), Err: fmt.Errorf("%w: %v", ErrConnection, err)}
		s.setError(syncErr)
		return syncErr
	}
	s.conns[role] = conn
	return nil
}

func (s *Syncer) closeRole(role Role) {
	if c, ok := s.conns[role]; ok && c != nil {
		_ = c.Close()
		delete(s.conns, role)
	}
}

// Disconnect releases resources. An empty role disconnects both sides
// and transitions to Disconnected.
func (s *Syncer) Disconnect(role Role) {
	if role == "" {
		s.closeRole(RoleMaster)
		s.closeRole(RoleSlave)
		s.status = Disconnected
		return
	}
	s.closeRole(role)
}

// HasEdits reports whether the accumulated EditSets carry any edit,
// optionally scoped to one table and/or one role.
func (s *Syncer) HasEdits(table string, role Role) bool {
	if table != "" {
		edits, ok := s.edits[table]
		if !ok {
			return false
		}
		if role == "" {
			return !edits.Empty()
		}
		if role == RoleMaster {
			return !edits.Master.Empty()
		}
		return !edits.Slave.Empty()
	}
	for _, t := range s.spec.Tables {
		if s.HasEdits(t.Name, role) {
			return true
		}
	}
	return false
}

// Export returns the accumulated EditSet for table, if any.
func (s *Syncer) Export(table string) (diff.EditSet, bool) {
	e, ok := s.edits[table]
	return e, ok
}

// ExportAll returns every accumulated EditSet, keyed by table name, in
// the "Edits export format" of spec §6.
func (s *Syncer) ExportAll() map[string]diff.EditSet {
	out := make(map[string]diff.EditSet, len(s.edits))
	for k, v := range s.edits {
		out[k] = v
	}
	return out
}

func (s *Syncer) setError(err error) {
	s.status = Error
	s.lastErr = err
}

// Sync runs the full connect/diff/apply flow (spec §4.4). Tables are
// processed in config order; within a table, edits are applied
// master-side then slave-side, and within a side, delete then update
// then insert. An error mid-run aborts the current table, leaves earlier
// tables synced, skips later tables, and transitions to Error.
func (s *Syncer) Sync(ctx context.Context, applyEdits, keepConnection bool) error {
	runID := uuid.NewString()
	log := s.log.With("sync_run", runID)

	if err := s.Connect(ctx, ""); err != nil {
		log.Error("sync: connect failed", "err", err)
		return err
	}

	s.status = Synced
	anyPending := false

	for _, tbl := range s.spec.Tables {
		if s.status == Error {
			break
		}
		pending, err := s.syncTable(ctx, log, tbl, applyEdits)
		if err != nil {
			log.Error("sync: table failed", "table", tbl.Name, "err", err)
			break
		}
		if pending {
			anyPending = true
		}
	}

	if s.status != Error {
		if anyPending && !applyEdits {
			s.status = PendingEdits
		} else {
			s.status = Synced
		}
	}

	if !keepConnection {
		s.Disconnect("")
	}

	if s.status == Error {
		return s.lastErr
	}
	return nil
}

// syncTable computes and optionally applies the EditSet for one table.
// It returns whether the table still has outstanding (unapplied) edits.
func (s *Syncer) syncTable(ctx context.Context, log *slog.Logger, tbl syncspec.TableSpec, applyEdits bool) (bool, error) {
	masterStore := s.stores[s.spec.Master.DBType]
	slaveStore := s.stores[s.spec.Slave.DBType]

	masterTable, err := masterStore.ReadTable(ctx, s.conns[RoleMaster], tbl.Name)
	if err != nil {
		syncErr := &SyncError{Table: tbl.Name, Phase: "read", Role: string(RoleMaster), Err: err}
		s.setError(syncErr)
		return false, syncErr
	}
	slaveTable, err := slaveStore.ReadTable(ctx, s.conns[RoleSlave], tbl.Name)
	if err != nil {
		syncErr := &SyncError{Table: tbl.Name, Phase: "read", Role: string(RoleSlave), Err: err}
		s.setError(syncErr)
		return false, syncErr
	}

	edits, err := diff.Diff(masterTable, slaveTable, tbl.KeyColumn, tbl.LastModified, s.diffOpts)
	if err != nil {
		syncErr := &SyncError{Table: tbl.Name, Phase: "diff", Err: err}
		s.setError(syncErr)
		return false, syncErr
	}

	if edits.Empty() {
		delete(s.edits, tbl.Name)
		return false, nil
	}
	s.edits[tbl.Name] = edits
	log.Info("sync: table has edits", "table", tbl.Name,
		"master_insert", len(edits.Master.Insert), "master_update", len(edits.Master.Update), "master_delete", len(edits.Master.Delete),
		"slave_insert", len(edits.Slave.Insert), "slave_update", len(edits.Slave.Update), "slave_delete", len(edits.Slave.Delete))

	if !applyEdits {
		return true, nil
	}

	if err := s.applyEditSet(ctx, tbl, edits); err != nil {
		return true, err
	}
	delete(s.edits, tbl.Name)
	return false, nil
}

// applyEditSet applies edits master-side then slave-side, per the
// authority rule (spec §4.4: "Master-side edits are applied before
// slave-side edits for the same table").
func (s *Syncer) applyEditSet(ctx context.Context, tbl syncspec.TableSpec, edits diff.EditSet) error {
	if err := s.applySide(ctx, RoleMaster, tbl, edits.Master); err != nil {
		return err
	}
	return s.applySide(ctx, RoleSlave, tbl, edits.Slave)
}

// applySide applies one side's edits in delete, update, insert order
// (spec §4.4), to minimize intermediate constraint violations.
func (s *Syncer) applySide(ctx context.Context, role Role, tbl syncspec.TableSpec, side diff.Side) error {
	st := s.stores[s.endpoint(role).DBType]
	conn := s.conns[role]

	if len(side.Delete) > 0 {
		if err := st.DeleteRows(ctx, conn, tbl.Name, side.Delete, tbl.KeyColumn); err != nil {
			return s.applyErr(tbl.Name, role, "delete", err)
		}
	}
	if len(side.Update) > 0 {
		if err := st.UpdateRows(ctx, conn, tbl.Name, side.Update, tbl.KeyColumn); err != nil {
			return s.applyErr(tbl.Name, role, "update", err)
		}
	}
	if len(side.Insert) > 0 {
		if err := st.InsertRows(ctx, conn, tbl.Name, side.Insert); err != nil {
			return s.applyErr(tbl.Name, role, "insert", err)
		}
	}
	return nil
}

func (s *Syncer) applyErr(table string, role Role, action string, err error) error {
	syncErr := &SyncError{Table: table, Phase: "apply " + action, Role: string(role), Err: fmt.Errorf("%w: %v", ErrApply, err)}
	s.setError(syncErr)
	return syncErr
}
