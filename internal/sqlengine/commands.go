// ============================================================================
// Falcon-SQL Storage Engine - Command Dispatch
// ============================================================================
//
// File: commands.go
// Purpose: The minimal statement grammar the engine actually understands.
//
// Deliberately tiny: CREATE TABLE, INSERT, SELECT, DELETE, plus the
// BEGIN/COMMIT/ROLLBACK keywords already handled one level up in engine.go.
// No query planner, no joins, no types - SQL semantics are an explicit
// non-goal of this server (spec §1); this exists only so the scheduler has
// a real worker-side destination to dispatch Jobs into.
//
// ============================================================================

package sqlengine

import (
	"fmt"
	"strings"
)

// dispatchStatement runs one statement against target (either the engine's
// committed tables or a client's open transaction buffer), under the
// engine's lock.
func dispatchStatement(e *Engine, target map[string]Table, stmt string) ([]map[string]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fields := strings.Fields(stmt)
	if len(fields) == 0 {
		return nil, nil
	}

	switch strings.ToUpper(fields[0]) {
	case "CREATE":
		return nil, e.createTable(target, fields)
	case "INSERT":
		return nil, e.insert(target, fields)
	case "SELECT":
		return e.selectAll(target, fields)
	case "DELETE":
		return nil, e.deleteRow(target, fields)
	case "BEGIN", "START", "COMMIT", "ROLLBACK", "END":
		return nil, nil
	default:
		return nil, fmt.Errorf("sqlengine: unrecognized statement: %q", stmt)
	}
}

// createTable handles "CREATE TABLE <name>".
func (e *Engine) createTable(target map[string]Table, fields []string) error {
	name, err := tableName(fields, 2)
	if err != nil {
		return err
	}
	if _, ok := e.tables[name]; ok {
		return ErrTableExists
	}
	if target != nil {
		if _, ok := target[name]; ok {
			return ErrTableExists
		}
	}
	target[name] = make(Table)
	return nil
}

// insert handles "INSERT INTO <name> <key> <col>=<val>[,<col>=<val>...]".
func (e *Engine) insert(target map[string]Table, fields []string) error {
	if len(fields) < 4 || !strings.EqualFold(fields[1], "INTO") {
		return fmt.Errorf("sqlengine: malformed INSERT: %q", strings.Join(fields, " "))
	}
	name := fields[2]
	table, err := e.resolveTable(target, name)
	if err != nil {
		return err
	}
	key := fields[3]
	row := make(map[string]string)
	for _, assignment := range fields[4:] {
		col, val, ok := strings.Cut(assignment, "=")
		if !ok {
			continue
		}
		row[col] = strings.TrimSuffix(val, ",")
	}
	table[key] = row
	return nil
}

// selectAll handles "SELECT * FROM <name>".
func (e *Engine) selectAll(target map[string]Table, fields []string) ([]map[string]string, error) {
	name, err := tableName(fields, 3)
	if err != nil {
		return nil, err
	}
	table, err := e.resolveTable(target, name)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]string, 0, len(table))
	for _, row := range table {
		rows = append(rows, row)
	}
	return rows, nil
}

// deleteRow handles "DELETE FROM <name> <key>".
func (e *Engine) deleteRow(target map[string]Table, fields []string) error {
	if len(fields) < 4 || !strings.EqualFold(fields[1], "FROM") {
		return fmt.Errorf("sqlengine: malformed DELETE: %q", strings.Join(fields, " "))
	}
	name := fields[2]
	table, err := e.resolveTable(target, name)
	if err != nil {
		return err
	}
	delete(table, fields[3])
	return nil
}

// resolveTable returns the table named name from target if present there
// (an in-transaction shadow), falling back to the committed tables (copying
// it into target lazily so writes within this transaction don't leak out
// until commit).
func (e *Engine) resolveTable(target map[string]Table, name string) (Table, error) {
	if t, ok := target[name]; ok {
		return t, nil
	}
	base, ok := e.tables[name]
	if !ok {
		return nil, ErrNoSuchTable
	}
	if target == nil {
		return base, nil
	}
	shadow := make(Table, len(base))
	for k, v := range base {
		shadow[k] = v
	}
	target[name] = shadow
	return shadow, nil
}

func tableName(fields []string, idx int) (string, error) {
	if len(fields) <= idx {
		return "", fmt.Errorf("sqlengine: malformed statement: %q", strings.Join(fields, " "))
	}
	return fields[idx], nil
}
