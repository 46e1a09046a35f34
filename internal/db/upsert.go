package db

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

// InsertSelect describes an INSERT INTO target SELECT ... FROM source
// statement with an ON CONFLICT clause.
type InsertSelect struct {
	Table        string   // target table (e.g., "jobdb.company")
	Columns      []string // target columns, in order
	Select       string   // SELECT body producing Columns, without the INSERT prefix
	ConflictKeys []string // columns forming the unique constraint
	UpdateCols   []string // columns to update on conflict; nil = DO NOTHING
	Touch        string   // optional timestamp column set to now() on update
}

// SQL renders the statement. With no UpdateCols the conflict is ignored,
// otherwise the listed columns are overwritten from EXCLUDED.
func (s InsertSelect) SQL() (string, error) {
	if s.Table == "" {
		return "", eris.New("db: insert select: no table specified")
	}
	if len(s.Columns) == 0 {
		return "", eris.New("db: insert select: no columns specified")
	}
	if strings.TrimSpace(s.Select) == "" {
		return "", eris.New("db: insert select: no select specified")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) %s ON CONFLICT", s.Table, strings.Join(s.Columns, ", "), s.Select)
	if len(s.ConflictKeys) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(s.ConflictKeys, ", "))
	}

	if len(s.UpdateCols) == 0 {
		b.WriteString(" DO NOTHING")
		return b.String(), nil
	}
	if len(s.ConflictKeys) == 0 {
		return "", eris.New("db: insert select: update requires conflict keys")
	}

	sets := make([]string, 0, len(s.UpdateCols)+1)
	for _, col := range s.UpdateCols {
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}
	if s.Touch != "" {
		sets = append(sets, s.Touch+" = now()")
	}
	fmt.Fprintf(&b, " DO UPDATE SET %s", strings.Join(sets, ", "))
	return b.String(), nil
}

// Except returns cols without any of the names in drop, preserving order.
func Except(cols []string, drop ...string) []string {
	skip := make(map[string]bool, len(drop))
	for _, d := range drop {
		skip[d] = true
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if !skip[c] {
			out = append(out, c)
		}
	}
	return out
}

// Prefixed qualifies each column with alias (e.g., "s.name").
func Prefixed(alias string, cols []string) string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}
