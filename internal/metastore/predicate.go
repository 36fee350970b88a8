package metastore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrBadIdentifier is returned when a caller-supplied table or column name
// does not match the allowed identifier pattern. Identifiers are never
// interpolated into SQL without passing this check.
var ErrBadIdentifier = errors.New("invalid SQL identifier")

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Column type declarations are restricted to word characters, parentheses and
// digits, e.g. "TEXT PRIMARY KEY" or "VARCHAR(64) NOT NULL".
var typeDeclPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_ ()]*$`)

func validIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrBadIdentifier, name)
	}
	return nil
}

func validTypeDecl(decl string) error {
	if !typeDeclPattern.MatchString(decl) {
		return fmt.Errorf("%w: type declaration %q", ErrBadIdentifier, decl)
	}
	return nil
}

// Op is a comparison operator permitted in a predicate.
type Op string

const (
	OpEq   Op = "="
	OpNe   Op = "!="
	OpLt   Op = "<"
	OpLe   Op = "<="
	OpGt   Op = ">"
	OpGe   Op = ">="
	OpLike Op = "LIKE"
)

var allowedOps = map[Op]bool{
	OpEq: true, OpNe: true, OpLt: true, OpLe: true, OpGt: true, OpGe: true, OpLike: true,
}

// Predicate is one structured filter clause. Values are always bound as
// parameters, so they may safely contain quotes or any other user input.
type Predicate struct {
	Field string
	Op    Op
	Value any
}

// Eq builds an equality predicate.
func Eq(field string, value any) Predicate {
	return Predicate{Field: field, Op: OpEq, Value: value}
}

// Where builds a general predicate.
func Where(field string, op Op, value any) Predicate {
	return Predicate{Field: field, Op: op, Value: value}
}

// compile renders predicates into a WHERE clause with placeholders. An empty
// predicate list compiles to an empty clause, meaning all rows.
func compile(preds []Predicate) (string, []any, error) {
	if len(preds) == 0 {
		return "", nil, nil
	}

	clauses := make([]string, 0, len(preds))
	args := make([]any, 0, len(preds))
	for _, p := range preds {
		if err := validIdentifier(p.Field); err != nil {
			return "", nil, err
		}
		if !allowedOps[p.Op] {
			return "", nil, fmt.Errorf("%w: operator %q", ErrBadIdentifier, p.Op)
		}
		clauses = append(clauses, fmt.Sprintf("%s %s ?", p.Field, p.Op))
		args = append(args, normalizeValue(p.Value))
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}
