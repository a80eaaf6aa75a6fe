package fielddef

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type FieldDefinition interface {
	FieldPtr() interface{}
	Marshall() (interface{}, error)
	Unmarshall() error
}

type FieldDef struct {
	F interface{}
}

var _ FieldDefinition = (*FieldDef)(nil)

func (fd *FieldDef) FieldPtr() interface{} {
	return fd.F
}

func (fd *FieldDef) Marshall() (interface{}, error) {
	return fd.F, nil
}

func (fd *FieldDef) Unmarshall() error {
	return nil
}

// SqlBytes stores a nil slice as an empty blob, so that zero length blocks
// survive a round trip as present rows
type SqlBytes []byte

func (m SqlBytes) Bytes() []byte {
	if m == nil {
		return []byte{}
	}
	return m
}

type BytesFieldDef struct {
	Marshalled []byte
	F          *SqlBytes
}

func (fd *BytesFieldDef) FieldPtr() interface{} {
	return &fd.Marshalled
}

func (fd *BytesFieldDef) Marshall() (interface{}, error) {
	if fd.F == nil {
		return nil, nil
	}
	return fd.F.Bytes(), nil
}

func (fd *BytesFieldDef) Unmarshall() error {
	if fd.Marshalled == nil {
		*fd.F = SqlBytes{}
		return nil
	}
	*fd.F = fd.Marshalled
	return nil
}

type Scannable interface {
	Scan(dest ...interface{}) error
}

func Scan(row Scannable, fieldOrder []string, def map[string]FieldDefinition) error {
	dest := []interface{}{}
	for _, name := range fieldOrder {
		fieldDef := def[name]
		// Get a pointer to the field that will receive the scanned value
		dest = append(dest, fieldDef.FieldPtr())
	}

	err := row.Scan(dest...)
	if err != nil {
		return fmt.Errorf("scanning row: %w", err)
	}

	for name, fieldDef := range def {
		err := fieldDef.Unmarshall()
		if err != nil {
			return fmt.Errorf("unmarshalling db field %s: %s", name, err)
		}
	}
	return nil
}

type Executable interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
}

// Insert adds a row to table
func Insert(ctx context.Context, db Executable, table string, fieldOrder []string, def map[string]FieldDefinition) error {
	return insert(ctx, db, "INSERT", table, fieldOrder, def)
}

// Replace adds a row to table, overwriting any row with the same primary key
func Replace(ctx context.Context, db Executable, table string, fieldOrder []string, def map[string]FieldDefinition) error {
	return insert(ctx, db, "INSERT OR REPLACE", table, fieldOrder, def)
}

func insert(ctx context.Context, db Executable, verb string, table string, fieldOrder []string, def map[string]FieldDefinition) error {
	values := make([]interface{}, 0, len(fieldOrder))
	placeholders := make([]string, 0, len(fieldOrder))
	for _, name := range fieldOrder {
		fieldDef := def[name]
		placeholders = append(placeholders, "?")

		// Marshall the field into a value that can be stored in the database
		v, err := fieldDef.Marshall()
		if err != nil {
			return err
		}
		values = append(values, v)
	}

	qry := verb + " INTO " + table + " (" + strings.Join(fieldOrder, ", ") + ") "
	qry += "VALUES (" + strings.Join(placeholders, ",") + ")"
	_, err := db.ExecContext(ctx, qry, values...)
	return err
}
