package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/nearfs/gateway/pkg/blockstore/sqlstore/fielddef"
)

type ProgressValue struct {
	Name  string
	Value int64
}

var progressOrder = []string{"Name", "Value"}

func SetProgress(ctx context.Context, db Transactable, value *ProgressValue) error {
	return fielddef.Replace(ctx, db, "Progress", progressOrder, progressFields(value))
}

func progressFields(value *ProgressValue) map[string]fielddef.FieldDefinition {
	return map[string]fielddef.FieldDefinition{
		"Name":  &fielddef.FieldDef{F: &value.Name},
		"Value": &fielddef.FieldDef{F: &value.Value},
	}
}

var progressQuery string = "SELECT Value FROM Progress WHERE Name = ?"

func Progress(ctx context.Context, db Transactable, name string) (bool, int64, error) {
	var value int64
	err := fielddef.Scan(db.QueryRowContext(ctx, progressQuery, name), []string{"Value"}, map[string]fielddef.FieldDefinition{
		"Value": &fielddef.FieldDef{F: &value},
	})
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	return true, value, nil
}
