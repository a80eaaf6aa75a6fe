package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/nearfs/gateway/pkg/blockstore"
	"github.com/nearfs/gateway/pkg/blockstore/sqlstore/fielddef"
)

type Block struct {
	Digest fielddef.SqlBytes
	Size   int64
	Data   fielddef.SqlBytes
}

var blocksOrder = []string{"Digest", "Size", "Data"}

func InsertBlock(ctx context.Context, db Transactable, block *Block) error {
	return fielddef.Insert(ctx, db, "Blocks", blocksOrder, blockFields(block))
}

func blockFields(block *Block) map[string]fielddef.FieldDefinition {
	return map[string]fielddef.FieldDefinition{
		"Digest": &fielddef.BytesFieldDef{F: &block.Digest},
		"Size":   &fielddef.FieldDef{F: &block.Size},
		"Data":   &fielddef.BytesFieldDef{F: &block.Data},
	}
}

var blockQuery string = "SELECT Data FROM Blocks WHERE Digest = ?"

// BlockData returns the bytes stored under digest, or blockstore.ErrNotFound
func BlockData(ctx context.Context, db Transactable, digest []byte) ([]byte, error) {
	var data fielddef.SqlBytes
	err := fielddef.Scan(db.QueryRowContext(ctx, blockQuery, digest), []string{"Data"}, map[string]fielddef.FieldDefinition{
		"Data": &fielddef.BytesFieldDef{F: &data},
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, blockstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return data.Bytes(), nil
}

var sizeQuery string = "SELECT Size FROM Blocks WHERE Digest = ?"

// BlockSize reports the recorded length of the block under digest
func BlockSize(ctx context.Context, db Transactable, digest []byte) (bool, int64, error) {
	var size int64
	err := fielddef.Scan(db.QueryRowContext(ctx, sizeQuery, digest), []string{"Size"}, map[string]fielddef.FieldDefinition{
		"Size": &fielddef.FieldDef{F: &size},
	})
	if errors.Is(err, sql.ErrNoRows) {
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	return true, size, nil
}
