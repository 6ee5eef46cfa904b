package saver

import (
	"github.com/parquet-go/parquet-go"
)

// ParquetCodec stores snapshots as Parquet.
type ParquetCodec struct{}

func (ParquetCodec) Extension() string { return "parquet" }

func (ParquetCodec) Save(rows []Row, path string) error {
	return parquet.WriteFile(path, rows)
}

func (ParquetCodec) Load(path string) ([]Row, error) {
	return parquet.ReadFile[Row](path)
}
