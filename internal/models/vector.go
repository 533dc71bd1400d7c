package models

import (
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Vector stores an embedding as a pgvector column on postgres and as its text
// form ("[1,2,3]") on other dialects.
type Vector struct {
	pgvector.Vector
}

func NewVector(values []float32) Vector {
	return Vector{Vector: pgvector.NewVector(values)}
}

func (Vector) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "vector"
	}
	return "text"
}
