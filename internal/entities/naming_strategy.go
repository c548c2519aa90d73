package entities

import (
	"gorm.io/gorm/schema"
)

// DefaultNamingStrategy is gorm's snake_case strategy with plural table
// names ("UserProfile" becomes "user_profiles").
func DefaultNamingStrategy() schema.Namer {
	return schema.NamingStrategy{}
}

// PreserveCaseNamingStrategy keeps Go identifiers as table and column names,
// for databases whose tables use Pascal case.
type PreserveCaseNamingStrategy struct {
	schema.NamingStrategy
}

func NewPreserveCaseNamingStrategy() *PreserveCaseNamingStrategy {
	return &PreserveCaseNamingStrategy{}
}

func (ns *PreserveCaseNamingStrategy) TableName(table string) string {
	return table
}

func (ns *PreserveCaseNamingStrategy) ColumnName(table, column string) string {
	return column
}

func (ns *PreserveCaseNamingStrategy) JoinTableName(joinTable string) string {
	return joinTable
}

func (ns *PreserveCaseNamingStrategy) IndexName(table, column string) string {
	return "idx_" + table + "_" + column
}

// NamingStrategyFor returns the strategy registered under name: "snake"
// (the default) or "preserve".
func NamingStrategyFor(name string) schema.Namer {
	if name == "preserve" {
		return NewPreserveCaseNamingStrategy()
	}
	return DefaultNamingStrategy()
}
