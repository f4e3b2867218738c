package trust

import (
	"embed"

	persistence "github.com/goliatone/go-persistence-bun"
)

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS returns the migration files for this package
func GetMigrationsFS() embed.FS {
	return migrationsFS
}

// RegisterPersistenceModels registers the package models with the
// persistence client registry. Call it before running the migrations
// returned by GetMigrationsFS so relations resolve.
func RegisterPersistenceModels() {
	persistence.RegisterModel((*User)(nil))
	persistence.RegisterModel((*AuthRequest)(nil))
	persistence.RegisterModel((*OrganizationUser)(nil))
	persistence.RegisterModel((*Policy)(nil))
}
