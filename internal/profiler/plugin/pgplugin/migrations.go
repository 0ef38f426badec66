package pgplugin

import "embed"

// EmbeddedMigrations contains the default plugin's schema migrations,
// embedded at compile time — the same go:embed + goose pairing
// internal/database/migrations.go uses for the rest of the app.
//
//go:embed migrations/*.sql
var EmbeddedMigrations embed.FS
