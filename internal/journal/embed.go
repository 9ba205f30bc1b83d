package journal

import "embed"

// migrations holds the journal schema, applied by goose on Open.
//
//go:embed migrations/*.sql
var migrations embed.FS
