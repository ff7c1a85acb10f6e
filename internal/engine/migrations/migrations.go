// Package migrations embeds the SQL files applied to every database the
// daemon manages. Files are applied in name-lexicographic order by
// internal/engine, so file names are zero-padded sequence numbers.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
