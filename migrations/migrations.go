// Package migrations встраивает SQL-схему, чтобы бинарник и тесты применяли
// одни и те же файлы независимо от рабочей директории.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
