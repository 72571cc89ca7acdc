// Package all registers every storage backend with the storage factory.
// Config picks the backend at runtime, so the binary links all of them.
package all

import (
	// SQL Server driver ("sqlserver"); the mssql backend does not import it.
	_ "github.com/microsoft/go-mssqldb"

	_ "csvload/internal/storage/mssql"
	_ "csvload/internal/storage/mysql"
	_ "csvload/internal/storage/postgres"
	_ "csvload/internal/storage/sqlite"
)
