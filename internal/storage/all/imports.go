// Package all registers every built-in document store with the storage
// factory. Import it for side effects:
//
//	import _ "tsvload/internal/storage/all"
//
// Kinds made available: amqp, elasticsearch, kafka, memory, mssql, mysql,
// postgres, sqlite.
package all

import (
	_ "tsvload/internal/storage/amqp"
	_ "tsvload/internal/storage/elasticsearch"
	_ "tsvload/internal/storage/kafka"
	_ "tsvload/internal/storage/memory"
	_ "tsvload/internal/storage/mssql"
	_ "tsvload/internal/storage/mysql"
	_ "tsvload/internal/storage/postgres"
	_ "tsvload/internal/storage/sqlite"
)
