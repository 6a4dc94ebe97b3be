package db

import "github.com/Masterminds/squirrel"

// SQL is a statement builder emitting $n placeholders for pgx.
var SQL = squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
