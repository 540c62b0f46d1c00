package users

import "embed"

// migrationsFS はusersテーブルのマイグレーションファイル。
//
//go:embed migrations/*.up.sql
var migrationsFS embed.FS

// migrationsDir はmigrationsFS内のディレクトリ名。
const migrationsDir = "migrations"
