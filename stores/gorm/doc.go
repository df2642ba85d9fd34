//go:build !wasm
// +build !wasm

// Package gorm provides GORM-based implementations of the account and post
// stores. It works with any database GORM supports (PostgreSQL, MySQL,
// SQLite, etc.).
//
// # Database Schema
//
// The package auto-migrates the following tables:
//   - accounts: Accounts with both one-time code slots inlined
//   - posts: Blog posts, indexed by owner and creation time
//
// # Usage
//
//	db, _ := gorm.Open(sqlite.Open("auth.db"), &gorm.Config{})
//	_ = gormstore.AutoMigrate(db)
//	accounts := gormstore.NewAccountStore(db)
//	posts := gormstore.NewPostStore(db)
package gorm
