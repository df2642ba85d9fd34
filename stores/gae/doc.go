//go:build !wasm
// +build !wasm

// Package gae provides Google Cloud Datastore implementations of the
// account and post stores. Namespaces isolate tenants sharing a project.
//
// # Datastore Kinds
//
//   - Account: accounts keyed by id, both code slots inlined
//   - AccountEmail: one entity per normalized email, pointing at its account
//   - Post: blog posts keyed by id
//
// Account and AccountEmail are written in one transaction, which is what
// keeps emails unique.
//
// # Usage
//
//	client, _ := datastore.NewClient(ctx, projectID)
//	accounts := gae.NewAccountStore(client, "")  // default namespace
//	posts := gae.NewPostStore(client, "")
package gae
