// Package store provides the process-local state of the bot: a TTL cache of
// article bodies, bounded per-owner reading history, a share token registry
// with lazy expiry and an LRU cap, and per-owner locale selection.
//
// Every type is safe for concurrent use. Nothing is persisted; a restart
// starts from empty state.
package store
