package client

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/teracrafts/posthog-go/internal/core"
	"github.com/teracrafts/posthog-go/internal/persistence"
	"github.com/teracrafts/posthog-go/internal/storage"
	"github.com/teracrafts/posthog-go/value"
)

// FlagSnapshotFile is the name of the stored flag snapshot.
const FlagSnapshotFile = "flags.json"

// openStorage opens the flag snapshot store and the event journal when a
// storage path is configured. Failures leave the client running without
// persistence.
func (c *Client) openStorage() {
	dir := c.options.StoragePath
	if dir == "" {
		return
	}

	store, err := storage.NewFileStore(&storage.FileStoreConfig{
		Dir:     dir,
		Encrypt: c.options.EncryptStorage,
		APIKey:  c.options.APIKey,
		Logger:  c.logger,
	})
	if err != nil {
		c.logger.Warn("Flag storage unavailable", "error", err.Error())
		return
	}
	c.store = store

	journal, err := persistence.Open(filepath.Join(dir, persistence.JournalFile), c.logger)
	if err != nil {
		c.logger.Warn("Event journal unavailable", "error", err.Error())
		return
	}
	c.journal = journal
}

func (c *Client) applyBootstrap() {
	if len(c.options.BootstrapFlags) == 0 {
		return
	}

	flags := make(map[string]value.Value, len(c.options.BootstrapFlags))
	for k, raw := range c.options.BootstrapFlags {
		v, err := value.FromAny(raw)
		if err != nil {
			c.logger.Debug("Dropping unsupported bootstrap flag", "key", k, "error", err.Error())
			continue
		}
		flags[k] = v
	}
	c.flags.Seed(flags, nil)
	c.logger.Debug("Bootstrap flags applied", "count", len(flags))
}

func (c *Client) restoreFlags() {
	if c.store == nil {
		return
	}

	data, found, err := c.store.Get(FlagSnapshotFile)
	if err != nil {
		c.logger.Warn("Failed to load flag snapshot", "error", err.Error())
		return
	}
	if !found {
		return
	}

	var snap core.FlagSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.Warn("Ignoring unreadable flag snapshot", "error", err.Error())
		return
	}
	c.flags.Restore(snap)
	c.logger.Debug("Flag snapshot restored", "count", snap.Flags.Len())
}

func (c *Client) saveFlagSnapshot() {
	if c.store == nil {
		return
	}

	data, err := json.Marshal(c.flags.Snapshot())
	if err != nil {
		c.logger.Debug("Failed to encode flag snapshot", "error", err.Error())
		return
	}
	if err := c.store.Put(FlagSnapshotFile, data); err != nil {
		c.logger.Warn("Failed to store flag snapshot", "error", err.Error())
	}
}

func (c *Client) deleteFlagSnapshot() {
	if c.store == nil {
		return
	}
	if err := c.store.Delete(FlagSnapshotFile); err != nil {
		c.logger.Debug("Failed to delete flag snapshot", "error", err.Error())
	}
}

// recoverJournal moves journaled events to the head of the queue.
func (c *Client) recoverJournal() {
	if c.journal == nil {
		return
	}

	records, err := c.journal.Drain(context.Background())
	if err != nil {
		c.logger.Warn("Failed to recover journaled events", "error", err.Error())
		return
	}
	if len(records) == 0 {
		return
	}
	c.queue.Requeue(records)
	c.logger.Info("Recovered journaled events", "count", len(records))
}

// spillJournal writes events that are still queued to the journal.
func (c *Client) spillJournal() {
	records := c.queue.DrainAll()
	if len(records) == 0 {
		return
	}

	if c.journal == nil {
		c.logger.Warn("Dropping undelivered events", "count", len(records))
		return
	}
	if err := c.journal.Append(context.Background(), records); err != nil {
		c.logger.Warn("Failed to journal undelivered events", "error", err.Error(), "count", len(records))
		return
	}
	c.logger.Info("Journaled undelivered events", "count", len(records))
}
