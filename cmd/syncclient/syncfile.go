package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/teamspace-collab/sync-client/internal/client"
	"github.com/teamspace-collab/sync-client/internal/store"
)

var syncFileCmd = &cobra.Command{
	Use:   "sync-file <workspace> <document-id> <path>",
	Short: "Sync a local file with a shared document",
	Long: `sync-file watches a local file and mirrors it into the shared document:
local writes become document operations, and remote operations rewrite the
local file.`,
	Args: cobra.ExactArgs(3),
	Run:  runSyncFile,
}

func init() {
	rootCmd.AddCommand(syncFileCmd)
}

func runSyncFile(cmd *cobra.Command, args []string) {
	workspaceID, documentID, path := args[0], args[1], args[2]

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		fatal("failed to create database directory", err)
	}
	docStore, err := store.Open(cfg.DBPath)
	if err != nil {
		fatal("failed to open document store", err)
	}
	defer docStore.Close()

	c := client.New(client.Config{
		BaseURL: cfg.Server,
		UserID:  cfg.UserID,
		Store:   docStore,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := c.Connect(ctx, workspaceID, cfg.Token); err != nil {
		fatal("failed to connect", err)
	}

	engine, err := c.OpenDocument(ctx, documentID)
	if err != nil {
		fatal("failed to open document", err)
	}

	// Guard against feedback: our own writes to the file must not loop back
	// in as local changes.
	var writeMu sync.Mutex
	selfWrite := false

	engine.SetOnContentChange(func(content string, version int) {
		writeMu.Lock()
		selfWrite = true
		writeMu.Unlock()
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", path, err)
		}
	})

	// Seed from whichever side has content.
	if data, err := os.ReadFile(path); err == nil && len(data) > 0 {
		engine.LocalChange(string(data))
	} else if engine.Content() != "" {
		os.WriteFile(path, []byte(engine.Content()), 0644)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fatal("failed to create watcher", err)
	}
	defer watcher.Close()
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		fatal("failed to watch file", err)
	}

	fmt.Printf("Syncing %s as document %s in workspace %s\n", path, documentID, workspaceID)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Name != path || !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			writeMu.Lock()
			skip := selfWrite
			selfWrite = false
			writeMu.Unlock()
			if skip {
				continue
			}
			data, err := os.ReadFile(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to read %s: %v\n", path, err)
				continue
			}
			engine.LocalChange(string(data))
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "watch error: %v\n", err)
		case <-sigCh:
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()
			if err := c.Close(shutdownCtx); err != nil {
				fatal("shutdown failed", err)
			}
			return
		}
	}
}
