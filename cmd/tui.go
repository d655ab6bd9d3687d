package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/shelves/internal/shared"
	"github.com/desertthunder/shelves/internal/ui"
	"github.com/urfave/cli/v3"
)

// TUI launches the interactive shelf browser.
//
// Without a session the shelves are browsable from the local cache and play falls back to opening
// links.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering
	fileLogger, err := shared.NewFileLogger(shared.ExpandPath(r.config.Client.LogPath))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m, client, err := r.manager(ctx)
	if err != nil {
		return err
	}
	defer m.Flush()

	if err := m.Watch(ctx); err != nil {
		r.logger.Warn("shelf cache is not watched", "error", err)
	}

	opts := ui.Options{
		Shelves: m,
		Open:    shared.OpenExternal,
		Logger:  shared.WithLogger(r.logger, "component", "ui"),
	}
	if client.HasSession() {
		c, stop, err := r.controller(ctx, client)
		if err != nil {
			r.logger.Warn("player unavailable, links will open externally", "error", err)
		} else {
			defer stop()
			opts.Player = c
		}
	}

	model := ui.NewModel(ctx, opts)
	defer model.Close()

	p := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
