// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
		},
	}
}

// setupCommand prepares configuration and storage.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create the config file and initialize the database",
		Commands: []*cli.Command{
			{
				Name:  "config",
				Usage: "Write a config file from the bundled template",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize database and run migrations",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "config",
						Aliases: []string{"c"},
						Usage:   "Path to configuration file",
						Value:   "config.toml",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// serveCommand runs the HTTP server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the auth, metadata and shelf API server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (defaults to server.host:server.port)",
			},
			&cli.BoolFlag{
				Name:  "tunnel",
				Usage: "Expose the server through an ngrok endpoint",
			},
		},
		Action: r.Serve,
	}
}

// authCommand manages the CLI session.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Sign in to Spotify through the server",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Open the Spotify login page and claim the session",
				Action: r.AuthLogin,
			},
			{
				Name:   "logout",
				Usage:  "End the session and forget it locally",
				Action: r.AuthLogout,
			},
			{
				Name:   "status",
				Usage:  "Show the signed in user",
				Flags:  jsonFlags(),
				Action: r.AuthStatus,
			},
			{
				Name:   "token",
				Usage:  "Print a Spotify access token",
				Flags:  jsonFlags(),
				Action: r.AuthToken,
			},
		},
	}
}

// albumCommand resolves album metadata.
func albumCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "album",
		Usage: "Album metadata",
		Commands: []*cli.Command{
			{
				Name:      "fetch",
				Usage:     "Fetch album metadata from a Spotify link",
				Arguments: []cli.Argument{&cli.StringArg{Name: "url"}},
				Flags:     jsonFlags(),
				Action:    r.AlbumFetch,
			},
		},
	}
}

// shelfCommand edits the shelf collection.
func shelfCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "shelf",
		Aliases: []string{"shelves"},
		Usage:   "Manage album shelves",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List shelves, or the albums on one shelf",
				Flags:  append(jsonFlags(), &cli.StringFlag{Name: "shelf", Aliases: []string{"s"}, Usage: "Shelf id or name"}),
				Action: r.ShelfList,
			},
			{
				Name:      "create",
				Usage:     "Create a shelf",
				Arguments: []cli.Argument{&cli.StringArg{Name: "name"}},
				Action:    r.ShelfCreate,
			},
			{
				Name:      "delete",
				Usage:     "Delete a shelf",
				Arguments: []cli.Argument{&cli.StringArg{Name: "shelf"}},
				Action:    r.ShelfDelete,
			},
			{
				Name:  "rename",
				Usage: "Rename a shelf",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "shelf"},
					&cli.StringArg{Name: "name"},
				},
				Action: r.ShelfRename,
			},
			{
				Name:  "add",
				Usage: "Add an album by Spotify link",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "shelf"},
					&cli.StringArg{Name: "url"},
				},
				Action: r.ShelfAdd,
			},
			{
				Name:  "remove",
				Usage: "Remove an album from a shelf",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "shelf"},
					&cli.StringArg{Name: "album"},
				},
				Action: r.ShelfRemove,
			},
			{
				Name:  "move",
				Usage: "Move an album to the position of another album",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "shelf"},
					&cli.StringArg{Name: "album"},
					&cli.StringArg{Name: "target"},
				},
				Action: r.ShelfMove,
			},
			{
				Name:      "export",
				Usage:     "Export a shelf",
				Arguments: []cli.Argument{&cli.StringArg{Name: "shelf"}},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, markdown, csv or json",
						Value:   "text",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Write to a file or directory instead of stdout",
					},
				},
				Action: r.ShelfExport,
			},
			{
				Name:  "import",
				Usage: "Add every album link listed in a file",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "file"},
				},
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "shelf",
						Aliases: []string{"s"},
						Usage:   "Target shelf id or name (defaults to the unified shelf)",
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent metadata fetches",
						Value: 4,
					},
				},
				Action: r.ShelfImport,
			},
		},
	}
}

// playCommand drives Spotify Connect playback.
func playCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "play",
		Usage: "Control Spotify playback",
		Commands: []*cli.Command{
			{
				Name:      "album",
				Usage:     "Play an album from your shelves",
				Arguments: []cli.Argument{&cli.StringArg{Name: "album"}},
				Action:    r.PlayAlbum,
			},
			{
				Name:      "track",
				Usage:     "Play a track from an album on your shelves",
				Arguments: []cli.Argument{&cli.StringArg{Name: "track"}},
				Action:    r.PlayTrack,
			},
			{
				Name:   "toggle",
				Usage:  "Pause or resume",
				Action: r.PlayToggle,
			},
			{
				Name:   "next",
				Usage:  "Skip to the next track",
				Action: r.PlayNext,
			},
			{
				Name:   "prev",
				Usage:  "Go back to the previous track",
				Action: r.PlayPrev,
			},
			{
				Name:      "seek",
				Usage:     "Seek to a position in milliseconds",
				Arguments: []cli.Argument{&cli.StringArg{Name: "ms"}},
				Action:    r.PlaySeek,
			},
			{
				Name:   "status",
				Usage:  "Show what is playing",
				Flags:  jsonFlags(),
				Action: r.PlayStatus,
			},
		},
	}
}

// tuiCommand launches the interactive shelf browser.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "tui",
		Usage:  "Browse shelves and play albums in the terminal",
		Action: r.TUI,
	}
}
