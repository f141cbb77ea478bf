// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/poiesic/neardup/similarity"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "neardup",
		Usage: "Near-duplicate detection over embedding vectors",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Load environment variables from this file",
				Value: ".env",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "compute",
				Usage:  "Recompute the pair index from all embeddings",
				Action: computeCommand,
				Flags: append(storageFlags(),
					&cli.IntFlag{
						Name:  "chunk-size",
						Usage: "Block dimension of the similarity matrix",
						Value: similarity.DefaultChunkSize,
					},
					&cli.Float64Flag{
						Name:    "threshold",
						Aliases: []string{"t"},
						Usage:   "Minimum cosine similarity for a pair to be stored",
						Value:   similarity.DefaultThreshold,
					},
					&cli.IntFlag{
						Name:  "insert-batch-size",
						Usage: "Number of pairs per store write",
						Value: similarity.DefaultInsertBatchSize,
					},
					&cli.IntFlag{
						Name:  "fetch-batch-size",
						Usage: "Number of embeddings per page",
						Value: similarity.DefaultFetchBatchSize,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Goroutines computing block products",
						Value: 1,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.BoolFlag{
						Name:  "strict",
						Usage: "Exit with an error if any found pair could not be stored",
					},
				),
			},
			{
				Name:   "similar",
				Usage:  "List the stored near duplicates of an item",
				Action: similarCommand,
				Flags: append(storageFlags(),
					&cli.Int64Flag{
						Name:     "id",
						Usage:    "Item ID to look up",
						Required: true,
					},
					&cli.Float64Flag{
						Name:  "min-score",
						Usage: "Only show matches scoring at least this",
						Value: -1,
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of matches (0 = all)",
						Value: 20,
					},
				),
			},
			{
				Name:   "import",
				Usage:  "Load embeddings from a JSON lines file into a local store",
				Action: importCommand,
				Flags: append(storageFlags(),
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "JSON lines file of {\"id\": n, \"embedding\": [...]} records (- for stdin)",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of embeddings written per batch",
						Value: 1000,
					},
				),
			},
			{
				Name:   "stats",
				Usage:  "Show store counts and the last run summary",
				Action: statsCommand,
				Flags:  storageFlags(),
			},
			{
				Name:   "serve",
				Usage:  "Serve near-duplicate lookups over HTTP",
				Action: serveCommand,
				Flags: append(storageFlags(),
					&cli.StringFlag{
						Name:  "listen",
						Usage: "Address to listen on",
					},
				),
			},
		},
	}
}

// storageFlags are shared by every command that opens a store. Unset flags
// fall back to the environment and then the config file.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a TOML config file",
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Storage backend (badger, sqlite, rest)",
		},
		&cli.StringFlag{
			Name:    "db",
			Aliases: []string{"d"},
			Usage:   "Path to the BadgerDB directory or SQLite file",
		},
		&cli.StringFlag{
			Name:  "rest-url",
			Usage: "PostgREST base URL (rest backend)",
		},
	}
}
