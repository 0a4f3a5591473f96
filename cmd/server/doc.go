// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

/*
Package main is the entry point for the Stallcast server.

Stallcast tells market sellers how much of each product to bring to a scheduled
appearance at a venue. It combines the seller's sales history, weather, nearby
events and the seller's track record at the venue, and learns from the quantities
they actually sell.

# Application Architecture

Long-lived components run under a Suture v4 supervision tree:

	RootSupervisor ("stallcast")
	├── BackgroundSupervisor ("background-layer")
	│   ├── Signal refresher (weather and events for upcoming appearances)
	│   └── Cache sweeper (in-memory backend only)
	├── EventsSupervisor ("events-layer")
	│   ├── Cache invalidator (transactions, signals, catalog events)
	│   └── Retrain scheduler (cron plus feedback counting)
	└── APISupervisor ("api-layer")
	    └── HTTP server

Initialization order:

 1. Configuration: Koanf v2 (defaults, config.yaml, environment)
 2. Logging: zerolog
 3. Database: DuckDB relational store
 4. Signals: HTTP providers behind rate limiters and circuit breakers, with a
    badger snapshot store for last-known-good answers
 5. Models: the active trained model is loaded from the database
 6. Cache and event bus: memory or Redis backend, Watermill GoChannel bus
 7. HTTP server and supervisor tree

# Configuration

Common environment variables:

	HTTP_PORT=8470
	DUCKDB_PATH=/data/stallcast.duckdb
	CACHE_BACKEND=memory        # or redis, with REDIS_ADDR
	WEATHER_URL=...             # optional; seasonal normals are used without it
	EVENTS_URL=...              # optional
	RETRAIN_SCHEDULE="0 3 * * 0"
	LOG_LEVEL=info

# Signal Handling

SIGINT and SIGTERM cancel the supervisor context. The HTTP server drains
in-flight requests, background retraining is canceled, and the stores are
closed in reverse order of opening.
*/
package main
