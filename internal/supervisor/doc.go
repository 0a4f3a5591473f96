// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

/*
Package supervisor runs Stallcast's long-lived services under a suture
supervision tree.

The tree has three layers so a crashing consumer cannot take down the API:

	stallcast
	├── background-layer   signal refresher, cache sweeper
	├── events-layer       cache invalidator, retrain scheduler
	└── api-layer          HTTP server

Each layer restarts its own children with exponential backoff. Supervisor
events are logged through sutureslog, bridged to zerolog by
logging.NewSlogLogger.

Usage:

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddEventService(invalidator)
	tree.AddAPIService(services.NewHTTPServerService(server, 10*time.Second))
	err = tree.Serve(ctx)
*/
package supervisor
