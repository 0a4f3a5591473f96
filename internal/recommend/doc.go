// Stallcast - Market Inventory Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/stallcast

// Package recommend answers "how much of each product should this seller bring to
// this venue on this date".
//
// # Pipeline
//
// A request that misses the cache runs the full pipeline once per (seller, venue,
// date), however many callers ask concurrently:
//
//	signals.Adapter ×4 → features.Builder → predict.Engine → scoring.Scorer
//	    → normalize.Product → cache.Cache → caller
//
// The active model is captured once at the start of the computation, so a model
// promoted mid-request never mixes versions inside one recommendation set.
//
// # Degradation
//
// Weather, events and the venue profile degrade to fallbacks and only lower
// confidence. A missing transaction history is the only upstream failure surfaced to
// the caller, as a *models.UpstreamError naming the dependency.
//
// # Caching
//
// Complete sets are cached as the exact JSON bytes returned to the first caller. A
// computation that fails or runs out of budget is never cached. The computation
// runs on a context detached from the caller, so a caller that disconnects does not
// waste the work: the result still lands in the cache for the next request.
//
// # Usage
//
//	engine := recommend.NewEngine(db, builder, registry, recCache, recommend.DefaultConfig())
//	resp, err := engine.Recommend(ctx, recommend.Request{
//	    SellerID: sellerID,
//	    VenueID:  venueID,
//	    Date:     date,
//	})
package recommend
