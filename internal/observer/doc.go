// Package observer lets build code query external systems whose data may not
// have been fetched yet.
//
// Each observer owns a schema. A Manager executes queries against that schema
// using the data and context most recently fetched by the observer's Plugin.
// Resolvers that lack data return a NeedsDataError; execution still completes
// and the error travels in the result. The Manager records every distinct
// query it executes and, separately, the queries that needed data. An outer
// loop hands the latter to Plugin.Observe, registers the fresh data with a new
// Manager and runs the build again.
//
// Observations capture the fetched data together with the queries that were
// asked, and can be persisted as JSON between invocations.
package observer
