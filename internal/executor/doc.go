// Package executor runs GraphQL operations against a schema.Schema, calling
// out to a Runtime for everything that touches data.
//
// Fields marked @async are not resolved where they are met. They are queued
// and handed to Runtime.BatchResolveAsync together, one call per async depth,
// so a runtime can fetch observed data for a whole level at once. Synchronous
// fields never add a batch.
//
// Null handling follows GraphQL: a null in a non-null position replaces the
// nearest nullable ancestor, and queued work below a replaced value is
// dropped. Once ctx is done, queued fields fail with ctx.Err() and the
// runtime is no longer called.
//
// Errors are collected as GraphQLError values located by Path. The error a
// resolver returned stays reachable through errors.As, and errors
// implementing ExtendedError contribute their extensions.
package executor
