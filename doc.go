// Package artisan implements the admin side of the artisan marketplace:
// reviewing service providers, verifying their identity documents, and moving
// accounts through their lifecycle.
//
// Lifecycle:
//   - Artisans carry a Status (pending, active, blocked) and a KYC IDStatus
//     (unverified, verifying, verified, failed), both persisted via Bun.
//   - StateMachine centralizes the transition graph, hooks, and persistence.
//     Approving a pending artisan requires a verified ID and resets the
//     activity flag.
//   - CheckAction guards the admin actions exposed by Workflow and the HTTP
//     server so both reject the same requests.
//
// Stores:
//   - MemoryStore backs demos and tests, ArtisanRepository persists to SQL
//     through Bun, and the remote package talks to a running server. All of
//     them satisfy Store.
//
// Workflow:
//   - Workflow is the per record action layer a detail view holds. It applies
//     optimistic updates, rolls back on failure, refuses overlapping actions,
//     and broadcasts UpdateEvent values so list views patch rows in place.
//   - Close detaches a workflow; late results are dropped.
//
// Activity sinks:
//   - ActivitySink receives a best effort audit event for every persisted
//     transition. Errors are logged and never fail the transition.
package artisan
