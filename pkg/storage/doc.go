// Package storage holds the connection settings shared by the backing
// services. The subpackages open them:
//
//   - storage/postgres: the primary database and its schema migrations
//   - storage/redisconn: the Redis client used for notifications and rate limits
//   - storage/objectstore: the S3 bucket that receives audit archives
//
// Domain stores (tenants, rbac, auth, audit, workflow) take a *sql.DB and own
// their queries; this package only opens connections and creates tables.
package storage
