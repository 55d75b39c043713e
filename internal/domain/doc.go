// Package domain contains the shared model for invoke: errors, workspace
// configuration, variables and run reports.
//
// The domain is transport- and persistence-agnostic: it does not depend on YAML parsing,
// net/http, or the filesystem. Infra/adapters map into/from these types.
package domain
