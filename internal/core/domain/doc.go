// Package domain contains the core business entities and domain errors
// for the mnemo knowledge engine. It has no dependencies on adapters or
// infrastructure.
package domain
