// Package minutes defines the domain types and interfaces shared by the
// scraper pipeline, the stores, and the HTTP application.
package minutes
