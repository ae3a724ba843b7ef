// Package main provides the entry point for the zoopla-scraper CLI.
//
// zoopla-scraper crawls property listings region by region, deduplicates
// them, and reconciles every run against the previous snapshot so that
// only added, updated and delisted listings are reported.
//
// Usage:
//
//	zoopla-scraper init
//	zoopla-scraper run
//	zoopla-scraper lookup listing:61234567
//	zoopla-scraper history
//	zoopla-scraper serve
//
// See --help for all available options.
package main

func main() {
	Execute()
}
