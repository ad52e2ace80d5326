// Package main provides the entry point for the sitecrawl CLI.
//
// sitecrawl crawls several web sites concurrently. Each site is explored
// breadth-first from its seed URL, bounded by a link depth and a page
// budget, and the report lists the URLs found on each site by depth.
//
// Usage:
//
//	sitecrawl crawl https://example.com https://example.org
//	sitecrawl crawl --list seeds.txt
//
// See --help for all available options.
package main

func main() {
	Execute()
}
