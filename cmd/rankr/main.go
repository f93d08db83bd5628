// Package main provides the rankr CLI.
//
// rankr checks where a domain ranks in Google results for a list of
// keywords, optionally from several locations, using the Serper.dev API.
//
// Usage:
//
//	rankr check --domain example.com --keyword "best coffee" --location "Austin, Texas"
//	rankr check --domain example.com --keywords-file keywords.txt --format markdown
//	rankr countries
//
// See --help for all available options.
package main

func main() {
	Execute()
}
