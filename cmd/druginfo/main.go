package main

import (
	"context"
	"os"

	"druginfo-rag/internal/cli"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API provides filtered semantic search and question answering over
// over-the-counter drug label sections.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: Druginfo RAG API
//   description: |
//     Hybrid retrieval over drug label passages: relational filters on product alias,
//     ingredient and section narrow a vector similarity search.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:]))
}
