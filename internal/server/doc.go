// Package server implements the MCP (Model Context Protocol) server for slide tools.
//
// This package provides a JSON-RPC 2.0 server that exposes tiled slide images
// through the MCP protocol, so a client can inspect a gigapixel image one
// region at a time instead of loading it whole.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// # Available Tools
//
// Slide Information:
//   - slide_info: Dimensions, tile size and the pyramid levels
//   - slide_verify: Checksum every stored tile
//
// Region Operations:
//   - slide_read_region: Read a region of any level as PNG, optionally with
//     the tile grid drawn over it
//   - slide_thumbnail: Whole slide scaled to a bounding square
//
// Analysis:
//   - slide_sample_color: Color at one pixel
//   - slide_region_stats: Channel statistics and dominant colors
//   - slide_tissue_fraction: Share of a level darker than a threshold
//
// Session Management:
//   - slide_import: Convert an ordinary image into a slide
//   - slide_close: Release a slide held open by the server
//
// # Slide Sessions
//
// Slides are opened read-only on first use and kept in a SlideCache keyed by
// path. The cache holds at most server.maxOpenSlides slides and closes the
// least recently used one when full. Everything still open is closed when
// Serve returns.
//
// # Error Handling
//
// Tool execution errors are returned as JSON-RPC error responses with:
//   - code: -32602 for caller-fixable arguments (out-of-bounds or oversized
//     regions, unknown names), -32000 for every other failure
//   - message: Human-readable error description
//   - data: The Go error string
//
// # Usage
//
//	cfg, err := config.LoadConfig(config.Path())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	srv := server.New(cfg, cfg.NewLogger())
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
