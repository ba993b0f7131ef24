package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

func pathProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": "Absolute path to the slide file",
	}
}

func levelProperty() map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": "Pyramid level (0 = full resolution). Coordinates are in this level's pixels. Default 0",
		"default":     0,
	}
}

// regionProperties describes a level-local rectangle selected by coordinates
// or by name.
func regionProperties() map[string]interface{} {
	return map[string]interface{}{
		"path":   pathProperty(),
		"level":  levelProperty(),
		"x":      map[string]interface{}{"type": "integer", "description": "Left edge X coordinate (0-based)"},
		"y":      map[string]interface{}{"type": "integer", "description": "Top edge Y coordinate (0-based)"},
		"width":  map[string]interface{}{"type": "integer", "description": "Region width in pixels"},
		"height": map[string]interface{}{"type": "integer", "description": "Region height in pixels"},
		"region": map[string]interface{}{
			"type":        "string",
			"enum":        []string{"full", "top-left", "top-right", "bottom-left", "bottom-right", "top-half", "bottom-half", "left-half", "right-half", "center"},
			"description": "Named region of the level. Overrides x, y, width and height",
		},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	readRegion := regionProperties()
	readRegion["scale"] = map[string]interface{}{
		"type":        "number",
		"description": "Optional scale factor applied after reading (e.g., 2.0 to double size). Default 1.0",
		"default":     1.0,
	}
	readRegion["show_tile_grid"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Overlay stored tile boundaries labelled row,col. Default false",
		"default":     false,
	}
	readRegion["grid_color"] = map[string]interface{}{
		"type":        "string",
		"description": "Grid line color in hex (#RRGGBB or #RRGGBBAA). Default semi-transparent red",
	}

	stats := regionProperties()
	stats["dominant_count"] = map[string]interface{}{
		"type":        "integer",
		"description": "Number of dominant colors to return (default 5)",
		"default":     5,
	}

	return []Tool{
		// Slide Information
		{
			Name:        "slide_info",
			Description: "Open a slide and return its dimensions, tile size, edge policy and every pyramid level with its downsample factor and size.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
		{
			Name:        "slide_verify",
			Description: "Read every tile of every level and check its checksum. Returns the tile count and the coordinates of corrupt tiles.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},

		// Region Operations
		{
			Name:        "slide_read_region",
			Description: "Read a rectangular region from one pyramid level and return it as base64-encoded PNG. Read a coarse level first to find areas of interest, then zoom in on level 0.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": readRegion,
				"required":   []string{"path"},
			},
		},
		{
			Name:        "slide_thumbnail",
			Description: "Return the whole slide scaled to fit in a square of max_size pixels, as base64-encoded PNG.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"max_size": map[string]interface{}{
						"type":        "integer",
						"description": "Longest side of the thumbnail in pixels (default 512)",
						"default":     512,
					},
				},
				"required": []string{"path"},
			},
		},

		// Analysis
		{
			Name:        "slide_sample_color",
			Description: "Get the exact color value at a pixel of one pyramid level.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path":  pathProperty(),
					"level": levelProperty(),
					"x":     map[string]interface{}{"type": "integer", "description": "X coordinate (0-based, from left)"},
					"y":     map[string]interface{}{"type": "integer", "description": "Y coordinate (0-based, from top)"},
				},
				"required": []string{"path", "x", "y"},
			},
		},
		{
			Name:        "slide_region_stats",
			Description: "Per-channel mean, standard deviation, min and max, the average color and the dominant colors of a region.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": stats,
				"required":   []string{"path"},
			},
		},
		{
			Name:        "slide_tissue_fraction",
			Description: "Estimate the fraction of a level covered by tissue: pixels whose luminance is below the threshold. Defaults to the coarsest level.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
					"level": map[string]interface{}{
						"type":        "integer",
						"description": "Pyramid level to measure. Default: the coarsest level",
					},
					"threshold": map[string]interface{}{
						"type":        "integer",
						"description": "Luminance (0-255) below which a pixel counts as tissue. Default 220",
						"default":     220,
					},
				},
				"required": []string{"path"},
			},
		},

		// Session Management
		{
			Name:        "slide_import",
			Description: "Convert an ordinary image (PNG, JPEG, GIF, TIFF, BMP) into a new tiled slide with a full pyramid.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"source": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path to the source image",
					},
					"path": map[string]interface{}{
						"type":        "string",
						"description": "Absolute path of the slide to create. Must not exist",
					},
					"tile_size": map[string]interface{}{
						"type":        "integer",
						"description": "Tile edge length, a multiple of 16. Default from configuration (256)",
					},
					"compression": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"none", "lz4", "zstd", "auto"},
						"description": "Tile compression. Default from configuration",
					},
					"edge_policy": map[string]interface{}{
						"type":        "string",
						"enum":        []string{"clip", "pad"},
						"description": "Store edge tiles clipped or padded to full size. Default from configuration",
					},
				},
				"required": []string{"source", "path"},
			},
		},
		{
			Name:        "slide_close",
			Description: "Close a slide the server holds open, releasing its file handle.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"path": pathProperty(),
				},
				"required": []string{"path"},
			},
		},
	}
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
