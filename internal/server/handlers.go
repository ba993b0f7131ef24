package server

import (
	"encoding/json"
	"fmt"
	"image"
	"os"

	"github.com/ironsheep/slide-tools-mcp/internal/imaging"
	"github.com/ironsheep/slide-tools-mcp/internal/slide"
	"github.com/ironsheep/slide-tools-mcp/internal/slideerr"
	"github.com/ironsheep/slide-tools-mcp/internal/tilecodec"
	"github.com/ironsheep/slide-tools-mcp/internal/tilestore"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "slide_info", "slide_read_region").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Caller-fixable argument errors (bad coordinates, misaligned or
// out-of-bounds regions) return code -32602; every other failure returns
// -32000.
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := jsonAPI.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, codeInvalidParams, "Invalid params", err.Error())
	}

	result, err := s.safeExecute(params.Name, params.Arguments)
	if err != nil {
		s.logger.Debug("tool failed", "tool", params.Name, "error", err)
		if slideerr.IsValidation(err) {
			return s.errorResponse(req.ID, codeInvalidParams, "Invalid arguments", err.Error())
		}
		return s.errorResponse(req.ID, codeToolFailed, "Tool execution failed", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// safeExecute runs executeTool and turns a panic into a tool failure so one
// bad request cannot stop the server.
func (s *Server) safeExecute(name string, args json.RawMessage) (result interface{}, err error) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("tool panicked", "tool", name, "panic", p)
			result, err = nil, fmt.Errorf("tool %s failed: %v", name, p)
		}
	}()
	return s.executeTool(name, args)
}

// executeTool dispatches tool execution to the appropriate handler function.
//
// Each tool handler:
//  1. Unmarshals arguments from JSON
//  2. Applies default values for optional parameters
//  3. Opens the slide through the session cache
//  4. Reads the region it needs and runs the imaging analysis
//  5. Returns the result or error
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	// Slide Information
	case "slide_info":
		return s.handleSlideInfo(args)
	case "slide_verify":
		return s.handleSlideVerify(args)

	// Region Operations
	case "slide_read_region":
		return s.handleSlideReadRegion(args)
	case "slide_thumbnail":
		return s.handleSlideThumbnail(args)

	// Analysis
	case "slide_sample_color":
		return s.handleSlideSampleColor(args)
	case "slide_region_stats":
		return s.handleSlideRegionStats(args)
	case "slide_tissue_fraction":
		return s.handleSlideTissueFraction(args)

	// Session Management
	case "slide_import":
		return s.handleSlideImport(args)
	case "slide_close":
		return s.handleSlideClose(args)

	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// On marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := jsonAPI.MarshalIndent(v, "", "  ")
	return string(b)
}

func decodeArgs(args json.RawMessage, v interface{}) error {
	if len(args) == 0 {
		return slideerr.Invalid("arguments", "missing arguments")
	}
	if err := jsonAPI.Unmarshal(args, v); err != nil {
		return slideerr.Invalid("arguments", "%v", err)
	}
	return nil
}

// === Slide Information Handlers ===

type slidePathArgs struct {
	Path string `json:"path"`
}

// LevelInfo describes one pyramid level.
type LevelInfo struct {
	Index      int `json:"index"`
	Downsample int `json:"downsample"`
	Width      int `json:"width"`
	Height     int `json:"height"`
	Rows       int `json:"rows"`
	Cols       int `json:"cols"`
}

// SlideInfo is the result of slide_info.
type SlideInfo struct {
	Path          string      `json:"path"`
	ID            string      `json:"id"`
	Width         int         `json:"width"`
	Height        int         `json:"height"`
	Channels      int         `json:"channels"`
	TileSize      int         `json:"tile_size"`
	EdgePolicy    string      `json:"edge_policy"`
	Levels        []LevelInfo `json:"levels"`
	FileSizeBytes int64       `json:"file_size_bytes"`
}

func describe(path string, r *slide.Reader) (*SlideInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat slide: %w", err)
	}
	h, w, c := r.Dimensions()
	info := &SlideInfo{
		Path:          path,
		ID:            r.ID(),
		Width:         w,
		Height:        h,
		Channels:      c,
		TileSize:      r.TileSize(),
		EdgePolicy:    r.EdgePolicy().String(),
		FileSizeBytes: stat.Size(),
	}
	for _, lvl := range r.Levels() {
		info.Levels = append(info.Levels, LevelInfo{
			Index:      lvl.Index,
			Downsample: lvl.Downsample,
			Width:      lvl.Width,
			Height:     lvl.Height,
			Rows:       lvl.Rows,
			Cols:       lvl.Cols,
		})
	}
	return info, nil
}

func (s *Server) handleSlideInfo(args json.RawMessage) (interface{}, error) {
	var a slidePathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	r, err := s.cache.Open(a.Path)
	if err != nil {
		return nil, err
	}
	return describe(a.Path, r)
}

func (s *Server) handleSlideVerify(args json.RawMessage) (interface{}, error) {
	var a slidePathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	r, err := s.cache.Open(a.Path)
	if err != nil {
		return nil, err
	}
	report, err := r.Verify()
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"ok":      report.OK(),
		"tiles":   report.Tiles,
		"corrupt": report.Corrupt,
	}, nil
}

// === Region Operation Handlers ===

// regionArgs selects a level-local rectangle either by coordinates or by a
// named region such as "center".
type regionArgs struct {
	Path   string `json:"path"`
	Level  int    `json:"level"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Region string `json:"region"`
}

// read resolves the rectangle and reads it, enforcing the region size limit.
func (s *Server) read(a regionArgs) (*slide.Reader, image.Rectangle, *imaging.Raster, error) {
	r, err := s.cache.Open(a.Path)
	if err != nil {
		return nil, image.Rectangle{}, nil, err
	}

	x, y, w, h := a.X, a.Y, a.Width, a.Height
	if a.Region != "" {
		lw, lh, err := r.LevelDimensions(a.Level)
		if err != nil {
			return nil, image.Rectangle{}, nil, err
		}
		named, err := imaging.NamedRegion(a.Region, lw, lh)
		if err != nil {
			return nil, image.Rectangle{}, nil, slideerr.Invalid("region", "%v", err)
		}
		x, y, w, h = named.Min.X, named.Min.Y, named.Dx(), named.Dy()
	}

	// Divide rather than multiply: w*h overflows for absurd extents.
	if limit := s.cfg.Server.MaxRegionPixels; w > 0 && h > 0 && w > limit/h {
		return nil, image.Rectangle{}, nil, slideerr.Invalid("region",
			"%dx%d exceeds the %d pixel limit; read a coarser level", w, h, limit)
	}

	raster, err := r.Read(a.Level, x, y, w, h)
	if err != nil {
		return nil, image.Rectangle{}, nil, err
	}
	rect := image.Rect(x, y, x+w, y+h)
	return r, rect, raster, nil
}

type readRegionArgs struct {
	regionArgs
	Scale        float64 `json:"scale"`
	ShowTileGrid bool    `json:"show_tile_grid"`
	GridColor    string  `json:"grid_color"`
}

// RegionImage is the result of slide_read_region.
type RegionImage struct {
	Level      int `json:"level"`
	Downsample int `json:"downsample"`
	X          int `json:"x"`
	Y          int `json:"y"`
	*imaging.RegionResult
}

func (s *Server) handleSlideReadRegion(args json.RawMessage) (interface{}, error) {
	var a readRegionArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Scale == 0 {
		a.Scale = 1.0
	}

	r, rect, raster, err := s.read(a.regionArgs)
	if err != nil {
		return nil, err
	}
	if a.ShowTileGrid {
		raster, err = imaging.TileGrid(raster, r.TileSize(), rect.Min.X, rect.Min.Y, true, a.GridColor)
		if err != nil {
			return nil, err
		}
	}

	encoded, err := imaging.EncodePNG(raster, a.Scale)
	if err != nil {
		return nil, slideerr.Invalid("read region", "%v", err)
	}
	ds, err := r.DownsampleFactor(a.Level)
	if err != nil {
		return nil, err
	}
	return &RegionImage{
		Level:        a.Level,
		Downsample:   ds,
		X:            rect.Min.X,
		Y:            rect.Min.Y,
		RegionResult: encoded,
	}, nil
}

type thumbnailArgs struct {
	Path    string `json:"path"`
	MaxSize int    `json:"max_size"`
}

func (s *Server) handleSlideThumbnail(args json.RawMessage) (interface{}, error) {
	var a thumbnailArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.MaxSize == 0 {
		a.MaxSize = 512
	}
	r, err := s.cache.Open(a.Path)
	if err != nil {
		return nil, err
	}
	thumb, err := r.Thumbnail(a.MaxSize)
	if err != nil {
		return nil, err
	}
	return imaging.EncodePNG(thumb, 1.0)
}

// === Analysis Handlers ===

type sampleColorArgs struct {
	Path  string `json:"path"`
	Level int    `json:"level"`
	X     int    `json:"x"`
	Y     int    `json:"y"`
}

func (s *Server) handleSlideSampleColor(args json.RawMessage) (interface{}, error) {
	var a sampleColorArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	_, _, px, err := s.read(regionArgs{Path: a.Path, Level: a.Level, X: a.X, Y: a.Y, Width: 1, Height: 1})
	if err != nil {
		return nil, err
	}
	return imaging.SampleColor(px, 0, 0)
}

type regionStatsArgs struct {
	regionArgs
	DominantCount int `json:"dominant_count"`
}

// RegionStatsResult is the result of slide_region_stats.
type RegionStatsResult struct {
	Level    int                           `json:"level"`
	Stats    *imaging.RegionStats          `json:"stats"`
	Average  *imaging.ColorResult          `json:"average"`
	Dominant *imaging.DominantColorsResult `json:"dominant"`
}

func (s *Server) handleSlideRegionStats(args json.RawMessage) (interface{}, error) {
	var a regionStatsArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.DominantCount == 0 {
		a.DominantCount = 5
	}

	_, _, raster, err := s.read(a.regionArgs)
	if err != nil {
		return nil, err
	}
	dominant, err := imaging.DominantColors(raster, a.DominantCount)
	if err != nil {
		return nil, slideerr.Invalid("region stats", "%v", err)
	}
	return &RegionStatsResult{
		Level:    a.Level,
		Stats:    imaging.MeasureRegion(raster),
		Average:  imaging.AverageColor(raster),
		Dominant: dominant,
	}, nil
}

type tissueArgs struct {
	Path      string `json:"path"`
	Level     *int   `json:"level"`
	Threshold int    `json:"threshold"`
}

func (s *Server) handleSlideTissueFraction(args json.RawMessage) (interface{}, error) {
	var a tissueArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Threshold == 0 {
		a.Threshold = imaging.DefaultTissueThreshold
	}

	r, err := s.cache.Open(a.Path)
	if err != nil {
		return nil, err
	}
	// Default to the coarsest level: the whole slide in one small read.
	level := r.LevelCount() - 1
	if a.Level != nil {
		level = *a.Level
	}
	w, h, err := r.LevelDimensions(level)
	if err != nil {
		return nil, err
	}

	_, _, raster, err := s.read(regionArgs{Path: a.Path, Level: level, Width: w, Height: h})
	if err != nil {
		return nil, err
	}
	result, err := imaging.TissueFraction(raster, a.Threshold)
	if err != nil {
		return nil, slideerr.Invalid("tissue fraction", "%v", err)
	}
	return map[string]interface{}{
		"level":  level,
		"tissue": result,
	}, nil
}

// === Session Management Handlers ===

type importArgs struct {
	Source      string `json:"source"`
	Path        string `json:"path"`
	TileSize    int    `json:"tile_size"`
	Compression string `json:"compression"`
	EdgePolicy  string `json:"edge_policy"`
}

func (s *Server) handleSlideImport(args json.RawMessage) (interface{}, error) {
	var a importArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	if a.Source == "" || a.Path == "" {
		return nil, slideerr.Invalid("import", "source and path are required")
	}
	if a.TileSize == 0 {
		a.TileSize = s.cfg.Store.TileSize
	}

	opts := s.cfg.SlideOptions(s.logger)
	if a.Compression != "" {
		tag, err := tilecodec.ParseTag(a.Compression)
		if err != nil {
			return nil, slideerr.Invalid("import", "%v", err)
		}
		opts = append(opts, slide.WithCompression(tag))
	}
	if a.EdgePolicy != "" {
		policy, err := tilestore.ParseEdgePolicy(a.EdgePolicy)
		if err != nil {
			return nil, slideerr.Invalid("import", "%v", err)
		}
		opts = append(opts, slide.WithEdgePolicy(policy))
	}

	img, src, err := imaging.LoadSource(a.Source)
	if err != nil {
		return nil, err
	}
	if err := slide.Import(a.Path, img, a.TileSize, opts...); err != nil {
		return nil, err
	}
	s.logger.Info("slide imported", "source", a.Source, "path", a.Path, "format", src.Format)

	r, err := s.cache.Open(a.Path)
	if err != nil {
		return nil, err
	}
	info, err := describe(a.Path, r)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"source": src,
		"slide":  info,
	}, nil
}

func (s *Server) handleSlideClose(args json.RawMessage) (interface{}, error) {
	var a slidePathArgs
	if err := decodeArgs(args, &a); err != nil {
		return nil, err
	}
	closed, err := s.cache.Evict(a.Path)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"closed": closed,
		"open":   s.cache.Len(),
	}, nil
}
