// Package imaging provides the pixel-level types and analysis used around
// the slide store.
//
// Raster is the unit exchanged with the storage engine: an interleaved 8-bit
// RGB buffer in row-major order. Everything else in this package converts
// rasters to and from standard Go images or measures them:
//
//   - FromImage, FromImageRect and LoadSource bring ordinary images in.
//   - EncodePNG, WritePNG, Fit and TileGrid produce output for clients.
//   - SampleColor, AverageColor, DominantColors, MeasureRegion and
//     TissueFraction analyse a region read from a slide.
//
// # Coordinate System
//
// All pixel coordinates are 0-based with (0,0) at the top-left corner. For
// rectangles the minimum point is inclusive and the maximum exclusive, as in
// image.Rectangle.
//
// # Color Representation
//
//   - Hex: 6-character format "#RRGGBB"
//   - RGB: 8-bit components (0-255)
//   - HSL: Hue (0-360), Saturation (0-100), Lightness (0-100)
//
// # Thread Safety
//
// Functions here are stateless. A Raster is a plain buffer; callers
// synchronize writes to a shared one.
package imaging
