// slidectl converts images to tiled slides and inspects them from the shell.
//
//	slidectl import  [flags] <source-image> <slide>
//	slidectl info    [--json] <slide>
//	slidectl extract [flags] <slide> <out.png>
//	slidectl verify  <slide>
//	slidectl config  [path]
package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/pflag"

	"github.com/ironsheep/slide-tools-mcp/internal/config"
	"github.com/ironsheep/slide-tools-mcp/internal/imaging"
	"github.com/ironsheep/slide-tools-mcp/internal/slide"
	"github.com/ironsheep/slide-tools-mcp/internal/tilecodec"
	"github.com/ironsheep/slide-tools-mcp/internal/tilestore"
)

// Version information - set by ldflags during build
var Version = "dev"

// errUsage marks command-line mistakes; main exits 2 for them.
var errUsage = errors.New("usage")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func usage(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

func run(args []string, stdout io.Writer) error {
	global := pflag.NewFlagSet("slidectl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	configPath := global.String("config", config.Path(), "path to the YAML configuration file")
	showVersion := global.Bool("version", false, "print version information")
	if err := global.Parse(args); err != nil {
		return usage("%v", err)
	}
	if *showVersion {
		fmt.Fprintf(stdout, "slidectl %s\n", Version)
		return nil
	}

	rest := global.Args()
	if len(rest) == 0 {
		return usage("missing command (import, info, extract, verify, config)")
	}

	cmd, cmdArgs := rest[0], rest[1:]
	if cmd == "config" {
		return runConfig(cmdArgs, *configPath, stdout)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	switch cmd {
	case "import":
		return runImport(cmdArgs, cfg, logger, stdout)
	case "info":
		return runInfo(cmdArgs, cfg, logger, stdout)
	case "extract":
		return runExtract(cmdArgs, cfg, logger, stdout)
	case "verify":
		return runVerify(cmdArgs, cfg, logger, stdout)
	default:
		return usage("unknown command %q", cmd)
	}
}

func runImport(args []string, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	flags := pflag.NewFlagSet("import", pflag.ContinueOnError)
	tileSize := flags.Int("tile-size", cfg.Store.TileSize, "tile edge length, a multiple of 16")
	compression := flags.String("compression", cfg.Store.Compression, "tile codec: none, lz4, zstd or auto")
	edge := flags.String("edge-policy", cfg.Store.EdgePolicy, "edge tiles: clip or pad")
	maxLevels := flags.Int("max-levels", cfg.Store.MaxLevels, "pyramid level cap, 0 for no cap")
	if err := flags.Parse(args); err != nil {
		return usage("%v", err)
	}
	if flags.NArg() != 2 {
		return usage("import takes <source-image> <slide>")
	}
	src, dst := flags.Arg(0), flags.Arg(1)

	tag, err := tilecodec.ParseTag(*compression)
	if err != nil {
		return usage("%v", err)
	}
	policy, err := tilestore.ParseEdgePolicy(*edge)
	if err != nil {
		return usage("%v", err)
	}

	img, info, err := imaging.LoadSource(src)
	if err != nil {
		return err
	}
	opts := append(cfg.SlideOptions(logger),
		slide.WithCompression(tag),
		slide.WithEdgePolicy(policy),
		slide.WithMaxLevels(*maxLevels),
	)
	if err := slide.Import(dst, img, *tileSize, opts...); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "imported %s (%s, %dx%d) to %s\n", src, info.Format, info.Width, info.Height, dst)
	return nil
}

// infoOutput is the --json shape of the info command.
type infoOutput struct {
	Path       string            `json:"path"`
	ID         string            `json:"id"`
	Width      int               `json:"width"`
	Height     int               `json:"height"`
	TileSize   int               `json:"tile_size"`
	EdgePolicy string            `json:"edge_policy"`
	Levels     []tilestore.Level `json:"levels"`
}

func runInfo(args []string, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	flags := pflag.NewFlagSet("info", pflag.ContinueOnError)
	asJSON := flags.Bool("json", false, "print JSON")
	if err := flags.Parse(args); err != nil {
		return usage("%v", err)
	}
	if flags.NArg() != 1 {
		return usage("info takes <slide>")
	}
	path := flags.Arg(0)

	return slide.View(path, func(r *slide.Reader) error {
		h, w, _ := r.Dimensions()
		if *asJSON {
			enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(infoOutput{
				Path:       path,
				ID:         r.ID(),
				Width:      w,
				Height:     h,
				TileSize:   r.TileSize(),
				EdgePolicy: r.EdgePolicy().String(),
				Levels:     r.Levels(),
			})
		}

		fmt.Fprintf(stdout, "%s\n  id:          %s\n  size:        %dx%d\n  tile size:   %d\n  edge policy: %s\n",
			path, r.ID(), w, h, r.TileSize(), r.EdgePolicy())
		for _, lvl := range r.Levels() {
			fmt.Fprintf(stdout, "  level %d: 1/%d  %dx%d  %dx%d tiles\n",
				lvl.Index, lvl.Downsample, lvl.Width, lvl.Height, lvl.Cols, lvl.Rows)
		}
		return nil
	}, cfg.SlideOptions(logger)...)
}

func runExtract(args []string, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	flags := pflag.NewFlagSet("extract", pflag.ContinueOnError)
	level := flags.IntP("level", "l", 0, "pyramid level")
	x := flags.Int("x", 0, "left edge, level pixels")
	y := flags.Int("y", 0, "top edge, level pixels")
	width := flags.Int("width", 0, "region width (default: to the right edge)")
	height := flags.Int("height", 0, "region height (default: to the bottom edge)")
	thumb := flags.Int("thumbnail", 0, "write a thumbnail of this size instead of a region")
	if err := flags.Parse(args); err != nil {
		return usage("%v", err)
	}
	if flags.NArg() != 2 {
		return usage("extract takes <slide> <out.png>")
	}
	path, out := flags.Arg(0), flags.Arg(1)

	return slide.View(path, func(r *slide.Reader) error {
		var raster *imaging.Raster
		var err error
		if *thumb > 0 {
			raster, err = r.Thumbnail(*thumb)
		} else {
			lw, lh, dimErr := r.LevelDimensions(*level)
			if dimErr != nil {
				return dimErr
			}
			if *width == 0 {
				*width = lw - *x
			}
			if *height == 0 {
				*height = lh - *y
			}
			raster, err = r.Read(*level, *x, *y, *width, *height)
		}
		if err != nil {
			return err
		}
		if err := imaging.WritePNG(raster, out); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "wrote %dx%d to %s\n", raster.Width, raster.Height, out)
		return nil
	}, cfg.SlideOptions(logger)...)
}

func runVerify(args []string, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	if len(args) != 1 {
		return usage("verify takes <slide>")
	}
	return slide.View(args[0], func(r *slide.Reader) error {
		report, err := r.Verify()
		if err != nil {
			return err
		}
		if !report.OK() {
			for _, c := range report.Corrupt {
				fmt.Fprintf(stdout, "corrupt tile %s\n", c)
			}
			return fmt.Errorf("%d of %d tiles failed verification", len(report.Corrupt), report.Tiles)
		}
		fmt.Fprintf(stdout, "%d tiles OK\n", report.Tiles)
		return nil
	}, cfg.SlideOptions(logger)...)
}

// runConfig writes the default configuration to path, or to the global
// --config path when none is given. An existing file is left alone.
func runConfig(args []string, configPath string, stdout io.Writer) error {
	if len(args) > 1 {
		return usage("config takes at most one path")
	}
	if len(args) == 1 {
		configPath = args[0]
	}
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("%s already exists", configPath)
	}
	if err := config.SaveConfig(config.DefaultConfig(), configPath); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "wrote default configuration to %s\n", configPath)
	return nil
}
