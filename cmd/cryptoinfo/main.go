// cryptoinfo inspects, validates and keys Cryptomatte OpenEXR files.
//
// Usage:
//
//	cryptoinfo [options] <filename>
//
// Options:
//
//	-q, --quiet          Only print validation errors.
//	-l, --layer <name>   Layer to key or pick from (default: first layer).
//	-m, --matte <names>  Comma separated names to extract as a matte.
//	-o, --output <file>  Write the matte to an EXR file with a single A channel.
//	-p, --pick <x,y>     Print the dominant name at a pixel.
//	-h, --help           Show this help message.
//	--version            Show version information.
//
// Exit codes:
//
//	0: File valid
//	1: File invalid
//	2: Error (file not found, not a Cryptomatte file, etc.)
package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mrjoshuak/go-cryptomatte/exr"
	"github.com/mrjoshuak/go-cryptomatte/exrmatte"
	"github.com/mrjoshuak/go-cryptomatte/matteid"
)

const version = "0.1.0"

type options struct {
	quiet  bool
	layer  string
	names  []string
	output string
	pick   bool
	pickX  int
	pickY  int
	file   string
}

func main() {
	opts, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		printUsage()
		os.Exit(2)
	}

	f, err := exrmatte.ReadFile(opts.file)
	if err != nil {
		if exrmatte.IsNotCryptomatte(err) {
			fmt.Fprintf(os.Stderr, "%s: not a Cryptomatte file\n", opts.file)
		} else {
			fmt.Fprintf(os.Stderr, "%s: error: %v\n", opts.file, err)
		}
		os.Exit(2)
	}

	if !opts.quiet {
		printInfo(opts.file, f.Info())
	}

	if len(opts.names) > 0 || opts.pick {
		if err := key(f, opts); err != nil {
			fmt.Fprintf(os.Stderr, "%s: error: %v\n", opts.file, err)
			os.Exit(2)
		}
	}

	result := f.Validate()
	if !opts.quiet {
		for _, w := range result.Warnings {
			fmt.Printf("  warning: %s\n", w)
		}
	}
	for _, e := range result.Errors {
		fmt.Fprintf(os.Stderr, "%s: %s\n", opts.file, e)
	}
	if !result.Valid {
		os.Exit(1)
	}
	if !opts.quiet {
		fmt.Println("  valid")
	}
}

func parseArgs(args []string) (options, error) {
	var opts options
	next := func(i *int, flag string) (string, error) {
		if *i+1 >= len(args) {
			return "", fmt.Errorf("%s requires a value", flag)
		}
		*i++
		return args[*i], nil
	}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch arg {
		case "-q", "--quiet":
			opts.quiet = true
		case "-l", "--layer":
			v, err := next(&i, arg)
			if err != nil {
				return opts, err
			}
			opts.layer = v
		case "-m", "--matte":
			v, err := next(&i, arg)
			if err != nil {
				return opts, err
			}
			for _, name := range strings.Split(v, ",") {
				if name = strings.TrimSpace(name); name != "" {
					opts.names = append(opts.names, name)
				}
			}
		case "-o", "--output":
			v, err := next(&i, arg)
			if err != nil {
				return opts, err
			}
			opts.output = v
		case "-p", "--pick":
			v, err := next(&i, arg)
			if err != nil {
				return opts, err
			}
			x, y, err := parsePoint(v)
			if err != nil {
				return opts, err
			}
			opts.pick, opts.pickX, opts.pickY = true, x, y
		case "-h", "--help":
			printUsage()
			os.Exit(0)
		case "--version":
			fmt.Printf("cryptoinfo version %s\n", version)
			os.Exit(0)
		default:
			if strings.HasPrefix(arg, "-") {
				return opts, fmt.Errorf("unknown option: %s", arg)
			}
			if opts.file != "" {
				return opts, fmt.Errorf("more than one input file")
			}
			opts.file = arg
		}
	}
	if opts.file == "" {
		return opts, fmt.Errorf("no input file specified")
	}
	if opts.output != "" && len(opts.names) == 0 {
		return opts, fmt.Errorf("--output requires --matte")
	}
	return opts, nil
}

func parsePoint(s string) (x, y int, err error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("invalid pixel %q, want x,y", s)
	}
	if x, err = strconv.Atoi(strings.TrimSpace(xs)); err != nil {
		return 0, 0, fmt.Errorf("invalid pixel %q: %w", s, err)
	}
	if y, err = strconv.Atoi(strings.TrimSpace(ys)); err != nil {
		return 0, 0, fmt.Errorf("invalid pixel %q: %w", s, err)
	}
	return x, y, nil
}

func printInfo(filename string, info exrmatte.Info) {
	fmt.Printf("%s: %dx%d, %s, %d channels\n",
		filename, info.Width, info.Height, info.Compression, len(info.Channels))
	for _, l := range info.Layers {
		fmt.Printf("  %s (key %s)\n", l.Name, l.Key)
		fmt.Printf("    hash:       %s\n", l.Hash)
		fmt.Printf("    conversion: %s\n", l.Conversion)
		fmt.Printf("    levels:     %d (%s)\n", l.Levels, strings.Join(l.Passes, " "))
		if l.ManifestSize > 0 {
			fmt.Printf("    manifest:   %d names\n", l.ManifestSize)
		} else {
			fmt.Println("    manifest:   none")
		}
	}
}

func key(f *exrmatte.File, opts options) error {
	layer := opts.layer
	if layer == "" {
		layer = f.Layers[0].Metadata.Name
	}
	k, err := f.Keyer(layer)
	if err != nil {
		return err
	}

	if opts.pick {
		name, weight, ok := k.Pick(opts.pickX, opts.pickY)
		switch {
		case !ok:
			fmt.Printf("  pick %d,%d: nothing\n", opts.pickX, opts.pickY)
		default:
			fmt.Printf("  pick %d,%d: %s (%.3f)\n", opts.pickX, opts.pickY, name, weight)
		}
	}

	if len(opts.names) == 0 {
		return nil
	}
	alpha := k.Matte(opts.names...)
	var covered int
	var sum float64
	for _, a := range alpha {
		if a > 0 {
			covered++
		}
		sum += float64(a)
	}
	fmt.Printf("  matte %s: %d of %d pixels, mean %.4f\n",
		strings.Join(opts.names, ","), covered, len(alpha), sum/float64(len(alpha)))

	if opts.output == "" {
		return nil
	}
	h := exr.NewScanlineHeader(f.Width, f.Height)
	exrmatte.CopyMetadata(f.Header, h)
	// The output holds a plain alpha channel, not Cryptomatte passes.
	for _, attr := range h.Attributes() {
		if strings.HasPrefix(attr.Name, matteid.AttrCryptomatte+"/") {
			h.Remove(attr.Name)
		}
	}
	fb := exr.NewFrameBuffer(f.Width, f.Height)
	if err := fb.Set("A", alpha); err != nil {
		return err
	}
	if err := exr.WriteFile(opts.output, h, fb); err != nil {
		return err
	}
	fmt.Printf("  wrote %s\n", opts.output)
	return nil
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: cryptoinfo [options] <filename>

Inspect, validate and key a Cryptomatte OpenEXR file.

Options:
  -q, --quiet          Only print validation errors
  -l, --layer <name>   Layer to key or pick from (default: first layer)
  -m, --matte <names>  Comma separated names to extract as a matte
  -o, --output <file>  Write the matte to an EXR file with a single A channel
  -p, --pick <x,y>     Print the dominant name at a pixel
  -h, --help           Show this help message
  --version            Show version information`)
}
