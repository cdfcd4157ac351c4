// Veld CLI - runs, inspects, and stores compiled Veld images.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/veldlang/veld/config"
	"github.com/veldlang/veld/vm"
	"github.com/veldlang/veld/vm/image"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output (per-instruction trace)")
	disasm := flag.Bool("d", false, "Disassemble instead of running")
	name := flag.String("name", "", "Load the named image from the store instead of a file")
	store := flag.Bool("store", false, "Store the image instead of running it")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: veld [options] [image-file]\n\n")
		fmt.Fprintf(os.Stderr, "Runs a compiled Veld image.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  veld program.vimg           # Run an image file\n")
		fmt.Fprintf(os.Stderr, "  veld -d program.vimg        # Disassemble an image file\n")
		fmt.Fprintf(os.Stderr, "  veld -store program.vimg    # Add the image to the store\n")
		fmt.Fprintf(os.Stderr, "  veld -name hello            # Run the stored image 'hello'\n")
	}
	flag.Parse()

	cfg, err := config.FindAndLoad(".")
	if err != nil {
		fail("config: %v", err)
	}

	commonlog.Configure(logVerbosity(*verbose, cfg.Runtime.Debug), nil)

	img, err := loadImage(cfg, *name, flag.Args())
	if err != nil {
		fail("%v", err)
	}
	program := img.Program()

	if *store {
		st, err := image.OpenStore(cfg.StorePath())
		if err != nil {
			fail("%v", err)
		}
		defer st.Close()
		hash, err := st.Put(img)
		if err != nil {
			fail("%v", err)
		}
		fmt.Println(hash)
		return
	}

	if *disasm {
		fmt.Println(vm.Disassemble(program))
		return
	}

	engine := vm.NewVM(program,
		vm.WithDebug(*verbose || cfg.Runtime.Debug),
		vm.WithStackLimit(cfg.Runtime.StackLimit),
		vm.WithPoolWorkers(cfg.Runtime.PoolWorkers),
	)
	defer engine.Drop()

	result, err := engine.Run()
	if err != nil {
		fail("%v", err)
	}
	if result != nil && *verbose {
		fmt.Printf("result: %s\n", result.Format())
	}
}

// loadImage resolves the image to operate on: a stored name or a file path.
func loadImage(cfg *config.Config, name string, args []string) (*image.Image, error) {
	if name != "" {
		st, err := image.OpenStore(cfg.StorePath())
		if err != nil {
			return nil, err
		}
		defer st.Close()
		return st.GetByName(name)
	}
	if len(args) != 1 {
		flag.Usage()
		os.Exit(2)
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", args[0], err)
	}
	return image.Unmarshal(data)
}

func logVerbosity(verbose, debug bool) int {
	if verbose || debug {
		return 2
	}
	return 0
}

func fail(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
