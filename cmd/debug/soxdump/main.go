// soxdump reads an XML file and dumps its standoff form: text, spans with
// covered text, declarations and annotations. Optionally it also writes the
// export in every supported format for comparison.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/beevik/etree"

	"sox/cmd/debug/internal/dumputil"
	"sox/reader"
	"sox/standoff"
)

func main() {
	root := flag.String("root", "", "`SELECTOR` of text root element (empty means whole document)")
	preserve := flag.Bool("preserve", false, "preserve whitespace as in the source")
	ignore := flag.String("ignore", "", "comma separated `TAGS` to ignore")
	export := flag.Bool("export", false, "also write <file>.yaml, <file>.ion and <file>.10n")
	overwrite := flag.Bool("overwrite", false, "overwrite existing output")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: soxdump [-root selector] [-preserve] [-ignore tags] [-export] [-overwrite] <file.xml> [outdir]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 || flag.NArg() > 2 {
		flag.Usage()
		os.Exit(2)
	}

	defer func(startedAt time.Time) {
		fmt.Fprintf(os.Stderr, "\nExecution time: %s\n", time.Since(startedAt))
	}(time.Now())

	inPath := flag.Arg(0)
	outDir := ""
	if flag.NArg() == 2 {
		outDir = flag.Arg(1)
	}

	opts := []reader.Option{reader.WithTextRoot(*root), reader.WithPreserveWhitespace(*preserve)}
	if len(*ignore) > 0 {
		opts = append(opts, reader.WithIgnore(ignoreTags(strings.Split(*ignore, ","))))
	}

	if err := run(inPath, outDir, reader.New(opts...), *export, *overwrite); err != nil {
		fmt.Fprintf(os.Stderr, "soxdump: %v\n", err)
		os.Exit(1)
	}
}

func run(inPath, outDir string, rd *reader.Reader, export, overwrite bool) error {
	f, err := os.Open(inPath)
	if err != nil {
		return err
	}
	defer f.Close()

	doc, err := rd.Read(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", inPath, err)
	}
	if err := dumputil.WriteOutput(inPath, outDir, "-dump.txt", []byte(doc.String()+"\n"), overwrite); err != nil {
		return err
	}
	if !export {
		return nil
	}
	for _, name := range standoff.ExportFormatNames() {
		format, err := standoff.ParseExportFormat(name)
		if err != nil {
			return err
		}
		data, err := standoff.Marshal(doc, format)
		if err != nil {
			return fmt.Errorf("export %s: %w", name, err)
		}
		if err := dumputil.WriteOutput(inPath, outDir, format.Ext(), data, overwrite); err != nil {
			return err
		}
	}
	return nil
}

func ignoreTags(tags []string) func(el *etree.Element) bool {
	return func(el *etree.Element) bool {
		for _, t := range tags {
			if strings.EqualFold(strings.TrimSpace(t), el.Tag) {
				return true
			}
		}
		return false
	}
}
