// Package convert implements program subcommands.
package convert

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/ianaindex"

	"sox/archive"
	"sox/reader"
	"sox/standoff"
	"sox/state"
	"sox/writer"
	"sox/xmltree"
)

// handler processes single XML document. "src" is part of the source path
// (always including file name) relative to the requested source: base file
// name for a single file, relative path when looking inside archive or
// directory. "dst" is destination directory.
type handler func(ctx context.Context, r io.Reader, src, dst string, log *zap.Logger) (string, error)

// Flatten converts XML documents into text with standoff spans and
// annotations and exports them.
func Flatten(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	env := state.EnvFromContext(ctx)
	log := env.Log.Named("flatten")

	src, dst, err := prepareCommand(ctx, cmd, log)
	if err != nil {
		return err
	}

	name := env.Cfg.Output.Format
	if cmd.IsSet("to") {
		name = cmd.String("to")
	}
	if env.Format, err = standoff.ParseExportFormat(name); err != nil {
		log.Warn("Unknown output format requested, switching to yaml", zap.Error(err))
		env.Format = standoff.ExportYAML
	}

	rd, err := newReader(env.Cfg, false, log)
	if err != nil {
		return fmt.Errorf("unable to prepare reader: %w", err)
	}

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst), zap.Stringer("format", env.Format))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return process(ctx, src, dst, flattenHandler(env, rd), log)
}

// Render reads XML documents preserving whitespace and writes their markup
// back from flattened text and spans, optionally limited to a text window.
func Render(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	env := state.EnvFromContext(ctx)
	log := env.Log.Named("render")

	src, dst, err := prepareCommand(ctx, cmd, log)
	if err != nil {
		return err
	}

	var opts []writer.Option
	if w := cmd.String("window"); w != "" {
		begin, end, err := parseWindow(w)
		if err != nil {
			return err
		}
		opts = append(opts, writer.WithWindow(begin, end))
	}
	if enc := env.Cfg.Writer.Encoding; enc != "" {
		opts = append(opts, writer.WithEncoding(enc))
	}
	if env.Cfg.Writer.XMLDeclaration {
		opts = append(opts, writer.WithXMLDeclaration())
	}
	inline := env.Cfg.Writer.Inline
	if types := cmd.StringSlice("inline"); len(types) > 0 {
		inline = types
	}
	if len(inline) > 0 {
		log.Debug("Rendering annotations inline", zap.Strings("types", inline))
		opts = append(opts, writer.WithInline(writer.FeatureTags{}, inline...))
	}

	rd, err := newReader(env.Cfg, true, log)
	if err != nil {
		return fmt.Errorf("unable to prepare reader: %w", err)
	}

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	return process(ctx, src, dst, renderHandler(env, rd, opts), log)
}

// prepareCommand handles arguments and flags shared by subcommands.
func prepareCommand(ctx context.Context, cmd *cli.Command, log *zap.Logger) (src, dst string, err error) {
	env := state.EnvFromContext(ctx)

	if src = cmd.Args().Get(0); len(src) == 0 {
		return "", "", errors.New("no input source has been specified")
	}
	if src, err = filepath.Abs(src); err != nil {
		return "", "", err
	}
	if dst = cmd.Args().Get(1); len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return "", "", fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return "", "", err
	}
	if cmd.Args().Len() > 2 {
		log.Warn("Malformed command line, too many destinations", zap.Strings("ignoring", cmd.Args().Slice()[2:]))
	}

	env.NoDirs, env.Overwrite = cmd.Bool("nodirs"), cmd.Bool("overwrite")

	// Since zip "standard" does not define file name encoding we may need to
	// force archaic code page for old archives
	if cp := cmd.String("force-zip-cp"); len(cp) > 0 {
		env.CodePage, err = ianaindex.IANA.Encoding(cp)
		if err != nil || env.CodePage == nil {
			log.Warn("Unknown character set specification. Ignoring...", zap.String("charset", cp), zap.Error(err))
			env.CodePage = nil
		} else {
			n, _ := ianaindex.IANA.Name(env.CodePage)
			log.Debug("Forcefully converting all non UTF-8 file names in archives", zap.String("charset", n))
		}
	}
	return src, dst, nil
}

// parseWindow accepts "begin:end" with either side optional.
func parseWindow(s string) (begin, end int, err error) {
	b, e, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("malformed window %q, expected BEGIN:END", s)
	}
	begin, end = 0, -1
	if b != "" {
		if begin, err = strconv.Atoi(b); err != nil {
			return 0, 0, fmt.Errorf("malformed window begin %q: %w", b, err)
		}
	}
	if e != "" {
		if end, err = strconv.Atoi(e); err != nil {
			return 0, 0, fmt.Errorf("malformed window end %q: %w", e, err)
		}
	}
	return begin, end, nil
}

// process determines the input type (directory, archive, or single file) and
// processes it accordingly. Path may continue inside archive.
func process(ctx context.Context, src, dst string, h handler, log *zap.Logger) error {
	var head, tail string
	for head = src; len(head) != 0; head, tail = filepath.Split(head) {
		if err := ctx.Err(); err != nil {
			return err
		}

		head = strings.TrimSuffix(head, string(filepath.Separator))

		fi, err := os.Stat(head)
		if err != nil {
			// does not exists - probably path in archive
			continue
		}

		if fi.Mode().IsDir() {
			if len(tail) != 0 {
				return fmt.Errorf("input source was not found (%s) => (%s)", head, strings.TrimPrefix(src, head))
			}
			if err := processDir(ctx, head, dst, h, log); err != nil {
				return fmt.Errorf("unable to process directory: %w", err)
			}
			break
		}

		if !fi.Mode().IsRegular() {
			return fmt.Errorf("unexpected path mode for (%s) => (%s)", head, strings.TrimPrefix(src, head))
		}

		arc, err := isArchiveFile(head)
		if err != nil {
			return fmt.Errorf("unable to check archive type: %w", err)
		}
		if arc {
			tail = strings.TrimPrefix(strings.TrimPrefix(src, head), string(filepath.Separator))
			if err := processArchive(ctx, head, tail, "", dst, h, log); err != nil {
				return fmt.Errorf("unable to process archive: %w", err)
			}
			break
		}

		doc, bom, err := isXMLFile(head)
		if err != nil {
			return fmt.Errorf("unable to check file type: %w", err)
		}
		if doc && len(tail) == 0 {
			if err := state.EnvFromContext(ctx).Rpt.StoreCopy(filepath.Join("source", filepath.Base(head)), head); err != nil {
				log.Warn("Unable to store source in debug report", zap.String("file", head), zap.Error(err))
			}
			if err := processPath(ctx, head, filepath.Base(head), dst, bom, h, log); err != nil {
				return err
			}
			break
		}
		return fmt.Errorf("input was not recognized as XML document (%s)", head)
	}
	if len(head) == 0 {
		return fmt.Errorf("input source was not found (%s)", src)
	}
	return nil
}

// processDir walks directory tree finding XML documents and archives.
// Failed documents are logged, processing continues.
func processDir(ctx context.Context, dir, dst string, h handler, log *zap.Logger) (err error) {
	count := 0
	defer func() {
		if err == nil && count == 0 {
			log.Debug("Nothing to process", zap.String("dir", dir))
		}
	}()

	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err != nil {
			log.Warn("Skipping path", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		arc, err := isArchiveFile(path)
		if err != nil {
			log.Warn("Skipping file", zap.String("file", path), zap.Error(err))
			return nil
		}
		if arc {
			if err := processArchive(ctx, path, "", filepath.Dir(strings.TrimPrefix(path, dir)), dst, h, log); err != nil {
				log.Error("Unable to process archive", zap.String("file", path), zap.Error(err))
			}
			return nil
		}

		doc, bom, err := isXMLFile(path)
		if err != nil {
			log.Warn("Skipping file", zap.String("file", path), zap.Error(err))
			return nil
		}
		if !doc {
			log.Debug("Skipping file, not recognized as XML document or archive", zap.String("file", path))
			return nil
		}
		count++

		src := strings.TrimPrefix(strings.TrimPrefix(path, dir), string(filepath.Separator))
		if err := processPath(ctx, path, src, dst, bom, h, log); err != nil {
			log.Error("Unable to process file", zap.String("file", path), zap.Error(err))
		}
		return nil
	})
}

// processArchive walks all files inside archive, finds XML documents under
// "pathIn" and processes them.
func processArchive(ctx context.Context, path, pathIn, pathOut, dst string, h handler, log *zap.Logger) (err error) {
	count := 0
	defer func() {
		if err == nil && count == 0 {
			log.Debug("Nothing to process", zap.String("archive", path))
		}
	}()

	cp := state.EnvFromContext(ctx).CodePage

	return archive.Walk(path, filepath.ToSlash(pathIn), func(arc string, f *zip.File) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		doc, bom, err := isXMLInArchive(f)
		if err != nil {
			log.Warn("Skipping file in archive", zap.String("archive", arc), zap.String("path", f.Name), zap.Error(err))
			return nil
		}
		if !doc {
			log.Debug("Skipping file, not recognized as XML document", zap.String("archive", arc), zap.String("file", f.Name))
			return nil
		}
		count++

		r, err := f.Open()
		if err != nil {
			log.Error("Unable to process file in archive", zap.String("archive", arc), zap.String("file", f.Name), zap.Error(err))
			return nil
		}
		defer r.Close()

		name := f.Name
		if cp != nil && f.NonUTF8 {
			if n, err := cp.NewDecoder().String(name); err == nil {
				name = n
			} else {
				n, _ = ianaindex.IANA.Name(cp)
				log.Warn("Unable to convert archive name from specified encoding",
					zap.String("charset", n), zap.String("path", name), zap.Error(err))
			}
		}
		if err := processDocument(ctx, r, filepath.Join(pathOut, filepath.FromSlash(name)), dst, bom, h, log); err != nil {
			log.Error("Unable to process file in archive", zap.String("archive", arc), zap.String("file", f.Name), zap.Error(err))
		}
		return nil
	})
}

func processPath(ctx context.Context, path, src, dst string, bom xmltree.BOM, h handler, log *zap.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("unable to open file: %w", err)
	}
	defer f.Close()
	return processDocument(ctx, f, src, dst, bom, h, log)
}

// processDocument runs handler over single document. Panics are turned into
// errors so the rest of documents could be processed.
func processDocument(ctx context.Context, r io.Reader, src, dst string, bom xmltree.BOM, h handler, log *zap.Logger) (rerr error) {
	var outputName string

	log.Info("Processing document", zap.String("from", src), zap.Stringer("bom", bom))
	defer func(start time.Time) {
		if r := recover(); r != nil {
			log.Error("Processing ended with panic",
				zap.Any("panic", r), zap.Duration("elapsed", time.Since(start)), zap.String("to", outputName), zap.ByteString("stack", debug.Stack()))
			rerr = fmt.Errorf("processing panic: %v", r)
		} else if rerr == nil {
			log.Info("Document completed", zap.Duration("elapsed", time.Since(start)), zap.String("to", outputName))
		}
	}(time.Now())

	outputName, rerr = h(ctx, r, src, dst, log)
	return rerr
}

func flattenHandler(env *state.LocalEnv, rd *reader.Reader) handler {
	return func(ctx context.Context, r io.Reader, src, dst string, log *zap.Logger) (string, error) {
		doc, err := rd.Read(r)
		if err != nil {
			return "", fmt.Errorf("unable to read XML source (%s): %w", src, err)
		}
		data, err := standoff.Marshal(doc, env.Format)
		if err != nil {
			return "", fmt.Errorf("unable to export document (%s): %w", src, err)
		}
		if ce := log.Check(zap.DebugLevel, "Document flattened"); ce != nil {
			ce.Write(zap.String("id", doc.ID), zap.Stringer("document", doc))
		}

		values := newValues(doc, src, env.Cfg.Reader.DocumentType, env.Format)
		outputName := buildOutputPath(values, src, dst, env.Format.Ext(), env)
		err = writeOutput(outputName, env, log, func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		})
		if err != nil {
			return "", err
		}
		env.Rpt.Store(fmt.Sprintf("result-%s%s", doc.ID, env.Format.Ext()), outputName)
		return outputName, nil
	}
}

func renderHandler(env *state.LocalEnv, rd *reader.Reader, opts []writer.Option) handler {
	return func(ctx context.Context, r io.Reader, src, dst string, log *zap.Logger) (string, error) {
		doc, err := rd.Read(r)
		if err != nil {
			return "", fmt.Errorf("unable to read XML source (%s): %w", src, err)
		}

		values := newValues(doc, src, env.Cfg.Reader.DocumentType, env.Format)
		outputName := buildOutputPath(values, src, dst, filepath.Ext(src), env)
		err = writeOutput(outputName, env, log, func(w io.Writer) error {
			return writer.Write(w, doc, opts...)
		})
		if err != nil {
			return "", err
		}
		env.Rpt.Store(fmt.Sprintf("result-%s%s", doc.ID, filepath.Ext(src)), outputName)
		return outputName, nil
	}
}

// writeOutput creates output file, refusing to replace existing one unless
// asked to.
func writeOutput(name string, env *state.LocalEnv, log *zap.Logger, write func(w io.Writer) error) (err error) {
	if _, err := os.Stat(name); err == nil {
		if !env.Overwrite {
			return fmt.Errorf("output file already exists: %s", name)
		}
		log.Warn("Overwriting existing file", zap.String("file", name))
	} else if !os.IsNotExist(err) {
		return err
	} else if err := os.MkdirAll(filepath.Dir(name), 0755); err != nil {
		return fmt.Errorf("unable to create output directory: %w", err)
	}

	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("unable to create output file: %w", err)
	}
	defer func() {
		if e := f.Close(); e != nil {
			err = multierr.Append(err, fmt.Errorf("unable to close output file: %w", e))
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("unable to write output (%s): %w", name, err)
	}
	return nil
}
