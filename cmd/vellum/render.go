package main

import (
	goerrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vellumtext/vellum"
)

func newRenderCmd() *cobra.Command {
	var (
		contextFile string
		debug       bool
		invalid     string
		outDir      string
		jobs        int
	)
	cmd := &cobra.Command{
		Use:   "render <template>...",
		Short: "Render templates against an optional context file",
		Long: `Render one or more template files. Variables come from a context
file (JSON, YAML or TOML, chosen by extension). Without --out the rendered
output goes to stdout; with --out each template is written to a file of the
same name in the output directory.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := loadContextFile(contextFile)
			if err != nil {
				return errors.Wrap(err, "loading context file")
			}

			engine := vellum.New()
			engine.SetDebug(debug)
			engine.SetStringIfInvalid(invalid)
			engine.SetLoader(func(name string) (string, *vellum.Origin, error) {
				src, err := os.ReadFile(name)
				if err != nil {
					return "", nil, err
				}
				return string(src), &vellum.Origin{Name: name, LoaderName: "filesystem"}, nil
			})

			var mu sync.Mutex
			var g errgroup.Group
			g.SetLimit(jobs)
			for _, name := range args {
				name := name
				g.Go(func() error {
					out, err := engine.RenderToString(name, data)
					if err != nil {
						var terr *vellum.Error
						if goerrors.As(err, &terr) && terr.Debug != nil {
							mu.Lock()
							vellum.RenderExceptionInfo(cmd.ErrOrStderr(), terr.Debug, !color.NoColor)
							mu.Unlock()
						}
						return errors.Wrapf(err, "rendering %s", name)
					}
					if outDir == "" {
						mu.Lock()
						defer mu.Unlock()
						_, err := fmt.Fprint(cmd.OutOrStdout(), out)
						return err
					}
					dest := filepath.Join(outDir, filepath.Base(name))
					logrus.WithFields(logrus.Fields{
						"template": name,
						"dest":     dest,
						"bytes":    len(out),
					}).Debug("rendered template")
					return os.WriteFile(dest, []byte(out), 0o644)
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().StringVarP(&contextFile, "context", "c", "", "context file (.json, .yaml or .toml)")
	cmd.Flags().BoolVar(&debug, "debug", false, "show source context on template errors")
	cmd.Flags().StringVar(&invalid, "invalid", "", "output for unresolved variables (%s is the expression)")
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory to write rendered files into")
	cmd.Flags().IntVarP(&jobs, "jobs", "j", 4, "number of templates rendered concurrently")
	return cmd
}
