package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"sceneforge/internal/engine"
	"sceneforge/internal/render/compiler"
	"sceneforge/internal/render/job"
)

var (
	rootCmd = &cobra.Command{
		Use:   "renderctl",
		Short: "Inspect and dry-run render job specs",
		Long: `renderctl compiles render job spec documents offline, without a
database, queue or encoder. It is meant for debugging filter graphs and
validating specs before submitting them to the API.

Examples:
  # Print the filter graph a spec compiles to
  renderctl compile -i job.json

  # Print the full ffmpeg invocation
  renderctl compile -i job.json --args

  # Inspect a media file
  renderctl probe input.mp4`,
	}

	compileCmd = &cobra.Command{
		Use:   "compile",
		Short: "Compile a job spec into its filter graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			inputPath, _ := cmd.Flags().GetString("input")
			outputPath, _ := cmd.Flags().GetString("output")
			fontDir, _ := cmd.Flags().GetString("font-dir")
			showArgs, _ := cmd.Flags().GetBool("args")

			data, err := os.ReadFile(inputPath)
			if err != nil {
				return err
			}

			parsed, err := job.ParseSpec(data)
			if err != nil {
				return err
			}

			c := compiler.New(compiler.Config{
				Fonts: compiler.NewFontResolver(fontDir),
			})
			compiled, err := c.Compile(parsed, identityAssets(parsed), outputPath)
			if err != nil {
				return err
			}

			if showArgs {
				fmt.Println("ffmpeg " + strings.Join(engine.Args(compiled), " "))
				return nil
			}
			// One stage per line keeps large graphs readable.
			for _, stage := range strings.Split(compiled.FilterComplex(), ";") {
				fmt.Println(stage)
			}
			return nil
		},
	}

	probeCmd = &cobra.Command{
		Use:   "probe <file>",
		Short: "Print media metadata as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := engine.Probe(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		},
	}
)

// identityAssets maps every source reference to itself, so specs that
// reference local files compile without a download step.
func identityAssets(j *job.RenderJob) compiler.AssetMap {
	m := compiler.AssetMap{}
	for _, seg := range j.Images {
		m[seg.SourceRef] = seg.SourceRef
	}
	for _, seg := range j.Videos {
		m[seg.SourceRef] = seg.SourceRef
		if seg.Voiceover != nil {
			m[seg.Voiceover.SourceRef] = seg.Voiceover.SourceRef
		}
	}
	for _, clip := range j.AudioClips {
		m[clip.SourceRef] = clip.SourceRef
	}
	return m
}

func init() {
	compileCmd.Flags().StringP("input", "i", "", "Job spec JSON file")
	compileCmd.Flags().StringP("output", "o", "output.mp4", "Output path used in the compiled command")
	compileCmd.Flags().String("font-dir", "/usr/share/fonts/truetype", "Font directory for text overlays")
	compileCmd.Flags().Bool("args", false, "Print the full ffmpeg invocation instead of the filter graph")
	compileCmd.MarkFlagRequired("input")

	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(probeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
